// Package dataset provides a small in-memory labeled array model: named
// dimensions, float64 values in row-major order and string attributes.
package dataset

import (
	"fmt"
	"slices"
)

// Attrs holds variable or dataset attributes.
type Attrs map[string]string

// Clone returns a copy of the attributes.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return Attrs{}
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Variable is an n-dimensional array with named dimensions.
type Variable struct {
	Name   string
	Dims   []string
	Shape  []int
	Values []float64 // Row-major, len == product(Shape).
	Attrs  Attrs
}

// NewVariable validates the shape against the values.
func NewVariable(name string, dims []string, shape []int, values []float64) (*Variable, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("variable %s: %d dims but %d shape entries", name, len(dims), len(shape))
	}
	if n := product(shape); n != len(values) {
		return nil, fmt.Errorf("variable %s: shape %v needs %d values, got %d", name, shape, n, len(values))
	}
	return &Variable{
		Name:   name,
		Dims:   slices.Clone(dims),
		Shape:  slices.Clone(shape),
		Values: values,
		Attrs:  Attrs{},
	}, nil
}

// NewCoord builds a 1-D coordinate variable whose dimension is its own name.
func NewCoord(name string, values []float64, attrs Attrs) *Variable {
	return &Variable{
		Name:   name,
		Dims:   []string{name},
		Shape:  []int{len(values)},
		Values: values,
		Attrs:  attrs.Clone(),
	}
}

// Len returns the number of elements.
func (v *Variable) Len() int {
	return len(v.Values)
}

// Axis returns the position of dim, or -1.
func (v *Variable) Axis(dim string) int {
	return slices.Index(v.Dims, dim)
}

// HasDim reports whether the variable spans dim.
func (v *Variable) HasDim(dim string) bool {
	return v.Axis(dim) >= 0
}

// Clone deep-copies the variable.
func (v *Variable) Clone() *Variable {
	return &Variable{
		Name:   v.Name,
		Dims:   slices.Clone(v.Dims),
		Shape:  slices.Clone(v.Shape),
		Values: slices.Clone(v.Values),
		Attrs:  v.Attrs.Clone(),
	}
}

// Isel selects a single index along dim, dropping that dimension.
// Variables that do not span dim are returned as a clone.
func (v *Variable) Isel(dim string, index int) (*Variable, error) {
	axis := v.Axis(dim)
	if axis < 0 {
		return v.Clone(), nil
	}
	if index < 0 || index >= v.Shape[axis] {
		return nil, fmt.Errorf("variable %s: index %d out of range for %s (size %d)", v.Name, index, dim, v.Shape[axis])
	}
	outer := product(v.Shape[:axis])
	inner := product(v.Shape[axis+1:])
	size := v.Shape[axis]
	values := make([]float64, 0, outer*inner)
	for o := 0; o < outer; o++ {
		start := (o*size + index) * inner
		values = append(values, v.Values[start:start+inner]...)
	}
	return &Variable{
		Name:   v.Name,
		Dims:   slices.Delete(slices.Clone(v.Dims), axis, axis+1),
		Shape:  slices.Delete(slices.Clone(v.Shape), axis, axis+1),
		Values: values,
		Attrs:  v.Attrs.Clone(),
	}, nil
}

// Reverse returns a copy with the index order along dim reversed.
func (v *Variable) Reverse(dim string) *Variable {
	out := v.Clone()
	axis := v.Axis(dim)
	if axis < 0 {
		return out
	}
	outer := product(v.Shape[:axis])
	inner := product(v.Shape[axis+1:])
	size := v.Shape[axis]
	for o := 0; o < outer; o++ {
		for i := 0; i < size; i++ {
			src := (o*size + i) * inner
			dst := (o*size + size - 1 - i) * inner
			copy(out.Values[dst:dst+inner], v.Values[src:src+inner])
		}
	}
	return out
}

// SameShape reports whether two variables have identical dims and shape.
func (v *Variable) SameShape(other *Variable) bool {
	return slices.Equal(v.Dims, other.Dims) && slices.Equal(v.Shape, other.Shape)
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
