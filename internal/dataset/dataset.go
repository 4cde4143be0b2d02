package dataset

import (
	"fmt"
	"slices"
)

// Dataset is a collection of coordinates and data variables sharing dimensions.
type Dataset struct {
	Coords []*Variable
	Vars   []*Variable
	Attrs  Attrs
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{Attrs: Attrs{}}
}

// Coord looks up a coordinate by name.
func (d *Dataset) Coord(name string) (*Variable, bool) {
	for _, c := range d.Coords {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Var looks up a data variable by name.
func (d *Dataset) Var(name string) (*Variable, bool) {
	for _, v := range d.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// SetCoord adds or replaces a coordinate.
func (d *Dataset) SetCoord(c *Variable) error {
	if err := d.checkDims(c); err != nil {
		return err
	}
	for i, existing := range d.Coords {
		if existing.Name == c.Name {
			d.Coords[i] = c
			return nil
		}
	}
	d.Coords = append(d.Coords, c)
	return nil
}

// SetVar adds or replaces a data variable.
func (d *Dataset) SetVar(v *Variable) error {
	if err := d.checkDims(v); err != nil {
		return err
	}
	for i, existing := range d.Vars {
		if existing.Name == v.Name {
			d.Vars[i] = v
			return nil
		}
	}
	d.Vars = append(d.Vars, v)
	return nil
}

func (d *Dataset) checkDims(v *Variable) error {
	for i, dim := range v.Dims {
		if size, ok := d.DimSize(dim); ok && size != v.Shape[i] {
			return fmt.Errorf("variable %s: dimension %s has size %d, dataset has %d", v.Name, dim, v.Shape[i], size)
		}
	}
	return nil
}

// Dims returns dimension names in discovery order (coordinates first).
func (d *Dataset) Dims() []string {
	var dims []string
	for _, v := range d.all() {
		for _, dim := range v.Dims {
			if !slices.Contains(dims, dim) {
				dims = append(dims, dim)
			}
		}
	}
	return dims
}

// DimSize returns the length of a dimension.
func (d *Dataset) DimSize(dim string) (int, bool) {
	for _, v := range d.all() {
		if axis := v.Axis(dim); axis >= 0 {
			return v.Shape[axis], true
		}
	}
	return 0, false
}

func (d *Dataset) all() []*Variable {
	out := make([]*Variable, 0, len(d.Coords)+len(d.Vars))
	out = append(out, d.Coords...)
	return append(out, d.Vars...)
}

// Clone deep-copies the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Attrs: d.Attrs.Clone()}
	for _, c := range d.Coords {
		out.Coords = append(out.Coords, c.Clone())
	}
	for _, v := range d.Vars {
		out.Vars = append(out.Vars, v.Clone())
	}
	return out
}

// Isel selects one index along dim. Coordinates spanning only dim are dropped.
func (d *Dataset) Isel(dim string, index int) (*Dataset, error) {
	out := &Dataset{Attrs: d.Attrs.Clone()}
	for _, c := range d.Coords {
		if len(c.Dims) == 1 && c.Dims[0] == dim {
			continue
		}
		sel, err := c.Isel(dim, index)
		if err != nil {
			return nil, err
		}
		out.Coords = append(out.Coords, sel)
	}
	for _, v := range d.Vars {
		sel, err := v.Isel(dim, index)
		if err != nil {
			return nil, err
		}
		out.Vars = append(out.Vars, sel)
	}
	return out, nil
}

// Reverse flips every variable spanning dim.
func (d *Dataset) Reverse(dim string) *Dataset {
	out := &Dataset{Attrs: d.Attrs.Clone()}
	for _, c := range d.Coords {
		out.Coords = append(out.Coords, c.Reverse(dim))
	}
	for _, v := range d.Vars {
		out.Vars = append(out.Vars, v.Reverse(dim))
	}
	return out
}

// RenameDims renames dimensions (not variables) according to mapping.
func (d *Dataset) RenameDims(mapping map[string]string) *Dataset {
	out := d.Clone()
	for _, v := range out.all() {
		for i, dim := range v.Dims {
			if to, ok := mapping[dim]; ok {
				v.Dims[i] = to
			}
		}
		// A 1-D coordinate named after its dimension follows the rename.
		if len(v.Dims) == 1 {
			if to, ok := mapping[v.Name]; ok && v.Dims[0] == to {
				v.Name = to
			}
		}
	}
	return out
}

// Subset keeps only the named data variables; coordinates are kept.
func (d *Dataset) Subset(names ...string) (*Dataset, error) {
	out := &Dataset{Attrs: d.Attrs.Clone()}
	for _, c := range d.Coords {
		out.Coords = append(out.Coords, c.Clone())
	}
	for _, name := range names {
		v, ok := d.Var(name)
		if !ok {
			return nil, fmt.Errorf("variable %s not found in dataset", name)
		}
		out.Vars = append(out.Vars, v.Clone())
	}
	return out, nil
}
