// Package latdir detects and undoes silent reordering of latitude axes.
//
// Callers record the direction before an operation that may reorder the
// latitude coordinate, mark the result if it changed, and restore it later.
package latdir

import (
	"slices"

	"go.ngs.io/climeval/internal/coords"
	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/domain"
)

// MarkerAttr carries the original direction of a flipped latitude coordinate.
const MarkerAttr = "flipped"

// Detect returns the first coordinate carrying latitude units and its stored
// direction. Both are empty when no latitude coordinate is found.
func Detect(ds *dataset.Dataset) (string, domain.Direction) {
	for _, c := range ds.Coords {
		if slices.Contains(coords.LatitudeUnits, c.Attrs["units"]) {
			return c.Name, coords.StoredDirection(c.Values)
		}
	}
	return "", ""
}

// MarkIfChanged tags coordinate name with orig when its current direction
// differs. An existing marker is kept.
func MarkIfChanged(ds *dataset.Dataset, name string, orig domain.Direction) {
	if name == "" || orig == "" {
		return
	}
	c, ok := ds.Coord(name)
	if !ok {
		return
	}
	if _, marked := c.Attrs[MarkerAttr]; marked {
		return
	}
	if cur := coords.StoredDirection(c.Values); cur != "" && cur != orig {
		if c.Attrs == nil {
			c.Attrs = dataset.Attrs{}
		}
		c.Attrs[MarkerAttr] = string(orig)
	}
}

// Restore reverses a marked latitude coordinate, and every variable along its
// dimension, then drops the marker. Unmarked datasets are returned as is.
func Restore(ds *dataset.Dataset) *dataset.Dataset {
	for _, c := range ds.Coords {
		if _, marked := c.Attrs[MarkerAttr]; !marked || len(c.Dims) != 1 {
			continue
		}
		out := ds.Reverse(c.Dims[0])
		flipped, _ := out.Coord(c.Name)
		delete(flipped.Attrs, MarkerAttr)
		return out
	}
	return ds
}
