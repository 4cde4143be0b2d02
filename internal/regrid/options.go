// Package regrid prepares the auxiliary files needed to regrid data: cell
// areas of source and target grids and interpolation weights between them.
// Files are generated on first use with an external generator and cached on
// disk under deterministic names.
package regrid

import (
	"context"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/dataset"
)

// Options are the immutable settings shared by the area and weight managers.
type Options struct {
	AreasDir   string
	WeightsDir string
	TmpDir     string // Scratch space for sample files; "" uses the OS default.
	Method     string // Default interpolation method.
	Rebuild    bool   // Regenerate even when a valid cached file exists.
}

func (o Options) method() string {
	if o.Method == "" {
		return cdo.DefaultMethod
	}
	return o.Method
}

// Generator runs the external area and weight generation.
type Generator interface {
	GridArea(ctx context.Context, input string, extra []string, output string) error
	Weights(ctx context.Context, req cdo.WeightsRequest) error
}

// Retriever returns a small sample of the data whose grid is being measured.
// It is called at most once per generation.
type Retriever func(ctx context.Context) (*dataset.Dataset, error)

// once wraps a retriever so repeated calls return the first result.
func once(r Retriever) Retriever {
	if r == nil {
		return nil
	}
	var (
		called bool
		ds     *dataset.Dataset
		err    error
	)
	return func(ctx context.Context) (*dataset.Dataset, error) {
		if !called {
			called = true
			ds, err = r(ctx)
		}
		return ds, err
	}
}
