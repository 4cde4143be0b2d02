package regrid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/adapter/ncfile"
	"go.ngs.io/climeval/internal/coords"
	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/gridspec"
)

// workDir creates a scratch directory. The returned cleanup removes it and
// everything inside.
func workDir(tmpDir string) (string, func(), error) {
	if tmpDir != "" {
		if err := os.MkdirAll(tmpDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create tmp directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(tmpDir, "climeval-regrid-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// publish lets write fill a partial file next to dst, then renames it over
// dst. A failed or empty write never touches dst.
func publish(dst string, write func(partial string) error) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	partial := filepath.Join(dir, fmt.Sprintf(".%s.%s.partial", filepath.Base(dst), uuid.NewString()))
	defer func() { _ = os.Remove(partial) }()

	if err := write(partial); err != nil {
		return err
	}
	if !gridspec.FileIsValid(partial) {
		return fmt.Errorf("%w: no output written for %s", domain.ErrGeneration, dst)
	}
	if err := os.Rename(partial, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	return nil
}

// sample is a reduced data sample used as generator input and as the
// reference for dimension names and coordinate values.
type sample struct {
	ds        *dataset.Dataset
	spaceDims []string
}

// prepareSample keeps one data variable, its first time step and, for the
// default vertical tag, its first level.
func prepareSample(ds *dataset.Dataset, vert string, mask *domain.Masking, ident *coords.Identifier) (*sample, error) {
	if ds == nil || len(ds.Vars) == 0 {
		return nil, errors.New("data sample has no variables")
	}
	v, err := pickVar(ds, mask)
	if err != nil {
		return nil, err
	}
	sub, err := ds.Subset(v.Name)
	if err != nil {
		return nil, err
	}

	cm := ident.Identify(sub)
	timeDim := dimOf(sub, cm[domain.RoleTime])
	if timeDim == "" {
		if _, ok := sub.DimSize("time"); ok {
			timeDim = "time"
		}
	}
	if timeDim != "" {
		if sub, err = sub.Isel(timeDim, 0); err != nil {
			return nil, fmt.Errorf("failed to select first time step: %w", err)
		}
	}

	var vertical []string
	for _, role := range []domain.Role{domain.RoleIsobaric, domain.RoleDepth} {
		if d := dimOf(sub, cm[role]); d != "" {
			vertical = append(vertical, d)
		}
	}
	if vert == "" || vert == domain.DefaultVerticalDim {
		for _, d := range vertical {
			if sub, err = sub.Isel(d, 0); err != nil {
				return nil, fmt.Errorf("failed to select first level: %w", err)
			}
		}
	}

	var space []string
	for _, d := range sub.Vars[0].Dims {
		if d != timeDim && !slices.Contains(vertical, d) {
			space = append(space, d)
		}
	}
	return &sample{ds: sub, spaceDims: space}, nil
}

// pickVar returns the first data variable matching the masking spec. Without
// masking the first variable is used.
func pickVar(ds *dataset.Dataset, mask *domain.Masking) (*dataset.Variable, error) {
	if mask == nil {
		return ds.Vars[0], nil
	}
	for _, name := range mask.Vars {
		if v, ok := ds.Var(name); ok {
			return v, nil
		}
	}
	if len(mask.Attributes) > 0 {
		for _, v := range ds.Vars {
			if matchAttrs(v.Attrs, mask.Attributes) {
				return v, nil
			}
		}
	}
	if len(mask.Vars) == 0 && len(mask.Attributes) == 0 {
		return ds.Vars[0], nil
	}
	return nil, fmt.Errorf("no variable in data sample matches masking %v", mask)
}

func matchAttrs(attrs dataset.Attrs, want map[string]string) bool {
	for k, v := range want {
		if attrs[k] != v {
			return false
		}
	}
	return true
}

func dimOf(ds *dataset.Dataset, desc *domain.CoordinateDescriptor) string {
	if desc == nil {
		return ""
	}
	c, ok := ds.Coord(desc.Name)
	if !ok || len(c.Dims) != 1 {
		return ""
	}
	return c.Dims[0]
}

// sourceInput resolves the generator input for a source grid: the grid name
// or file when one is registered, otherwise a sample file written to work.
func sourceInput(ctx context.Context, grid domain.GridSpec, zoom *int, load func(context.Context) (*sample, error), work string) (string, error) {
	switch grid.Kind {
	case domain.KindGeneratorName:
		return cdo.ConstField(grid.Value), nil
	case domain.KindFilePath:
		p := gridspec.SubstituteZoom(grid.Value, zoom)
		if !gridspec.FileIsValid(p) {
			return "", &domain.MissingArtifactError{Path: p, Dim: grid.VerticalDim}
		}
		return p, nil
	}

	s, err := load(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", &domain.ConfigurationError{Reason: fmt.Sprintf("no grid file registered for %q and no data retrieval available", grid.VerticalDim)}
	}
	path := filepath.Join(work, "sample.nc")
	if err := ncfile.Write(path, s.ds); err != nil {
		return "", fmt.Errorf("failed to write data sample: %w", err)
	}
	return path, nil
}

// sampleLoader retrieves and reduces the data sample once. A nil retriever
// yields a nil sample.
func sampleLoader(retrieve Retriever, grid domain.GridSpec, ident *coords.Identifier) func(context.Context) (*sample, error) {
	retrieve = once(retrieve)
	var (
		done bool
		s    *sample
		err  error
	)
	return func(ctx context.Context) (*sample, error) {
		if done {
			return s, err
		}
		done = true
		if retrieve == nil {
			return nil, nil
		}
		ds, rerr := retrieve(ctx)
		if rerr != nil {
			err = fmt.Errorf("failed to retrieve data sample: %w", rerr)
			return nil, err
		}
		s, err = prepareSample(ds, grid.VerticalDim, grid.Masking, ident)
		return s, err
	}
}
