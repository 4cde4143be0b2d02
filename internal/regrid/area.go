package regrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/adapter/ncfile"
	"go.ngs.io/climeval/internal/coords"
	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/gridspec"
	"go.ngs.io/climeval/internal/latdir"
	"go.ngs.io/climeval/internal/metrics"
)

// AreaVar is the name of the cell area variable in area files.
const AreaVar = "cell_area"

// AreaRequest describes one area file.
type AreaRequest struct {
	Path     string          // Destination area file.
	Grid     domain.GridSpec // Grid to measure.
	Target   bool            // Grid is a regular target grid rather than a native source grid.
	Retrieve Retriever       // Data sample; required when Grid has no value.
	Zoom     *int
}

// AreaManager creates and caches cell area files.
type AreaManager struct {
	gen     Generator
	opts    Options
	metrics *metrics.Collector
	ident   *coords.Identifier
	logger  *slog.Logger
}

// NewAreaManager creates an area manager. A nil logger uses slog.Default().
func NewAreaManager(gen Generator, opts Options, m *metrics.Collector, logger *slog.Logger) *AreaManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &AreaManager{gen: gen, opts: opts, metrics: m, ident: coords.NewIdentifier(logger), logger: logger}
}

// Ensure makes sure a valid area file exists at req.Path, generating it when
// missing, empty or when a rebuild is requested.
func (m *AreaManager) Ensure(ctx context.Context, req AreaRequest) error {
	if req.Path == "" {
		return errors.New("area file path is empty")
	}
	if !m.opts.Rebuild && gridspec.FileIsValid(req.Path) {
		m.metrics.CacheHit(metrics.KindArea)
		m.logger.Debug("area file found", "path", req.Path)
		return nil
	}
	m.metrics.CacheMiss(metrics.KindArea)
	m.logger.Info("generating area file", "path", req.Path, "grid", req.Grid.Value, "target", req.Target)

	start := time.Now()
	err := m.generate(ctx, req)
	m.metrics.Generated(metrics.KindArea, start, err)
	if err != nil {
		return fmt.Errorf("failed to generate area file %s: %w", req.Path, err)
	}
	return nil
}

func (m *AreaManager) generate(ctx context.Context, req AreaRequest) error {
	work, cleanup, err := workDir(m.opts.TmpDir)
	if err != nil {
		return err
	}
	defer cleanup()

	load := sampleLoader(req.Retrieve, req.Grid, m.ident)

	var (
		input string
		extra []string
	)
	if req.Target {
		if req.Grid.IsEmpty() {
			return &domain.ConfigurationError{Reason: "target area needs a target grid"}
		}
		input = cdo.ConstField(gridspec.SubstituteZoom(req.Grid.Value, req.Zoom))
	} else {
		if input, err = sourceInput(ctx, req.Grid, req.Zoom, load, work); err != nil {
			return err
		}
		extra = req.Grid.Extra
	}

	raw := filepath.Join(work, "gridarea.nc")
	if err := m.gen.GridArea(ctx, input, extra, raw); err != nil {
		return err
	}
	out, err := ncfile.Read(raw)
	if err != nil {
		return fmt.Errorf("%w: read area output: %w", domain.ErrGeneration, err)
	}

	s, err := load(ctx)
	if err != nil {
		return err
	}
	area, err := finishArea(out, s, !req.Target)
	if err != nil {
		return err
	}
	return publish(req.Path, func(partial string) error {
		return ncfile.Write(partial, area)
	})
}

// finishArea aligns generator output with the data sample and annotates the
// area variable. Source grids also get their dimensions renamed. A latitude
// axis the generator stored in the opposite order is flipped back first.
func finishArea(out *dataset.Dataset, s *sample, rename bool) (*dataset.Dataset, error) {
	if len(out.Vars) == 0 {
		return nil, fmt.Errorf("%w: area output has no variables", domain.ErrGeneration)
	}
	name := out.Vars[0].Name
	if _, ok := out.Var(AreaVar); ok {
		name = AreaVar
	}
	if s != nil {
		if rename {
			v, _ := out.Var(name)
			out = out.RenameDims(pairDims(v.Dims, s.spaceDims))
		}
		lat, dir := latdir.Detect(s.ds)
		latdir.MarkIfChanged(out, lat, dir)
		out = reattachCoords(latdir.Restore(out), s.ds)
	}

	out, err := out.Subset(name)
	if err != nil {
		return nil, err
	}
	v, _ := out.Var(name)
	v.Name = AreaVar
	v.Attrs["units"] = "m2"
	v.Attrs["standard_name"] = "area"
	return out, nil
}

// pairDims maps each output dimension unknown to the data onto a data
// spatial dimension missing from the output, pairing them in order.
func pairDims(outDims, spaceDims []string) map[string]string {
	var extra, missing []string
	for _, d := range outDims {
		if !slices.Contains(spaceDims, d) {
			extra = append(extra, d)
		}
	}
	for _, d := range spaceDims {
		if !slices.Contains(outDims, d) {
			missing = append(missing, d)
		}
	}
	mapping := map[string]string{}
	for i := 0; i < len(extra) && i < len(missing); i++ {
		mapping[extra[i]] = missing[i]
	}
	return mapping
}

// reattachCoords copies every coordinate of ref whose dimensions exist in
// out with the same sizes. Generator coordinates of the same name are replaced.
func reattachCoords(out, ref *dataset.Dataset) *dataset.Dataset {
	res := out.Clone()
	for _, c := range ref.Coords {
		if !fits(res, c) {
			continue
		}
		// Size conflicts are ruled out by fits.
		_ = res.SetCoord(c.Clone())
	}
	return res
}

func fits(ds *dataset.Dataset, c *dataset.Variable) bool {
	if len(c.Dims) == 0 {
		return false
	}
	for i, d := range c.Dims {
		size, ok := ds.DimSize(d)
		if !ok || size != c.Shape[i] {
			return false
		}
	}
	return true
}
