package regrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/coords"
	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/gridspec"
	"go.ngs.io/climeval/internal/metrics"
)

// WeightsRequest describes one weights file.
type WeightsRequest struct {
	Path     string          // Destination weights file.
	Grid     domain.GridSpec // Source grid.
	Target   string          // Target grid name or file.
	Method   string          // "" uses Options.Method.
	Extra    []string        // Caller pre-processing, applied before the grid's own.
	Zoom     *int
	Retrieve Retriever // Data sample; required when Grid has no value.
}

// WeightManager creates and caches interpolation weight files.
type WeightManager struct {
	gen     Generator
	opts    Options
	metrics *metrics.Collector
	ident   *coords.Identifier
	logger  *slog.Logger
}

// NewWeightManager creates a weight manager. A nil logger uses slog.Default().
func NewWeightManager(gen Generator, opts Options, m *metrics.Collector, logger *slog.Logger) *WeightManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeightManager{gen: gen, opts: opts, metrics: m, ident: coords.NewIdentifier(logger), logger: logger}
}

// Ensure makes sure a valid weights file exists at req.Path.
func (m *WeightManager) Ensure(ctx context.Context, req WeightsRequest) error {
	if req.Path == "" {
		return errors.New("weights file path is empty")
	}
	if req.Target == "" {
		return &domain.ConfigurationError{Reason: "weights need a target grid"}
	}
	if !m.opts.Rebuild && gridspec.FileIsValid(req.Path) {
		m.metrics.CacheHit(metrics.KindWeights)
		m.logger.Debug("weights file found", "path", req.Path)
		return nil
	}
	m.metrics.CacheMiss(metrics.KindWeights)

	method := req.Method
	if method == "" {
		method = m.opts.method()
	}
	m.logger.Info("generating weights file", "path", req.Path, "target", req.Target, "method", method)

	start := time.Now()
	err := m.generate(ctx, req, method)
	m.metrics.Generated(metrics.KindWeights, start, err)
	if err != nil {
		return fmt.Errorf("failed to generate weights file %s: %w", req.Path, err)
	}
	return nil
}

func (m *WeightManager) generate(ctx context.Context, req WeightsRequest, method string) error {
	work, cleanup, err := workDir(m.opts.TmpDir)
	if err != nil {
		return err
	}
	defer cleanup()

	load := sampleLoader(req.Retrieve, req.Grid, m.ident)
	src, err := sourceInput(ctx, req.Grid, req.Zoom, load, work)
	if err != nil {
		return err
	}

	extra := append(slices.Clone(req.Extra), req.Grid.Extra...)
	return publish(req.Path, func(partial string) error {
		return m.gen.Weights(ctx, cdo.WeightsRequest{
			Source: src,
			Target: gridspec.SubstituteZoom(req.Target, req.Zoom),
			Method: method,
			Extra:  extra,
			Output: partial,
		})
	})
}
