package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/adapter/ncfile"
	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/gridspec"
	"go.ngs.io/climeval/internal/regrid"
)

var (
	validate = validator.New()
	tracer   = otel.Tracer("go.ngs.io/climeval/internal/usecase")
)

// PrepareRequest asks for everything needed to regrid one data source.
type PrepareRequest struct {
	Model  string `json:"model" validate:"required"`
	Exp    string `json:"exp" validate:"required"`
	Source string `json:"source" validate:"required"`

	// SourceGrid is the native grid; when it names a registry entry, cache
	// files are shared by every source on that grid.
	SourceGrid domain.GridInput `json:"source_grid"`
	TargetGrid domain.GridInput `json:"target_grid"`

	Method string   `json:"method" validate:"omitempty,alphanum"`
	Extra  []string `json:"extra" validate:"dive,required"`
	Zoom   *int     `json:"zoom" validate:"omitempty,min=0,max=9"`

	// SamplePath is a NetCDF file with a data sample, used when the source
	// grid has no registered file.
	SamplePath string `json:"sample_path"`
	// TargetSamplePath is optional data already on the target grid. Its
	// coordinates are copied into a newly generated target area file.
	TargetSamplePath string `json:"target_sample_path"`
}

// PrepareResponse lists the files ready for interpolation.
type PrepareResponse struct {
	Target      string            `json:"target"`
	Method      string            `json:"method"`
	TargetArea  string            `json:"target_area"`
	SourceAreas map[string]string `json:"source_areas"` // By vertical tag.
	Weights     map[string]string `json:"weights"`      // By vertical tag.
	Warnings    []string          `json:"warnings,omitempty"`
}

// RegridUseCase orchestrates grid normalization and area/weight preparation.
type RegridUseCase struct {
	registry *gridspec.Registry
	areas    *regrid.AreaManager
	weights  *regrid.WeightManager
	opts     regrid.Options
	logger   *slog.Logger

	// Concurrent requests for the same file share one generation.
	group singleflight.Group
}

// NewRegridUseCase creates the use case. A nil logger uses slog.Default().
func NewRegridUseCase(reg *gridspec.Registry, areas *regrid.AreaManager, weights *regrid.WeightManager, opts regrid.Options, logger *slog.Logger) *RegridUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegridUseCase{registry: reg, areas: areas, weights: weights, opts: opts, logger: logger}
}

// NormalizeResponse is the canonical form of a grid input.
type NormalizeResponse struct {
	Definition domain.GridDef    `json:"definition"`
	Paths      map[string]string `json:"paths"`
}

// Normalize resolves a grid input against the registry and validates its
// paths.
func (u *RegridUseCase) Normalize(in domain.GridInput, zoom *int) (*NormalizeResponse, error) {
	def, err := gridspec.NormalizeGridName(in, u.registry)
	if err != nil {
		return nil, err
	}
	paths, err := gridspec.NormalizeGridPath(def, gridspec.WithZoom(zoom))
	if err != nil {
		return nil, err
	}
	return &NormalizeResponse{Definition: def, Paths: paths}, nil
}

// Prepare makes sure the target area, the source areas and the weights for
// every vertical tag of the source grid exist.
func (u *RegridUseCase) Prepare(ctx context.Context, req PrepareRequest) (resp *PrepareResponse, err error) {
	if err := validate.Struct(req); err != nil {
		return nil, &domain.ConfigurationError{Reason: err.Error()}
	}

	ctx, span := tracer.Start(ctx, "usecase.Prepare")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("climeval.model", req.Model),
		attribute.String("climeval.exp", req.Exp),
		attribute.String("climeval.source", req.Source),
	)

	target, err := u.targetSpec(req)
	if err != nil {
		return nil, err
	}
	sources, err := u.sourceSpecs(req)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = u.opts.Method
	}
	if method == "" {
		method = cdo.DefaultMethod
	}
	id := regrid.SourceID{Model: req.Model, Exp: req.Exp, Source: req.Source, Grid: req.SourceGrid.Name, Zoom: req.Zoom}
	retrieve := u.retriever(req.SamplePath)

	resp = &PrepareResponse{
		Target:      target.Value,
		Method:      method,
		TargetArea:  u.opts.TargetAreaFile(target.Value),
		SourceAreas: map[string]string{},
		Weights:     map[string]string{},
	}

	err = u.shared(resp.TargetArea, func() error {
		return u.areas.Ensure(ctx, regrid.AreaRequest{
			Path:     resp.TargetArea,
			Grid:     target,
			Target:   true,
			Retrieve: u.retriever(req.TargetSamplePath),
			Zoom:     req.Zoom,
		})
	})
	if err != nil {
		return nil, err
	}

	for _, src := range sources {
		tag := src.VerticalDim
		areaPath := u.opts.SourceAreaFile(id, tag)
		err := u.shared(areaPath, func() error {
			return u.areas.Ensure(ctx, regrid.AreaRequest{Path: areaPath, Grid: src, Retrieve: retrieve, Zoom: req.Zoom})
		})
		if err != nil {
			return nil, err
		}
		resp.SourceAreas[tag] = areaPath

		if w := u.checkAlignment(ctx, areaPath, retrieve); w != "" {
			resp.Warnings = append(resp.Warnings, w)
		}

		weightsPath := u.opts.WeightsFile(id, target.Value, method, tag)
		err = u.shared(weightsPath, func() error {
			return u.weights.Ensure(ctx, regrid.WeightsRequest{
				Path:     weightsPath,
				Grid:     src,
				Target:   target.Value,
				Method:   method,
				Extra:    req.Extra,
				Zoom:     req.Zoom,
				Retrieve: retrieve,
			})
		})
		if err != nil {
			return nil, err
		}
		resp.Weights[tag] = weightsPath
	}
	return resp, nil
}

func (u *RegridUseCase) shared(key string, fn func() error) error {
	_, err, _ := u.group.Do(key, func() (any, error) {
		return nil, fn()
	})
	return err
}

func (u *RegridUseCase) targetSpec(req PrepareRequest) (domain.GridSpec, error) {
	if req.TargetGrid.IsNone() {
		return domain.GridSpec{}, &domain.ConfigurationError{Reason: "target grid is required"}
	}
	specs, _, err := gridspec.Resolve(req.TargetGrid, u.registry, gridspec.WithZoom(req.Zoom))
	if err != nil {
		return domain.GridSpec{}, err
	}
	for _, s := range specs {
		if s.VerticalDim == domain.DefaultVerticalDim {
			return s, nil
		}
	}
	return domain.GridSpec{}, &domain.ConfigurationError{
		Grid:   req.TargetGrid.Name,
		Reason: fmt.Sprintf("target grid has no %q path", domain.DefaultVerticalDim),
	}
}

// sourceSpecs resolves the source grid. A grid without a path yields a single
// default spec that is measured from the data sample.
func (u *RegridUseCase) sourceSpecs(req PrepareRequest) ([]domain.GridSpec, error) {
	specs, def, err := gridspec.Resolve(req.SourceGrid, u.registry, gridspec.WithZoom(req.Zoom))
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		return specs, nil
	}
	if req.SamplePath == "" {
		return nil, &domain.ConfigurationError{
			Grid:   req.SourceGrid.Name,
			Reason: "source grid has no path and no sample_path was given",
		}
	}
	return []domain.GridSpec{{
		VerticalDim: domain.DefaultVerticalDim,
		Extra:       def.Extra,
		Masking:     def.Masked,
	}}, nil
}

// retriever reads the sample file on first use and shares it for the rest of
// the request.
func (u *RegridUseCase) retriever(path string) regrid.Retriever {
	if path == "" {
		return nil
	}
	load := sync.OnceValues(func() (*dataset.Dataset, error) {
		return ncfile.Read(path)
	})
	return func(context.Context) (*dataset.Dataset, error) {
		return load()
	}
}

// checkAlignment compares the horizontal sizes of an area file with the data
// sample. Mismatches are logged and returned as a warning.
func (u *RegridUseCase) checkAlignment(ctx context.Context, areaPath string, retrieve regrid.Retriever) string {
	if retrieve == nil {
		return ""
	}
	area, err := ncfile.Read(areaPath)
	if err != nil {
		u.logger.Warn("cannot read area file for alignment check", "path", areaPath, "error", err)
		return ""
	}
	sample, err := retrieve(ctx)
	if err != nil {
		u.logger.Warn("cannot read data sample for alignment check", "error", err)
		return ""
	}
	v, ok := area.Var(regrid.AreaVar)
	if !ok {
		return fmt.Sprintf("%s has no %s variable", areaPath, regrid.AreaVar)
	}

	var shared int
	var mismatched []string
	for i, d := range v.Dims {
		size, ok := sample.DimSize(d)
		if !ok {
			continue
		}
		shared++
		if size != v.Shape[i] {
			mismatched = append(mismatched, fmt.Sprintf("%s: area %d, data %d", d, v.Shape[i], size))
		}
	}
	sort.Strings(mismatched)

	var msg string
	switch {
	case shared == 0:
		msg = fmt.Sprintf("%s shares no dimension with the data sample", areaPath)
	case len(mismatched) > 0:
		msg = fmt.Sprintf("%s is not aligned with the data sample (%v)", areaPath, mismatched)
	default:
		return ""
	}
	u.logger.Warn("area file alignment", "path", areaPath, "detail", msg)
	return msg
}
