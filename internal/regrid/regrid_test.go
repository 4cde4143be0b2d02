package regrid

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/climeval/internal/adapter/cdo"
	"go.ngs.io/climeval/internal/adapter/ncfile"
	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/metrics"
)

// fakeCDO stands in for the cdo binary: gridarea writes a small unstructured
// area file, anything else writes opaque weights.
type fakeCDO struct {
	t        *testing.T
	calls    []cdo.Command
	inputs   []bool // Whether the input file existed when the command ran.
	exitCode int
}

func (f *fakeCDO) Run(_ context.Context, c cdo.Command) (cdo.Result, error) {
	f.calls = append(f.calls, c)
	input := c.Args[len(c.Args)-2]
	_, err := os.Stat(input)
	f.inputs = append(f.inputs, err == nil)

	if f.exitCode != 0 {
		return cdo.Result{ExitCode: f.exitCode, Stderr: []byte("cdo gridarea: unsupported grid")}, nil
	}
	out := c.Args[len(c.Args)-1]
	if slices.Contains(c.Args, "gridarea") {
		require.NoError(f.t, ncfile.Write(out, generatorArea(f.t)))
		return cdo.Result{}, nil
	}
	require.NoError(f.t, os.WriteFile(out, []byte("weights"), 0o644))
	return cdo.Result{}, nil
}

func generatorArea(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	clat, err := dataset.NewVariable("clat", []string{"ncells"}, []int{4}, []float64{-0.79, -0.78, 0.78, 0.79})
	require.NoError(t, err)
	require.NoError(t, ds.SetCoord(clat))
	area, err := dataset.NewVariable("cell_area", []string{"ncells"}, []int{4}, []float64{1e10, 2e10, 2e10, 1e10})
	require.NoError(t, err)
	require.NoError(t, ds.SetVar(area))
	return ds
}

// dataSample is two time steps of tas on four unstructured cells.
func dataSample(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	require.NoError(t, ds.SetCoord(dataset.NewCoord("time", []float64{0, 1}, dataset.Attrs{"units": "days since 2000-01-01"})))
	lat, err := dataset.NewVariable("lat", []string{"cell"}, []int{4}, []float64{-45, -44.9, 44.9, 45})
	require.NoError(t, err)
	lat.Attrs["units"] = "degrees_north"
	lon, err := dataset.NewVariable("lon", []string{"cell"}, []int{4}, []float64{0, 90, 180, 270})
	require.NoError(t, err)
	lon.Attrs["units"] = "degrees_east"
	require.NoError(t, ds.SetCoord(lat))
	require.NoError(t, ds.SetCoord(lon))
	tas, err := dataset.NewVariable("tas", []string{"time", "cell"}, []int{2, 4}, []float64{280, 281, 282, 283, 284, 285, 286, 287})
	require.NoError(t, err)
	require.NoError(t, ds.SetVar(tas))
	return ds
}

type env struct {
	fake    *fakeCDO
	opts    Options
	metrics *metrics.Collector
	areas   *AreaManager
	weights *WeightManager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		fake: &fakeCDO{t: t},
		opts: Options{
			AreasDir:   filepath.Join(root, "areas"),
			WeightsDir: filepath.Join(root, "weights"),
			TmpDir:     filepath.Join(root, "tmp"),
		},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	gen := cdo.NewGenerator(e.fake, cdo.Options{DownloadDir: "/cache/grids"}, nil)
	e.areas = NewAreaManager(gen, e.opts, e.metrics, nil)
	e.weights = NewWeightManager(gen, e.opts, e.metrics, nil)
	return e
}

func countingRetriever(t *testing.T, calls *int) Retriever {
	return func(context.Context) (*dataset.Dataset, error) {
		*calls++
		return dataSample(t), nil
	}
}

func assertNoLeftovers(t *testing.T, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".partial", "partial file left in %s", dir)
			assert.False(t, e.IsDir(), "work directory %s left in %s", e.Name(), dir)
		}
	}
}

func TestAreaEnsure_SourceFromSample(t *testing.T) {
	e := newEnv(t)
	var retrieved int
	id := SourceID{Model: "ICON", Exp: "historical", Source: "2d_monthly"}
	req := AreaRequest{
		Path:     e.opts.SourceAreaFile(id, ""),
		Grid:     domain.GridSpec{VerticalDim: domain.DefaultVerticalDim},
		Retrieve: countingRetriever(t, &retrieved),
	}

	require.NoError(t, e.areas.Ensure(context.Background(), req))
	require.Len(t, e.fake.calls, 1)
	assert.Equal(t, 1, retrieved)

	args := e.fake.calls[0].Args
	assert.Equal(t, "gridarea", args[2])
	assert.Equal(t, "sample.nc", filepath.Base(args[len(args)-2]))
	assert.True(t, e.fake.inputs[0], "sample file must exist while the generator runs")

	got, err := ncfile.Read(req.Path)
	require.NoError(t, err)
	area, ok := got.Var(AreaVar)
	require.True(t, ok)
	assert.Equal(t, []string{"cell"}, area.Dims, "generator dimension renamed to the data dimension")
	assert.Equal(t, "m2", area.Attrs["units"])
	assert.Equal(t, "area", area.Attrs["standard_name"])

	lat, ok := got.Coord("lat")
	require.True(t, ok, "data coordinates re-attached")
	assert.Equal(t, []float64{-45, -44.9, 44.9, 45}, lat.Values)

	assertNoLeftovers(t, e.opts.TmpDir, e.opts.AreasDir)
}

func TestAreaEnsure_SecondCallIsCacheHit(t *testing.T) {
	e := newEnv(t)
	var retrieved int
	req := AreaRequest{
		Path:     e.opts.SourceAreaFile(SourceID{Grid: "icon-r2b4"}, ""),
		Grid:     domain.GridSpec{VerticalDim: domain.DefaultVerticalDim},
		Retrieve: countingRetriever(t, &retrieved),
	}

	require.NoError(t, e.areas.Ensure(context.Background(), req))
	require.NoError(t, e.areas.Ensure(context.Background(), req))

	assert.Len(t, e.fake.calls, 1)
	assert.Equal(t, 1, retrieved)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Hits().WithLabelValues(metrics.KindArea)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Misses().WithLabelValues(metrics.KindArea)))
}

func TestAreaEnsure_TargetGrid(t *testing.T) {
	e := newEnv(t)
	req := AreaRequest{
		Path:   e.opts.TargetAreaFile("r100"),
		Grid:   domain.GridSpec{Kind: domain.KindGeneratorName, Value: "r100", VerticalDim: domain.DefaultVerticalDim},
		Target: true,
	}

	require.NoError(t, e.areas.Ensure(context.Background(), req))
	require.Len(t, e.fake.calls, 1)
	args := e.fake.calls[0].Args
	assert.Equal(t, "-const,1,r100", args[len(args)-2])
	assert.Equal(t, "/cache/grids", e.fake.calls[0].Env[cdo.EnvDownloadPath])

	got, err := ncfile.Read(req.Path)
	require.NoError(t, err)
	area, ok := got.Var(AreaVar)
	require.True(t, ok)
	assert.Equal(t, []string{"ncells"}, area.Dims, "target areas are not renamed")
}

func TestAreaEnsure_ExplicitGridFileWithZoom(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hpz6_nested.nc"), []byte("CDF"), 0o644))
	zoom := 3
	req := AreaRequest{
		Path: e.opts.SourceAreaFile(SourceID{Grid: "healpix", Zoom: &zoom}, ""),
		Grid: domain.GridSpec{
			Kind:        domain.KindFilePath,
			Value:       filepath.Join(dir, "hpz{zoom}_nested.nc"),
			VerticalDim: domain.DefaultVerticalDim,
			Extra:       []string{"-setgrid,healpix"},
		},
		Zoom: &zoom,
	}

	require.NoError(t, e.areas.Ensure(context.Background(), req))
	require.Len(t, e.fake.calls, 1)
	args := e.fake.calls[0].Args
	assert.Equal(t, []string{"-f", "nc4", "gridarea", "-setgrid,healpix", filepath.Join(dir, "hpz6_nested.nc"), args[len(args)-1]}, args)
	assert.Contains(t, req.Path, "_z3")
}

func TestAreaEnsure_GenerationFailure(t *testing.T) {
	e := newEnv(t)
	e.fake.exitCode = 1
	req := AreaRequest{
		Path:     e.opts.SourceAreaFile(SourceID{Grid: "broken"}, ""),
		Grid:     domain.GridSpec{VerticalDim: domain.DefaultVerticalDim},
		Retrieve: countingRetriever(t, new(int)),
	}

	err := e.areas.Ensure(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrGeneration)
	var gerr *domain.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 1, gerr.ExitCode)
	assert.Contains(t, gerr.Stderr, "unsupported grid")

	_, statErr := os.Stat(req.Path)
	assert.True(t, os.IsNotExist(statErr))
	assertNoLeftovers(t, e.opts.TmpDir, e.opts.AreasDir)
}

func TestAreaEnsure_NoGridNoRetriever(t *testing.T) {
	e := newEnv(t)
	err := e.areas.Ensure(context.Background(), AreaRequest{
		Path: e.opts.SourceAreaFile(SourceID{Grid: "unknown"}, ""),
		Grid: domain.GridSpec{VerticalDim: domain.DefaultVerticalDim},
	})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Empty(t, e.fake.calls)
}

func TestWeightsEnsure_SecondCallIsCacheHit(t *testing.T) {
	e := newEnv(t)
	grid := filepath.Join(t.TempDir(), "icon_grid.nc")
	require.NoError(t, os.WriteFile(grid, []byte("CDF"), 0o644))
	id := SourceID{Grid: "icon-r2b4"}
	req := WeightsRequest{
		Path:   e.opts.WeightsFile(id, "r100", "", ""),
		Grid:   domain.GridSpec{Kind: domain.KindFilePath, Value: grid, VerticalDim: "2d", Extra: []string{"-selname,tas"}},
		Target: "r100",
		Extra:  []string{"-setctomiss,0"},
	}

	require.NoError(t, e.weights.Ensure(context.Background(), req))
	require.NoError(t, e.weights.Ensure(context.Background(), req))
	require.Len(t, e.fake.calls, 1)

	args := e.fake.calls[0].Args
	assert.Equal(t, []string{"-f", "nc4", "genycon,r100", "-setctomiss,0", "-selname,tas", grid}, args[:len(args)-1])
	assert.True(t, validFile(t, req.Path))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Hits().WithLabelValues(metrics.KindWeights)))
	assertNoLeftovers(t, e.opts.TmpDir, e.opts.WeightsDir)
}

func TestWeightsEnsure_ZeroByteFileIsCacheMiss(t *testing.T) {
	e := newEnv(t)
	req := WeightsRequest{
		Path:     e.opts.WeightsFile(SourceID{Model: "IFS", Exp: "control", Source: "hourly"}, "r100", "bil", ""),
		Grid:     domain.GridSpec{VerticalDim: domain.DefaultVerticalDim},
		Target:   "r100",
		Method:   "bil",
		Retrieve: countingRetriever(t, new(int)),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(req.Path), 0o755))
	require.NoError(t, os.WriteFile(req.Path, nil, 0o644))

	require.NoError(t, e.weights.Ensure(context.Background(), req))
	require.Len(t, e.fake.calls, 1)
	assert.Equal(t, "genbil,r100", e.fake.calls[0].Args[2])
	assert.True(t, validFile(t, req.Path))
}

func TestWeightsEnsure_Rebuild(t *testing.T) {
	e := newEnv(t)
	e.opts.Rebuild = true
	gen := cdo.NewGenerator(e.fake, cdo.Options{}, nil)
	wm := NewWeightManager(gen, e.opts, nil, nil)
	req := WeightsRequest{
		Path:   e.opts.WeightsFile(SourceID{Grid: "r180x90"}, "r100", "", ""),
		Grid:   domain.GridSpec{Kind: domain.KindGeneratorName, Value: "r180x90", VerticalDim: "2d"},
		Target: "r100",
	}

	require.NoError(t, wm.Ensure(context.Background(), req))
	require.NoError(t, wm.Ensure(context.Background(), req))
	assert.Len(t, e.fake.calls, 2)
	assert.Equal(t, "-const,1,r180x90", e.fake.calls[0].Args[3])
}

func TestWeightsEnsure_GenerationFailureKeepsCacheClean(t *testing.T) {
	e := newEnv(t)
	e.fake.exitCode = 2
	req := WeightsRequest{
		Path:     e.opts.WeightsFile(SourceID{Grid: "icon-r2b4"}, "r100", "", ""),
		Grid:     domain.GridSpec{VerticalDim: domain.DefaultVerticalDim},
		Target:   "r100",
		Retrieve: countingRetriever(t, new(int)),
	}

	err := e.weights.Ensure(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrGeneration)
	assert.Contains(t, err.Error(), "unsupported grid")
	assert.False(t, validFile(t, req.Path))
	assertNoLeftovers(t, e.opts.TmpDir, e.opts.WeightsDir)
}

func TestWeightsEnsure_MissingSourceFile(t *testing.T) {
	e := newEnv(t)
	err := e.weights.Ensure(context.Background(), WeightsRequest{
		Path:   e.opts.WeightsFile(SourceID{Grid: "nemo"}, "r100", "", ""),
		Grid:   domain.GridSpec{Kind: domain.KindFilePath, Value: filepath.Join(t.TempDir(), "gone.nc"), VerticalDim: "2d"},
		Target: "r100",
	})
	require.ErrorIs(t, err, domain.ErrMissingArtifact)
	assert.Empty(t, e.fake.calls)
}

func TestWeightsEnsure_MaskedSampleVariable(t *testing.T) {
	e := newEnv(t)
	retrieve := func(context.Context) (*dataset.Dataset, error) {
		ds := dataSample(t)
		so, err := dataset.NewVariable("so", []string{"time", "cell"}, []int{2, 4}, make([]float64, 8))
		require.NoError(t, err)
		require.NoError(t, ds.SetVar(so))
		return ds, nil
	}
	req := WeightsRequest{
		Path:     e.opts.WeightsFile(SourceID{Grid: "nemo"}, "r100", "", ""),
		Grid:     domain.GridSpec{VerticalDim: "2d", Masking: &domain.Masking{Vars: []string{"so"}}},
		Target:   "r100",
		Retrieve: retrieve,
	}

	var sampled *dataset.Dataset
	e.fake = &fakeCDO{t: t}
	gen := cdo.NewGenerator(runnerFunc(func(ctx context.Context, c cdo.Command) (cdo.Result, error) {
		var err error
		sampled, err = ncfile.Read(c.Args[len(c.Args)-2])
		require.NoError(t, err)
		return e.fake.Run(ctx, c)
	}), cdo.Options{}, nil)
	wm := NewWeightManager(gen, e.opts, nil, nil)

	require.NoError(t, wm.Ensure(context.Background(), req))
	require.NotNil(t, sampled)
	require.Len(t, sampled.Vars, 1)
	assert.Equal(t, "so", sampled.Vars[0].Name)
	assert.Equal(t, []string{"cell"}, sampled.Vars[0].Dims, "time dimension reduced to one step")
}

type runnerFunc func(context.Context, cdo.Command) (cdo.Result, error)

func (f runnerFunc) Run(ctx context.Context, c cdo.Command) (cdo.Result, error) { return f(ctx, c) }

func validFile(t *testing.T, path string) bool {
	t.Helper()
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func TestFinishArea_RestoresLatitudeOrder(t *testing.T) {
	ref := dataset.New()
	require.NoError(t, ref.SetCoord(dataset.NewCoord("lat", []float64{45, -45}, dataset.Attrs{"units": "degrees_north"})))

	out := dataset.New()
	require.NoError(t, out.SetCoord(dataset.NewCoord("lat", []float64{-45, 45}, dataset.Attrs{"units": "degrees_north"})))
	area, err := dataset.NewVariable("cell_area", []string{"lat"}, []int{2}, []float64{1, 2})
	require.NoError(t, err)
	require.NoError(t, out.SetVar(area))

	got, err := finishArea(out, &sample{ds: ref, spaceDims: []string{"lat"}}, true)
	require.NoError(t, err)
	v, ok := got.Var(AreaVar)
	require.True(t, ok)
	assert.Equal(t, []float64{2, 1}, v.Values)
	lat, ok := got.Coord("lat")
	require.True(t, ok)
	assert.Equal(t, []float64{45, -45}, lat.Values)
	assert.NotContains(t, lat.Attrs, "flipped")
}

func TestPairDims(t *testing.T) {
	assert.Equal(t, map[string]string{"ncells": "cell"}, pairDims([]string{"ncells"}, []string{"cell"}))
	assert.Equal(t, map[string]string{"y": "lat", "x": "lon"}, pairDims([]string{"y", "x"}, []string{"lat", "lon"}))
	assert.Equal(t, map[string]string{}, pairDims([]string{"lat", "lon"}, []string{"lat", "lon"}))
	assert.Equal(t, map[string]string{"a": "lat"}, pairDims([]string{"a", "b"}, []string{"lat"}))
}

func TestCacheNamesAreStable(t *testing.T) {
	opts := Options{AreasDir: "/areas", WeightsDir: "/weights"}
	id := SourceID{Model: "ICON", Exp: "hist-1950", Source: "2d monthly"}

	assert.Equal(t, opts.WeightsFile(id, "r100", "", ""), opts.WeightsFile(id, "r100", "ycon", "2d"))
	assert.Equal(t, "/weights/weights_ICON_hist-1950_2d-monthly_ycon_lr100.nc", opts.WeightsFile(id, "r100", "", ""))
	assert.Equal(t, "/areas/cell_area_ICON_hist-1950_2d-monthly_3d.nc", opts.SourceAreaFile(id, "3d"))
	assert.NotEqual(t, opts.WeightsFile(id, "r100", "", ""), opts.WeightsFile(id, "r200", "", ""))
	assert.NotEqual(t, opts.TargetAreaFile("/a/grid.nc"), opts.TargetAreaFile("/b/grid.nc"))
	assert.Equal(t, opts.TargetAreaFile("/a/grid.nc"), opts.TargetAreaFile("/a/grid.nc"))
}
