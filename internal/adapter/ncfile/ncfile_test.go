package ncfile

import (
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/climeval/internal/dataset"
)

func TestWriteRead_UnstructuredGrid(t *testing.T) {
	ds := dataset.New()
	lat, err := dataset.NewVariable("lat", []string{"ncells"}, []int{3}, []float64{-10, 0, 10})
	require.NoError(t, err)
	lat.Attrs["units"] = "degrees_north"
	lon, err := dataset.NewVariable("lon", []string{"ncells"}, []int{3}, []float64{0, 120, 240})
	require.NoError(t, err)
	lon.Attrs["units"] = "degrees_east"
	require.NoError(t, ds.SetCoord(lat))
	require.NoError(t, ds.SetCoord(lon))
	area, err := dataset.NewVariable("cell_area", []string{"ncells"}, []int{3}, []float64{1, 2, 3})
	require.NoError(t, err)
	area.Attrs["units"] = "m2"
	require.NoError(t, ds.SetVar(area))
	ds.Attrs["history"] = "test"

	path := filepath.Join(t.TempDir(), "area.nc")
	require.NoError(t, Write(path, ds))

	got, err := Read(path)
	require.NoError(t, err)

	gotLat, ok := got.Coord("lat")
	require.True(t, ok, "lat should be read back as a coordinate via the coordinates attribute")
	assert.Equal(t, []float64{-10, 0, 10}, gotLat.Values)
	assert.Equal(t, "degrees_north", gotLat.Attrs["units"])

	gotArea, ok := got.Var("cell_area")
	require.True(t, ok)
	assert.Equal(t, []string{"ncells"}, gotArea.Dims)
	assert.Equal(t, []float64{1, 2, 3}, gotArea.Values)
	assert.Equal(t, "m2", gotArea.Attrs["units"])
	assert.Equal(t, "lat lon", gotArea.Attrs["coordinates"])
}

func TestRead_FloatDataWithFillValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fill.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	latDim, _ := f.AddDim("lat", 2)
	vlat, _ := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vdata, _ := f.AddVar("tas", netcdf.FLOAT, []netcdf.Dim{latDim})
	require.NoError(t, vdata.Attr("_FillValue").WriteFloat32s([]float32{-999}))
	require.NoError(t, vdata.Attr("units").WriteBytes([]byte("K")))
	require.NoError(t, f.EndDef())
	require.NoError(t, vlat.WriteFloat64s([]float64{1, 2}))
	require.NoError(t, vdata.WriteFloat32s([]float32{280, -999}))
	require.NoError(t, f.Close())

	ds, err := Read(path)
	require.NoError(t, err)
	tas, ok := ds.Var("tas")
	require.True(t, ok)
	assert.Equal(t, 280.0, tas.Values[0])
	assert.True(t, tas.Values[1] != tas.Values[1], "fill value should become NaN")
	assert.Equal(t, "K", tas.Attrs["units"])
	assert.Equal(t, "-999", tas.Attrs["_FillValue"])
}

func TestRead_IntegerMaskAndTextVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "era5.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	require.NoError(t, err)
	cells, _ := f.AddDim("cell", 3)
	strlen, _ := f.AddDim("strlen", 4)
	vtas, _ := f.AddVar("tas", netcdf.DOUBLE, []netcdf.Dim{cells})
	vlsm, _ := f.AddVar("lsm", netcdf.BYTE, []netcdf.Dim{cells})
	vcount, _ := f.AddVar("count", netcdf.UINT, []netcdf.Dim{cells})
	vexp, _ := f.AddVar("expver", netcdf.CHAR, []netcdf.Dim{strlen})
	require.NoError(t, vlsm.Attr("_FillValue").WriteInt8s([]int8{-1}))
	require.NoError(t, f.EndDef())
	require.NoError(t, vtas.WriteFloat64s([]float64{280, 281, 282}))
	require.NoError(t, vlsm.WriteInt8s([]int8{0, 1, -1}))
	require.NoError(t, vcount.WriteUint32s([]uint32{7, 8, 9}))
	require.NoError(t, vexp.WriteBytes([]byte("0001")))
	require.NoError(t, f.Close())

	ds, err := Read(path)
	require.NoError(t, err)

	tas, ok := ds.Var("tas")
	require.True(t, ok)
	assert.Equal(t, []float64{280, 281, 282}, tas.Values)

	lsm, ok := ds.Var("lsm")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1}, lsm.Values[:2])
	assert.True(t, lsm.Values[2] != lsm.Values[2], "byte fill value should become NaN")

	count, ok := ds.Var("count")
	require.True(t, ok)
	assert.Equal(t, []float64{7, 8, 9}, count.Values)

	_, ok = ds.Var("expver")
	assert.False(t, ok, "text variables are skipped")
}
