package latdir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/climeval/internal/dataset"
	"go.ngs.io/climeval/internal/domain"
)

func northToSouth(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	require.NoError(t, ds.SetCoord(dataset.NewCoord("lat", []float64{60, 30, 0, -30}, dataset.Attrs{"units": "degrees_north"})))
	require.NoError(t, ds.SetCoord(dataset.NewCoord("lon", []float64{0, 180}, dataset.Attrs{"units": "degrees_east"})))
	tas, err := dataset.NewVariable("tas", []string{"lat", "lon"}, []int{4, 2}, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.NoError(t, ds.SetVar(tas))
	return ds
}

func TestDetect(t *testing.T) {
	name, dir := Detect(northToSouth(t))
	assert.Equal(t, "lat", name)
	assert.Equal(t, domain.Decreasing, dir)

	ds := dataset.New()
	require.NoError(t, ds.SetCoord(dataset.NewCoord("y", []float64{1, 2}, dataset.Attrs{"units": "m"})))
	name, dir = Detect(ds)
	assert.Empty(t, name)
	assert.Empty(t, dir)
}

func TestRestore_RoundTrip(t *testing.T) {
	orig := northToSouth(t)
	name, dir := Detect(orig)

	// An operation that silently reorders latitude.
	flipped := orig.Reverse("lat")
	MarkIfChanged(flipped, name, dir)
	MarkIfChanged(flipped, name, domain.Increasing)

	c, _ := flipped.Coord("lat")
	assert.Equal(t, string(domain.Decreasing), c.Attrs[MarkerAttr], "marker is not replaced")

	restored := Restore(flipped)
	if diff := cmp.Diff(orig, restored); diff != "" {
		t.Fatalf("restored dataset differs (-orig +restored):\n%s", diff)
	}
}

func TestMarkIfChanged_Unchanged(t *testing.T) {
	ds := northToSouth(t)
	MarkIfChanged(ds, "lat", domain.Decreasing)
	c, _ := ds.Coord("lat")
	assert.NotContains(t, c.Attrs, MarkerAttr)
}

func TestRestore_NoMarkerIsNoop(t *testing.T) {
	ds := northToSouth(t)
	assert.Same(t, ds, Restore(ds))
}
