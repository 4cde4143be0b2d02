// Package gridspec turns user grid specifications into canonical,
// per-vertical-dimension grid references.
package gridspec

import "regexp"

// generatorGrid matches grid names CDO accepts directly: regular lon/lat
// ("r360x180", "r100"), Gaussian ("n128", "F80"), spectral ("t63grid",
// "tl255grid"), global/zonal spacings, explicit "lon=../lat=..", GME,
// HEALPix ("hp256", "hpz9_nested") and DCW regions.
var generatorGrid = regexp.MustCompile(`^(` +
	`r\d+x\d+|r\d+|` +
	`n\d+|F\d+|` +
	`t\d+grid|tl\d+grid|` +
	`global_\d+(\.\d+)?|zonal_\d+(\.\d+)?|` +
	`lon=-?[\d.]+/lat=-?[\d.]+|` +
	`gme\d+|` +
	`hpz?\d+(_nested|_ring)?|` +
	`dcw:[A-Za-z_,]+(_\d+(\.\d+)?)?` +
	`)$`)

// IsGeneratorGrid reports whether the generator accepts name as a grid.
func IsGeneratorGrid(name string) bool {
	return generatorGrid.MatchString(name)
}
