package regrid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/gridspec"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SourceID identifies the native grid of a data source. When Grid is set it
// names the grid and takes precedence over the model/exp/source triple, so
// sources sharing a grid share their cache files.
type SourceID struct {
	Model  string
	Exp    string
	Source string
	Grid   string
	Zoom   *int
}

func (id SourceID) key() string {
	var k string
	if id.Grid != "" {
		k = sanitize(id.Grid)
	} else {
		k = strings.Join([]string{sanitize(id.Model), sanitize(id.Exp), sanitize(id.Source)}, "_")
	}
	if id.Zoom != nil {
		k += fmt.Sprintf("_z%d", *id.Zoom)
	}
	return k
}

func sanitize(s string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(s, "-"), "-")
}

// gridLabel names a target grid: generator names are used verbatim, file
// paths by base name plus a short digest of the full path.
func gridLabel(grid string) string {
	if gridspec.IsGeneratorGrid(grid) {
		return sanitize(grid)
	}
	sum := sha256.Sum256([]byte(grid))
	base := strings.TrimSuffix(filepath.Base(grid), filepath.Ext(grid))
	return sanitize(base) + "-" + hex.EncodeToString(sum[:4])
}

func vertSuffix(vert string) string {
	if vert == "" || vert == domain.DefaultVerticalDim {
		return ""
	}
	return "_" + sanitize(vert)
}

// SourceAreaFile is the cache path of a source grid area file.
func (o Options) SourceAreaFile(id SourceID, vert string) string {
	return filepath.Join(o.AreasDir, "cell_area_"+id.key()+vertSuffix(vert)+".nc")
}

// TargetAreaFile is the cache path of a target grid area file.
func (o Options) TargetAreaFile(target string) string {
	return filepath.Join(o.AreasDir, "cell_area_"+gridLabel(target)+".nc")
}

// WeightsFile is the cache path of the weights from id to target.
func (o Options) WeightsFile(id SourceID, target, method, vert string) string {
	if method == "" {
		method = o.method()
	}
	name := fmt.Sprintf("weights_%s_%s_l%s%s.nc", id.key(), sanitize(method), gridLabel(target), vertSuffix(vert))
	return filepath.Join(o.WeightsDir, name)
}
