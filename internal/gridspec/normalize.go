package gridspec

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"go.ngs.io/climeval/internal/domain"
)

// ZoomPlaceholder is substituted in grid paths of hierarchical grids.
const ZoomPlaceholder = "{zoom}"

// maxZoomLevel maps a zoom index onto the file naming convention of
// hierarchical grids: level = maxZoomLevel - zoom.
const maxZoomLevel = 9

// SubstituteZoom replaces the zoom placeholder in path. A nil zoom counts as 0.
func SubstituteZoom(path string, zoom *int) string {
	if !strings.Contains(path, ZoomPlaceholder) {
		return path
	}
	z := 0
	if zoom != nil {
		z = *zoom
	}
	return strings.ReplaceAll(path, ZoomPlaceholder, strconv.Itoa(maxZoomLevel-z))
}

// NormalizeGridName resolves a grid input against the registry:
//   - no grid gives an empty definition;
//   - a generator-recognized name gives {path: {2d: name}} whatever the registry holds;
//   - other names are looked up, and must exist;
//   - a registry string must itself be a generator name;
//   - a definition (direct or from the registry) is returned as is.
func NormalizeGridName(in domain.GridInput, reg *Registry) (domain.GridDef, error) {
	if in.IsNone() {
		return domain.GridDef{}, nil
	}
	if in.Def != nil {
		return cloneDef(*in.Def), nil
	}

	name := in.Name
	if IsGeneratorGrid(name) {
		return generatorDef(name), nil
	}

	entry, ok := reg.Lookup(name)
	if !ok {
		return domain.GridDef{}, &domain.ConfigurationError{
			Grid:        name,
			Reason:      "unknown grid name",
			Suggestions: suggest(name, reg.Names()),
		}
	}
	if entry.Def != nil {
		return cloneDef(*entry.Def), nil
	}
	if !IsGeneratorGrid(entry.Name) {
		return domain.GridDef{}, &domain.ConfigurationError{
			Grid:   name,
			Reason: fmt.Sprintf("registry value %q is not a recognized generator grid", entry.Name),
		}
	}
	return generatorDef(entry.Name), nil
}

func generatorDef(name string) domain.GridDef {
	return domain.GridDef{Path: domain.PathSpec{PerDim: map[string]string{domain.DefaultVerticalDim: name}}}
}

func cloneDef(d domain.GridDef) domain.GridDef {
	out := domain.GridDef{
		Path:  domain.PathSpec{Single: d.Path.Single},
		Extra: slices.Clone(d.Extra),
	}
	if d.Path.PerDim != nil {
		out.Path.PerDim = make(map[string]string, len(d.Path.PerDim))
		for k, v := range d.Path.PerDim {
			out.Path.PerDim[k] = v
		}
	}
	if d.Masked != nil {
		m := domain.Masking{Vars: slices.Clone(d.Masked.Vars)}
		if d.Masked.Attributes != nil {
			m.Attributes = make(map[string]string, len(d.Masked.Attributes))
			for k, v := range d.Masked.Attributes {
				m.Attributes[k] = v
			}
		}
		out.Masked = &m
	}
	return out
}

// suggest returns up to three registry names close to name.
func suggest(name string, candidates []string) []string {
	type scored struct {
		name string
		dist int
	}
	limit := max(2, len(name)/3)
	var near []scored
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d <= limit {
			near = append(near, scored{c, d})
		}
	}
	sort.SliceStable(near, func(i, j int) bool { return near[i].dist < near[j].dist })
	out := make([]string, 0, 3)
	for i := 0; i < len(near) && i < 3; i++ {
		out = append(out, near[i].name)
	}
	return out
}

// PathOption tunes NormalizeGridPath.
type PathOption func(*pathOptions)

type pathOptions struct {
	zoom *int
}

// WithZoom substitutes the zoom placeholder before validating paths.
func WithZoom(zoom *int) PathOption {
	return func(o *pathOptions) { o.zoom = zoom }
}

// NormalizeGridPath validates the `path` entry of a definition and returns it
// keyed by vertical-dimension tag. Each value must be a generator grid name or
// an existing non-empty file; a single invalid entry fails the whole call.
func NormalizeGridPath(def domain.GridDef, opts ...PathOption) (map[string]string, error) {
	var o pathOptions
	for _, opt := range opts {
		opt(&o)
	}

	out := map[string]string{}
	if def.Path.IsZero() {
		return out, nil
	}
	if def.Path.Single != "" {
		p, err := checkPath(def.Path.Single, domain.DefaultVerticalDim, o.zoom)
		if err != nil {
			return nil, err
		}
		out[domain.DefaultVerticalDim] = p
		return out, nil
	}
	for _, dim := range def.Path.Tags() {
		p, err := checkPath(def.Path.PerDim[dim], dim, o.zoom)
		if err != nil {
			return nil, err
		}
		out[dim] = p
	}
	return out, nil
}

func checkPath(path, dim string, zoom *int) (string, error) {
	path = SubstituteZoom(path, zoom)
	if IsGeneratorGrid(path) {
		return path, nil
	}
	if !FileIsValid(path) {
		return "", &domain.MissingArtifactError{Path: path, Dim: dim}
	}
	return path, nil
}

// FileIsValid reports whether path is a regular file with non-zero size.
func FileIsValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Specs expands a definition into one canonical GridSpec per vertical tag,
// ordered by tag. paths is the output of NormalizeGridPath.
func Specs(def domain.GridDef, paths map[string]string) []domain.GridSpec {
	tags := make([]string, 0, len(paths))
	for t := range paths {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	specs := make([]domain.GridSpec, 0, len(tags))
	for _, t := range tags {
		kind := domain.KindFilePath
		if IsGeneratorGrid(paths[t]) {
			kind = domain.KindGeneratorName
		}
		specs = append(specs, domain.GridSpec{
			Kind:        kind,
			Value:       paths[t],
			VerticalDim: t,
			Extra:       slices.Clone(def.Extra),
			Masking:     def.Masked,
		})
	}
	return specs
}

// Resolve runs NormalizeGridName and NormalizeGridPath and returns the specs.
func Resolve(in domain.GridInput, reg *Registry, opts ...PathOption) ([]domain.GridSpec, domain.GridDef, error) {
	def, err := NormalizeGridName(in, reg)
	if err != nil {
		return nil, domain.GridDef{}, err
	}
	paths, err := NormalizeGridPath(def, opts...)
	if err != nil {
		return nil, def, err
	}
	return Specs(def, paths), def, nil
}
