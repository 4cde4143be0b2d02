package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultVerticalDim is the vertical-dimension tag used when a grid is given
// as a single path or generator name.
const DefaultVerticalDim = "2d"

// GridKind tells whether a GridSpec value is a generator-recognized grid name
// or a file on disk.
type GridKind int

const (
	// KindNone is the empty "no grid" spec.
	KindNone GridKind = iota
	// KindGeneratorName is a grid name the external generator understands (e.g., "r100").
	KindGeneratorName
	// KindFilePath is a grid-description file.
	KindFilePath
)

func (k GridKind) String() string {
	switch k {
	case KindGeneratorName:
		return "generator-name"
	case KindFilePath:
		return "file-path"
	default:
		return "none"
	}
}

// GridSpec is the canonical description of one vertical flavour of a grid.
type GridSpec struct {
	Kind        GridKind
	Value       string   // Generator name or resolved file path.
	VerticalDim string   // E.g., "2d", "3d", "2dm".
	Extra       []string // Pre-processing commands applied before area/weight generation.
	Masking     *Masking
}

// IsEmpty reports whether the spec is the canonical "no grid".
func (g GridSpec) IsEmpty() bool {
	return g.Value == ""
}

// Masking describes how a grid is masked, either by data variable attributes
// or by an explicit variable list.
type Masking struct {
	Attributes map[string]string `json:"attributes,omitempty"` // E.g., {"component": "ocean"}.
	Vars       []string          `json:"vars,omitempty"`
}

// UnmarshalYAML accepts `masked: {vars: [a, b]}` and `masked: {attr: value}`.
func (m *Masking) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("masked: expected mapping, got %s", node.Tag)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		if key == "vars" {
			if err := val.Decode(&m.Vars); err != nil {
				return fmt.Errorf("masked.vars: %w", err)
			}
			continue
		}
		if m.Attributes == nil {
			m.Attributes = make(map[string]string)
		}
		m.Attributes[key] = val.Value
	}
	return nil
}

// PathSpec is the `path` entry of a grid definition: either a single
// path/name or a mapping from vertical-dimension tag to path/name.
type PathSpec struct {
	Single string
	PerDim map[string]string
}

// IsZero reports whether no path was given at all.
func (p PathSpec) IsZero() bool {
	return p.Single == "" && len(p.PerDim) == 0
}

// Tags returns the vertical-dimension tags in sorted order.
func (p PathSpec) Tags() []string {
	if p.Single != "" {
		return []string{DefaultVerticalDim}
	}
	tags := make([]string, 0, len(p.PerDim))
	for k := range p.PerDim {
		tags = append(tags, k)
	}
	sort.Strings(tags)
	return tags
}

// UnmarshalYAML accepts either a scalar or a mapping.
func (p *PathSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.Single = node.Value
		return nil
	case yaml.MappingNode:
		return node.Decode(&p.PerDim)
	default:
		return fmt.Errorf("path: expected string or mapping, got %s", node.Tag)
	}
}

// MarshalYAML writes the single form as a scalar.
func (p PathSpec) MarshalYAML() (interface{}, error) {
	if p.Single != "" {
		return p.Single, nil
	}
	return p.PerDim, nil
}

// UnmarshalJSON accepts either a string or an object.
func (p *PathSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Single = s
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("path: expected string or object: %w", err)
	}
	p.PerDim = m
	return nil
}

// MarshalJSON writes the single form as a string.
func (p PathSpec) MarshalJSON() ([]byte, error) {
	if p.Single != "" {
		return json.Marshal(p.Single)
	}
	return json.Marshal(p.PerDim)
}

// GridDef is a grid definition as found in the registry or passed in directly.
type GridDef struct {
	Path   PathSpec `yaml:"path,omitempty" json:"path"`
	Extra  []string `yaml:"extra,omitempty" json:"extra,omitempty"`
	Masked *Masking `yaml:"masked,omitempty" json:"masked,omitempty"`
}

// IsEmpty reports whether the definition carries no grid.
func (d GridDef) IsEmpty() bool {
	return d.Path.IsZero() && len(d.Extra) == 0 && d.Masked == nil
}

// GridInput is a user-supplied grid: nothing, a name, or an explicit definition.
type GridInput struct {
	Name string
	Def  *GridDef
}

// GridByName wraps a grid name.
func GridByName(name string) GridInput {
	return GridInput{Name: name}
}

// GridByDef wraps an explicit grid definition.
func GridByDef(def GridDef) GridInput {
	return GridInput{Def: &def}
}

// IsNone reports whether no grid was configured.
func (g GridInput) IsNone() bool {
	return g.Name == "" && g.Def == nil
}

// UnmarshalJSON accepts null, a string or an object.
func (g *GridInput) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = GridInput{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		g.Name = s
		return nil
	}
	var def GridDef
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("grid: expected string or object: %w", err)
	}
	g.Def = &def
	return nil
}
