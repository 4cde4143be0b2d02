package gridspec

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"go.ngs.io/climeval/internal/domain"
)

// Entry is one registry value: either a generator-recognized name or a
// full grid definition.
type Entry struct {
	Name string
	Def  *domain.GridDef
}

// UnmarshalYAML accepts a scalar name or a mapping.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.Name = node.Value
		return nil
	case yaml.MappingNode:
		var def domain.GridDef
		if err := node.Decode(&def); err != nil {
			return err
		}
		e.Def = &def
		return nil
	default:
		return fmt.Errorf("grid entry: expected string or mapping, got %s", node.Tag)
	}
}

// Registry maps grid names to definitions.
type Registry struct {
	Grids map[string]Entry `yaml:"grids"`
}

// Names returns the registered grid names sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Grids))
	for n := range r.Grids {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.Grids[name]
	return e, ok
}

// ParseRegistry decodes a registry document.
func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse grid registry: %w", err)
	}
	if reg.Grids == nil {
		reg.Grids = map[string]Entry{}
	}
	return &reg, nil
}

// LoadRegistry reads a registry YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid registry: %w", err)
	}
	return ParseRegistry(data)
}
