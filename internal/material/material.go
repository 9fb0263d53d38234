// Package material provides the read-only material preset registry.
// Presets are configuration data: loaded once at startup, immutable
// afterwards, safe to share across any number of planner and executor
// calls.
package material

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

//go:embed presets.json
var builtinPresets []byte

// Preset holds the surface-shading parameters of one named material.
type Preset struct {
	Name      string     `json:"-"`
	BaseColor [4]float64 `json:"base_color"`
	Metallic  float64    `json:"metallic"`
	Roughness float64    `json:"roughness"`
}

// Registry is a name -> preset lookup. It exposes no mutation API.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry loads the built-in presets.
func NewRegistry() *Registry {
	r, err := newFromJSON(builtinPresets)
	if err != nil {
		// The embedded file is part of the binary; a decode failure is
		// a build defect, not a runtime condition.
		panic(fmt.Sprintf("material: embedded presets invalid: %v", err))
	}
	return r
}

// LoadRegistry reads presets from a JSON file, for installs that ship
// their own preset set. The file replaces the built-ins entirely.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}
	r, err := newFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse presets %s: %w", path, err)
	}
	return r, nil
}

func newFromJSON(data []byte) (*Registry, error) {
	var raw map[string]Preset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no presets defined")
	}
	presets := make(map[string]Preset, len(raw))
	for name, p := range raw {
		p.Name = name
		presets[name] = p
	}
	return &Registry{presets: presets}, nil
}

// Lookup returns the preset registered under name.
func (r *Registry) Lookup(name string) (Preset, bool) {
	p, ok := r.presets[name]
	return p, ok
}

// Has reports whether name is a registered preset. It satisfies
// plan.PresetLookup.
func (r *Registry) Has(name string) bool {
	_, ok := r.presets[name]
	return ok
}

// Names returns all registered preset names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
