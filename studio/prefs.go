package studio

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Prefs is the per-user UI preference file, a flat yaml map so feature
// panels can persist keys without schema changes here. Nothing in it is
// correctness-sensitive; a missing or unreadable file just means defaults.
type Prefs struct {
	path   string
	values map[string]any
}

const (
	splitRatioKey     = "splitRatio"
	defaultSplitRatio = 50.0
)

// LoadPrefs reads the preference file at path, returning empty preferences
// (not an error) when the file does not exist yet.
func LoadPrefs(path string) (*Prefs, error) {
	p := &Prefs{path: path, values: make(map[string]any)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("reading preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &p.values); err != nil {
		return p, fmt.Errorf("parsing preferences: %w", err)
	}
	if p.values == nil {
		p.values = make(map[string]any)
	}
	return p, nil
}

// Save writes the preferences back to disk, creating the directory if
// needed.
func (p *Prefs) Save() error {
	data, err := yaml.Marshal(p.values)
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating preferences dir: %w", err)
		}
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	return nil
}

// SplitRatio returns the persisted timeline/editor divider position as a
// percentage 0..100, defaulting to an even split.
func (p *Prefs) SplitRatio() float64 {
	v, ok := p.values[splitRatioKey]
	if !ok {
		return defaultSplitRatio
	}
	f, ok := toFloat(v)
	if !ok {
		return defaultSplitRatio
	}
	return clampRatio(f)
}

func (p *Prefs) SetSplitRatio(ratio float64) {
	p.values[splitRatioKey] = clampRatio(ratio)
}

// Get returns an arbitrary preference value; feature panels own their keys.
func (p *Prefs) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *Prefs) Set(key string, value any) {
	p.values[key] = value
}

func clampRatio(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}
