// Package manifest reads the package.json fields the bundler cares about.
package manifest

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

type Package struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Main             string            `json:"main"`
	Module           string            `json:"module"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Browser          Browser           `json:"browser"`
	Exports          json.RawMessage   `json:"exports"`
	Fields           map[string]any    `json:"-"`
}

// Browser is the package.json "browser" field: either a replacement entry
// point or a map of file replacements.
type Browser struct {
	Entry        string
	Replacements map[string]string
}

func (b *Browser) UnmarshalJSON(bs []byte) error {
	var s string
	if err := json.Unmarshal(bs, &s); err == nil {
		b.Entry = s
		return nil
	}
	var disabled bool
	if err := json.Unmarshal(bs, &disabled); err == nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(bs, &m); err != nil {
		return fmt.Errorf("browser field: %w", err)
	}
	b.Replacements = make(map[string]string, len(m))
	for k, v := range m {
		// `false` entries (ignored modules) are not supported and skipped.
		if s, ok := v.(string); ok {
			b.Replacements[k] = s
		}
	}
	return nil
}

func Parse(bs []byte) (*Package, error) {
	var p Package
	if err := json.Unmarshal(bs, &p); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	if err := json.Unmarshal(bs, &p.Fields); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return &p, nil
}

// Field returns a top-level string field such as "main" or "module".
func (p *Package) Field(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	s, ok := p.Fields[name].(string)
	return s, ok && s != ""
}

// Range returns the declared version range for a dependency, looking at
// dependencies, then devDependencies, then peerDependencies.
func (p *Package) Range(dep string) (string, bool) {
	for _, m := range []map[string]string{p.Dependencies, p.DevDependencies, p.PeerDependencies} {
		if r, ok := m[dep]; ok {
			return r, true
		}
	}
	return "", false
}

// Export resolves a subpath ("." or "./sub") through the "exports" field
// using the first matching condition. Pattern subpaths are not supported.
func (p *Package) Export(subpath string, conditions []string) (string, bool) {
	if len(p.Exports) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(p.Exports, &v); err != nil {
		return "", false
	}

	if m, ok := v.(map[string]any); ok && hasSubpathKeys(m) {
		v, ok = m[subpath]
		if !ok {
			return "", false
		}
	} else if subpath != "." {
		return "", false
	}
	return pickCondition(v, conditions)
}

func hasSubpathKeys(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, ".") {
			return true
		}
	}
	return false
}

func pickCondition(v any, conditions []string) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []any:
		for _, alt := range x {
			if s, ok := pickCondition(alt, conditions); ok {
				return s, true
			}
		}
	case map[string]any:
		// Conditions are tried in the caller's priority order, "default" last.
		for _, c := range append(slices.Clone(conditions), "default") {
			if sub, ok := x[c]; ok {
				if s, ok := pickCondition(sub, conditions); ok {
					return s, true
				}
			}
		}
	}
	return "", false
}
