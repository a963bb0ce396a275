// Package module holds the data model shared by the resolver, the graph
// builder, the asset extractor and the code generator.
package module

import (
	"fmt"
	"path"
	"strings"

	"github.com/libforge/libforge/internal/sourcemap"
)

// ID identifies a resolved source file: a cleaned, slash-separated path
// relative to the root of the build file system. Two specifiers resolving to
// the same file yield the same ID.
type ID string

func NewID(p string) ID {
	return ID(strings.TrimPrefix(path.Clean("/"+p), "/"))
}

func (id ID) Dir() string {
	return path.Dir(string(id))
}

func (id ID) Ext() string {
	return path.Ext(string(id))
}

// Name is the base name without extension, used for [name] in output paths.
func (id ID) Name() string {
	base := path.Base(string(id))
	return strings.TrimSuffix(base, path.Ext(base))
}

type ExternalRef struct {
	Specifier string
}

// AssetID is the hex sha256 of an asset's content.
type AssetID string

type AssetRef struct {
	ID          AssetID
	Owner       ID
	Path        ID
	Content     []byte
	ContentType string
}

// Target is what a specifier resolves to: a module in the graph, an external
// reference, or (set by the graph builder) an asset file.
type Target struct {
	ID       ID
	External *ExternalRef
	Asset    bool
}

type EdgeKind int

const (
	EdgeModule EdgeKind = iota
	EdgeExternal
	EdgeAsset
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeExternal:
		return "external"
	case EdgeAsset:
		return "asset"
	}
	return "module"
}

// Edge is one import of a module, in source order.
type Edge struct {
	Specifier string
	From      ID
	Target    Target
}

func (e Edge) Kind() EdgeKind {
	switch {
	case e.Target.External != nil:
		return EdgeExternal
	case e.Target.Asset:
		return EdgeAsset
	}
	return EdgeModule
}

// Record is a module after transformation. Records are owned by the Graph
// and not modified once the transform pipeline has produced them.
type Record struct {
	ID     ID
	Source string
	Code   string
	Map    *sourcemap.Decoded

	Imports     []Edge
	Assets      []AssetRef
	Exports     []string
	StarExports []string // specifiers re-exported with `export * from`
	ESM         bool
}

// Edge returns the edge for specifier, if the module imports it.
func (r *Record) Edge(specifier string) (Edge, bool) {
	for _, e := range r.Imports {
		if e.Specifier == specifier {
			return e, true
		}
	}
	return Edge{}, false
}

type Graph struct {
	Modules   map[ID]*Record
	Order     []ID // dependencies before dependents, deterministic
	Entries   []ID
	Externals []string
}

// Validate checks that every edge points into the graph, at an external, or
// at an asset carried by the importing record.
func (g *Graph) Validate() error {
	for _, id := range g.Order {
		rec := g.Modules[id]
		for _, e := range rec.Imports {
			switch e.Kind() {
			case EdgeModule:
				if _, ok := g.Modules[e.Target.ID]; !ok {
					return fmt.Errorf("module %s: import %q targets %s which is not in the graph", id, e.Specifier, e.Target.ID)
				}
			case EdgeAsset:
				found := false
				for _, a := range rec.Assets {
					if a.Path == e.Target.ID {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("module %s: asset import %q has no asset", id, e.Specifier)
				}
			}
		}
	}
	return nil
}

// Reachable returns the modules reachable from entry in g.Order order.
func (g *Graph) Reachable(entry ID) []ID {
	seen := map[ID]bool{}
	var visit func(ID)
	visit = func(id ID) {
		if seen[id] {
			return
		}
		seen[id] = true
		rec, ok := g.Modules[id]
		if !ok {
			return
		}
		for _, e := range rec.Imports {
			if e.Kind() == EdgeModule {
				visit(e.Target.ID)
			}
		}
	}
	visit(entry)

	ids := make([]ID, 0, len(seen))
	for _, id := range g.Order {
		if seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}
