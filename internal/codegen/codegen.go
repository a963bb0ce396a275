// Package codegen turns a module graph into distributable files, one per
// output format and entry point.
//
// Every bundle has the same shape: a small module registry, one factory per
// module in graph order, and a format specific envelope that binds the
// externals and exposes the entry point's exports.
package codegen

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/libforge/libforge/internal/assets"
	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/logging"
	"github.com/libforge/libforge/internal/manifest"
	"github.com/libforge/libforge/internal/module"
	"github.com/libforge/libforge/internal/sourcemap"
)

type Kind int

const (
	KindCode Kind = iota
	KindAsset
)

func (k Kind) String() string {
	if k == KindAsset {
		return "asset"
	}
	return "code"
}

// Artifact is one file to publish. Paths are slash separated and relative
// to the project directory.
type Artifact struct {
	Kind      Kind
	Format    string
	Entry     module.ID
	Path      string
	Code      []byte
	SourceMap []byte
	MapPath   string
}

// Spec describes one output.
type Spec struct {
	Format       string
	File         string // may contain [name] and [format]
	PackageField string // package.json field holding the output path
	Name         string // global name for iife and umd
	Exports      string
	Globals      map[string]string
	Sourcemap    bool
	Banner       string
	Footer       string
}

func SpecsFromConfig(outputs []*config.Output) []Spec {
	specs := make([]Spec, 0, len(outputs))
	for _, o := range outputs {
		specs = append(specs, Spec{
			Format:       o.Format,
			File:         o.File,
			PackageField: o.PackageField,
			Name:         o.Name,
			Exports:      o.ExportMode(),
			Globals:      o.Globals,
			Sourcemap:    o.SourcemapEnabled(),
			Banner:       o.Banner,
			Footer:       o.Footer,
		})
	}
	return specs
}

type Options struct {
	Package   *manifest.Package // required by package_field outputs
	AssetFile string            // stylesheet path; defaults next to the first output
	Logger    *logging.Logger
}

type Generator struct {
	opts Options
}

func New(opts Options) *Generator {
	return &Generator{opts: opts}
}

// Emit generates every output. Formats are generated concurrently; the
// result lists them in spec order, then entry order, then the stylesheet.
func (g *Generator) Emit(ctx context.Context, graph *module.Graph, b *assets.Bundle, specs []Spec) ([]Artifact, error) {
	if len(specs) == 0 {
		return nil, bundleerr.Emission("", "no outputs configured")
	}
	for _, s := range specs {
		if err := g.validate(graph, s); err != nil {
			return nil, err
		}
	}

	results := make([][]Artifact, len(specs))
	eg, ctx := errgroup.WithContext(ctx)
	for i, s := range specs {
		eg.Go(func() error {
			arts := make([]Artifact, 0, len(graph.Entries))
			for _, entry := range graph.Entries {
				if err := ctx.Err(); err != nil {
					return err
				}
				a, err := g.emit(graph, b, s, entry)
				if err != nil {
					return err
				}
				g.opts.Logger.Debugf("emitted %s (%s, %d bytes)", a.Path, s.Format, len(a.Code))
				arts = append(arts, a)
			}
			results[i] = arts
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []Artifact
	for _, r := range results {
		out = append(out, r...)
	}
	if b.Extracted() {
		p := g.opts.AssetFile
		if p == "" {
			p = path.Join(path.Dir(out[0].Path), graph.Entries[0].Name()+".css")
		}
		out = append(out, Artifact{Kind: KindAsset, Format: "css", Path: path.Clean(p), Code: b.Content})
	}

	owners := map[string]string{}
	for _, a := range out {
		for _, p := range []string{a.Path, a.MapPath} {
			if p == "" {
				continue
			}
			desc := a.Format + " bundle of " + string(a.Entry)
			if a.Kind == KindAsset {
				desc = "stylesheet"
			}
			if prev, ok := owners[p]; ok {
				return nil, bundleerr.Emission(a.Format, fmt.Sprintf("%s and %s both write %s", prev, desc, p))
			}
			owners[p] = desc
		}
	}
	return out, nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var exportModes = []string{config.ExportsAuto, config.ExportsNamed, config.ExportsDefault, config.ExportsNone}

func (g *Generator) validate(graph *module.Graph, s Spec) error {
	if !slices.Contains(config.Formats, s.Format) {
		return bundleerr.Emission(s.Format, "unknown format")
	}
	if s.Exports != "" && !slices.Contains(exportModes, s.Exports) {
		return bundleerr.Emission(s.Format, fmt.Sprintf("unknown exports mode %q", s.Exports))
	}
	if s.Format == config.FormatIIFE || s.Format == config.FormatUMD {
		if s.Name == "" {
			return bundleerr.Emission(s.Format, "a global name is required")
		}
		if !identifier.MatchString(s.Name) {
			return bundleerr.Emission(s.Format, fmt.Sprintf("global name %q is not an identifier", s.Name))
		}
	}

	switch {
	case s.PackageField != "":
		if _, ok := g.opts.Package.Field(s.PackageField); !ok {
			return bundleerr.Emission(s.Format, fmt.Sprintf("package.json has no %q field", s.PackageField))
		}
		if len(graph.Entries) > 1 {
			return bundleerr.Emission(s.Format, fmt.Sprintf("package.json field %q names one file but there are %d entry points", s.PackageField, len(graph.Entries)))
		}
	case s.File == "":
		return bundleerr.Emission(s.Format, "no output file")
	case len(graph.Entries) > 1 && !strings.Contains(s.File, "[name]"):
		return bundleerr.Emission(s.Format, fmt.Sprintf("output file %q needs [name] for %d entry points", s.File, len(graph.Entries)))
	}
	return nil
}

func (g *Generator) outputPath(s Spec, entry module.ID) string {
	if s.PackageField != "" {
		p, _ := g.opts.Package.Field(s.PackageField)
		return path.Clean(strings.TrimPrefix(p, "./"))
	}
	p := strings.ReplaceAll(s.File, "[name]", entry.Name())
	p = strings.ReplaceAll(p, "[format]", s.Format)
	return path.Clean(p)
}

// emit generates the bundle of one entry point in one format.
func (g *Generator) emit(graph *module.Graph, b *assets.Bundle, s Spec, entry module.ID) (Artifact, error) {
	p := g.outputPath(s, entry)
	ids := graph.Reachable(entry)

	var (
		externals []string
		extIndex  = map[string]int{}
		injects   = map[module.ID]bool{}
	)
	for _, id := range ids {
		for _, e := range graph.Modules[id].Imports {
			switch e.Kind() {
			case module.EdgeExternal:
				spec := e.Target.External.Specifier
				if _, ok := extIndex[spec]; !ok {
					extIndex[spec] = len(externals)
					externals = append(externals, spec)
				}
			case module.EdgeAsset:
				if b != nil && b.Inject != nil {
					injects[e.Target.ID] = true
				}
			}
		}
	}

	env, err := newEnvelope(s, externals)
	if err != nil {
		return Artifact{}, err
	}
	exp, err := entryExports(graph, entry, s)
	if err != nil {
		return Artifact{}, err
	}

	w := newWriter(path.Base(p), s.Sourcemap)
	if s.Banner != "" {
		w.raw(strings.TrimSuffix(s.Banner, "\n") + "\n")
	}
	env.header(w)
	w.raw(runtime)
	if b != nil {
		for _, id := range b.InjectOrder {
			if injects[id] {
				w.define(id, "{}", b.Inject[id], nil)
			}
		}
	}
	for _, id := range ids {
		rec := graph.Modules[id]
		w.define(id, depTable(rec, extIndex, b), rec.Code, rec.Map)
	}
	env.footer(w, entry, exp)
	if s.Footer != "" {
		w.raw(strings.TrimSuffix(s.Footer, "\n") + "\n")
	}

	a := Artifact{Kind: KindCode, Format: s.Format, Entry: entry, Path: p}
	if !s.Sourcemap {
		a.Code = []byte(w.String())
		return a, nil
	}

	a.MapPath = p + ".map"
	d := w.maps.Decoded(w.line)
	for i, src := range d.Sources {
		d.Sources[i] = relative(path.Dir(p), src)
	}
	bs, err := d.Encode().Bytes()
	if err != nil {
		return Artifact{}, bundleerr.Emission(s.Format, "source map: "+err.Error())
	}
	w.raw("//# sourceMappingURL=" + path.Base(a.MapPath) + "\n")
	a.Code = []byte(w.String())
	a.SourceMap = bs
	return a, nil
}

// depTable renders the specifier table of a module: internal modules by
// id, externals by index and extracted assets as the shared marker.
func depTable(rec *module.Record, extIndex map[string]int, b *assets.Bundle) string {
	if len(rec.Imports) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(rec.Imports))
	for _, e := range rec.Imports {
		var v string
		switch e.Kind() {
		case module.EdgeExternal:
			v = fmt.Sprint(extIndex[e.Target.External.Specifier])
		case module.EdgeAsset:
			v = "__asset"
			if b != nil && b.Inject != nil {
				v = quote(string(e.Target.ID))
			}
		default:
			v = quote(string(e.Target.ID))
		}
		parts = append(parts, quote(e.Specifier)+": "+v)
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// relative returns the slash path of target as seen from dir.
func relative(dir, target string) string {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

type writer struct {
	buf  strings.Builder
	line int
	maps *sourcemap.Builder
}

func newWriter(file string, maps bool) *writer {
	w := &writer{}
	if maps {
		w.maps = sourcemap.NewBuilder(file)
	}
	return w
}

func (w *writer) raw(s string) {
	w.buf.WriteString(s)
	w.line += strings.Count(s, "\n")
}

func (w *writer) printf(format string, args ...any) {
	w.raw(fmt.Sprintf(format, args...))
}

// define writes one module factory. The module code starts on a line of
// its own so its map only needs a line offset.
func (w *writer) define(id module.ID, deps, code string, m *sourcemap.Decoded) {
	w.printf("__define(%s, %s, function (module, exports, require) {\n", quote(string(id)), deps)
	if w.maps != nil && m != nil {
		w.maps.Append(m, w.line)
	}
	w.raw(strings.TrimSuffix(code, "\n") + "\n")
	w.raw("});\n")
}

func (w *writer) String() string {
	return w.buf.String()
}
