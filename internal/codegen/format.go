package codegen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/module"
)

// runtime is the module registry every bundle starts with. The cache entry
// of a module exists before its factory runs, so a cycle sees the partially
// filled exports instead of recursing.
const runtime = `var __modules = {};
var __cache = {};
var __asset = Object.freeze({});
function __define(id, deps, factory) {
  __modules[id] = { deps: deps, factory: factory };
}
function __require(id) {
  var cached = __cache[id];
  if (cached) return cached.exports;
  var def = __modules[id];
  var module = (__cache[id] = { exports: {} });
  def.factory.call(module.exports, module, module.exports, function (specifier) {
    var dep = Object.prototype.hasOwnProperty.call(def.deps, specifier) ? def.deps[specifier] : undefined;
    if (typeof dep === "string") return __require(dep);
    if (typeof dep === "number") return __externals[dep];
    if (dep === __asset) return __asset;
    throw new Error("Cannot find module '" + specifier + "' from '" + id + "'");
  });
  return module.exports;
}
`

// nsHelper lets an ES module namespace pass through CommonJS interop
// helpers with its default export intact.
const nsHelper = `function __ns(ns) {
  return Object.defineProperty(Object.assign({}, ns), "__esModule", { value: true });
}
`

// exports describes what the entry point makes public.
type exports struct {
	esm   bool
	names []string // named exports other than default, star re-exports resolved
	def   bool     // has a default export
	stars []string // external specifiers re-exported with export *
	mode  string
}

// entryExports collects the exports of entry, following star re-exports
// through the graph. Stars of externals cannot be enumerated and are kept
// as specifiers.
func entryExports(graph *module.Graph, entry module.ID, s Spec) (exports, error) {
	rec := graph.Modules[entry]
	exp := exports{esm: rec.ESM, mode: s.Exports}
	if exp.mode == "" {
		exp.mode = config.ExportsAuto
	}

	seen := map[string]bool{}
	visited := map[module.ID]bool{}
	var walk func(r *module.Record, top bool)
	walk = func(r *module.Record, top bool) {
		if visited[r.ID] {
			return
		}
		visited[r.ID] = true
		for _, n := range r.Exports {
			if n == "default" {
				if top {
					exp.def = true
				}
				continue
			}
			if !seen[n] {
				seen[n] = true
				exp.names = append(exp.names, n)
			}
		}
		for _, spec := range r.StarExports {
			e, ok := r.Edge(spec)
			if !ok {
				continue
			}
			switch e.Kind() {
			case module.EdgeModule:
				walk(graph.Modules[e.Target.ID], false)
			case module.EdgeExternal:
				if !seen["*"+spec] {
					seen["*"+spec] = true
					exp.stars = append(exp.stars, spec)
				}
			}
		}
	}
	walk(rec, true)

	if exp.mode == config.ExportsDefault && exp.esm && !exp.def {
		return exp, bundleerr.Emission(s.Format, fmt.Sprintf("entry %s has no default export", entry))
	}
	return exp, nil
}

// value is the expression a cjs, iife or umd bundle exposes, or "" for none.
func (e exports) value() string {
	switch {
	case e.mode == config.ExportsNone:
		return ""
	case !e.esm:
		return "__entry"
	case e.mode == config.ExportsDefault:
		return "__entry.default"
	case e.mode == config.ExportsAuto && e.def && len(e.names) == 0 && len(e.stars) == 0:
		return "__entry.default"
	}
	return "__entry"
}

type envelope interface {
	header(w *writer)
	footer(w *writer, entry module.ID, exp exports)
}

func newEnvelope(s Spec, externals []string) (envelope, error) {
	switch s.Format {
	case config.FormatESM:
		return &esm{externals: externals}, nil
	case config.FormatCJS:
		return &cjs{externals: externals}, nil
	case config.FormatIIFE, config.FormatUMD:
		globals := make([]string, len(externals))
		for i, spec := range externals {
			g, ok := s.Globals[spec]
			if !ok || g == "" {
				return nil, bundleerr.Emission(s.Format, fmt.Sprintf("external %q has no global name", spec))
			}
			globals[i] = g
		}
		if s.Format == config.FormatIIFE {
			return &iife{name: s.Name, externals: externals, globals: globals}, nil
		}
		return &umd{name: s.Name, externals: externals, globals: globals}, nil
	}
	return nil, bundleerr.Emission(s.Format, "unknown format")
}

type esm struct {
	externals []string
}

func (f *esm) header(w *writer) {
	bindings := make([]string, len(f.externals))
	for i, spec := range f.externals {
		w.printf("import * as __ext%d from %s;\n", i, quote(spec))
		bindings[i] = fmt.Sprintf("__ns(__ext%d)", i)
	}
	if len(f.externals) > 0 {
		w.raw(nsHelper)
	}
	w.printf("var __externals = [%s];\n", strings.Join(bindings, ", "))
}

func (f *esm) footer(w *writer, entry module.ID, exp exports) {
	if exp.mode == config.ExportsNone {
		w.printf("__require(%s);\n", quote(string(entry)))
		return
	}
	w.printf("var __entry = __require(%s);\n", quote(string(entry)))
	if !exp.esm {
		w.raw("export default __entry;\n")
		return
	}
	if exp.def {
		w.raw("export default __entry.default;\n")
	}
	if exp.mode == config.ExportsDefault {
		return
	}
	if len(exp.names) > 0 {
		list := make([]string, len(exp.names))
		for i, n := range exp.names {
			w.printf("var __export%d = __entry[%s];\n", i, quote(n))
			list[i] = fmt.Sprintf("__export%d as %s", i, exportName(n))
		}
		w.printf("export { %s };\n", strings.Join(list, ", "))
	}
	for _, spec := range exp.stars {
		w.printf("export * from %s;\n", quote(spec))
	}
}

type cjs struct {
	externals []string
}

func (f *cjs) header(w *writer) {
	w.raw("\"use strict\";\n")
	bindings := make([]string, len(f.externals))
	for i, spec := range f.externals {
		bindings[i] = fmt.Sprintf("require(%s)", quote(spec))
	}
	w.printf("var __externals = [%s];\n", strings.Join(bindings, ", "))
}

func (f *cjs) footer(w *writer, entry module.ID, exp exports) {
	if v := exp.value(); v != "" {
		w.printf("var __entry = __require(%s);\n", quote(string(entry)))
		w.printf("module.exports = %s;\n", v)
		return
	}
	w.printf("__require(%s);\n", quote(string(entry)))
}

func params(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("__ext%d", i)
	}
	return strings.Join(ps, ", ")
}

// factoryFooter ends the function body shared by iife and umd.
func factoryFooter(w *writer, entry module.ID, exp exports) {
	if v := exp.value(); v != "" {
		w.printf("var __entry = __require(%s);\n", quote(string(entry)))
		w.printf("return %s;\n", v)
		return
	}
	w.printf("__require(%s);\n", quote(string(entry)))
}

type iife struct {
	name      string
	externals []string
	globals   []string
}

func (f *iife) header(w *writer) {
	w.printf("var %s = (function (%s) {\n", f.name, params(len(f.externals)))
	w.raw("\"use strict\";\n")
	w.printf("var __externals = [%s];\n", params(len(f.externals)))
}

func (f *iife) footer(w *writer, entry module.ID, exp exports) {
	factoryFooter(w, entry, exp)
	w.printf("})(%s);\n", strings.Join(f.globals, ", "))
}

type umd struct {
	name      string
	externals []string
	globals   []string
}

func (f *umd) header(w *writer) {
	requires := make([]string, len(f.externals))
	deps := make([]string, len(f.externals))
	globals := make([]string, len(f.externals))
	for i, spec := range f.externals {
		requires[i] = fmt.Sprintf("require(%s)", quote(spec))
		deps[i] = quote(spec)
		globals[i] = "global." + f.globals[i]
	}
	w.raw("(function (global, factory) {\n")
	w.printf("  typeof exports === \"object\" && typeof module !== \"undefined\" ? module.exports = factory(%s) :\n", strings.Join(requires, ", "))
	w.printf("  typeof define === \"function\" && define.amd ? define([%s], factory) :\n", strings.Join(deps, ", "))
	w.printf("  (global = typeof globalThis !== \"undefined\" ? globalThis : global || self, global.%s = factory(%s));\n", f.name, strings.Join(globals, ", "))
	w.printf("})(this, (function (%s) {\n", params(len(f.externals)))
	w.raw("\"use strict\";\n")
	w.printf("var __externals = [%s];\n", params(len(f.externals)))
}

func (f *umd) footer(w *writer, entry module.ID, exp exports) {
	factoryFooter(w, entry, exp)
	w.raw("}));\n")
}

func quote(s string) string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

func exportName(n string) string {
	if identifier.MatchString(n) {
		return n
	}
	return quote(n)
}
