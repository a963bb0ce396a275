// Package builder bundles a JavaScript component library into one artifact
// per entry point and module format.
//
// The builder resolves the module graph from the configured entry points,
// runs every module through the transform stages once, extracts imported
// stylesheets and emits ES module, CommonJS, IIFE and UMD bundles with
// source maps. Imports matched by the externals rules are left to the
// consumer of the library.
//
// # Basic Usage
//
//	import "github.com/libforge/libforge/pkg/builder"
//
//	cfg, err := builder.ParseConfigFile("libforge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	artifacts, err := builder.New().
//	    WithConfig(cfg).
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, a := range artifacts {
//	    fmt.Println(a.Path, len(a.Code))
//	}
//
// The artifacts are held in memory; nothing is written by Build.
//
// # Configuration
//
// DefaultConfig mirrors a typical React library setup:
//
//	entry_points: [src/index.js]
//	outputs:
//	  - {format: cjs, package_field: main}
//	  - {format: esm, package_field: module}
//	externals:
//	  exact: [next, react, react-dom]
//	  prefix: [react-dom/, react/]
//	transform:
//	  exclude: ["node_modules/**"]
//	  stages:
//	    - {kind: jsx, options: {runtime: automatic}}
//	    - {kind: lower, options: {target: es2015}}
//
// # Custom Stages
//
// Stages configured in the file can be replaced with Go implementations.
// A stage that moves code around returns a source map for its output, so
// the bundle's maps still point at the original files:
//
//	strip := builder.StageFunc("strip-debug", func(ctx context.Context, path, code string) (builder.StageOutput, error) {
//	    return builder.StageOutput{Code: strings.ReplaceAll(code, "debugger;", "         ")}, nil
//	})
//	artifacts, err := builder.New().
//	    WithConfig(cfg).
//	    WithStages(strip).
//	    Build(ctx)
//
// # Errors
//
// A failed build returns no artifacts and exactly one error. Use errors.Is
// with ErrResolution, ErrTransform, ErrOverflow, ErrConflict or ErrEmission
// to tell the kinds apart, and errors.As with *Error for the details.
//
// # Thread Safety
//
// A Builder must not be used by several goroutines at once. Separate
// builders may run concurrently.
package builder
