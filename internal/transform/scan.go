package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/evanw/esbuild/pkg/api"
)

// Exports is what esbuild reports about a module's imports and exports.
type Exports struct {
	Imports []string // loaded specifiers, in source order
	Names   []string // exported names, "default" included
	Stars   []string // specifiers of `export * from`
	ESM     bool     // the module uses import or export declarations
}

// metafile is the part of esbuild's build metadata a single unbundled
// module fills in.
type metafile struct {
	Inputs map[string]struct {
		Format  string `json:"format"`
		Imports []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"imports"`
	} `json:"inputs"`
	Outputs map[string]struct {
		Exports []string `json:"exports"`
	} `json:"outputs"`
}

// loadKinds are the import kinds that make the module graph depend on the
// imported file.
var loadKinds = map[string]bool{
	"import-statement": true,
	"require-call":     true,
	"dynamic-import":   true,
}

// esbuild prints every top level statement at the start of a line.
var starExport = regexp.MustCompile(`(?m)^export \* from ("(?:[^"\\\n]|\\.)*");?$`)

// Scan runs code through an unbundled esm build and reads its imports and
// exports off the build metadata. Names bound through `export * from` are
// reported as Stars and left to the caller to resolve.
func Scan(ctx context.Context, p, code string) (Exports, error) {
	if err := ctx.Err(); err != nil {
		return Exports{}, err
	}
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   code,
			Sourcefile: p,
			Loader:     linkLoader(p),
		},
		Format:   api.FormatESModule,
		Outfile:  "module.js",
		Metafile: true,
		Write:    false,
		LogLevel: api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return Exports{}, messagesError(result.Errors)
	}

	var mf metafile
	if err := json.Unmarshal([]byte(result.Metafile), &mf); err != nil {
		return Exports{}, fmt.Errorf("esbuild metafile: %w", err)
	}

	var ex Exports
	statements := map[string]bool{}
	for _, in := range mf.Inputs {
		ex.ESM = ex.ESM || in.Format == "esm"
		for _, imp := range in.Imports {
			if !loadKinds[imp.Kind] {
				continue
			}
			if imp.Kind == "import-statement" {
				ex.ESM = true
				statements[imp.Path] = true
			}
			if !slices.Contains(ex.Imports, imp.Path) {
				ex.Imports = append(ex.Imports, imp.Path)
			}
		}
	}
	for _, out := range mf.Outputs {
		for _, name := range out.Exports {
			if !slices.Contains(ex.Names, name) {
				ex.Names = append(ex.Names, name)
			}
		}
	}
	if len(ex.Names) > 0 {
		ex.ESM = true
	}

	for _, f := range result.OutputFiles {
		for _, m := range starExport.FindAllStringSubmatch(string(f.Contents), -1) {
			spec, err := strconv.Unquote(m[1])
			if err != nil || !statements[spec] || slices.Contains(ex.Stars, spec) {
				continue
			}
			ex.Stars = append(ex.Stars, spec)
		}
	}
	return ex, nil
}
