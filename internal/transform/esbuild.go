package transform

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/libforge/libforge/internal/sourcemap"
)

const (
	RuntimeAutomatic = "automatic"
	RuntimeClassic   = "classic"
)

// JSX lowers JSX syntax to function calls and leaves everything else alone.
type JSX struct {
	Runtime      string `json:"runtime"`       // automatic (default) or classic
	ImportSource string `json:"import_source"` // automatic runtime only, default "react"
	Factory      string `json:"factory"`       // classic runtime only
	Fragment     string `json:"fragment"`      // classic runtime only
}

func (*JSX) Name() string { return "jsx" }

func (s *JSX) Transform(ctx context.Context, p, code string) (Output, error) {
	opts := api.TransformOptions{
		Loader:     jsxLoader(p),
		Sourcefile: p,
		Sourcemap:  api.SourceMapExternal,
	}
	switch s.Runtime {
	case "", RuntimeAutomatic:
		opts.JSX = api.JSXAutomatic
		opts.JSXImportSource = s.ImportSource
		if opts.JSXImportSource == "" {
			opts.JSXImportSource = "react"
		}
	case RuntimeClassic:
		opts.JSX = api.JSXTransform
		opts.JSXFactory = s.Factory
		opts.JSXFragment = s.Fragment
	default:
		return Output{}, fmt.Errorf("unknown jsx runtime %q", s.Runtime)
	}
	return esbuild(ctx, code, opts)
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// Lower rewrites syntax newer than Target. Module syntax and JSX are kept.
type Lower struct {
	Target string `json:"target"` // default es2015
}

func (*Lower) Name() string { return "lower" }

func (s *Lower) Transform(ctx context.Context, p, code string) (Output, error) {
	name := strings.ToLower(s.Target)
	if name == "" {
		name = "es2015"
	}
	target, ok := targets[name]
	if !ok {
		return Output{}, fmt.Errorf("unknown target %q", s.Target)
	}
	return esbuild(ctx, code, api.TransformOptions{
		Loader:     jsxLoader(p),
		JSX:        api.JSXPreserve,
		Target:     target,
		Sourcefile: p,
		Sourcemap:  api.SourceMapExternal,
	})
}

// CommonJS converts module syntax into require calls and exports
// assignments. It is the link stage every pipeline ends with.
type CommonJS struct{}

func (CommonJS) Name() string { return "commonjs" }

func (CommonJS) Transform(ctx context.Context, p, code string) (Output, error) {
	return esbuild(ctx, code, api.TransformOptions{
		Loader:     linkLoader(p),
		Format:     api.FormatCommonJS,
		Sourcefile: p,
		Sourcemap:  api.SourceMapExternal,
	})
}

// linkLoader is the loader for code whose JSX is already lowered.
func linkLoader(p string) api.Loader {
	switch path.Ext(p) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	}
	return api.LoaderJS
}

func jsxLoader(p string) api.Loader {
	switch path.Ext(p) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	}
	return api.LoaderJSX
}

func esbuild(ctx context.Context, code string, opts api.TransformOptions) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	result := api.Transform(code, opts)
	if len(result.Errors) > 0 {
		return Output{}, messagesError(result.Errors)
	}

	out := Output{Code: string(result.Code)}
	if len(result.Map) > 0 {
		m, err := sourcemap.Parse(result.Map)
		if err != nil {
			return Output{}, err
		}
		if out.Map, err = sourcemap.Decode(m); err != nil {
			return Output{}, err
		}
	}
	return out, nil
}

func messagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		errs = append(errs, errors.New(m.Text))
	}
	return errors.Join(errs...)
}
