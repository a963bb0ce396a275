package transform_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/config"
	lfs "github.com/libforge/libforge/internal/fs"
	"github.com/libforge/libforge/internal/sourcemap"
	"github.com/libforge/libforge/internal/transform"
)

// prependLine adds a comment line and maps every column of the shifted
// lines onto itself.
var prependLine = transform.StageFunc("prepend", func(_ context.Context, _, code string) (transform.Output, error) {
	lines := strings.Split(code, "\n")
	d := &sourcemap.Decoded{Sources: []string{"in.js"}, Lines: make([][]sourcemap.Segment, len(lines)+1)}
	for l, line := range lines {
		for c := range len(line) {
			d.Lines[l+1] = append(d.Lines[l+1], sourcemap.Segment{GenCol: c, Source: 0, SrcLine: l, SrcCol: c, Name: -1})
		}
	}
	return transform.Output{Code: "// generated\n" + code, Map: d}, nil
})

const fidelitySource = `const mode = process.env.NODE_ENV;
export function hello(name) {
  return "hi " + name + mode;
}
`

func TestPipelineSourceMapFidelity(t *testing.T) {
	replace, err := transform.NewReplace(map[string]string{"process.env.NODE_ENV": `"production"`})
	require.NoError(t, err)

	p := transform.New([]transform.Stage{replace, prependLine}, transform.WithLinkStage(nil))
	res, err := p.Run(context.Background(), "src/hello.js", fidelitySource)
	require.NoError(t, err)

	require.Equal(t, "// generated\n"+strings.Replace(fidelitySource, "process.env.NODE_ENV", `"production"`, 1), res.Code)

	cases := []struct {
		note     string
		line     int
		col      int
		srcLine  int
		srcCol   int
		unmapped bool
	}{
		{note: "inserted line", line: 0, col: 3, unmapped: true},
		{note: "start of first line", line: 1, col: 0, srcLine: 0, srcCol: 0},
		{note: "identifier before replacement", line: 1, col: 6, srcLine: 0, srcCol: 6},
		{note: "start of replacement", line: 1, col: 13, srcLine: 0, srcCol: 13},
		{note: "after replacement", line: 1, col: 25, srcLine: 0, srcCol: 33},
		{note: "untouched line", line: 2, col: 16, srcLine: 1, srcCol: 16},
		{note: "indented line", line: 3, col: 9, srcLine: 2, srcCol: 9},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			src, line, col, ok := res.Map.Original(tc.line, tc.col)
			if tc.unmapped {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, "src/hello.js", src)
			assert.Equal(t, tc.srcLine, line)
			assert.Equal(t, tc.srcCol, col)
		})
	}

	require.Len(t, res.Map.SourcesContent, 1)
	assert.Equal(t, fidelitySource, *res.Map.SourcesContent[0])
	assert.Equal(t, []string{"hello"}, res.Exports)
	assert.True(t, res.ESM)
}

func TestPipelineNilMapIsIdentity(t *testing.T) {
	upper := transform.StageFunc("upper", func(_ context.Context, _, code string) (transform.Output, error) {
		return transform.Output{Code: strings.ToUpper(code)}, nil
	})
	p := transform.New([]transform.Stage{upper}, transform.WithLinkStage(nil))

	res, err := p.Run(context.Background(), "a.js", "a;\nb;")
	require.NoError(t, err)

	if diff := cmp.Diff(sourcemap.Identity("a.js", "a;\nb;"), res.Map); diff != "" {
		t.Fatalf("(-want,+got):\n%s", diff)
	}
}

func TestPipelineStageFailure(t *testing.T) {
	boom := transform.StageFunc("boom", func(context.Context, string, string) (transform.Output, error) {
		return transform.Output{}, errors.New("unexpected token")
	})
	var observed []string
	p := transform.New([]transform.Stage{boom}, transform.WithObserver(func(stage string, _ time.Duration) {
		observed = append(observed, stage)
	}))

	_, err := p.Run(context.Background(), "src/bad.js", "x")
	require.ErrorIs(t, err, bundleerr.ErrTransform)

	var be *bundleerr.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "boom", be.Stage)
	assert.Equal(t, "src/bad.js", be.Module)
	assert.Equal(t, []string{"boom"}, observed)
}

func TestPipelineScanObserved(t *testing.T) {
	var observed []string
	p := transform.New(nil, transform.WithObserver(func(stage string, _ time.Duration) {
		observed = append(observed, stage)
	}))

	res, err := p.Run(context.Background(), "src/index.js", "import \"./a\";\nconst s = `require(\"no\")`;\nexport default require(\"./b\");")
	require.NoError(t, err)
	assert.Equal(t, []string{"commonjs", "scan"}, observed)
	assert.Equal(t, []string{"./a", "./b"}, res.Imports)
	assert.Equal(t, []string{"default"}, res.Exports)
}

func TestPipelineFilter(t *testing.T) {
	var ran, linked []string
	user := transform.StageFunc("user", func(_ context.Context, p, code string) (transform.Output, error) {
		ran = append(ran, p)
		return transform.Output{Code: code}, nil
	})
	link := transform.StageFunc("link", func(_ context.Context, p, code string) (transform.Output, error) {
		linked = append(linked, p)
		return transform.Output{Code: code}, nil
	})

	filter, err := lfs.NewFilter(nil, []string{"node_modules/**"})
	require.NoError(t, err)
	p := transform.New([]transform.Stage{user}, transform.WithFilter(filter), transform.WithLinkStage(link))

	for _, path := range []string{"src/index.js", "node_modules/clsx/dist/clsx.mjs"} {
		_, err := p.Run(context.Background(), path, "")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"src/index.js"}, ran)
	assert.Equal(t, []string{"src/index.js", "node_modules/clsx/dist/clsx.mjs"}, linked)
	assert.Equal(t, []string{"user", "link"}, p.Stages())
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transform.New(nil).Run(ctx, "a.js", "export default 1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestPipelineEsbuild(t *testing.T) {
	src := `import React from "react";
import Button from "./Button";
import "./button.css";
export * from "./theme";
export const size = 2;
export default function App() {
  return <Button size={size} />;
}
`
	p := transform.New([]transform.Stage{&transform.JSX{}})
	res, err := p.Run(context.Background(), "src/App.jsx", src)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"react/jsx-runtime", "react", "./Button", "./button.css", "./theme"}, res.Imports)
	assert.ElementsMatch(t, []string{"size", "default"}, res.Exports)
	assert.Equal(t, []string{"./theme"}, res.StarExports)
	assert.True(t, res.ESM)
	assert.Contains(t, res.Code, "module.exports")
	assert.NotContains(t, res.Code, "<Button")
	assert.Equal(t, []string{"src/App.jsx"}, res.Map.Sources)

	// the map must lead back to the JSX element in the original text
	found := false
	for l, line := range strings.Split(res.Code, "\n") {
		if c := strings.Index(line, "Button"); c >= 0 && strings.Contains(line, "jsx") {
			_, srcLine, _, ok := res.Map.Original(l, c)
			found = ok && srcLine == 6
			break
		}
	}
	assert.True(t, found, "expected the jsx call to map to line 7 of the source")
}

func TestPipelineEsbuildSyntaxError(t *testing.T) {
	_, err := transform.New(nil).Run(context.Background(), "src/broken.js", "export const = ;")
	require.ErrorIs(t, err, bundleerr.ErrTransform)
	assert.Contains(t, err.Error(), "commonjs")
	assert.Contains(t, err.Error(), "src/broken.js")
}

func TestFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
entry_points: [src/index.js]
outputs: [{format: esm, file: dist/index.js}]
transform:
  exclude: [node_modules/**]
  stages:
    - kind: jsx
      options: {runtime: classic, factory: h}
    - kind: lower
      options: {target: ES2017}
    - kind: replace
      name: env
      options:
        values: {process.env.NODE_ENV: '"production"'}
`))
	require.NoError(t, err)

	stages, filter, err := transform.FromConfig(cfg.Transform)
	require.NoError(t, err)

	var names []string
	for _, s := range stages {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"jsx", "lower", "env"}, names)
	assert.False(t, filter.Match("node_modules/x/index.js"))
	assert.True(t, filter.Match("src/index.js"))

	cases := []struct {
		note  string
		stage config.Stage
		err   string
	}{
		{note: "unknown runtime", stage: config.Stage{Kind: config.StageJSX, Options: map[string]any{"runtime": "preact"}}, err: "unknown jsx runtime"},
		{note: "unknown target", stage: config.Stage{Kind: config.StageLower, Options: map[string]any{"target": "es1999"}}, err: "unknown target"},
		{note: "unknown option", stage: config.Stage{Kind: config.StageLower, Options: map[string]any{"targets": "es2017"}}, err: "targets"},
		{note: "multi-line value", stage: config.Stage{Kind: config.StageReplace, Options: map[string]any{"values": map[string]any{"X": "a\nb"}}}, err: "several lines"},
	}
	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, _, err := transform.FromConfig(config.Transform{Stages: []*config.Stage{&tc.stage}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func ExampleStageFunc() {
	banner := transform.StageFunc("banner", func(_ context.Context, path, code string) (transform.Output, error) {
		return transform.Output{Code: "/* " + path + " */ " + code}, nil
	})
	res, _ := transform.New([]transform.Stage{banner}, transform.WithLinkStage(nil)).Run(context.Background(), "a.js", "var a = 1;")
	fmt.Println(res.Code)
	// Output: /* a.js */ var a = 1;
}
