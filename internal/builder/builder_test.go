package builder_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/libforge/libforge/internal/builder"
	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/codegen"
	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/metrics"
	"github.com/libforge/libforge/internal/transform"
)

func fixture() fstest.MapFS {
	return fstest.MapFS{
		"package.json": {Data: []byte(`{
  "name": "fixture-ui",
  "version": "1.0.0",
  "main": "dist/index.js",
  "module": "dist/index.esm.js",
  "peerDependencies": {"react": "^18.0.0"}
}`)},
		"src/index.js": {Data: []byte(`import { Button } from "./button";

export { Button };
export default Button;
`)},
		"src/button.jsx": {Data: []byte(`import "./button.css";
import { memo } from "react";

export const Button = memo(function Button({ label, ...rest }) {
  return <button className="btn" {...rest}>{label}</button>;
});
`)},
		"src/button.css": {Data: []byte(".btn {\n  color: red;\n}\n")},
	}
}

func build(t *testing.T, fsys fstest.MapFS, cfg *config.Root) []codegen.Artifact {
	t.Helper()
	arts, err := builder.New().WithConfig(cfg).WithFS(fsys).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return arts
}

func TestBuildDefaultConfig(t *testing.T) {
	arts := build(t, fixture(), config.Default())

	var paths []string
	for _, a := range arts {
		paths = append(paths, a.Path)
	}
	if diff := cmp.Diff([]string{"dist/index.js", "dist/index.esm.js", "dist/index.css"}, paths); diff != "" {
		t.Fatalf("artifacts (-want,+got):\n%s", diff)
	}

	cjs, esm, css := string(arts[0].Code), string(arts[1].Code), string(arts[2].Code)

	if !strings.Contains(css, ".btn{color:red}") {
		t.Errorf("expected a minified stylesheet, got %q", css)
	}
	for _, a := range arts[:2] {
		name, code := a.Format, string(a.Code)
		if !strings.Contains(code, `__define("src/button.jsx"`) || !strings.Contains(code, `__define("src/index.js"`) {
			t.Errorf("%s: expected both modules to be bundled:\n%s", name, code)
		}
		if strings.Contains(code, "<button") {
			t.Errorf("%s: expected JSX to be compiled away", name)
		}
		if strings.Contains(code, "color: red") || strings.Contains(code, "color:red") {
			t.Errorf("%s: stylesheet must not be inlined when extracting", name)
		}
		if strings.Contains(code, "...rest") {
			t.Errorf("%s: expected object rest to be lowered to es2015", name)
		}
		if a.SourceMap == nil || !strings.HasSuffix(code, "//# sourceMappingURL="+a.Path[len("dist/"):]+".map\n") {
			t.Errorf("%s: expected a source map", name)
		}
	}

	if !strings.Contains(cjs, `require("react")`) || !strings.Contains(cjs, "module.exports = __entry;") {
		t.Errorf("cjs: expected react to stay external:\n%s", cjs)
	}
	for _, want := range []string{
		`from "react";`,
		`from "react/jsx-runtime";`,
		"export default __entry.default;",
		"export { __export0 as Button };",
	} {
		if !strings.Contains(esm, want) {
			t.Errorf("esm: expected %q:\n%s", want, esm)
		}
	}
}

func TestBuildPlainButton(t *testing.T) {
	fsys := fixture()
	delete(fsys, "src/button.jsx")
	fsys["src/button.js"] = &fstest.MapFile{Data: []byte(`import "./button.css";
import { createElement } from "react";

export function Button(props) {
  return createElement("button", { className: "btn" }, props.label);
}
`)}

	arts := build(t, fsys, config.Default())

	var sheets []string
	for _, a := range arts {
		if a.Kind == codegen.KindAsset {
			sheets = append(sheets, a.Path)
		}
	}
	if diff := cmp.Diff([]string{"dist/index.css"}, sheets); diff != "" {
		t.Fatalf("stylesheets (-want,+got):\n%s", diff)
	}

	define := `__define("src/button.js", { "./button.css": __asset, "react": 0 }, function (module, exports, require) {`
	externals := map[string]string{
		config.FormatCJS: `var __externals = [require("react")];`,
		config.FormatESM: `import * as __ext0 from "react";`,
	}
	for _, a := range arts {
		want, ok := externals[a.Format]
		if !ok {
			continue
		}
		code := string(a.Code)
		if !strings.Contains(code, define) {
			t.Errorf("%s: expected the button to reference react alone:\n%s", a.Format, code)
		}
		if !strings.Contains(code, want) || strings.Contains(code, "__ext1") || strings.Contains(code, "jsx-runtime") {
			t.Errorf("%s: expected react as the only external:\n%s", a.Format, code)
		}
		if strings.Contains(code, "color: red") || strings.Contains(code, "color:red") {
			t.Errorf("%s: stylesheet must not be inlined when extracting", a.Format)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	first := build(t, fixture(), config.Default())
	for range 3 {
		again := build(t, fixture(), config.Default())
		if len(again) != len(first) {
			t.Fatalf("expected %d artifacts, got %d", len(first), len(again))
		}
		for i := range again {
			if !bytes.Equal(first[i].Code, again[i].Code) || !bytes.Equal(first[i].SourceMap, again[i].SourceMap) {
				t.Fatalf("%s differs between builds", again[i].Path)
			}
		}
	}
}

func TestBuildInjectAssets(t *testing.T) {
	cfg := config.Default()
	extract := false
	cfg.Assets.Extract = &extract

	arts := build(t, fixture(), cfg)
	if len(arts) != 2 {
		t.Fatalf("expected no stylesheet artifact, got %d artifacts", len(arts))
	}
	if !strings.Contains(string(arts[0].Code), `__define("src/button.css"`) {
		t.Fatalf("expected the stylesheet to be injected:\n%s", arts[0].Code)
	}
}

type countingStage struct {
	transform.Stage
	calls atomic.Int32
}

func (s *countingStage) Transform(ctx context.Context, path, code string) (transform.Output, error) {
	s.calls.Add(1)
	return s.Stage.Transform(ctx, path, code)
}

func TestBuildWithStages(t *testing.T) {
	stage := &countingStage{Stage: &transform.JSX{}}

	cfg := config.Default()
	cfg.Outputs = append(cfg.Outputs,
		&config.Output{Format: config.FormatUMD, File: "dist/index.umd.js", Name: "FixtureUI", Globals: map[string]string{
			"react":             "React",
			"react/jsx-runtime": "ReactJSXRuntime",
		}},
	)

	arts, err := builder.New().WithConfig(cfg).WithFS(fixture()).WithStages(stage).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n := stage.calls.Load(); n != 2 {
		t.Fatalf("expected each module to be transformed once for all outputs, got %d runs", n)
	}
	if len(arts) != 4 || !strings.Contains(string(arts[2].Code), "global.FixtureUI = factory(global.React") {
		t.Fatalf("expected a umd bundle, got %v", arts[2].Path)
	}
	if !strings.Contains(string(arts[2].Code), "...rest") {
		t.Fatal("expected the configured lower stage to be replaced")
	}
}

func TestBuildFailures(t *testing.T) {
	cases := []struct {
		note   string
		mutate func(fstest.MapFS, *config.Root)
		want   error
		kind   string
	}{
		{
			note: "unresolved import",
			mutate: func(fsys fstest.MapFS, _ *config.Root) {
				fsys["src/index.js"] = &fstest.MapFile{Data: []byte(`import "./missing";`)}
			},
			want: bundleerr.ErrResolution,
			kind: "resolution_failure",
		},
		{
			note: "syntax error",
			mutate: func(fsys fstest.MapFS, _ *config.Root) {
				fsys["src/button.jsx"] = &fstest.MapFile{Data: []byte(`export const Button = (;`)}
			},
			want: bundleerr.ErrTransform,
			kind: "transform_failure",
		},
		{
			note: "module limit",
			mutate: func(_ fstest.MapFS, cfg *config.Root) {
				cfg.Limits.MaxModules = 1
			},
			want: bundleerr.ErrOverflow,
			kind: "cycle_overflow",
		},
		{
			note: "missing package field",
			mutate: func(fsys fstest.MapFS, _ *config.Root) {
				fsys["package.json"] = &fstest.MapFile{Data: []byte(`{"name": "fixture-ui", "main": "dist/index.js"}`)}
			},
			want: bundleerr.ErrEmission,
			kind: "emission_failure",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			fsys, cfg := fixture(), config.Default()
			tc.mutate(fsys, cfg)

			before := testutil.ToFloat64(metrics.BuildFailed.WithLabelValues("fixture-ui", tc.kind))
			arts, err := builder.New().WithConfig(cfg).WithFS(fsys).Build(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if arts != nil {
				t.Fatal("expected no artifacts from a failed build")
			}
			if after := testutil.ToFloat64(metrics.BuildFailed.WithLabelValues("fixture-ui", tc.kind)); after != before+1 {
				t.Fatalf("expected the failure to be counted, got %v -> %v", before, after)
			}
		})
	}
}

func TestBuildNoConfig(t *testing.T) {
	if _, err := builder.New().Build(context.Background()); err == nil {
		t.Fatal("expected an error without configuration")
	}
}

func TestBuildBannerQuery(t *testing.T) {
	cfg := config.Default()
	cfg.Outputs[0].Banner = "/* license: MIT */"
	cfg.Outputs[0].BannerQuery = `sprintf("/*! %s v%s */", [input.package.name, input.package.version])`

	arts := build(t, fixture(), cfg)
	if want := "/* license: MIT */\n/*! fixture-ui v1.0.0 */\n"; !strings.HasPrefix(string(arts[0].Code), want) {
		t.Fatalf("expected banner %q, got:\n%s", want, arts[0].Code)
	}
	if strings.Contains(string(arts[1].Code), "fixture-ui v1.0.0") {
		t.Fatal("expected the banner on the first output only")
	}

	cfg.Outputs[0].BannerQuery = "input.nope"
	if _, err := builder.New().WithConfig(cfg).WithFS(fixture()).Build(context.Background()); err == nil || bundleerr.KindOf(err) != 0 {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}
