package external_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/external"
	"github.com/libforge/libforge/internal/manifest"
)

const regoModule = `package libforge

external if startswith(input.specifier, "@mui/")
`

func TestRules(t *testing.T) {
	g, err := external.NewGlob("@emotion/*")
	if err != nil {
		t.Fatal(err)
	}
	re, err := external.NewRegexp(`^lodash(\.|/|$)`)
	if err != nil {
		t.Fatal(err)
	}
	rg, err := external.NewRego(context.Background(), "data.libforge.external", regoModule)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		note      string
		rule      external.Rule
		specifier string
		exp       bool
	}{
		{note: "exact", rule: external.Exact("react"), specifier: "react", exp: true},
		{note: "exact is not a prefix", rule: external.Exact("react"), specifier: "react/jsx-runtime", exp: false},
		{note: "exact is not a substring", rule: external.Exact("react"), specifier: "react-dom", exp: false},
		{note: "prefix", rule: external.Prefix("react/"), specifier: "react/jsx-runtime", exp: true},
		{note: "prefix mismatch", rule: external.Prefix("react/"), specifier: "react", exp: false},
		{note: "glob", rule: g, specifier: "@emotion/react", exp: true},
		{note: "glob does not cross separators", rule: g, specifier: "@emotion/react/jsx", exp: false},
		{note: "regexp", rule: re, specifier: "lodash.merge", exp: true},
		{note: "regexp mismatch", rule: re, specifier: "lodashx", exp: false},
		{note: "rego", rule: rg, specifier: "@mui/material", exp: true},
		{note: "rego undefined", rule: rg, specifier: "@emotion/react", exp: false},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			if got := tc.rule.Match(tc.specifier); got != tc.exp {
				t.Fatalf("%v.Match(%q): expected %v, got %v", tc.rule, tc.specifier, tc.exp, got)
			}
		})
	}
}

func TestInvalidRules(t *testing.T) {
	if _, err := external.NewGlob("[a"); err == nil {
		t.Fatal("expected glob error")
	}
	if _, err := external.NewRegexp("(a"); err == nil {
		t.Fatal("expected regexp error")
	}
	if _, err := external.NewRego(context.Background(), "data.libforge.external", "package libforge\n\nexternal if {"); err == nil {
		t.Fatal("expected rego error")
	}
}

func TestClassifier(t *testing.T) {
	c := external.New(external.Exact("react"), external.Prefix("react/"))

	rule, ok := c.Match("react/jsx-runtime")
	if !ok || rule.String() != "prefix:react/" {
		t.Fatalf("expected prefix rule, got %v", rule)
	}
	if c.IsExternal("./react") || c.IsExternal("react-dom") {
		t.Fatal("unexpected external")
	}

	var empty *external.Classifier
	if empty.IsExternal("react") {
		t.Fatal("nil classifier must not match")
	}
}

const conflictingModule = `package libforge

external := true if input.specifier == "react"

external := false if startswith(input.specifier, "re")
`

func TestClassify(t *testing.T) {
	ctx := context.Background()
	rg, err := external.NewRego(ctx, "data.libforge.external", conflictingModule)
	if err != nil {
		t.Fatal(err)
	}
	c := external.New(external.Exact("lodash"), rg)

	cases := []struct {
		note      string
		specifier string
		exp       bool
		wantErr   bool
	}{
		{note: "plain rule first", specifier: "lodash", exp: true},
		{note: "rego defined", specifier: "redux", exp: false},
		{note: "rego undefined", specifier: "clsx", exp: false},
		{note: "rego conflict", specifier: "react", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			got, err := c.Classify(ctx, tc.specifier)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an evaluation error, got %v", got)
				}
				if !strings.Contains(err.Error(), "rego:data.libforge.external") {
					t.Fatalf("expected the rule in the error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.exp {
				t.Fatalf("Classify(%q): expected %v, got %v", tc.specifier, tc.exp, got)
			}
		})
	}

	var empty *external.Classifier
	if ok, err := empty.Classify(ctx, "react"); ok || err != nil {
		t.Fatalf("nil classifier: expected no match, got %v %v", ok, err)
	}
}

func TestFromConfig(t *testing.T) {
	pkg, err := manifest.Parse([]byte(`{
		"name": "ui",
		"peerDependencies": {"react": "^18", "react-dom": "^18"},
		"dependencies": {"clsx": "^2"}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Externals{
		Exact:            config.StringSet{"lodash"},
		Regexp:           config.StringSet{"^@mui/"},
		PeerDependencies: true,
	}
	c, err := external.FromConfig(context.Background(), cfg, pkg)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, r := range c.Rules() {
		got = append(got, r.String())
	}
	exp := []string{
		"exact:lodash",
		"regexp:^@mui/",
		"exact:react", "prefix:react/",
		"exact:react-dom", "prefix:react-dom/",
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("(-want,+got):\n%s", diff)
	}
	if c.IsExternal("clsx") {
		t.Fatal("dependencies are bundled unless configured")
	}

	cfg.Dependencies = true
	c, err = external.FromConfig(context.Background(), cfg, pkg)
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsExternal("clsx") {
		t.Fatal("expected dependency to be external")
	}

	c, err = external.FromConfig(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsExternal("react") {
		t.Fatal("expected no dependency rules without a package.json")
	}
}
