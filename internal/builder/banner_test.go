package builder

import (
	"testing"

	"github.com/libforge/libforge/internal/manifest"
)

func TestBanner(t *testing.T) {
	pkg := &manifest.Package{Name: "fixture-ui", Version: "1.2.3"}

	cases := []struct {
		note    string
		query   string
		env     map[string]string
		pkg     *manifest.Package
		want    string
		wantErr bool
	}{
		{
			note: "empty",
		},
		{
			note:  "static string",
			query: `"/* fixture */"`,
			want:  "/* fixture */",
		},
		{
			note:  "package and format",
			query: `sprintf("/*! %s v%s (%s) */", [input.package.name, input.package.version, input.format])`,
			pkg:   pkg,
			want:  "/*! fixture-ui v1.2.3 (esm) */",
		},
		{
			note:  "package name and version",
			query: `sprintf("// %s@%s", [input.package.name, input.package.version])`,
			pkg:   pkg,
			want:  "// fixture-ui@1.2.3",
		},
		{
			note:  "environment",
			query: `concat("", ["// build ", opa.runtime().env["LIBFORGE_BUILD_ID"]])`,
			env:   map[string]string{"LIBFORGE_BUILD_ID": "42"},
			want:  "// build 42",
		},
		{
			note:  "number",
			query: "1 + 1",
			want:  "2",
		},
		{
			note:    "not rego",
			query:   "/* plain banner */",
			wantErr: true,
		},
		{
			note:    "undefined",
			query:   `opa.runtime().env["LIBFORGE_UNSET_VARIABLE"]`,
			wantErr: true,
		},
		{
			note:    "no package",
			query:   `input.package.name`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			got, err := banner(t.Context(), tc.query, "esm", tc.pkg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
