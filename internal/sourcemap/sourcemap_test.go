package sourcemap_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/libforge/libforge/internal/sourcemap"
)

func TestDecodeEncode(t *testing.T) {
	m := &sourcemap.Map{
		Version:  3,
		Sources:  []string{"a.js"},
		Names:    []string{"foo"},
		Mappings: "AAAA,IAAIA;AACA,gBAAgB",
	}

	d, err := sourcemap.Decode(m)
	if err != nil {
		t.Fatal(err)
	}

	exp := [][]sourcemap.Segment{
		{
			{GenCol: 0, Source: 0, SrcLine: 0, SrcCol: 0, Name: -1},
			{GenCol: 4, Source: 0, SrcLine: 0, SrcCol: 4, Name: 0},
		},
		{
			{GenCol: 0, Source: 0, SrcLine: 1, SrcCol: 4, Name: -1},
			{GenCol: 16, Source: 0, SrcLine: 1, SrcCol: 20, Name: -1},
		},
	}
	if diff := cmp.Diff(exp, d.Lines); diff != "" {
		t.Fatalf("unexpected segments (-want,+got):\n%s", diff)
	}

	if got := d.Encode().Mappings; got != m.Mappings {
		t.Fatalf("expected %q, got %q", m.Mappings, got)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		note     string
		mappings string
	}{
		{note: "invalid character", mappings: "A!AA"},
		{note: "truncated", mappings: "AAg"},
		{note: "two fields", mappings: "AA"},
		{note: "source out of range", mappings: "ACAA"},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := sourcemap.Decode(&sourcemap.Map{Version: 3, Sources: []string{"a.js"}, Mappings: tc.mappings})
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParse(t *testing.T) {
	m, err := sourcemap.Parse([]byte(`{"version":3,"sources":["x.js"],"sourceRoot":"lib","names":[],"mappings":"AAAA"}`))
	if err != nil {
		t.Fatal(err)
	}
	d, err := sourcemap.Decode(m)
	if err != nil {
		t.Fatal(err)
	}
	if d.Sources[0] != "lib/x.js" {
		t.Fatalf("expected source root to be applied, got %q", d.Sources[0])
	}

	if _, err := sourcemap.Parse([]byte(`{"version":2}`)); err == nil {
		t.Fatal("expected version error")
	}
}

func TestLookup(t *testing.T) {
	d := sourcemap.Identity("src.js", "abc\ndef\n")

	src, line, col, ok := d.Original(1, 2)
	if !ok || src != "src.js" || line != 1 || col != 0 {
		t.Fatalf("unexpected lookup: %v %v %v %v", src, line, col, ok)
	}

	if _, ok := d.Lookup(7, 0); ok {
		t.Fatal("expected no mapping past the last line")
	}
}

func TestCompose(t *testing.T) {
	inner := sourcemap.Identity("src.js", "abc\ndef")

	// outer moves line 1 of its input to line 0, shifted right by two columns
	outer := &sourcemap.Decoded{
		Sources: []string{"intermediate.js"},
		Names:   []string{"d"},
		Lines: [][]sourcemap.Segment{
			{
				{GenCol: 0, Source: -1, Name: -1},
				{GenCol: 2, Source: 0, SrcLine: 1, SrcCol: 0, Name: 0},
				{GenCol: 3, Source: 0, SrcLine: 1, SrcCol: 1, Name: -1},
			},
		},
	}

	got := sourcemap.Compose(outer, inner)

	if diff := cmp.Diff([]string{"src.js"}, got.Sources); diff != "" {
		t.Fatalf("unexpected sources (-want,+got):\n%s", diff)
	}

	exp := []sourcemap.Segment{
		{GenCol: 0, Source: -1, Name: -1},
		{GenCol: 2, Source: 0, SrcLine: 1, SrcCol: 0, Name: 0},
		{GenCol: 3, Source: 0, SrcLine: 1, SrcCol: 1, Name: -1},
	}
	if diff := cmp.Diff(exp, got.Lines[0]); diff != "" {
		t.Fatalf("unexpected segments (-want,+got):\n%s", diff)
	}
	if got.Names[0] != "d" {
		t.Fatalf("expected name to carry over, got %v", got.Names)
	}
}

func TestBuilderAppend(t *testing.T) {
	b := sourcemap.NewBuilder("bundle.js")
	b.Append(sourcemap.Identity("a.js", "x\ny"), 1)
	b.Append(sourcemap.Identity("b.js", "z"), 4)
	b.Append(sourcemap.Identity("a.js", "x\ny"), 6)

	d := b.Decoded(8)
	if len(d.Lines) != 8 {
		t.Fatalf("expected 8 lines, got %d", len(d.Lines))
	}
	if diff := cmp.Diff([]string{"a.js", "b.js"}, d.Sources); diff != "" {
		t.Fatalf("unexpected sources (-want,+got):\n%s", diff)
	}

	cases := []struct {
		line, col int
		src       string
		srcLine   int
		ok        bool
	}{
		{line: 0, ok: false},
		{line: 1, src: "a.js", srcLine: 0, ok: true},
		{line: 2, src: "a.js", srcLine: 1, ok: true},
		{line: 3, ok: false},
		{line: 4, src: "b.js", srcLine: 0, ok: true},
		{line: 7, src: "a.js", srcLine: 1, ok: true},
	}
	for _, tc := range cases {
		src, srcLine, _, ok := d.Original(tc.line, tc.col)
		if ok != tc.ok || src != tc.src || srcLine != tc.srcLine {
			t.Errorf("line %d: expected %q:%d (%v), got %q:%d (%v)", tc.line, tc.src, tc.srcLine, tc.ok, src, srcLine, ok)
		}
	}

	m := d.Encode()
	if m.File != "bundle.js" || len(m.SourcesContent) != 2 || *m.SourcesContent[1] != "z" {
		t.Fatalf("unexpected map: %+v", m)
	}
}
