package transform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/libforge/libforge/internal/sourcemap"
)

// Replace substitutes whole identifier paths such as process.env.NODE_ENV
// with fixed text. A key only matches where it is not part of a longer
// identifier or member expression. Longer keys win over shorter ones.
type Replace struct {
	values map[string]string
	keys   []string
}

func NewReplace(values map[string]string) (*Replace, error) {
	keys := make([]string, 0, len(values))
	for k, v := range values {
		if k == "" {
			return nil, errors.New("replace: empty key")
		}
		if strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("replace: value of %q spans several lines", k)
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return &Replace{values: values, keys: keys}, nil
}

func (*Replace) Name() string { return "replace" }

func (r *Replace) Transform(_ context.Context, p, code string) (Output, error) {
	lines := strings.Split(code, "\n")
	d := &sourcemap.Decoded{
		Sources: []string{p},
		Lines:   make([][]sourcemap.Segment, len(lines)),
	}
	seg := func(l, gen, src int) sourcemap.Segment {
		return sourcemap.Segment{GenCol: gen, Source: 0, SrcLine: l, SrcCol: src, Name: -1}
	}

	var out strings.Builder
	out.Grow(len(code))
	for l, line := range lines {
		if l > 0 {
			out.WriteByte('\n')
		}
		segs := []sourcemap.Segment{seg(l, 0, 0)}
		start := out.Len()
		for i := 0; i < len(line); {
			key := r.match(line, i)
			if key == "" {
				out.WriteByte(line[i])
				i++
				continue
			}
			if gen := out.Len() - start; segs[len(segs)-1].GenCol != gen {
				segs = append(segs, seg(l, gen, i))
			}
			out.WriteString(r.values[key])
			i += len(key)
			segs = append(segs, seg(l, out.Len()-start, i))
		}
		d.Lines[l] = segs
	}
	return Output{Code: out.String(), Map: d}, nil
}

func (r *Replace) match(line string, i int) string {
	if i > 0 && (isIdentPart(line[i-1]) || line[i-1] == '.') {
		return ""
	}
	for _, k := range r.keys {
		if !strings.HasPrefix(line[i:], k) {
			continue
		}
		if end := i + len(k); end < len(line) && isIdentPart(line[end]) {
			continue
		}
		return k
	}
	return ""
}
