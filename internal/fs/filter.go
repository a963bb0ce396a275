package fs

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter selects paths by include and exclude globs. `*` stays within one
// path segment and `**` crosses segments. An empty include list selects
// everything; exclusion wins over inclusion.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func NewFilter(include, exclude []string) (*Filter, error) {
	f := &Filter{}
	var err error
	if f.include, err = compile(include); err != nil {
		return nil, err
	}
	if f.exclude, err = compile(exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	gs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", p, err)
		}
		gs = append(gs, g)
	}
	return gs, nil
}

func (f *Filter) Match(p string) bool {
	if f == nil {
		return true
	}
	for _, g := range f.exclude {
		if g.Match(p) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(p) {
			return true
		}
	}
	return false
}
