// Package transform runs the stages that turn a module's source into the
// code the generator wraps, and reads the module's imports and exports from
// esbuild's build metadata.
package transform

import (
	"context"
	"time"

	"github.com/libforge/libforge/internal/bundleerr"
	lfs "github.com/libforge/libforge/internal/fs"
	"github.com/libforge/libforge/internal/logging"
	"github.com/libforge/libforge/internal/sourcemap"
)

type Result struct {
	Code        string
	Map         *sourcemap.Decoded // maps Code back to the original source
	Imports     []string           // required specifiers, in source order
	Exports     []string
	StarExports []string
	ESM         bool
}

type Pipeline struct {
	stages  []Stage
	link    Stage
	filter  *lfs.Filter
	log     *logging.Logger
	observe func(stage string, d time.Duration)
}

type Option func(*Pipeline)

// WithFilter restricts the configured stages to the paths f matches. The
// link stage runs regardless.
func WithFilter(f *lfs.Filter) Option {
	return func(p *Pipeline) { p.filter = f }
}

// WithLinkStage replaces the final CommonJS stage. A nil stage disables it,
// in which case the code must already use require calls. The link stage
// must load the same specifiers as its input.
func WithLinkStage(s Stage) Option {
	return func(p *Pipeline) { p.link = s }
}

func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithObserver is called with the duration of every stage run.
func WithObserver(fn func(stage string, d time.Duration)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:  stages,
		link:    CommonJS{},
		observe: func(string, time.Duration) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages lists the stage names in the order they run.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages)+1)
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	if p.link != nil {
		names = append(names, p.link.Name())
	}
	return names
}

// Run transforms one module. Any stage error is returned as a transform
// failure naming the stage and path.
func (p *Pipeline) Run(ctx context.Context, path, source string) (*Result, error) {
	code, m := source, sourcemap.Identity(path, source)

	var err error
	if p.filter.Match(path) {
		for _, s := range p.stages {
			if code, m, err = p.apply(ctx, s, path, code, m); err != nil {
				return nil, err
			}
		}
	} else {
		p.log.Tracef("%s: excluded from transform stages", path)
	}

	linked, lm := code, m
	if p.link != nil {
		if linked, lm, err = p.apply(ctx, p.link, path, code, m); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	ex, err := Scan(ctx, path, code)
	p.observe("scan", time.Since(start))
	if err != nil {
		return nil, bundleerr.Transform(path, "scan", err)
	}

	return &Result{
		Code:        linked,
		Map:         lm,
		Imports:     ex.Imports,
		Exports:     ex.Names,
		StarExports: ex.Stars,
		ESM:         ex.ESM,
	}, nil
}

func (p *Pipeline) apply(ctx context.Context, s Stage, path, code string, m *sourcemap.Decoded) (string, *sourcemap.Decoded, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	start := time.Now()
	out, err := s.Transform(ctx, path, code)
	p.observe(s.Name(), time.Since(start))
	if err != nil {
		return "", nil, bundleerr.Transform(path, s.Name(), err)
	}
	p.log.Tracef("%s: stage %s: %d -> %d bytes", path, s.Name(), len(code), len(out.Code))

	if out.Map == nil {
		return out.Code, m, nil
	}
	return out.Code, sourcemap.Compose(out.Map, m), nil
}
