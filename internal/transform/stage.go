package transform

import (
	"context"

	"github.com/libforge/libforge/internal/sourcemap"
)

// Output is the result of one stage. A nil Map means the stage kept every
// position where it was.
type Output struct {
	Code string
	Map  *sourcemap.Decoded
}

// Stage rewrites the code of one module. Stages must not change what the
// code does, only how it is written.
type Stage interface {
	Name() string
	Transform(ctx context.Context, path, code string) (Output, error)
}

type funcStage struct {
	name string
	fn   func(ctx context.Context, path, code string) (Output, error)
}

// StageFunc adapts a function to a Stage.
func StageFunc(name string, fn func(ctx context.Context, path, code string) (Output, error)) Stage {
	return &funcStage{name: name, fn: fn}
}

func (s *funcStage) Name() string { return s.name }

func (s *funcStage) Transform(ctx context.Context, path, code string) (Output, error) {
	return s.fn(ctx, path, code)
}

// named overrides the name a configured stage reports in errors and metrics.
type named struct {
	Stage
	name string
}

func (n *named) Name() string { return n.name }
