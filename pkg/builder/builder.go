package builder

import (
	"context"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/libforge/libforge/internal/builder"
	"github.com/libforge/libforge/internal/logging"
)

type Builder struct {
	b *builder.Builder
}

func New() *Builder {
	return &Builder{b: builder.New()}
}

func (b *Builder) WithConfig(cfg *Config) *Builder {
	b.b.WithConfig(cfg)
	return b
}

// WithFS reads the project from fsys instead of the configured project
// directory.
func (b *Builder) WithFS(fsys fs.FS) *Builder {
	b.b.WithFS(fsys)
	return b
}

func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.b.WithLogger(logging.FromZerolog(l))
	return b
}

// WithStages replaces the configured transform stages. The CommonJS link
// stage still runs after them.
func (b *Builder) WithStages(stages ...Stage) *Builder {
	b.b.WithStages(stages...)
	return b
}

// Build bundles the project and returns every artifact, or the first error.
// Errors carry one of the kinds of package bundleerr and can be matched
// with errors.Is against the sentinels re-exported here.
func (b *Builder) Build(ctx context.Context) ([]Artifact, error) {
	return b.b.Build(ctx)
}
