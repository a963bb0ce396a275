package builder

import (
	"context"

	"github.com/libforge/libforge/internal/codegen"
	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/transform"
)

// Config is the build configuration: entry points, outputs, externals,
// transform stages and asset handling.
type Config = config.Root

// Output describes one artifact per entry point, in one module format.
type Output = config.Output

// Artifact is one generated file. Paths are slash separated and relative to
// the project directory.
type Artifact = codegen.Artifact

// Stage rewrites the code of one module without changing what it does.
type Stage = transform.Stage

// StageOutput is the result of a Stage. A nil Map means every position was
// kept.
type StageOutput = transform.Output

// Module formats.
const (
	FormatESM  = config.FormatESM
	FormatCJS  = config.FormatCJS
	FormatIIFE = config.FormatIIFE
	FormatUMD  = config.FormatUMD
)

// DefaultConfig returns the configuration of a React component library:
// src/index.js bundled to the package.json "main" (CommonJS) and "module"
// (ES module) paths, with react, react-dom and next kept external.
func DefaultConfig() *Config {
	return config.Default()
}

// ParseConfig reads a YAML or JSON configuration and validates it against
// the configuration schema.
func ParseConfig(bs []byte) (*Config, error) {
	return config.Parse(bs)
}

// ParseConfigFile is ParseConfig for a file. Relative paths in the
// configuration are resolved against the file's directory.
func ParseConfigFile(filename string) (*Config, error) {
	return config.ParseFile(filename)
}

// StageFunc adapts a function to a Stage.
func StageFunc(name string, fn func(ctx context.Context, path, code string) (StageOutput, error)) Stage {
	return transform.StageFunc(name, fn)
}
