package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/libforge/libforge/internal/config"
)

// defaultConfigFile is read when no -c flag is given.
const defaultConfigFile = "libforge.yaml"

// loadConfig reads the build configuration. Several files, or a directory,
// are merged first; their relative paths resolve against the first one.
// Without any file the built-in default applies to the working directory.
func loadConfig(files []string) (*config.Root, error) {
	if len(files) == 0 {
		if _, err := os.Stat(defaultConfigFile); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		files = []string{defaultConfigFile}
	}

	if len(files) == 1 {
		info, err := os.Stat(files[0])
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return config.ParseFile(files[0])
		}
	}

	bs, err := config.Merge(files, false)
	if err != nil {
		return nil, err
	}
	root, err := config.Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("merged configuration: %w", err)
	}
	root.SetDir(baseDir(files[0]))
	return root, nil
}

func baseDir(name string) string {
	if info, err := os.Stat(name); err == nil && info.IsDir() {
		return name
	}
	return filepath.Dir(name)
}
