package fs

import (
	"io/fs"
	"testing/fstest"
)

// MapFS builds an in-memory file system from path to content pairs.
func MapFS(files map[string]string) fs.FS {
	m := make(fstest.MapFS, len(files))
	for p, content := range files {
		m[p] = &fstest.MapFile{Data: []byte(content), Mode: 0o644}
	}
	return m
}
