// Package fs is the read side of the build: existence checks and file reads
// over an io/fs.FS rooted at the project directory.
package fs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/yalue/merged_fs"
)

// Reader answers the two questions module resolution asks: does a path exist
// as a regular file, and what are its contents. Paths are slash-separated and
// relative to the root of the underlying file system.
type Reader struct {
	fsys fs.FS
}

func NewReader(fsys fs.FS) *Reader {
	return &Reader{fsys: fsys}
}

// Root builds the file system for a project directory. Additional overlay
// directories are consulted after dir, in order.
func Root(dir string, overlays ...string) fs.FS {
	if len(overlays) == 0 {
		return os.DirFS(dir)
	}
	fses := make([]fs.FS, 0, len(overlays)+1)
	fses = append(fses, os.DirFS(dir))
	for _, o := range overlays {
		fses = append(fses, os.DirFS(o))
	}
	return merged_fs.MergeMultiple(fses...)
}

func (r *Reader) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return fs.ReadFile(r.fsys, name)
}

func (r *Reader) Exists(name string) bool {
	if !fs.ValidPath(name) {
		return false
	}
	fi, err := fs.Stat(r.fsys, name)
	return err == nil && fi.Mode().IsRegular()
}

// ContainsSources reports whether fsys holds at least one file with one of
// the given extensions, ignoring node_modules.
func ContainsSources(fsys fs.FS, exts ...string) (bool, error) {
	errFound := os.ErrExist

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" {
				return fs.SkipDir
			}
			return nil
		}
		if slices.ContainsFunc(exts, func(ext string) bool { return strings.EqualFold(path.Ext(p), ext) }) {
			return errFound
		}
		return nil
	})
	if err == errFound {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
