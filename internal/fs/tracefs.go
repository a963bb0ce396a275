package fs

import (
	"io/fs"

	"github.com/libforge/libforge/internal/logging"
)

// TraceFS logs every Open at trace level, for debugging resolution.
type TraceFS struct {
	fsys fs.FS
	log  *logging.Logger
}

func NewTraceFS(fsys fs.FS, log *logging.Logger) fs.FS {
	return &TraceFS{fsys: fsys, log: log}
}

func (t *TraceFS) Open(p string) (fs.File, error) {
	f, err := t.fsys.Open(p)
	if err != nil {
		t.log.Tracef("open %s: %v", p, err)
		return f, err
	}
	if fi, err := f.Stat(); err == nil {
		if fi.IsDir() {
			t.log.Tracef("open %s: dir", p)
		} else {
			t.log.Tracef("open %s: %d bytes", p, fi.Size())
		}
	}
	return f, nil
}
