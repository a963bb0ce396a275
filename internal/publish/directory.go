package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libforge/libforge/internal/codegen"
	"github.com/libforge/libforge/internal/logging"
)

// Directory writes artifacts below a local directory. Every file is first
// written to a temporary next to its destination; only when all of them
// are written are they renamed into place.
type Directory struct {
	root string
	log  *logging.Logger
}

func NewDirectory(root string, log *logging.Logger) *Directory {
	return &Directory{root: root, log: log}
}

func (d *Directory) Publish(ctx context.Context, artifacts []codegen.Artifact) error {
	fs, err := files(artifacts)
	if err != nil {
		return err
	}

	temps := make([]string, 0, len(fs))
	cleanup := func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}

	for _, f := range fs {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		t, err := d.writeTemp(f)
		if err != nil {
			cleanup()
			return err
		}
		temps = append(temps, t)
	}

	for i, f := range fs {
		dst := filepath.Join(d.root, filepath.FromSlash(f.path))
		if err := os.Rename(temps[i], dst); err != nil {
			temps = temps[i:]
			cleanup()
			return fmt.Errorf("publish %s: %w", f.path, err)
		}
		d.log.Debugf("wrote %s (%d bytes)", dst, len(f.data))
	}
	return nil
}

func (d *Directory) writeTemp(f file) (string, error) {
	dst := filepath.Join(d.root, filepath.FromSlash(f.path))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("publish %s: %w", f.path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", f.path, err)
	}
	if _, err := tmp.Write(f.data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("publish %s: %w", f.path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("publish %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("publish %s: %w", f.path, err)
	}
	return tmp.Name(), nil
}
