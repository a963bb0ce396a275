// Package publish writes the artifacts of a build to their destination.
package publish

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"

	"github.com/libforge/libforge/internal/codegen"
	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/logging"
)

type Publisher interface {
	Publish(ctx context.Context, artifacts []codegen.Artifact) error
}

// New returns the publisher configured by cfg. Without a configuration,
// artifacts are written below projectDir, which is also the base of a
// relative output directory.
func New(ctx context.Context, cfg *config.Publish, projectDir string, log *logging.Logger) (Publisher, error) {
	switch {
	case cfg == nil:
		return NewDirectory(projectDir, log), nil
	case cfg.AmazonS3 != nil:
		return NewAmazonS3(ctx, *cfg.AmazonS3, log)
	case cfg.Directory != "":
		dir := cfg.Directory
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(projectDir, dir)
		}
		return NewDirectory(dir, log), nil
	}
	return NewDirectory(projectDir, log), nil
}

// file is one object to write: an artifact or its source map.
type file struct {
	path        string
	data        []byte
	contentType string
}

func files(artifacts []codegen.Artifact) ([]file, error) {
	if len(artifacts) == 0 {
		return nil, errors.New("nothing to publish")
	}
	var fs []file
	for _, a := range artifacts {
		if !validPath(a.Path) {
			return nil, fmt.Errorf("artifact path %q leaves the output directory", a.Path)
		}
		fs = append(fs, file{path: a.Path, data: a.Code, contentType: contentType(a.Path)})
		if a.MapPath != "" {
			fs = append(fs, file{path: a.MapPath, data: a.SourceMap, contentType: contentType(a.MapPath)})
		}
	}
	return fs, nil
}

func validPath(p string) bool {
	clean := path.Clean(p)
	return clean != "." && clean != ".." && !path.IsAbs(clean) && (len(clean) < 3 || clean[:3] != "../")
}

func contentType(p string) string {
	switch path.Ext(p) {
	case ".js", ".mjs", ".cjs":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".map":
		return "application/json"
	}
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}
