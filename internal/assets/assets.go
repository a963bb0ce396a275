// Package assets collects the stylesheets imported by modules into a single
// deduplicated bundle.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/logging"
	"github.com/libforge/libforge/internal/module"
)

// Minifier shrinks CSS text without changing its meaning.
type Minifier interface {
	Minify(ctx context.Context, css string) (string, error)
}

// Esbuild minifies with esbuild's CSS printer.
type Esbuild struct{}

func (Esbuild) Minify(ctx context.Context, css string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	result := api.Transform(css, api.TransformOptions{
		Loader:           api.LoaderCSS,
		MinifyWhitespace: true,
		MinifySyntax:     true,
	})
	if len(result.Errors) > 0 {
		m := result.Errors[0]
		if m.Location != nil {
			return "", fmt.Errorf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text)
		}
		return "", fmt.Errorf("%s", m.Text)
	}
	return string(result.Code), nil
}

type Options struct {
	Extract  bool // false injects each asset from a generated module instead
	Minify   bool
	Minifier Minifier // defaults to Esbuild
	Logger   *logging.Logger
}

type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	if opts.Minifier == nil {
		opts.Minifier = Esbuild{}
	}
	return &Extractor{opts: opts}
}

// Bundle is the result of extraction.
type Bundle struct {
	Assets  []module.AssetRef              // unique by content, in first-seen order
	Owners  map[module.AssetID][]module.ID // modules importing each asset
	Content []byte                         // the extracted stylesheet; empty when injecting

	// Inject holds, when extraction is disabled, the generated module
	// source for every imported asset path, in InjectOrder.
	Inject      map[module.ID]string
	InjectOrder []module.ID
}

// Extracted reports whether the bundle produces a stylesheet artifact.
func (b *Bundle) Extracted() bool {
	return b != nil && len(b.Content) > 0
}

// Extract walks the graph in order and collects every asset once. Two
// different contents under one hash, or one path with two contents, are an
// asset conflict.
func (x *Extractor) Extract(ctx context.Context, g *module.Graph) (*Bundle, error) {
	b := &Bundle{Owners: map[module.AssetID][]module.ID{}}
	byHash := map[module.AssetID][]byte{}
	byPath := map[module.ID]module.AssetID{}
	paths := map[module.ID][]byte{}

	for _, id := range g.Order {
		for _, a := range g.Modules[id].Assets {
			if prev, ok := byHash[a.ID]; ok && !bytes.Equal(prev, a.Content) {
				return nil, bundleerr.Conflict(string(a.ID), string(id), "two contents share one hash")
			}
			if prev, ok := byPath[a.Path]; ok && prev != a.ID {
				return nil, bundleerr.Conflict(string(a.Path), string(id), "asset content changed during the build")
			}
			byPath[a.Path] = a.ID
			if _, ok := paths[a.Path]; !ok {
				paths[a.Path] = a.Content
				b.InjectOrder = append(b.InjectOrder, a.Path)
			}

			if _, ok := byHash[a.ID]; !ok {
				byHash[a.ID] = a.Content
				b.Assets = append(b.Assets, a)
			}
			b.Owners[a.ID] = appendUnique(b.Owners[a.ID], id)
		}
	}

	if !x.opts.Extract {
		b.Inject = make(map[module.ID]string, len(paths))
		for _, p := range b.InjectOrder {
			css := string(paths[p])
			if x.opts.Minify {
				var err error
				if css, err = x.opts.Minifier.Minify(ctx, css); err != nil {
					return nil, &bundleerr.Error{Kind: bundleerr.AssetConflict, Asset: string(p), Msg: "minify", Err: err}
				}
			}
			b.Inject[p] = injectSource(css)
		}
		return b, nil
	}
	b.InjectOrder = nil

	var buf bytes.Buffer
	for i, a := range b.Assets {
		if i > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.Write(a.Content)
	}
	content := buf.String()
	if x.opts.Minify && len(content) > 0 {
		minified, err := x.opts.Minifier.Minify(ctx, content)
		if err != nil {
			return nil, &bundleerr.Error{Kind: bundleerr.AssetConflict, Msg: "minify", Err: err}
		}
		x.opts.Logger.Debugf("minified stylesheet: %d -> %d bytes", len(content), len(minified))
		content = minified
	}
	b.Content = []byte(content)
	return b, nil
}

func appendUnique(ids []module.ID, id module.ID) []module.ID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// injectSource is the module standing in for a stylesheet that is not
// extracted: it adds a style element when there is a document and exports
// the CSS text.
func injectSource(css string) string {
	lit, _ := json.Marshal(css)
	return "var css = " + string(lit) + ";\n" +
		"if (typeof document !== \"undefined\") {\n" +
		"  var style = document.createElement(\"style\");\n" +
		"  style.appendChild(document.createTextNode(css));\n" +
		"  document.head.appendChild(style);\n" +
		"}\n" +
		"module.exports = css;\n"
}
