// Package graph discovers every module reachable from the entry points and
// builds the module graph the code generator works from.
package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/logging"
	"github.com/libforge/libforge/internal/module"
	"github.com/libforge/libforge/internal/progress"
	"github.com/libforge/libforge/internal/transform"
)

type FileSystem interface {
	ReadFile(name string) ([]byte, error)
}

type Resolver interface {
	Resolve(ctx context.Context, specifier string, from module.ID) (module.Target, error)
}

type Transformer interface {
	Run(ctx context.Context, path, source string) (*transform.Result, error)
}

type Options struct {
	AssetExtensions []string // files attached as assets instead of transformed
	MaxModules      int
	Concurrency     int
	Logger          *logging.Logger
	Progress        *progress.Bar
}

type Builder struct {
	fs   FileSystem
	r    Resolver
	t    Transformer
	opts Options
}

func New(fsys FileSystem, r Resolver, t Transformer, opts Options) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.MaxModules <= 0 {
		opts.MaxModules = 10000
	}
	return &Builder{fs: fsys, r: r, t: t, opts: opts}
}

// build is the state of one Build call.
type build struct {
	*Builder
	g   *errgroup.Group
	sem *semaphore.Weighted

	mu      sync.Mutex
	claimed map[module.ID]struct{}
	records map[module.ID]*module.Record
	assets  map[module.ID][]byte

	reads singleflight.Group
}

// Build resolves the entry points, then transforms every module reachable
// from them exactly once. The first error cancels all outstanding work.
func (b *Builder) Build(ctx context.Context, entries []string) (*module.Graph, error) {
	if len(entries) == 0 {
		return nil, errors.New("no entry points")
	}

	g, gctx := errgroup.WithContext(ctx)
	s := &build{
		Builder: b,
		g:       g,
		sem:     semaphore.NewWeighted(int64(b.opts.Concurrency)),
		claimed: map[module.ID]struct{}{},
		records: map[module.ID]*module.Record{},
		assets:  map[module.ID][]byte{},
	}

	ids := make([]module.ID, 0, len(entries))
	for _, e := range entries {
		t, err := b.r.Resolve(ctx, entrySpecifier(e), "")
		if err != nil {
			return nil, err
		}
		if t.External != nil || b.isAsset(t.ID) {
			return nil, bundleerr.Resolution(e, "", errors.New("entry point must be a source module"))
		}
		if !slices.Contains(ids, t.ID) {
			ids = append(ids, t.ID)
		}
	}

	for _, id := range ids {
		if err := s.visit(gctx, id, module.Edge{}); err != nil {
			_ = g.Wait()
			return nil, err
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := &module.Graph{Modules: s.records, Entries: ids}
	graph.Order, graph.Externals = order(s.records, ids)
	b.opts.Logger.Debugf("module graph: %d modules, %d externals", len(graph.Order), len(graph.Externals))
	return graph, nil
}

// entrySpecifier makes a configured entry point path relative to the root.
func entrySpecifier(e string) string {
	if strings.HasPrefix(e, "./") || strings.HasPrefix(e, "../") || strings.HasPrefix(e, "/") {
		return e
	}
	return "./" + e
}

func (b *Builder) isAsset(id module.ID) bool {
	return slices.Contains(b.opts.AssetExtensions, id.Ext())
}

// visit claims id and schedules it. A module claimed before is skipped.
// via is the import that reached id, zero for entry points.
func (s *build) visit(ctx context.Context, id module.ID, via module.Edge) error {
	s.mu.Lock()
	if _, ok := s.claimed[id]; ok {
		s.mu.Unlock()
		return nil
	}
	if len(s.claimed) >= s.opts.MaxModules {
		s.mu.Unlock()
		return bundleerr.Overflow(string(id), s.opts.MaxModules)
	}
	s.claimed[id] = struct{}{}
	s.mu.Unlock()

	s.g.Go(func() error {
		return s.process(ctx, id, via)
	})
	return nil
}

func (s *build) process(ctx context.Context, id module.ID, via module.Edge) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	rec, err := s.load(ctx, id)
	s.sem.Release(1)
	if err != nil {
		var be *bundleerr.Error
		if via.From != "" && errors.As(err, &be) && be.Kind == bundleerr.TransformFailure && be.Module == string(id) {
			be.ImportedBy(string(via.From), via.Specifier)
		}
		return err
	}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	s.opts.Progress.Add(1)

	for _, e := range rec.Imports {
		if e.Kind() != module.EdgeModule {
			continue
		}
		if err := s.visit(ctx, e.Target.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *build) load(ctx context.Context, id module.ID) (*module.Record, error) {
	src, err := s.fs.ReadFile(string(id))
	if err != nil {
		return nil, bundleerr.Transform(string(id), "read", err)
	}

	res, err := s.t.Run(ctx, string(id), string(src))
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Tracef("%s: %d imports, exports %v", id, len(res.Imports), res.Exports)

	rec := &module.Record{
		ID:          id,
		Source:      string(src),
		Code:        res.Code,
		Map:         res.Map,
		Exports:     res.Exports,
		StarExports: res.StarExports,
		ESM:         res.ESM,
	}
	for _, spec := range res.Imports {
		t, err := s.r.Resolve(ctx, spec, id)
		if err != nil {
			return nil, err
		}
		if t.External == nil && s.isAsset(t.ID) {
			t.Asset = true
			if err := s.attach(rec, t.ID); err != nil {
				return nil, err
			}
		}
		rec.Imports = append(rec.Imports, module.Edge{Specifier: spec, From: id, Target: t})
	}
	return rec, nil
}

// attach adds the asset at p to rec. Each asset file is read once per build
// however many modules import it.
func (s *build) attach(rec *module.Record, p module.ID) error {
	for _, a := range rec.Assets {
		if a.Path == p {
			return nil
		}
	}

	v, err, _ := s.reads.Do(string(p), func() (any, error) {
		s.mu.Lock()
		content, ok := s.assets[p]
		s.mu.Unlock()
		if ok {
			return content, nil
		}
		content, err := s.fs.ReadFile(string(p))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.assets[p] = content
		s.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return bundleerr.Resolution(string(p), string(rec.ID), fmt.Errorf("read asset: %w", err))
	}

	content := v.([]byte)
	sum := sha256.Sum256(content)
	rec.Assets = append(rec.Assets, module.AssetRef{
		ID:          module.AssetID(hex.EncodeToString(sum[:])),
		Owner:       rec.ID,
		Path:        p,
		Content:     content,
		ContentType: mime.TypeByExtension(p.Ext()),
	})
	return nil
}

// order lists the modules dependencies first: a post-order walk from the
// entries in order, following imports in source order. Externals are
// collected in the order the walk meets them.
func order(records map[module.ID]*module.Record, entries []module.ID) ([]module.ID, []string) {
	var (
		ids       = make([]module.ID, 0, len(records))
		externals []string
		seen      = map[module.ID]bool{}
		seenExt   = map[string]bool{}
	)

	var walk func(id module.ID)
	walk = func(id module.ID) {
		if seen[id] {
			return
		}
		seen[id] = true
		rec := records[id]
		for _, e := range rec.Imports {
			switch e.Kind() {
			case module.EdgeModule:
				walk(e.Target.ID)
			case module.EdgeExternal:
				if spec := e.Target.External.Specifier; !seenExt[spec] {
					seenExt[spec] = true
					externals = append(externals, spec)
				}
			}
		}
		ids = append(ids, id)
	}
	for _, id := range entries {
		walk(id)
	}
	return ids, externals
}
