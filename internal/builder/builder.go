package builder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/libforge/libforge/internal/assets"
	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/codegen"
	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/external"
	lfs "github.com/libforge/libforge/internal/fs"
	"github.com/libforge/libforge/internal/graph"
	"github.com/libforge/libforge/internal/logging"
	"github.com/libforge/libforge/internal/manifest"
	"github.com/libforge/libforge/internal/metrics"
	"github.com/libforge/libforge/internal/progress"
	"github.com/libforge/libforge/internal/resolve"
	"github.com/libforge/libforge/internal/transform"
)

type Builder struct {
	cfg      *config.Root
	fsys     fs.FS
	log      *logging.Logger
	bar      *progress.Bar
	stages   []transform.Stage
	minifier assets.Minifier
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) WithConfig(cfg *config.Root) *Builder {
	b.cfg = cfg
	return b
}

// WithFS sets the file system the project is read from. It defaults to the
// project directory of the configuration, overlaid with the resolve roots.
func (b *Builder) WithFS(fsys fs.FS) *Builder {
	b.fsys = fsys
	return b
}

func (b *Builder) WithLogger(l *logging.Logger) *Builder {
	b.log = l
	return b
}

func (b *Builder) WithProgress(bar *progress.Bar) *Builder {
	b.bar = bar
	return b
}

// WithStages replaces the configured transform stages.
func (b *Builder) WithStages(stages ...transform.Stage) *Builder {
	b.stages = stages
	return b
}

func (b *Builder) WithMinifier(m assets.Minifier) *Builder {
	b.minifier = m
	return b
}

// Build runs the whole pipeline and returns the artifacts to publish. Any
// failure aborts the build; no artifacts are returned with an error.
func (b *Builder) Build(ctx context.Context) ([]codegen.Artifact, error) {
	if b.cfg == nil {
		return nil, errors.New("no configuration")
	}

	reader := lfs.NewReader(lfs.NewTraceFS(b.root(), b.log))
	pkg, err := b.manifest(reader)
	if err != nil {
		return nil, err
	}

	project := b.project(pkg)
	log := b.log.With("project", project)

	startTime := time.Now()
	metrics.BuildCount.Inc()
	metrics.LastBuildStart.WithLabelValues(project).Set(float64(startTime.Unix()))

	arts, err := b.build(ctx, reader, pkg, log)

	endTime := time.Now()
	metrics.LastBuildEnd.WithLabelValues(project).Set(float64(endTime.Unix()))
	metrics.BuildDuration.WithLabelValues(project).Observe(endTime.Sub(startTime).Seconds())

	if err != nil {
		metrics.BuildFailed.WithLabelValues(project, errorKind(err)).Inc()
		log.Errorf("build failed: %v", err)
		return nil, err
	}
	for _, a := range arts {
		metrics.ArtifactBytes.WithLabelValues(project, a.Path).Set(float64(len(a.Code)))
	}
	log.Infof("built %d artifacts in %v", len(arts), endTime.Sub(startTime).Round(time.Millisecond))
	return arts, nil
}

func (b *Builder) build(ctx context.Context, reader *lfs.Reader, pkg *manifest.Package, log *logging.Logger) ([]codegen.Artifact, error) {
	cfg := b.cfg

	specs, err := b.specs(ctx, pkg)
	if err != nil {
		return nil, err
	}

	cls, err := external.FromConfig(ctx, cfg.Externals, pkg)
	if err != nil {
		return nil, fmt.Errorf("externals: %w", err)
	}
	for _, r := range cls.Rules() {
		log.Debugf("external rule %v", r)
	}

	r, err := resolve.New(reader, cls, resolve.Options{
		Extensions: cfg.Extensions(),
		MainFields: cfg.Resolve.Fields(),
		ModuleDirs: cfg.Resolve.Dirs(),
		Conditions: cfg.Resolve.ExportConditions(),
		Browser:    cfg.Resolve.BrowserEnabled(),
		Project:    pkg,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	stages, filter, err := transform.FromConfig(cfg.Transform)
	if err != nil {
		return nil, err
	}
	if b.stages != nil {
		stages = b.stages
	}
	pipeline := transform.New(stages,
		transform.WithFilter(filter),
		transform.WithLogger(log),
		transform.WithObserver(func(stage string, d time.Duration) {
			metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
		}),
	)
	log.Debugf("transform stages: %v", pipeline.Stages())

	b.bar.Describe("discovering modules")
	g, err := graph.New(reader, r, pipeline, graph.Options{
		AssetExtensions: cfg.Assets.Exts(),
		MaxModules:      cfg.Limits.Modules(),
		Concurrency:     cfg.Workers(),
		Logger:          log,
		Progress:        b.bar,
	}).Build(ctx, cfg.EntryPoints)
	b.bar.Finish()
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("module graph: %w", err)
	}
	metrics.ModulesTransformed.WithLabelValues(b.project(pkg)).Add(float64(len(g.Order)))
	if w := r.Warnings(); len(w) > 0 {
		log.Warnf("%d installed packages do not match package.json", len(w))
	}

	bundle, err := assets.New(assets.Options{
		Extract:  cfg.Assets.ExtractEnabled(),
		Minify:   cfg.Assets.MinifyEnabled(),
		Minifier: b.minifier,
		Logger:   log,
	}).Extract(ctx, g)
	if err != nil {
		return nil, err
	}

	return codegen.New(codegen.Options{
		Package:   pkg,
		AssetFile: cfg.Assets.File,
		Logger:    log,
	}).Emit(ctx, g, bundle, specs)
}

// specs derives the code generator's output specs, with banner queries
// already evaluated.
func (b *Builder) specs(ctx context.Context, pkg *manifest.Package) ([]codegen.Spec, error) {
	specs := codegen.SpecsFromConfig(b.cfg.Outputs)
	for i, o := range b.cfg.Outputs {
		text, err := banner(ctx, o.BannerQuery, o.Format, pkg)
		if err != nil {
			return nil, fmt.Errorf("output %d (%s): %w", i, o.Format, err)
		}
		if text == "" {
			continue
		}
		if specs[i].Banner != "" {
			text = strings.TrimSuffix(specs[i].Banner, "\n") + "\n" + text
		}
		specs[i].Banner = text
	}
	return specs, nil
}

func (b *Builder) root() fs.FS {
	if b.fsys != nil {
		return b.fsys
	}
	roots := make([]string, 0, len(b.cfg.Resolve.Roots))
	for _, r := range b.cfg.Resolve.Roots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(b.cfg.Dir(), r)
		}
		if ok, err := lfs.ContainsSources(os.DirFS(r), b.cfg.Extensions()...); err != nil || !ok {
			b.log.Warnf("resolve root %s holds no sources", r)
		}
		roots = append(roots, r)
	}
	return lfs.Root(b.cfg.ProjectDir(), roots...)
}

// manifest reads the project's package.json. A project without one builds
// fine as long as no output names a package.json field.
func (b *Builder) manifest(reader *lfs.Reader) (*manifest.Package, error) {
	bs, err := reader.ReadFile(filepath.ToSlash(b.cfg.PackagePath()))
	if errors.Is(err, fs.ErrNotExist) {
		b.log.Debugf("no %s in project", b.cfg.PackagePath())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return manifest.Parse(bs)
}

func (b *Builder) project(pkg *manifest.Package) string {
	name := ""
	if pkg != nil {
		name = pkg.Name
	}
	return cmp.Or(name, filepath.Base(b.cfg.ProjectDir()))
}

func errorKind(err error) string {
	if k := bundleerr.KindOf(err); k != 0 {
		return k.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "config"
}
