// Package resolve maps import specifiers to module identities.
//
// Resolution never lists directories: candidates are derived from the
// specifier in a fixed order and probed with existence checks, so the same
// tree always resolves the same way.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	lru "github.com/hashicorp/golang-lru"

	"github.com/libforge/libforge/internal/bundleerr"
	"github.com/libforge/libforge/internal/logging"
	"github.com/libforge/libforge/internal/manifest"
	"github.com/libforge/libforge/internal/module"
)

var ErrNotFound = errors.New("module not found")

type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	Exists(name string) bool
}

type Classifier interface {
	Classify(ctx context.Context, specifier string) (bool, error)
}

type Options struct {
	Extensions []string // probed in order
	MainFields []string // package.json fields naming a package entry point
	ModuleDirs []string // e.g. node_modules
	Conditions []string // "exports" conditions, in priority order
	Browser    bool     // honour the package.json "browser" field

	// Project is the project's own package.json. When set, resolved
	// packages are checked against its declared version ranges.
	Project *manifest.Package

	CacheSize int
	Logger    *logging.Logger
}

type Resolver struct {
	fs   FileSystem
	cls  Classifier
	opts Options
	log  *logging.Logger

	manifests *lru.Cache

	mu       sync.Mutex
	checked  map[string]bool
	warnings []string
}

type cachedManifest struct {
	pkg *manifest.Package
	err error
}

func New(fsys FileSystem, cls Classifier, opts Options) (*Resolver, error) {
	if len(opts.Extensions) == 0 {
		return nil, errors.New("resolver: at least one extension is required")
	}
	if len(opts.ModuleDirs) == 0 {
		opts.ModuleDirs = []string{"node_modules"}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		fs:        fsys,
		cls:       cls,
		opts:      opts,
		log:       opts.Logger,
		manifests: cache,
		checked:   map[string]bool{},
	}, nil
}

// Resolve maps specifier, imported by from, to a target. An empty from
// resolves entry points against the root. External specifiers are
// recognized before anything is read.
func (r *Resolver) Resolve(ctx context.Context, specifier string, from module.ID) (module.Target, error) {
	if r.cls != nil {
		ext, err := r.cls.Classify(ctx, specifier)
		if err != nil {
			return module.Target{}, bundleerr.Resolution(specifier, string(from), fmt.Errorf("external rules: %w", err))
		}
		if ext {
			return module.Target{External: &module.ExternalRef{Specifier: specifier}}, nil
		}
	}

	var (
		id  string
		ok  bool
		err error
	)
	switch {
	case strings.HasPrefix(specifier, "/"):
		id, ok, err = r.relative(strings.TrimPrefix(specifier, "/"))
	case isRelative(specifier):
		id, ok, err = r.relative(path.Join(dirOf(from), specifier))
	default:
		id, ok, err = r.bare(specifier, from)
	}
	if err != nil {
		return module.Target{}, bundleerr.Resolution(specifier, string(from), err)
	}
	if !ok {
		return module.Target{}, bundleerr.Resolution(specifier, string(from), ErrNotFound)
	}
	return module.Target{ID: module.NewID(id)}, nil
}

// Warnings returns the version mismatches found so far.
func (r *Resolver) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.warnings)
}

func isRelative(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func dirOf(id module.ID) string {
	if id == "" {
		return "."
	}
	return id.Dir()
}

func (r *Resolver) relative(base string) (string, bool, error) {
	id, ok := r.file(base)
	if !ok {
		return "", false, nil
	}
	if root, ok := r.packageRoot(id); ok {
		pkg, err := r.manifest(root)
		if err != nil {
			return "", false, err
		}
		return r.browserReplace(root, pkg, id), true, nil
	}
	return id, true, nil
}

// file probes base as written, then with each extension, then as a
// directory index.
func (r *Resolver) file(base string) (string, bool) {
	base = path.Clean(base)
	if path.Ext(base) != "" && r.fs.Exists(base) {
		return base, true
	}
	for _, ext := range r.opts.Extensions {
		if r.fs.Exists(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range r.opts.Extensions {
		if p := path.Join(base, "index"+ext); r.fs.Exists(p) {
			return p, true
		}
	}
	return "", false
}

func (r *Resolver) bare(specifier string, from module.ID) (string, bool, error) {
	name, sub := splitPackage(specifier)
	if name == "" {
		return "", false, fmt.Errorf("invalid package specifier %q", specifier)
	}

	dir := dirOf(from)
	for {
		for _, md := range r.opts.ModuleDirs {
			if path.Base(dir) == md {
				continue
			}
			root := path.Join(dir, md, name)
			id, ok, err := r.inPackage(root, sub)
			if err != nil {
				return "", false, err
			}
			if ok {
				r.checkVersion(name, root)
				return id, true, nil
			}
		}
		if dir == "." || dir == "/" {
			return "", false, nil
		}
		dir = path.Dir(dir)
	}
}

func (r *Resolver) inPackage(root, sub string) (string, bool, error) {
	pkg, err := r.manifest(root)
	if err != nil {
		return "", false, err
	}

	if sub == "" {
		if pkg != nil {
			for _, entry := range r.entries(pkg) {
				if id, ok := r.file(path.Join(root, entry)); ok {
					return r.browserReplace(root, pkg, id), true, nil
				}
			}
		}
		id, ok := r.file(path.Join(root, "index"))
		return id, ok, nil
	}

	if pkg != nil {
		if entry, ok := pkg.Export("./"+sub, r.opts.Conditions); ok {
			if id, ok := r.file(path.Join(root, entry)); ok {
				return id, true, nil
			}
		}
	}
	if id, ok := r.file(path.Join(root, sub)); ok {
		return r.browserReplace(root, pkg, id), true, nil
	}

	// a subdirectory with its own package.json, e.g. "lib/fp"
	nested, err := r.manifest(path.Join(root, sub))
	if err != nil || nested == nil {
		return "", false, err
	}
	for _, entry := range r.entries(nested) {
		if id, ok := r.file(path.Join(root, sub, entry)); ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (r *Resolver) entries(pkg *manifest.Package) []string {
	var entries []string
	if r.opts.Browser && pkg.Browser.Entry != "" {
		entries = append(entries, pkg.Browser.Entry)
	}
	if e, ok := pkg.Export(".", r.opts.Conditions); ok {
		entries = append(entries, e)
	}
	for _, f := range r.opts.MainFields {
		if e, ok := pkg.Field(f); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func (r *Resolver) browserReplace(root string, pkg *manifest.Package, id string) string {
	if !r.opts.Browser || pkg == nil || len(pkg.Browser.Replacements) == 0 {
		return id
	}
	rel := strings.TrimPrefix(id, root+"/")
	for _, key := range []string{"./" + rel, rel} {
		if repl, ok := pkg.Browser.Replacements[key]; ok {
			if replaced, ok := r.file(path.Join(root, repl)); ok {
				return replaced
			}
		}
	}
	return id
}

// packageRoot finds the installed package directory containing id, if id
// lies inside a module directory.
func (r *Resolver) packageRoot(id string) (string, bool) {
	parts := strings.Split(id, "/")
	end := -1
	for i := len(parts) - 2; i >= 0; i-- {
		if slices.Contains(r.opts.ModuleDirs, parts[i]) && i+1 < len(parts)-1 {
			end = i + 2
			if strings.HasPrefix(parts[i+1], "@") {
				end++
			}
			break
		}
	}
	if end < 0 || end > len(parts)-1 {
		return "", false
	}
	return strings.Join(parts[:end], "/"), true
}

func (r *Resolver) manifest(dir string) (*manifest.Package, error) {
	p := path.Join(dir, "package.json")
	if v, ok := r.manifests.Get(p); ok {
		c := v.(cachedManifest)
		return c.pkg, c.err
	}

	var c cachedManifest
	bs, err := r.fs.ReadFile(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		c.err = err
	default:
		c.pkg, c.err = manifest.Parse(bs)
		if c.err != nil {
			c.err = fmt.Errorf("%s: %w", p, c.err)
		}
	}
	r.manifests.Add(p, c)
	return c.pkg, c.err
}

// checkVersion warns once per package when the installed version does not
// satisfy the range the project declares.
func (r *Resolver) checkVersion(name, root string) {
	if r.opts.Project == nil {
		return
	}
	rng, ok := r.opts.Project.Range(name)
	if !ok {
		return
	}

	r.mu.Lock()
	if r.checked[name] {
		r.mu.Unlock()
		return
	}
	r.checked[name] = true
	r.mu.Unlock()

	pkg, err := r.manifest(root)
	if err != nil || pkg == nil || pkg.Version == "" {
		return
	}
	c, err := semver.NewConstraint(rng)
	if err != nil {
		r.log.Debugf("skipping version check of %s: range %q: %v", name, rng, err)
		return
	}
	v, err := semver.NewVersion(pkg.Version)
	if err != nil {
		r.log.Debugf("skipping version check of %s: version %q: %v", name, pkg.Version, err)
		return
	}
	if !c.Check(v) {
		msg := fmt.Sprintf("installed %s@%s does not satisfy %q", name, pkg.Version, rng)
		r.log.Warnf("%s", msg)
		r.mu.Lock()
		r.warnings = append(r.warnings, msg)
		r.mu.Unlock()
	}
}

// splitPackage splits "name/sub" and "@scope/name/sub" into the package
// name and the subpath.
func splitPackage(specifier string) (string, string) {
	parts := strings.SplitN(specifier, "/", 3)
	if strings.HasPrefix(specifier, "@") {
		if len(parts) < 2 || parts[1] == "" {
			return "", ""
		}
		name := parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			return name, parts[2]
		}
		return name, ""
	}
	name := parts[0]
	sub := strings.TrimPrefix(specifier, name)
	return name, strings.TrimPrefix(sub, "/")
}
