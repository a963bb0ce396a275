// Package external decides which import specifiers are left out of the
// bundle and referenced symbolically instead.
package external

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/manifest"
)

// Rule is one predicate over a raw specifier, as written in the import.
type Rule interface {
	Match(specifier string) bool
	String() string
}

// Evaluator is implemented by rules whose evaluation can fail.
type Evaluator interface {
	Eval(ctx context.Context, specifier string) (bool, error)
}

type Exact string

func (r Exact) Match(s string) bool { return s == string(r) }
func (r Exact) String() string      { return "exact:" + string(r) }

type Prefix string

func (r Prefix) Match(s string) bool { return strings.HasPrefix(s, string(r)) }
func (r Prefix) String() string      { return "prefix:" + string(r) }

type Glob struct {
	pattern string
	g       glob.Glob
}

func NewGlob(pattern string) (*Glob, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("external glob %q: %w", pattern, err)
	}
	return &Glob{pattern: pattern, g: g}, nil
}

func (r *Glob) Match(s string) bool { return r.g.Match(s) }
func (r *Glob) String() string      { return "glob:" + r.pattern }

type Regexp struct {
	re *regexp.Regexp
}

func NewRegexp(expr string) (*Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("external regexp %q: %w", expr, err)
	}
	return &Regexp{re: re}, nil
}

func (r *Regexp) Match(s string) bool { return r.re.MatchString(s) }
func (r *Regexp) String() string      { return "regexp:" + r.re.String() }

// Rego evaluates a prepared query with {"specifier": s} as input. The
// specifier is external when the query yields true.
type Rego struct {
	query string
	pq    rego.PreparedEvalQuery
}

func NewRego(ctx context.Context, query, module string) (*Rego, error) {
	opts := []func(*rego.Rego){rego.Query(query)}
	if module != "" {
		opts = append(opts, rego.Module("externals.rego", module))
	}
	pq, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("external rego query %q: %w", query, err)
	}
	return &Rego{query: query, pq: pq}, nil
}

// Eval runs the query against s. A query that fails at run time, for
// example with conflicting complete rules, returns the error.
func (r *Rego) Eval(ctx context.Context, s string) (bool, error) {
	rs, err := r.pq.Eval(ctx, rego.EvalInput(map[string]any{"specifier": s}))
	if err != nil {
		return false, fmt.Errorf("%s: %w", r, err)
	}
	return rs.Allowed(), nil
}

// Match reports false when the query cannot be evaluated. The classifier
// uses Eval instead and fails.
func (r *Rego) Match(s string) bool {
	ok, _ := r.Eval(context.Background(), s)
	return ok
}

func (r *Rego) String() string { return "rego:" + r.query }

// Classifier is the logical OR of its rules.
type Classifier struct {
	rules []Rule
}

func New(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// IsExternal reports whether any rule matches. A rule that fails to
// evaluate does not match; Classify reports the failure.
func (c *Classifier) IsExternal(specifier string) bool {
	_, ok := c.Match(specifier)
	return ok
}

// Match returns the first rule matching specifier.
func (c *Classifier) Match(specifier string) (Rule, bool) {
	if c == nil {
		return nil, false
	}
	for _, r := range c.rules {
		if r.Match(specifier) {
			return r, true
		}
	}
	return nil, false
}

// Classify is IsExternal for the build: rules are evaluated with ctx and
// the first evaluation error is returned instead of counting as a miss.
func (c *Classifier) Classify(ctx context.Context, specifier string) (bool, error) {
	if c == nil {
		return false, nil
	}
	for _, r := range c.rules {
		var (
			ok  bool
			err error
		)
		if e, isEval := r.(Evaluator); isEval {
			ok, err = e.Eval(ctx, specifier)
		} else {
			ok = r.Match(specifier)
		}
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (c *Classifier) Rules() []Rule {
	return slices.Clone(c.rules)
}

// FromConfig builds the rule set of an externals configuration. pkg may be
// nil when the project has no package.json; dependency-derived rules are
// then skipped.
func FromConfig(ctx context.Context, cfg config.Externals, pkg *manifest.Package) (*Classifier, error) {
	var rules []Rule
	for _, s := range cfg.Exact {
		rules = append(rules, Exact(s))
	}
	for _, s := range cfg.Prefix {
		rules = append(rules, Prefix(s))
	}
	for _, s := range cfg.Glob {
		g, err := NewGlob(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, g)
	}
	for _, s := range cfg.Regexp {
		re, err := NewRegexp(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, re)
	}
	if cfg.Rego != nil {
		r, err := NewRego(ctx, cfg.Rego.Query, cfg.Rego.Module)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	if pkg != nil {
		if cfg.PeerDependencies {
			rules = append(rules, packageRules(pkg.PeerDependencies)...)
		}
		if cfg.Dependencies {
			rules = append(rules, packageRules(pkg.Dependencies)...)
		}
	}

	return New(rules...), nil
}

// packageRules matches a package and every subpath of it.
func packageRules(deps map[string]string) []Rule {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)

	rules := make([]Rule, 0, 2*len(names))
	for _, name := range names {
		rules = append(rules, Exact(name), Prefix(name+"/"))
	}
	return rules
}
