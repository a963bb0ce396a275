package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"sort"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Root is the top-level build configuration. Relative paths are resolved
// against the directory of the configuration file.
type Root struct {
	Project          string    `json:"project,omitempty"` // project directory, defaults to the config file's directory
	Package          string    `json:"package,omitempty"` // package.json path inside the project
	EntryPoints      []string  `json:"entry_points" required:"true"`
	SourceExtensions []string  `json:"source_extensions,omitempty"`
	Outputs          []*Output `json:"outputs" required:"true"`
	Externals        Externals `json:"externals,omitzero"`
	Transform        Transform `json:"transform,omitzero"`
	Assets           Assets    `json:"assets,omitzero"`
	Resolve          Resolve   `json:"resolve,omitzero"`
	Limits           Limits    `json:"limits,omitzero"`
	Concurrency      int       `json:"concurrency,omitempty"`
	Publish          *Publish  `json:"publish,omitempty"`

	dir string

	_ struct{} `additionalProperties:"false"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root
// struct, so that every decoded configuration is also checked for values
// the schema cannot express (globs, regular expressions, output rules).
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.validate()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.validate()
}

// Default returns the configuration of a React component library: one
// entry point, CommonJS and ES module outputs named by package.json, and
// the React family kept external.
func Default() *Root {
	return &Root{
		EntryPoints: []string{"src/index.js"},
		Outputs: []*Output{
			{Format: FormatCJS, PackageField: "main"},
			{Format: FormatESM, PackageField: "module"},
		},
		Externals: Externals{
			Exact:  StringSet{"next", "react", "react-dom"},
			Prefix: StringSet{"react-dom/", "react/"},
		},
		Transform: Transform{
			Exclude: StringSet{"node_modules/**"},
			Stages: []*Stage{
				{Kind: StageJSX, Options: map[string]any{"runtime": "automatic"}},
				{Kind: StageLower, Options: map[string]any{"target": "es2015"}},
			},
		},
	}
}

// Dir is the directory relative paths are resolved against.
func (r *Root) Dir() string {
	return cmp.Or(r.dir, ".")
}

func (r *Root) SetDir(dir string) {
	r.dir = dir
}

func (r *Root) ProjectDir() string {
	if filepath.IsAbs(r.Project) {
		return r.Project
	}
	return filepath.Join(r.Dir(), r.Project)
}

func (r *Root) PackagePath() string {
	return cmp.Or(r.Package, "package.json")
}

func (r *Root) Extensions() []string {
	if len(r.SourceExtensions) == 0 {
		return []string{".js", ".jsx"}
	}
	return r.SourceExtensions
}

func (r *Root) Workers() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

func (r *Root) validate() error {
	if len(r.EntryPoints) == 0 {
		return errors.New("at least one entry point is required")
	}
	if len(r.Outputs) == 0 {
		return errors.New("at least one output is required")
	}
	for i, o := range r.Outputs {
		if err := o.validate(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	if err := r.Externals.validate(); err != nil {
		return err
	}
	if err := r.Transform.validate(); err != nil {
		return err
	}
	if r.Publish != nil {
		if err := r.Publish.validate(); err != nil {
			return err
		}
	}
	if r.Limits.MaxModules < 0 {
		return errors.New("limits.max_modules must not be negative")
	}
	return nil
}

// Validate checks a YAML or JSON document against the configuration schema.
func Validate(data []byte) error {
	schema, err := rootSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	root, err = Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", filename, err)
	}
	root.dir = filepath.Dir(filename)
	return root, nil
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

const (
	FormatESM  = "esm"
	FormatCJS  = "cjs"
	FormatIIFE = "iife"
	FormatUMD  = "umd"
)

var Formats = []string{FormatESM, FormatCJS, FormatIIFE, FormatUMD}

const (
	ExportsAuto    = "auto"
	ExportsNamed   = "named"
	ExportsDefault = "default"
	ExportsNone    = "none"
)

// Output describes one distribution artifact per entry point.
type Output struct {
	Format string `json:"format" required:"true" enum:"esm,cjs,iife,umd"`

	// File is the artifact path. It may contain [name] (entry point base
	// name) and [format].
	File string `json:"file,omitempty"`

	// PackageField takes the artifact path from a package.json field such
	// as "main" or "module". Exactly one of File and PackageField is set.
	PackageField string `json:"package_field,omitempty"`

	Name      string            `json:"name,omitempty"` // global variable for iife and umd
	Exports   string            `json:"exports,omitempty" enum:"auto,named,default,none"`
	Globals   map[string]string `json:"globals,omitempty"` // external specifier to global variable
	Sourcemap *bool             `json:"sourcemap,omitempty"`
	Banner    string            `json:"banner,omitempty"`

	// BannerQuery is a Rego expression whose value is written after
	// Banner. It is evaluated with the package name, version and output
	// format as input, and opa.runtime().env holds the environment.
	BannerQuery string `json:"banner_query,omitempty"`
	Footer      string `json:"footer,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (o *Output) SourcemapEnabled() bool {
	return o.Sourcemap == nil || *o.Sourcemap
}

func (o *Output) ExportMode() string {
	return cmp.Or(o.Exports, ExportsAuto)
}

func (o *Output) validate() error {
	if !slices.Contains(Formats, o.Format) {
		return fmt.Errorf("unknown format %q", o.Format)
	}
	if (o.File == "") == (o.PackageField == "") {
		return errors.New("exactly one of file and package_field is required")
	}
	switch o.ExportMode() {
	case ExportsAuto, ExportsNamed, ExportsDefault, ExportsNone:
	default:
		return fmt.Errorf("unknown exports mode %q", o.Exports)
	}
	return nil
}

// Externals lists the rules deciding which imports stay out of the bundle.
// A specifier is external if any rule matches.
type Externals struct {
	Exact            StringSet `json:"exact,omitempty"`
	Prefix           StringSet `json:"prefix,omitempty"`
	Glob             StringSet `json:"glob,omitempty"`
	Regexp           StringSet `json:"regexp,omitempty"`
	Rego             *RegoRule `json:"rego,omitempty"`
	PeerDependencies bool      `json:"peer_dependencies,omitempty"`
	Dependencies     bool      `json:"dependencies,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// RegoRule marks specifiers external when Query evaluates to true with
// input.specifier set. Module holds the policy source.
type RegoRule struct {
	Query  string `json:"query" required:"true"`
	Module string `json:"module,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (e *Externals) validate() error {
	for _, g := range e.Glob {
		if _, err := glob.Compile(g, '/'); err != nil {
			return fmt.Errorf("externals: invalid glob %q: %w", g, err)
		}
	}
	for _, re := range e.Regexp {
		if _, err := regexp.Compile(re); err != nil {
			return fmt.Errorf("externals: invalid regexp %q: %w", re, err)
		}
	}
	if e.Rego != nil && e.Rego.Query == "" {
		return errors.New("externals: rego query is required")
	}
	return nil
}

const (
	StageJSX     = "jsx"
	StageLower   = "lower"
	StageReplace = "replace"
)

var StageKinds = []string{StageJSX, StageLower, StageReplace}

// Transform is the ordered list of stages applied to every module the
// include and exclude globs select.
type Transform struct {
	Include StringSet `json:"include,omitempty"`
	Exclude StringSet `json:"exclude,omitempty"`
	Stages  []*Stage  `json:"stages,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (t *Transform) validate() error {
	for _, g := range append(slices.Clone(t.Include), t.Exclude...) {
		if _, err := glob.Compile(g, '/'); err != nil {
			return fmt.Errorf("transform: invalid glob %q: %w", g, err)
		}
	}
	for i, s := range t.Stages {
		if !slices.Contains(StageKinds, s.Kind) {
			return fmt.Errorf("transform stage %d: unknown kind %q", i, s.Kind)
		}
	}
	return nil
}

type Stage struct {
	Kind    string         `json:"kind" required:"true" enum:"jsx,lower,replace"`
	Name    string         `json:"name,omitempty"`
	Options map[string]any `json:"options,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (s *Stage) DisplayName() string {
	return cmp.Or(s.Name, s.Kind)
}

type Assets struct {
	Extract    *bool     `json:"extract,omitempty"`
	Minify     *bool     `json:"minify,omitempty"`
	File       string    `json:"file,omitempty"`
	Extensions StringSet `json:"extensions,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (a *Assets) ExtractEnabled() bool {
	return a.Extract == nil || *a.Extract
}

func (a *Assets) MinifyEnabled() bool {
	return a.Minify == nil || *a.Minify
}

func (a *Assets) Exts() []string {
	if len(a.Extensions) == 0 {
		return []string{".css"}
	}
	return a.Extensions
}

type Resolve struct {
	Browser    *bool    `json:"browser,omitempty"`
	MainFields []string `json:"main_fields,omitempty"`
	ModuleDirs []string `json:"module_dirs,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	Roots      []string `json:"roots,omitempty"` // extra directories searched after the project

	_ struct{} `additionalProperties:"false"`
}

func (r *Resolve) BrowserEnabled() bool {
	return r.Browser == nil || *r.Browser
}

func (r *Resolve) Fields() []string {
	if len(r.MainFields) == 0 {
		return []string{"module", "main"}
	}
	return r.MainFields
}

func (r *Resolve) Dirs() []string {
	if len(r.ModuleDirs) == 0 {
		return []string{"node_modules"}
	}
	return r.ModuleDirs
}

func (r *Resolve) ExportConditions() []string {
	if len(r.Conditions) > 0 {
		return r.Conditions
	}
	if r.BrowserEnabled() {
		return []string{"browser", "import"}
	}
	return []string{"import"}
}

const DefaultMaxModules = 10000

type Limits struct {
	MaxModules int `json:"max_modules,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (l Limits) Modules() int {
	return cmp.Or(l.MaxModules, DefaultMaxModules)
}

// Publish selects where artifacts are written. Directory defaults to the
// project directory and relative paths resolve against it.
type Publish struct {
	Directory string    `json:"directory,omitempty"`
	AmazonS3  *AmazonS3 `json:"aws,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
type AmazonS3 struct {
	Bucket string `json:"bucket" required:"true"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`
	URL    string `json:"url,omitempty"` // endpoint override for S3-compatible stores

	_ struct{} `additionalProperties:"false"`
}

func (p *Publish) validate() error {
	if p.AmazonS3 != nil && p.AmazonS3.Bucket == "" {
		return errors.New("publish: amazon s3 bucket is required")
	}
	return nil
}

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	return slices.Equal(slices.Sorted(slices.Values(a)), slices.Sorted(slices.Values(b)))
}

func (a StringSet) Add(value string) StringSet {
	i := sort.Search(len(a), func(i int) bool { return a[i] >= value })
	if i < len(a) && a[i] == value {
		return a
	}

	return slices.Insert(a, i, value)
}
