package config

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

const (
	DefaultTemplateExt       = ".jst"
	DefaultCompileDir        = ".assetctl/compiled"
	DefaultRemoteDir         = ".assetctl/remote"
	DefaultTemplateNamespace = "window.JST"
	DefaultTemplateFunc      = "template"
	DefaultTemplateSeparator = "_"
	DefaultEmbedMaxImageSize = 32700
	DefaultEmbedPath         = "[/]?embed/"
	DefaultRebuildInterval   = Duration(30 * time.Second)

	CompressMinify = "minify"
	CompressNone   = "none"

	PrecompressGzip   = "gzip"
	PrecompressBrotli = "br"
)

// Root is the top-level configuration of an asset pipeline.
type Root struct {
	StaticRoot    string                 `json:"static_root,omitempty"`
	StaticURL     string                 `json:"static_url,omitempty"`
	TemplateExt   string                 `json:"template_ext,omitempty"`
	SourceDirs    []SourceDir            `json:"source_dirs,omitempty"`
	ExcludedFiles StringSet              `json:"excluded_files,omitempty"`
	CompileDir    string                 `json:"compile_dir,omitempty"`
	CSS           map[string]*Bundle     `json:"css,omitempty"`
	JS            map[string]*Bundle     `json:"js,omitempty"`
	Compressor    *Compressor            `json:"compressor,omitempty"`
	Storage       ObjectStorage          `json:"storage,omitzero"`
	Manifest      *Manifest              `json:"manifest,omitempty"`
	Secrets       map[string]*Secret     `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.
	Interval      Duration               `json:"rebuild_interval,omitzero"`
	RemoteFiles   map[string]*RemoteFile `json:"remote_files,omitempty"`
	RemoteDir     string                 `json:"remote_dir,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root struct.
// Bundle and secret names are taken from the mapping keys, and secret
// references are bound to the secrets they name so that callers can resolve
// them later.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	for name := range r.Secrets {
		r.Secrets[name] = cmp.Or(r.Secrets[name], &Secret{})
		r.Secrets[name].Name = name
	}

	for _, bundles := range []map[string]*Bundle{r.CSS, r.JS} {
		for name := range bundles {
			bundles[name] = cmp.Or(bundles[name], &Bundle{})
			bundles[name].Name = name
		}
	}

	for path := range r.RemoteFiles {
		r.RemoteFiles[path] = cmp.Or(r.RemoteFiles[path], &RemoteFile{})
		r.RemoteFiles[path].Path = path
		if c := r.RemoteFiles[path].Credentials; c != nil {
			c.value = r.Secrets[c.Name]
		}
	}

	if s := r.Storage.AmazonS3; s != nil && s.Credentials != nil {
		s.Credentials.value = r.Secrets[s.Credentials.Name]
	}
	if s := r.Storage.GCPCloudStorage; s != nil && s.Credentials != nil {
		s.Credentials.value = r.Secrets[s.Credentials.Name]
	}
	if s := r.Storage.AzureBlobStorage; s != nil && s.Credentials != nil {
		s.Credentials.value = r.Secrets[s.Credentials.Name]
	}

	return r.validate()
}

func (r *Root) validate() error {
	for _, pattern := range r.ExcludedFiles {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("failed to compile excluded file pattern %q: %w", pattern, err)
		}
	}

	for _, f := range r.SortedRemoteFiles() {
		if err := f.validate(); err != nil {
			return err
		}
	}

	if r.Compressor != nil {
		if err := r.Compressor.validate(); err != nil {
			return err
		}
	}

	return r.Storage.validate()
}

// TemplateExtension returns the suffix classifying a source as a template.
func (r *Root) TemplateExtension() string {
	return cmp.Or(r.TemplateExt, DefaultTemplateExt)
}

func (r *Root) CompileDirectory() string {
	return cmp.Or(r.CompileDir, DefaultCompileDir)
}

func (r *Root) RemoteDirectory() string {
	return cmp.Or(r.RemoteDir, DefaultRemoteDir)
}

// SourceDirectories returns the configured source trees, defaulting to the
// static root (or the working directory when that is unset too). When remote
// files are configured, the directory they are downloaded to comes last.
func (r *Root) SourceDirectories() []SourceDir {
	dirs := r.SourceDirs
	if len(dirs) == 0 {
		dirs = []SourceDir{{Path: cmp.Or(r.StaticRoot, ".")}}
	}
	if len(r.RemoteFiles) > 0 {
		dirs = slices.Concat(dirs, []SourceDir{{Path: r.RemoteDirectory()}})
	}
	return dirs
}

// CompressorOptions returns the compressor settings with defaults applied.
func (r *Root) CompressorOptions() Compressor {
	var c Compressor
	if r.Compressor != nil {
		c = *r.Compressor
	}

	c.CSS = cmp.Or(c.CSS, CompressMinify)
	c.JS = cmp.Or(c.JS, CompressMinify)
	c.TemplateNamespace = cmp.Or(c.TemplateNamespace, DefaultTemplateNamespace)
	c.TemplateFunc = cmp.Or(c.TemplateFunc, DefaultTemplateFunc)
	c.TemplateSeparator = cmp.Or(c.TemplateSeparator, DefaultTemplateSeparator)
	c.EmbedMaxImageSize = cmp.Or(c.EmbedMaxImageSize, DefaultEmbedMaxImageSize)
	c.EmbedPath = cmp.Or(c.EmbedPath, DefaultEmbedPath)
	return c
}

func (r *Root) RebuildInterval() time.Duration {
	return time.Duration(cmp.Or(r.Interval, DefaultRebuildInterval))
}

func (r *Root) SortedCSS() iter.Seq2[int, *Bundle] {
	return iterator(r.CSS, func(b *Bundle) string { return b.Name })
}

func (r *Root) SortedJS() iter.Seq2[int, *Bundle] {
	return iterator(r.JS, func(b *Bundle) string { return b.Name })
}

func (r *Root) SortedSecrets() iter.Seq2[int, *Secret] {
	return iterator(r.Secrets, func(s *Secret) string { return s.Name })
}

func (r *Root) SortedRemoteFiles() iter.Seq2[int, *RemoteFile] {
	return iterator(r.RemoteFiles, func(f *RemoteFile) string { return f.Path })
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
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

// Bundle defines one named group of source files built into a single
// artifact.
type Bundle struct {
	Name            string         `json:"-"`
	SourceFilenames []string       `json:"source_filenames,omitempty"`
	OutputFilename  string         `json:"output_filename,omitempty"`
	ExtraContext    map[string]any `json:"extra_context,omitempty"`
	TemplateName    string         `json:"template_name,omitempty"`
	Variant         *string        `json:"variant,omitempty"`
	Manifest        *bool          `json:"manifest,omitempty"`
	AbsolutePaths   *bool          `json:"absolute_paths,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (s *Bundle) UnmarshalJSON(bs []byte) error {
	type rawBundle Bundle // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawBundle

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode bundle: %w", err)
	}

	*s = Bundle(raw)
	return s.validate()
}

func (s *Bundle) UnmarshalYAML(bs []byte) error {
	type rawBundle Bundle
	var raw rawBundle

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode bundle: %w", err)
	}

	*s = Bundle(raw)
	return s.validate()
}

func (s *Bundle) validate() error {
	for _, pattern := range s.SourceFilenames {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid source filename pattern %q", pattern)
		}
	}
	return nil
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type StringSet []string

func (a StringSet) Add(value string) StringSet {
	if slices.Contains(a, value) {
		return a
	}
	return append(a, value)
}

// SourceDir is one directory merged into the source tree. Prefix mounts the
// directory below a path inside the tree. In YAML a bare string is accepted
// as a shorthand for {path: <string>}.
type SourceDir struct {
	Path   string `json:"path"`
	Prefix string `json:"prefix,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (d *SourceDir) UnmarshalYAML(bs []byte) error {
	var path string
	if err := yaml.Unmarshal(bs, &path); err == nil {
		*d = SourceDir{Path: path}
		return nil
	}

	type rawSourceDir SourceDir
	var raw rawSourceDir
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode source directory: %w", err)
	}

	*d = SourceDir(raw)
	return nil
}

func (d *SourceDir) UnmarshalJSON(bs []byte) error {
	var path string
	if err := json.Unmarshal(bs, &path); err == nil {
		*d = SourceDir{Path: path}
		return nil
	}

	type rawSourceDir SourceDir
	var raw rawSourceDir
	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode source directory: %w", err)
	}

	*d = SourceDir(raw)
	return nil
}

// RemoteFile is a source file downloaded over HTTP before bundles are built.
// Its path in the source namespace is the key of the remote_files mapping.
type RemoteFile struct {
	Path        string            `json:"-"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Credentials *SecretRef        `json:"credentials,omitempty"` // basic_auth or token_auth secret

	_ struct{} `additionalProperties:"false"`
}

func (f *RemoteFile) validate() error {
	if !filepath.IsLocal(filepath.FromSlash(f.Path)) {
		return fmt.Errorf("remote file %q: path must be relative and inside the remote directory", f.Path)
	}
	if f.URL == "" {
		return fmt.Errorf("remote file %q: url is required", f.Path)
	}
	return nil
}

// Compressor configures concatenation, url rewriting and template
// compilation.
type Compressor struct {
	CSS               string `json:"css,omitempty" enum:"minify,none"`
	JS                string `json:"js,omitempty" enum:"minify,none"`
	DisableWrapper    bool   `json:"disable_wrapper,omitempty"`
	TemplateNamespace string `json:"template_namespace,omitempty"`
	TemplateFunc      string `json:"template_func,omitempty"`
	TemplateSeparator string `json:"template_separator,omitempty"`
	EmbedMaxImageSize int64  `json:"embed_max_image_size,omitempty" minimum:"0"`
	EmbedPath         string `json:"embed_path,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (c *Compressor) validate() error {
	if c.EmbedPath != "" {
		if _, err := regexp.Compile(c.EmbedPath); err != nil {
			return fmt.Errorf("invalid embed_path %q: %w", c.EmbedPath, err)
		}
	}
	return nil
}

type Manifest struct {
	Path string `json:"path"`

	_ struct{} `additionalProperties:"false"`
}

type SecretRef struct {
	Name  string `json:"-"`
	value *Secret
}

// Resolve retrieves the secret value from the secret store. If the secret is not found, an error is returned.
func (s *SecretRef) Resolve(ctx context.Context) (any, error) {
	if s.value == nil {
		return nil, fmt.Errorf("secret %q not found", s.Name)
	}

	return s.value.Typed(ctx)
}

func (s *SecretRef) MarshalYAML() (any, error) {
	if s.Name == "" {
		return nil, nil
	}
	return s.Name, nil
}

func (s *SecretRef) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *SecretRef) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	return nil
}

func (s *SecretRef) UnmarshalJSON(bs []byte) error {
	if err := json.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("failed to unmarshal SecretRef: %w", err)
	}

	return nil
}

func (*SecretRef) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.Properties = nil
	schema.AddType(jsonschema.String)
	return nil
}

// ObjectStorage selects where built artifacts are written. Exactly one
// backend may be configured.
type ObjectStorage struct {
	AmazonS3          *AmazonS3          `json:"aws,omitempty"`
	GCPCloudStorage   *GCPCloudStorage   `json:"gcp,omitempty"`
	AzureBlobStorage  *AzureBlobStorage  `json:"azure,omitempty"`
	FileSystemStorage *FileSystemStorage `json:"filesystem,omitempty"`
	Precompress       StringSet          `json:"precompress,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (o *ObjectStorage) validate() error {
	var n int
	for _, set := range []bool{o.AmazonS3 != nil, o.GCPCloudStorage != nil, o.AzureBlobStorage != nil, o.FileSystemStorage != nil} {
		if set {
			n++
		}
	}
	if n > 1 {
		return errors.New("only one storage backend may be configured")
	}

	for _, p := range o.Precompress {
		if p != PrecompressGzip && p != PrecompressBrotli {
			return fmt.Errorf("unknown precompression %q", p)
		}
	}

	if err := o.AmazonS3.validate(); err != nil {
		return err
	}
	if err := o.GCPCloudStorage.validate(); err != nil {
		return err
	}
	if err := o.AzureBlobStorage.validate(); err != nil {
		return err
	}
	return o.FileSystemStorage.validate()
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Key         string     `json:"key,omitempty"` // Prefix prepended to every output filename.
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// shared credentials file, ECS or EC2 instance role.
	URL string `json:"url,omitempty"` // for test purposes
}

// GCPCloudStorage defines the configuration for a Google Cloud Storage bucket.
type GCPCloudStorage struct {
	Project     string     `json:"project"`
	Bucket      string     `json:"bucket"`
	Object      string     `json:"object,omitempty"` // Prefix prepended to every output filename.
	Credentials *SecretRef `json:"credentials,omitempty"`
}

// AzureBlobStorage defines the configuration for an Azure Blob Storage container.
type AzureBlobStorage struct {
	AccountURL  string     `json:"account_url"`
	Container   string     `json:"container"`
	Path        string     `json:"path,omitempty"` // Prefix prepended to every output filename.
	Credentials *SecretRef `json:"credentials,omitempty"`
}

// FileSystemStorage defines the configuration for a local filesystem storage.
type FileSystemStorage struct {
	Path string `json:"path"` // Directory output filenames are resolved against.
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	if a.Region == "" {
		return errors.New("amazon s3 region is required")
	}

	return nil
}

func (g *GCPCloudStorage) validate() error {
	if g == nil {
		return nil
	}

	if g.Project == "" {
		return errors.New("gcp cloud storage project is required")
	}

	if g.Bucket == "" {
		return errors.New("gcp cloud storage bucket is required")
	}

	return nil
}

func (a *AzureBlobStorage) validate() error {
	if a == nil {
		return nil
	}

	if a.AccountURL == "" {
		return errors.New("azure blob storage account URL is required")
	}

	if a.Container == "" {
		return errors.New("azure blob storage container is required")
	}

	return nil
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}
