package dev

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/vango-dev/hotshim/internal/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BundlerConfig configures the bundler.
type BundlerConfig struct {
	// ProjectPath is the root directory of the project.
	ProjectPath string

	// Entry lists the entry points (absolute or relative to ProjectPath).
	Entry []string

	// Bundle is the output file name of the first entry point.
	Bundle string

	// Outdir is the output directory (absolute).
	Outdir string

	// PublicPath is the URL prefix outputs are served under.
	PublicPath string

	// Sourcemap enables inline source maps.
	Sourcemap bool

	// Minify enables minification.
	Minify bool
}

// OutputFile is one file produced by a build.
type OutputFile struct {
	// URLPath is where the file is served, e.g. "/bundle.js".
	URLPath string

	// RelPath is the path relative to the output directory.
	RelPath string

	Contents []byte
	Hash     string
}

// BuildError is one error reported by esbuild.
type BuildError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *BuildError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return e.Message
}

// BundleStats summarises a build from the esbuild metafile.
type BundleStats struct {
	Inputs      int
	InputBytes  int
	OutputBytes int
}

// BuildResult contains the result of a build.
type BuildResult struct {
	// Success indicates if the build succeeded.
	Success bool

	// Duration is how long the build took.
	Duration time.Duration

	// Output is the formatted esbuild error output.
	Output string

	// Error is the build error, if any.
	Error error

	// Errors lists the individual esbuild errors.
	Errors []BuildError

	// Warnings is the number of esbuild warnings.
	Warnings int

	// Files are the outputs of a successful build.
	Files []OutputFile

	// Stats are computed from the metafile of a successful build.
	Stats BundleStats
}

// Bundler builds the project with esbuild and keeps the output in memory.
type Bundler struct {
	config BundlerConfig
	tracer trace.Tracer

	buildMu sync.Mutex
	esctx   api.BuildContext

	mu    sync.RWMutex
	files map[string]OutputFile
}

// NewBundler creates a new bundler.
func NewBundler(config BundlerConfig) *Bundler {
	if config.PublicPath == "" {
		config.PublicPath = "/"
	}
	if config.Outdir == "" {
		config.Outdir = filepath.Join(config.ProjectPath, "public")
	}

	return &Bundler{
		config: config,
		tracer: otel.Tracer("github.com/vango-dev/hotshim/internal/dev"),
		files:  make(map[string]OutputFile),
	}
}

func (b *Bundler) options() api.BuildOptions {
	entries := make([]api.EntryPoint, 0, len(b.config.Entry))
	for i, e := range b.config.Entry {
		ep := api.EntryPoint{InputPath: e}
		if i == 0 && b.config.Bundle != "" {
			ep.OutputPath = strings.TrimSuffix(b.config.Bundle, filepath.Ext(b.config.Bundle))
		}
		entries = append(entries, ep)
	}

	sourcemap := api.SourceMapNone
	if b.config.Sourcemap {
		sourcemap = api.SourceMapInline
	}

	return api.BuildOptions{
		AbsWorkingDir:       b.config.ProjectPath,
		EntryPointsAdvanced: entries,
		Bundle:              true,
		Outdir:              b.config.Outdir,
		PublicPath:          b.config.PublicPath,
		Write:               false,
		Metafile:            true,
		Platform:            api.PlatformBrowser,
		Target:              api.ES2017,
		Sourcemap:           sourcemap,
		MinifyWhitespace:    b.config.Minify,
		MinifyIdentifiers:   b.config.Minify,
		MinifySyntax:        b.config.Minify,
		LogLevel:            api.LogLevelSilent,
	}
}

// Build bundles the project. A failed build keeps the previous output.
func (b *Bundler) Build(ctx context.Context) BuildResult {
	ctx, span := b.tracer.Start(ctx, "bundle.Build")
	defer span.End()

	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		return BuildResult{Duration: time.Since(start), Error: err, Output: err.Error()}
	}

	if b.esctx == nil {
		esctx, ctxErr := api.Context(b.options())
		if ctxErr != nil {
			result := failedResult(ctxErr.Errors, "H161", b.config.ProjectPath, time.Since(start))
			recordBuildSpan(span, result)
			return result
		}
		b.esctx = esctx
	}

	res := b.esctx.Rebuild()
	if len(res.Errors) > 0 {
		result := failedResult(res.Errors, "H160", b.config.ProjectPath, time.Since(start))
		result.Warnings = len(res.Warnings)
		recordBuildSpan(span, result)
		return result
	}

	files := make([]OutputFile, 0, len(res.OutputFiles))
	index := make(map[string]OutputFile, len(res.OutputFiles))
	for _, f := range res.OutputFiles {
		out := b.outputFile(f)
		files = append(files, out)
		index[out.URLPath] = out
	}
	sort.Slice(files, func(i, j int) bool { return files[i].URLPath < files[j].URLPath })

	b.mu.Lock()
	b.files = index
	b.mu.Unlock()

	result := BuildResult{
		Success:  true,
		Duration: time.Since(start),
		Warnings: len(res.Warnings),
		Files:    files,
		Stats:    statsFromMetafile(res.Metafile),
	}
	recordBuildSpan(span, result)
	return result
}

func (b *Bundler) outputFile(f api.OutputFile) OutputFile {
	rel, err := filepath.Rel(b.config.Outdir, f.Path)
	if err != nil {
		rel = filepath.Base(f.Path)
	}
	rel = filepath.ToSlash(rel)

	return OutputFile{
		URLPath:  path.Join("/", b.config.PublicPath, rel),
		RelPath:  rel,
		Contents: f.Contents,
		Hash:     f.Hash,
	}
}

func failedResult(msgs []api.Message, code, projectPath string, duration time.Duration) BuildResult {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	output := strings.Join(formatted, "")

	buildErrs := make([]BuildError, 0, len(msgs))
	for _, m := range msgs {
		be := BuildError{Message: m.Text}
		if m.Location != nil {
			be.File = m.Location.File
			be.Line = m.Location.Line
			be.Column = m.Location.Column
		}
		buildErrs = append(buildErrs, be)
	}

	err := errors.New(code).WithDetail(output)
	if len(buildErrs) > 0 && buildErrs[0].File != "" {
		first := buildErrs[0]
		file := first.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(projectPath, file)
		}
		// esbuild columns are 0-based.
		err.WithLocation(file, first.Line, first.Column+1)
	}

	return BuildResult{
		Duration: duration,
		Output:   output,
		Error:    err,
		Errors:   buildErrs,
	}
}

func recordBuildSpan(span trace.Span, result BuildResult) {
	span.SetAttributes(
		attribute.Bool("bundle.success", result.Success),
		attribute.Int("bundle.files", len(result.Files)),
		attribute.Int("bundle.output_bytes", result.Stats.OutputBytes),
	)
	if !result.Success && result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "bundle failed")
	}
}

// metafile is the subset of the esbuild metafile used for stats.
type metafile struct {
	Inputs  map[string]struct{ Bytes int } `json:"inputs"`
	Outputs map[string]struct{ Bytes int } `json:"outputs"`
}

func statsFromMetafile(raw string) BundleStats {
	if raw == "" {
		return BundleStats{}
	}
	var m metafile
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return BundleStats{}
	}

	stats := BundleStats{Inputs: len(m.Inputs)}
	for _, in := range m.Inputs {
		stats.InputBytes += in.Bytes
	}
	for _, out := range m.Outputs {
		stats.OutputBytes += out.Bytes
	}
	return stats
}

// File returns the in-memory output served at urlPath.
func (b *Bundler) File(urlPath string) (OutputFile, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.files[urlPath]
	return f, ok
}

// Files returns the current outputs sorted by URL path.
func (b *Bundler) Files() []OutputFile {
	b.mu.RLock()
	defer b.mu.RUnlock()

	files := make([]OutputFile, 0, len(b.files))
	for _, f := range b.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].URLPath < files[j].URLPath })
	return files
}

// WriteTo writes the current outputs under dir.
func (b *Bundler) WriteTo(dir string) error {
	for _, f := range b.Files() {
		dest := filepath.Join(dir, filepath.FromSlash(f.RelPath))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return errors.New("H162").Wrap(err)
		}
		if err := os.WriteFile(dest, f.Contents, 0644); err != nil {
			return errors.New("H162").Wrap(err)
		}
	}
	return nil
}

// Middleware serves in-memory outputs and passes every other request to
// next.
func (b *Bundler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		f, ok := b.File(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		etag := `"` + f.Hash + `"`
		if f.Hash != "" && r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		contentType := mime.TypeByExtension(path.Ext(f.URLPath))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		if f.Hash != "" {
			w.Header().Set("ETag", etag)
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(f.Contents)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(f.Contents)
	})
}

// Stop releases the esbuild context.
func (b *Bundler) Stop() {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()
	if b.esctx != nil {
		b.esctx.Dispose()
		b.esctx = nil
	}
}
