package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/lang/locale"
	"github.com/ardnew/lgen/log"
)

// contextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

type (
	outputKey struct{}
	inputKey  struct{}
)

// WithOutput returns a context whose commands write their results to w.
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

// WithInput returns a context whose commands read the "-" source from r.
func WithInput(ctx context.Context, r io.Reader) context.Context {
	return context.WithValue(ctx, inputKey{}, r)
}

func outputFrom(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(outputKey{}).(io.Writer); ok && w != nil {
		return w
	}

	return os.Stdout
}

func inputFrom(ctx context.Context) io.Reader {
	if r, ok := ctx.Value(inputKey{}).(io.Reader); ok && r != nil {
		return r
	}

	return os.Stdin
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// stdinName is the file name given to stdin. Imports in stdin resolve
// relative to the working directory.
const stdinName = "stdin.lg"

// Sources are the LG files loaded by a command.
type Sources struct {
	Files []string `arg:"" help:"LG source files, or '-' for stdin" name:"file" type:"existingfile"`
}

// resolved is a deduplicated source list with stdin read into memory.
type resolved struct {
	paths []string
	stdin []byte // content of stdinName, if stdin is a source
}

// Open implements [lang.Reader]: stdin is served from memory, any other
// path from the file system.
func (r *resolved) Open(path string) (io.ReadCloser, error) {
	if r.stdin != nil && path == r.stdinPath() {
		return io.NopCloser(bytes.NewReader(r.stdin)), nil
	}

	return os.Open(path)
}

func (r *resolved) stdinPath() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return filepath.Join(wd, stdinName)
}

// resolve deduplicates the sources by device and inode, so that symlinks
// and relative paths to one file load it once. Every "-" is replaced by a
// single stdin source placed last.
func (s Sources) resolve(ctx context.Context) (*resolved, error) {
	if len(s.Files) == 0 {
		return nil, ErrNoSource
	}

	r := &resolved{paths: make([]string, 0, len(s.Files))}
	seen := make(map[fileKey]struct{})
	stdin := false

	for _, src := range s.Files {
		if src == stdinSource {
			stdin = true

			continue
		}

		path, ok := uniquePath(src, seen)
		if !ok {
			log.DebugContext(ctx, "skipping duplicate source", slog.String("file", src))

			continue
		}

		r.paths = append(r.paths, path)
	}

	if stdin {
		buf, err := io.ReadAll(inputFrom(ctx))
		if err != nil {
			return nil, ErrReadSource.Wrap(err).With(slog.String("file", stdinSource))
		}

		r.stdin = buf
		r.paths = append(r.paths, r.stdinPath())
	}

	return r, nil
}

// load parses the sources into one collection.
func (s Sources) load(ctx context.Context) (*lang.Templates, error) {
	r, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}

	ts := lang.ParseFiles(r.paths,
		lang.WithReader(r),
		lang.WithLogger(log.Default()))

	log.DebugContext(ctx, "sources loaded",
		slog.Int("files", len(ts.Files())),
		slog.Int("templates", len(ts.Names())))

	return ts, nil
}

// locales parses the sources into one collection per file locale, as
// named by [locale.FileLocale], and returns a fallback manager over them.
func (s Sources) locales(ctx context.Context) (*locale.Manager, error) {
	r, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}

	groups := map[string][]string{}
	for _, path := range r.paths {
		loc := locale.FileLocale(path)
		groups[loc] = append(groups[loc], path)
	}

	collections := make(map[string]*lang.Templates, len(groups))
	for loc, paths := range groups {
		ts := lang.ParseFiles(paths,
			lang.WithReader(r),
			lang.WithLogger(log.Default()))

		reportDiagnostics(ctx, ts)

		collections[loc] = ts
	}

	return locale.New(collections, locale.WithLogger(log.Default())), nil
}

// reportDiagnostics logs the errors and warnings of ts. Templates outside
// the failed ones still evaluate, so they do not stop the command.
func reportDiagnostics(ctx context.Context, ts *lang.Templates) {
	for _, d := range ts.Diagnostics() {
		switch d.Severity {
		case lang.SeverityError:
			log.ErrorContext(ctx, "template error", slog.String("diagnostic", line(d)))
		case lang.SeverityWarning:
			log.WarnContext(ctx, "template warning", slog.String("diagnostic", line(d)))
		}
	}
}

// fileKey uniquely identifies a file by its device and inode numbers.
type fileKey struct {
	dev uint64
	ino uint64
}

// uniquePath returns the absolute path of the file at path if it hasn't
// been seen before. Files whose identity cannot be determined are kept.
func uniquePath(path string, seen map[fileKey]struct{}) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, true
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return abs, true
	}

	key, ok := makeFileKey(info)
	if !ok {
		return abs, true
	}

	if _, exists := seen[key]; exists {
		return "", false
	}

	seen[key] = struct{}{}

	return abs, true
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, true //nolint:unconvert
}
