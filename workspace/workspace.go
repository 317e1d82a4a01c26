// Package workspace maintains an index of the LG files under a directory
// and answers editor queries against it.
//
// Every file is indexed as the root of its own collection, so diagnostics
// and name resolution follow the file's imports. Editing a file re-indexes
// it and every file that imports it, directly or not.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
)

// Ext is the file extension of LG source files.
const Ext = ".lg"

// Publisher receives the current diagnostics of a file whenever they may
// have changed, with the indexed lines of the file their ranges refer to.
// An empty list clears them.
//
// Publish is called with the index locked and must not call back into it.
type Publisher interface {
	Publish(path string, lines []string, diags lang.Diagnostics)
}

// PublisherFunc adapts a function to [Publisher].
type PublisherFunc func(path string, lines []string, diags lang.Diagnostics)

// Publish implements [Publisher].
func (f PublisherFunc) Publish(path string, lines []string, diags lang.Diagnostics) {
	f(path, lines, diags)
}

// Entry is one indexed file.
type Entry struct {
	Path      string
	URI       string
	Hash      uint64 // xxh3 of the file content
	Templates *lang.Templates

	text  []byte
	lines []string
}

// Index is the set of indexed files of a workspace. Mutations are
// serialized and the last one wins; queries may run concurrently.
type Index struct {
	mu        sync.RWMutex
	root      string
	entries   map[string]*Entry
	overlay   map[string][]byte // unsaved editor buffers
	publisher Publisher
	logger    log.Logger
	stop      context.CancelFunc // ends a running Watch
}

// Option configures an [Index].
type Option func(*Index)

// WithPublisher sets the receiver of diagnostics.
func WithPublisher(p Publisher) Option {
	return func(x *Index) { x.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(x *Index) { x.logger = logger }
}

// New returns an empty index of the files under root. Call [Index.Scan]
// to populate it.
func New(root string, opts ...Option) *Index {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	x := &Index{
		root:      filepath.Clean(root),
		entries:   map[string]*Entry{},
		overlay:   map[string][]byte{},
		publisher: PublisherFunc(func(string, []string, lang.Diagnostics) {}),
		logger:    log.Default(),
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// Root returns the absolute workspace directory.
func (x *Index) Root() string { return x.root }

// Close stops a running [Index.Watch] and drops every entry and editor
// buffer.
func (x *Index) Close() error {
	x.mu.Lock()
	stop := x.stop
	x.stop = nil

	clear(x.entries)
	clear(x.overlay)
	x.mu.Unlock()

	if stop != nil {
		stop()
	}

	return nil
}

// Line returns line n of the indexed text of path.
func (x *Index) Line(path string, n int) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.entries[x.abs(path)]
	if !ok || n < 0 || n >= len(e.lines) {
		return "", false
	}

	return e.lines[n], true
}

// Paths returns the indexed file paths, sorted.
func (x *Index) Paths() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return slices.Sorted(maps.Keys(x.entries))
}

// Entry returns the entry of the file at path.
func (x *Index) Entry(path string) (*Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.entries[x.abs(path)]

	return e, ok
}

// Scan indexes every LG file under the root. Files are parsed in
// parallel; the index is updated and diagnostics are published in path
// order once all of them are parsed.
func (x *Index) Scan(ctx context.Context) error {
	paths, err := x.discover()
	if err != nil {
		return err
	}

	x.mu.RLock()
	reader := overlayReader(maps.Clone(x.overlay))
	x.mu.RUnlock()

	results := make([]*Entry, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			text, err := readAll(reader, path)
			if err != nil {
				x.logger.Warn("skip unreadable file",
					slog.String("path", path), slog.Any("error", err))

				return nil
			}

			results[i] = x.parse(path, text, reader)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, e := range results {
		if e == nil {
			continue
		}

		x.entries[e.Path] = e
		x.publish(e.Path)
	}

	x.logger.Debug("workspace scanned",
		slog.String("root", x.root),
		slog.Int("files", len(x.entries)))

	return nil
}

func (x *Index) discover() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(x.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != x.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}

			return nil
		}

		if isSource(path) {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return nil, ErrScan.Wrap(err).With(slog.String("root", x.root))
	}

	return paths, nil
}

// Open records the editor buffer of a newly opened file.
func (x *Index) Open(path, text string) { x.edit(path, text) }

// Change replaces the editor buffer of an open file.
func (x *Index) Change(path, text string) { x.edit(path, text) }

func (x *Index) edit(path, text string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	path = x.abs(path)
	x.overlay[path] = []byte(text)
	x.update(path)
}

// Save re-indexes a file written to disk.
func (x *Index) Save(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.update(x.abs(path))
}

// CloseFile discards the editor buffer of path; the file reverts to its
// content on disk, or leaves the index if there is none.
func (x *Index) CloseFile(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	path = x.abs(path)
	delete(x.overlay, path)
	x.update(path)
}

// Create indexes a file created on disk.
func (x *Index) Create(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.update(x.abs(path))
}

// Delete removes a file from the index and clears its diagnostics.
func (x *Index) Delete(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	path = x.abs(path)
	delete(x.overlay, path)
	x.remove(path)
}

// update re-indexes path and its dependents. The caller holds x.mu.
func (x *Index) update(path string) {
	reader := x.reader()

	text, err := readAll(reader, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			x.remove(path)

			return
		}

		x.logger.Warn("read template file",
			slog.String("path", path), slog.Any("error", err))

		return
	}

	if e, ok := x.entries[path]; ok && e.Hash == xxh3.Hash(text) {
		x.logger.Trace("file unchanged", slog.String("path", path))

		return
	}

	dependents := x.dependents(path)

	x.entries[path] = x.parse(path, text, reader)
	x.publish(path)

	x.refresh(dependents, reader)
}

// remove drops path and re-indexes its dependents, which no longer see
// path even if it is still on disk. The caller holds x.mu.
func (x *Index) remove(path string) {
	dependents := x.dependents(path)

	delete(x.entries, path)
	x.publisher.Publish(path, nil, nil)

	x.refresh(dependents, hiding(x.reader(), path))
}

func (x *Index) refresh(paths []string, reader lang.Reader) {
	for _, p := range paths {
		e := x.entries[p]
		x.entries[p] = x.parse(p, e.text, reader)
		x.publish(p)
	}

	if len(paths) > 0 {
		x.logger.Debug("dependents re-indexed", slog.Any("paths", paths))
	}
}

// dependents returns the indexed files other than path whose collection
// loads path or tries to import it, sorted.
func (x *Index) dependents(path string) []string {
	var out []string

	for p, e := range x.entries {
		if p != path && imports(e.Templates, path) {
			out = append(out, p)
		}
	}

	slices.Sort(out)

	return out
}

func imports(ts *lang.Templates, path string) bool {
	for _, p := range ts.Files() {
		if p == path {
			return true
		}

		f, _ := ts.File(p)
		for _, imp := range f.Imports {
			if imp.Resolved == path {
				return true
			}
		}
	}

	return false
}

func (x *Index) parse(path string, text []byte, reader lang.Reader) *Entry {
	r := lang.ReaderFunc(func(p string) (io.ReadCloser, error) {
		if p == path {
			return io.NopCloser(bytes.NewReader(text)), nil
		}

		return reader.Open(p)
	})

	return &Entry{
		Path:      path,
		URI:       URI(path),
		Hash:      xxh3.Hash(text),
		Templates: lang.ParseFile(path, lang.WithReader(r), lang.WithLogger(x.logger)),
		text:      text,
		lines:     splitLines(text),
	}
}

func (x *Index) publish(path string) {
	e, ok := x.entries[path]
	if !ok {
		return
	}

	x.publisher.Publish(path, e.lines, e.Templates.Diagnostics().For(path))
}

// reader reads editor buffers before the file system. The caller holds
// x.mu.
func (x *Index) reader() lang.Reader { return overlayReader(x.overlay) }

func overlayReader(overlay map[string][]byte) lang.Reader {
	return lang.ReaderFunc(func(path string) (io.ReadCloser, error) {
		if text, ok := overlay[path]; ok {
			return io.NopCloser(bytes.NewReader(text)), nil
		}

		return os.Open(path)
	})
}

// hiding reports path as missing and reads everything else from reader.
func hiding(reader lang.Reader, path string) lang.Reader {
	return lang.ReaderFunc(func(p string) (io.ReadCloser, error) {
		if p == path {
			return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
		}

		return reader.Open(p)
	})
}

func (x *Index) abs(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(x.root, path)
	}

	return filepath.Clean(path)
}

func readAll(r lang.Reader, path string) ([]byte, error) {
	rc, err := r.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func isSource(path string) bool { return filepath.Ext(path) == Ext }

func splitLines(text []byte) []string {
	lines := strings.Split(string(text), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	return lines
}
