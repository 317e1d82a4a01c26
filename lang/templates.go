package lang

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ardnew/lgen/log"
)

// Templates is a collection of parsed templates with their imports
// resolved and checked. It is immutable and safe for concurrent use.
type Templates struct {
	files   []*File // load order, roots first within each root's imports
	roots   []*File
	byPath  map[string]*File
	index   map[string]*Template
	members map[*Template]bool
	refs    map[*Template]Refs
	logger  log.Logger
}

// Refs lists the names a template refers to.
type Refs struct {
	Templates []string
	Functions []string
	Variables []string
}

// Reader opens source files for the collection builder.
type Reader interface {
	Open(path string) (io.ReadCloser, error)
}

// ReaderFunc adapts a function to [Reader].
type ReaderFunc func(path string) (io.ReadCloser, error)

// Open implements [Reader].
func (f ReaderFunc) Open(path string) (io.ReadCloser, error) { return f(path) }

var osReader = ReaderFunc(func(path string) (io.ReadCloser, error) {
	return os.Open(path)
})

// Option configures the collection builder.
type Option func(*options)

type options struct {
	logger log.Logger
	reader Reader
}

// WithLogger sets the logger used while building and evaluating.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithReader sets the source of file contents. The default reads from the
// file system.
func WithReader(r Reader) Option {
	return func(o *options) { o.reader = r }
}

// ParseFile builds a collection from the file at path and its imports.
func ParseFile(path string, opts ...Option) *Templates {
	return ParseFiles([]string{path}, opts...)
}

// ParseFiles builds a collection from several root files. Templates of a
// later root take precedence over same-named templates of an earlier one.
func ParseFiles(paths []string, opts ...Option) *Templates {
	b := newBuilder(opts)

	for _, path := range paths {
		path = absPath(path)

		f, err := b.load(path)
		if err != nil {
			f = &File{Path: path}
			f.Diagnostics = append(f.Diagnostics,
				diagnose(SeverityError, asError(err).Kind(), path, Range{}, err.Error()))
			b.t.byPath[path] = f
			b.t.files = append(b.t.files, f)
		}

		b.root(f)
	}

	return b.finish()
}

// ParseText builds a collection from src. id names the source in
// diagnostics; imports are resolved relative to its directory.
func ParseText(src, id string, opts ...Option) *Templates {
	b := newBuilder(opts)

	path := absPath(id)
	f := Parse([]byte(src), path)
	b.add(path, f)
	b.root(f)

	return b.finish()
}

type builder struct {
	options

	t *Templates
}

func newBuilder(opts []Option) *builder {
	o := options{logger: log.Default(), reader: osReader}
	for _, opt := range opts {
		opt(&o)
	}

	return &builder{
		options: o,
		t: &Templates{
			byPath:  map[string]*File{},
			index:   map[string]*Template{},
			members: map[*Template]bool{},
			refs:    map[*Template]Refs{},
			logger:  o.logger,
		},
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return filepath.Clean(path)
}

// load parses the file at path and everything it imports.
func (b *builder) load(path string) (*File, error) {
	if f, ok := b.t.byPath[path]; ok {
		return f, nil
	}

	b.logger.Debug("load template file", slog.String("path", path))

	f, err := b.read(path)
	if err != nil {
		return nil, err
	}

	b.add(path, f)

	return f, nil
}

func (b *builder) read(path string) (*File, error) {
	rc, err := b.reader.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFileNotFound.With(slog.String("path", path))
		}

		return nil, ErrReadInput.Wrap(err).With(slog.String("path", path))
	}
	defer rc.Close()

	return ParseReader(rc, path)
}

// add registers f and resolves its imports.
func (b *builder) add(path string, f *File) {
	f.Path = path
	b.t.byPath[path] = f
	b.t.files = append(b.t.files, f)

	dir := filepath.Dir(path)

	for i := range f.Imports {
		imp := &f.Imports[i]

		target := imp.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, filepath.FromSlash(target))
		}

		imp.Resolved = filepath.Clean(target)

		if _, err := b.load(imp.Resolved); err != nil {
			msg := err.Error()
			if errors.Is(err, ErrFileNotFound) {
				msg = "file not found: " + imp.Path
			}

			f.Diagnostics = append(f.Diagnostics,
				diagnose(SeverityError, asError(err).Kind(), path, imp.Range, msg))
		}
	}
}

func (b *builder) root(f *File) {
	if f != nil && !slices.Contains(b.t.roots, f) {
		b.t.roots = append(b.t.roots, f)
	}
}

func (b *builder) finish() *Templates {
	t := b.t

	for _, f := range t.files {
		f.visible = t.namespace(f)
	}

	for _, f := range t.roots {
		for name, tmpl := range f.visible {
			t.index[name] = tmpl
		}
	}

	for _, tmpl := range t.index {
		t.members[tmpl] = true
	}

	t.check()

	for _, f := range t.files {
		f.Diagnostics.sortByPosition()
	}

	t.logger.Debug("template collection built",
		slog.Int("files", len(t.files)),
		slog.Int("templates", len(t.members)),
		slog.Int("diagnostics", len(t.Diagnostics())))

	return t
}

// exported returns the templates f offers to an importer: its own plus
// those of its unaliased imports, transitively. Nearer definitions win and
// the last definition within a file wins.
func (t *Templates) exported(f *File) map[string]*Template {
	order := []*File{f}
	seen := map[*File]bool{f: true}

	for i := 0; i < len(order); i++ {
		for _, imp := range order[i].Imports {
			g := t.byPath[imp.Resolved]
			if g == nil || imp.Alias != "" || seen[g] {
				continue
			}

			seen[g] = true
			order = append(order, g)
		}
	}

	ns := map[string]*Template{}

	for i := len(order) - 1; i >= 0; i-- {
		for _, tmpl := range order[i].Templates {
			ns[tmpl.Name] = tmpl
		}
	}

	return ns
}

// namespace returns the templates callable from f, including those of
// aliased imports under their "alias.Name" form.
func (t *Templates) namespace(f *File) map[string]*Template {
	ns := t.exported(f)

	for _, imp := range f.Imports {
		g := t.byPath[imp.Resolved]
		if g == nil || imp.Alias == "" {
			continue
		}

		for name, tmpl := range t.exported(g) {
			ns[imp.Alias+"."+name] = tmpl
		}
	}

	return ns
}

// All yields each template of the collection once, in file order.
// When a name is defined more than once, the winning definition is
// yielded at the position of the first.
func (t *Templates) All() iter.Seq[*Template] {
	return func(yield func(*Template) bool) {
		done := map[*Template]bool{}

		for _, f := range t.files {
			for _, tmpl := range f.Templates {
				w := f.last(tmpl.Name)
				if !t.members[w] || done[w] {
					continue
				}

				done[w] = true

				if !yield(w) {
					return
				}
			}
		}
	}
}

// last returns the final definition of name in f.
func (f *File) last(name string) *Template {
	for i := len(f.Templates) - 1; i >= 0; i-- {
		if f.Templates[i].Name == name {
			return f.Templates[i]
		}
	}

	return nil
}

// Visible returns the template called name from f, or nil.
func (f *File) Visible(name string) *Template { return f.visible[name] }

// VisibleNames returns the names callable from f, sorted.
func (f *File) VisibleNames() []string {
	names := make([]string, 0, len(f.visible))
	for name := range f.visible {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Get returns the template called name.
func (t *Templates) Get(name string) (*Template, bool) {
	tmpl, ok := t.index[name]

	return tmpl, ok
}

// Names returns the callable names of the collection, sorted.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.index))
	for name := range t.index {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// File returns the parsed file at path.
func (t *Templates) File(path string) (*File, bool) {
	f, ok := t.byPath[absPath(path)]

	return f, ok
}

// Files returns the paths of every loaded file in load order.
func (t *Templates) Files() []string {
	paths := make([]string, len(t.files))
	for i, f := range t.files {
		paths[i] = f.Path
	}

	return paths
}

// Imports returns the paths of the loaded files that are not roots.
func (t *Templates) Imports() []string {
	var paths []string

	for _, f := range t.files {
		if !slices.Contains(t.roots, f) {
			paths = append(paths, f.Path)
		}
	}

	return paths
}

// Diagnostics returns the diagnostics of every file in load order, each
// file's sorted by position.
func (t *Templates) Diagnostics() Diagnostics {
	var ds Diagnostics

	for _, f := range t.files {
		ds = append(ds, f.Diagnostics...)
	}

	return ds
}

// HasErrors reports whether any diagnostic is an error.
func (t *Templates) HasErrors() bool {
	return t.Diagnostics().HasErrors()
}

// References returns what the template called name refers to.
func (t *Templates) References(name string) (Refs, bool) {
	tmpl, ok := t.index[name]
	if !ok {
		return Refs{}, false
	}

	return t.refs[tmpl], true
}

// ReferencesOf returns what tmpl refers to.
func (t *Templates) ReferencesOf(tmpl *Template) Refs {
	return t.refs[tmpl]
}

// Callers returns the templates that call the template called name, by
// their own names, sorted.
func (t *Templates) Callers(name string) []string {
	target, ok := t.index[name]
	if !ok {
		return nil
	}

	var callers []string

	for _, f := range t.files {
		for _, tmpl := range f.Templates {
			for _, ref := range t.refs[tmpl].Templates {
				if f.visible[ref] == target {
					callers = append(callers, tmpl.Name)

					break
				}
			}
		}
	}

	slices.Sort(callers)

	return slices.Compact(callers)
}

// String lists the collection's templates, one signature per line.
func (t *Templates) String() string {
	var b strings.Builder

	for tmpl := range t.All() {
		b.WriteString(tmpl.Signature())
		b.WriteByte('\n')
	}

	return b.String()
}
