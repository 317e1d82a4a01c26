// Package locale selects a template collection by locale, falling back
// through a chain of more general locales.
package locale

import (
	"context"
	"iter"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
)

// Manager evaluates templates from per-locale collections.
type Manager struct {
	collections map[string]*lang.Templates
	policy      map[string][]string
	logger      log.Logger
}

// Option configures a [Manager].
type Option func(*Manager)

// WithPolicy replaces the default fallback chains. policy maps a locale to
// the locales tried, in order, when it has no collection of its own; the
// entry for "" applies to locales without one.
func WithPolicy(policy map[string][]string) Option {
	return func(m *Manager) {
		m.policy = make(map[string][]string, len(policy))

		for loc, chain := range policy {
			canon := make([]string, len(chain))
			for i, c := range chain {
				canon[i] = Canonical(c)
			}

			m.policy[Canonical(loc)] = canon
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New returns a manager over collections keyed by locale. The key ""
// holds the locale-neutral collection.
func New(collections map[string]*lang.Templates, opts ...Option) *Manager {
	m := &Manager{
		collections: make(map[string]*lang.Templates, len(collections)),
		logger:      log.Default(),
	}

	for loc, ts := range collections {
		m.collections[Canonical(loc)] = ts
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Canonical returns the BCP 47 form of loc, e.g. "en-US" for "en_us".
// Locales that do not parse are lower-cased.
func Canonical(loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return ""
	}

	tag, err := language.Parse(strings.ReplaceAll(loc, "_", "-"))
	if err != nil {
		return strings.ToLower(loc)
	}

	return tag.String()
}

// Locales returns the locales with a collection, sorted.
func (m *Manager) Locales() []string {
	return slices.Sorted(maps.Keys(m.collections))
}

// Templates returns the collection of exactly loc.
func (m *Manager) Templates(loc string) (*lang.Templates, bool) {
	ts, ok := m.collections[Canonical(loc)]

	return ts, ok
}

// Resolve returns the locales tried for loc, most specific first.
//
// With a policy, the chain is policy[loc] or else policy[""]. Without
// one, it is loc followed by its parent locales. Every chain ends with ""
// whether or not the policy names it.
func (m *Manager) Resolve(loc string) []string {
	loc = Canonical(loc)

	if m.policy == nil {
		return defaultChain(loc)
	}

	chain, ok := m.policy[loc]
	if !ok {
		chain = m.policy[""]
	}

	chain = slices.Clone(chain)
	if !slices.Contains(chain, "") {
		chain = append(chain, "")
	}

	return chain
}

func defaultChain(loc string) []string {
	var chain []string

	add := func(s string) {
		if !slices.Contains(chain, s) {
			chain = append(chain, s)
		}
	}

	if loc != "" {
		add(loc)

		if tag, err := language.Parse(loc); err == nil {
			for p := tag.Parent(); p != language.Und; p = p.Parent() {
				add(p.String())
			}

			if base, conf := tag.Base(); conf != language.No {
				add(base.String())
			}
		}
	}

	add("")

	return chain
}

// Generate evaluates the template called name for loc.
//
// A collection for exactly loc is used when present, and must define name.
// Otherwise the first collection along [Manager.Resolve] that defines name
// is used. When none does, Generate fails with
// [lang.ErrNoSupportedLanguage].
func (m *Manager) Generate(ctx context.Context, name string, data any, loc string, opts ...lang.EvalOption) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts, from, err := m.lookup(name, loc)
	if err != nil {
		return nil, err
	}

	m.logger.DebugContext(ctx, "generate",
		slog.String("template", name),
		slog.String("locale", loc),
		slog.String("resolved", from))

	return ts.Evaluate(name, data, opts...)
}

// Expand lazily yields every rendering of name for loc, resolving the
// collection as [Manager.Generate] does.
func (m *Manager) Expand(name string, data any, loc string, opts ...lang.EvalOption) (iter.Seq2[any, error], error) {
	ts, _, err := m.lookup(name, loc)
	if err != nil {
		return nil, err
	}

	return ts.Expand(name, data, opts...), nil
}

func (m *Manager) lookup(name, loc string) (*lang.Templates, string, error) {
	canon := Canonical(loc)

	if ts, ok := m.collections[canon]; ok {
		if _, found := ts.Get(name); !found {
			return nil, "", lang.ErrTemplateNotFound.With(
				slog.String("template", name),
				slog.String("locale", canon),
			)
		}

		return ts, canon, nil
	}

	chain := m.Resolve(canon)

	for _, c := range chain {
		ts, ok := m.collections[c]
		if !ok {
			continue
		}

		if _, found := ts.Get(name); found {
			return ts, c, nil
		}
	}

	return nil, "", lang.ErrNoSupportedLanguage.With(
		slog.String("template", name),
		slog.String("locale", loc),
		slog.String("chain", strings.Join(quote(chain), " -> ")),
	)
}

func quote(chain []string) []string {
	out := make([]string, len(chain))
	for i, c := range chain {
		out[i] = `"` + c + `"`
	}

	return out
}

// LoadDir builds one collection per locale from the *.lg files in dir.
// A file named base.<locale>.lg belongs to <locale>; base.lg belongs to
// the locale-neutral "". Files of one locale form a single collection.
func LoadDir(dir string, opts ...lang.Option) (map[string]*lang.Templates, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, lang.ErrReadInput.Wrap(err).With(slog.String("dir", dir))
	}

	files := map[string][]string{}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lg" {
			continue
		}

		loc := FileLocale(e.Name())
		files[loc] = append(files[loc], filepath.Join(dir, e.Name()))
	}

	if len(files) == 0 {
		return nil, lang.ErrFileNotFound.With(
			slog.String("dir", dir),
			slog.String("reason", "no .lg files"),
		)
	}

	out := make(map[string]*lang.Templates, len(files))
	for loc, paths := range files {
		out[loc] = lang.ParseFiles(paths, opts...)
	}

	return out, nil
}

// FileLocale returns the locale of an LG file name: "fr-FR" for
// "main.fr-FR.lg" and "" for "main.lg".
func FileLocale(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), ".lg")

	i := strings.LastIndexByte(stem, '.')
	if i < 0 {
		return ""
	}

	suffix := stem[i+1:]
	if _, err := language.Parse(strings.ReplaceAll(suffix, "_", "-")); err != nil {
		return ""
	}

	return Canonical(suffix)
}
