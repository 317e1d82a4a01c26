package workspace

import (
	"cmp"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/ardnew/lgen/lang"
)

// Location is a span in a file.
type Location struct {
	Path  string
	Range lang.Range
}

// Hover is the markdown shown for the symbol under the cursor.
type Hover struct {
	Contents string
	Range    lang.Range
}

// CompletionKind classifies a [CompletionItem].
type CompletionKind int

const (
	CompletionTemplate CompletionKind = iota + 1
	CompletionFunction
	CompletionModule
	CompletionKeyword
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionTemplate:
		return "template"
	case CompletionFunction:
		return "function"
	case CompletionModule:
		return "module"
	case CompletionKeyword:
		return "keyword"
	}

	return "unknown"
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label  string
	Kind   CompletionKind
	Detail string
	Doc    string
}

// Signature describes the call surrounding the cursor.
type Signature struct {
	Label  string
	Params []string
	// Active is the index of the argument under the cursor.
	Active int
	Doc    string
}

// FoldingRange is a foldable span of whole lines.
type FoldingRange struct {
	StartLine int
	EndLine   int
	Kind      string
}

// keywords are completed at the start of a body line.
var keywords = []string{"IF:", "ELSEIF:", "ELSE:", "SWITCH:", "CASE:", "DEFAULT:"}

// Templates returns the names of the templates defined in the file at
// path, in source order.
func (x *Index) Templates(path string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	_, f, ok := x.file(path)
	if !ok {
		return nil
	}

	names := make([]string, len(f.Templates))
	for i, t := range f.Templates {
		names[i] = t.Name
	}

	return names
}

// Diagnostics returns the current diagnostics of the file at path.
func (x *Index) Diagnostics(path string) lang.Diagnostics {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.entries[x.abs(path)]
	if !ok {
		return nil
	}

	return e.Templates.Diagnostics().For(e.Path)
}

// Definition returns the header of the template named at pos, or the
// imported file when pos is on an import.
func (x *Index) Definition(path string, pos lang.Position) (Location, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, f, ok := x.file(path)
	if !ok {
		return Location{}, false
	}

	for _, imp := range f.Imports {
		if imp.Range.Contains(pos) {
			return Location{Path: imp.Resolved}, true
		}
	}

	word, _ := e.word(pos)

	t := f.Visible(word)
	if t == nil {
		return Location{}, false
	}

	return Location{Path: t.Source, Range: t.NameRange}, true
}

// Hover describes the template or function named at pos.
func (x *Index) Hover(path string, pos lang.Position) (Hover, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, f, ok := x.file(path)
	if !ok {
		return Hover{}, false
	}

	word, rng := e.word(pos)
	if word == "" {
		return Hover{}, false
	}

	if t := f.Visible(word); t != nil {
		return Hover{Contents: describe(e.Templates, t, e.Path), Range: rng}, true
	}

	if fn, ok := lang.LookupBuiltin(word); ok {
		return Hover{
			Contents: "```\n" + fn.Signature + "\n```\n\n" + fn.Doc,
			Range:    rng,
		}, true
	}

	return Hover{}, false
}

// previewLines is the number of variations shown by [Index.Hover].
const previewLines = 3

func describe(ts *lang.Templates, t *lang.Template, from string) string {
	var b strings.Builder

	b.WriteString("```lg\n# " + t.Signature() + "\n")

	for _, l := range preview(t) {
		b.WriteString(l + "\n")
	}

	b.WriteString("```\n")

	if t.Source != from {
		fmt.Fprintf(&b, "\nDefined in `%s`\n", filepath.Base(t.Source))
	}

	if refs := ts.ReferencesOf(t); len(refs.Templates) > 0 {
		b.WriteString("\nReferences: " + strings.Join(refs.Templates, ", ") + "\n")
	}

	return b.String()
}

func preview(t *lang.Template) []string {
	var out []string

	switch b := t.Body; b.Kind {
	case lang.KindNormal:
		for i, l := range b.Variations {
			if i == previewLines {
				out = append(out, "- ...")

				break
			}

			out = append(out, "- "+render(l))
		}

	case lang.KindConditional:
		for _, br := range b.Branches {
			if br.Cond == nil {
				out = append(out, "- "+br.Kind.String()+":")

				continue
			}

			out = append(out, "- "+br.Kind.String()+": ${"+br.Cond.Source+"}")
		}

	case lang.KindSwitch:
		if b.Switch != nil {
			out = append(out, "- SWITCH: ${"+b.Switch.Source+"}")
		}

		for _, c := range b.Cases {
			if c.Value == nil {
				out = append(out, "- DEFAULT:")

				continue
			}

			out = append(out, "- CASE: ${"+c.Value.Source+"}")
		}

	case lang.KindStructure:
		if st := b.Structure; st != nil {
			out = append(out, "["+st.Type)
			for _, p := range st.Properties {
				out = append(out, "    "+p.Key+" = ...")
			}

			out = append(out, "]")
		}
	}

	return out
}

func render(l lang.Line) string {
	var b strings.Builder

	for _, s := range l.Segments {
		if s.Expr != nil {
			b.WriteString("${" + s.Expr.Source + "}")

			continue
		}

		b.WriteString(s.Text)
	}

	return b.String()
}

// Completion ranks the names that may be typed at pos. Inside ${...} these
// are the callable templates, import aliases and functions; at the start
// of a body line they are the body keywords.
func (x *Index) Completion(path string, pos lang.Position) []CompletionItem {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, f, ok := x.file(path)
	if !ok {
		return nil
	}

	prefix := e.prefix(pos)
	word := trailingWord(prefix)
	head := strings.TrimSuffix(prefix, word)

	var items []CompletionItem

	switch {
	case inExpression(head):
		for _, name := range f.VisibleNames() {
			t := f.Visible(name)
			items = append(items, CompletionItem{
				Label:  name,
				Kind:   CompletionTemplate,
				Detail: t.Signature(),
			})
		}

		for _, imp := range f.Imports {
			if imp.Alias != "" {
				items = append(items, CompletionItem{
					Label:  imp.Alias,
					Kind:   CompletionModule,
					Detail: imp.Path,
				})
			}
		}

		for fn := range lang.Builtins() {
			items = append(items, CompletionItem{
				Label:  fn.Name,
				Kind:   CompletionFunction,
				Detail: fn.Signature,
				Doc:    fn.Doc,
			})
		}

	case strings.TrimSpace(head) == "-":
		for _, kw := range keywords {
			items = append(items, CompletionItem{Label: kw, Kind: CompletionKeyword})
		}
	}

	return rank(word, items)
}

func rank(word string, items []CompletionItem) []CompletionItem {
	if word == "" {
		return items
	}

	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Label
	}

	matches := fuzzy.Find(word, labels)

	out := make([]CompletionItem, len(matches))
	for i, m := range matches {
		out[i] = items[m.Index]
	}

	return out
}

// inExpression reports whether text ends inside an open ${...}.
func inExpression(text string) bool {
	return strings.LastIndex(text, "${") > strings.LastIndex(text, "}")
}

// SignatureHelp describes the template or function call whose argument
// list surrounds pos.
func (x *Index) SignatureHelp(path string, pos lang.Position) (Signature, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, f, ok := x.file(path)
	if !ok {
		return Signature{}, false
	}

	prefix := []rune(e.prefix(pos))

	depth, active := 0, 0

	for i := len(prefix) - 1; i >= 0; i-- {
		switch prefix[i] {
		case ')', ']', '}':
			depth++

		case '[', '{':
			if depth > 0 {
				depth--

				continue
			}

			// Commas so far were inside a literal argument.
			active = 0

		case ',':
			if depth == 0 {
				active++
			}

		case '(':
			if depth > 0 {
				depth--

				continue
			}

			name := trailingWord(string(prefix[:i]))
			if name == "" {
				return Signature{}, false
			}

			if t := f.Visible(name); t != nil {
				return Signature{
					Label:  name + "(" + strings.Join(t.Params, ", ") + ")",
					Params: slices.Clone(t.Params),
					Active: active,
				}, true
			}

			if fn, ok := lang.LookupBuiltin(name); ok {
				return Signature{Label: fn.Signature, Active: active, Doc: fn.Doc}, true
			}

			return Signature{}, false
		}
	}

	return Signature{}, false
}

// FoldingRanges returns a range per multi-line template, structure block,
// conditional branch and switch case in the file at path.
func (x *Index) FoldingRanges(path string) []FoldingRange {
	x.mu.RLock()
	defer x.mu.RUnlock()

	_, f, ok := x.file(path)
	if !ok {
		return nil
	}

	var out []FoldingRange

	add := func(r lang.Range, kind string) {
		if r.End.Line > r.Start.Line {
			out = append(out, FoldingRange{StartLine: r.Start.Line, EndLine: r.End.Line, Kind: kind})
		}
	}

	var body func(b lang.Body)

	body = func(b lang.Body) {
		switch b.Kind {
		case lang.KindConditional:
			for _, br := range b.Branches {
				add(br.Range, "branch")
				body(br.Body)
			}

		case lang.KindSwitch:
			for _, c := range b.Cases {
				add(c.Range, "case")
				body(c.Body)
			}

		case lang.KindStructure:
			if b.Structure != nil {
				add(b.Structure.Range, "structure")
			}
		}
	}

	for _, t := range f.Templates {
		add(t.Range, "template")
		body(t.Body)
	}

	slices.SortStableFunc(out, func(a, b FoldingRange) int {
		return cmp.Compare(a.StartLine, b.StartLine)
	})

	return out
}

var branchLine = regexp.MustCompile(`(?i)^\s*-\s*(if|elseif|else|case|default)\s*:`)

// OnEnter returns the text to insert on the line opened by pressing enter
// at pos: an indented property inside a structure block, a nested
// variation after a branch keyword, another variation after a variation,
// and nothing otherwise.
func (x *Index) OnEnter(path string, pos lang.Position) string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.entries[x.abs(path)]
	if !ok || pos.Line < 0 || pos.Line >= len(e.lines) {
		return ""
	}

	line := e.lines[pos.Line]
	indent := line[:len(line)-len(strings.TrimLeftFunc(line, unicode.IsSpace))]

	if open, ok := e.structureAt(pos.Line); ok {
		return open + "    "
	}

	switch trimmed := strings.TrimSpace(line); {
	case branchLine.MatchString(line):
		return indent + "    - "

	case strings.HasPrefix(trimmed, "-"):
		return indent + "- "
	}

	return ""
}

// structureAt reports whether line n lies in a structure block that is
// still open after it, with the indentation of the block's first line.
func (e *Entry) structureAt(n int) (string, bool) {
	for i := n; i >= 0; i-- {
		line := e.lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "]"):
			return "", false

		case strings.HasPrefix(trimmed, "[") && !strings.Contains(trimmed, "]("):
			return line[:len(line)-len(strings.TrimLeftFunc(line, unicode.IsSpace))], true
		}
	}

	return "", false
}

func (x *Index) file(path string) (*Entry, *lang.File, bool) {
	e, ok := x.entries[x.abs(path)]
	if !ok {
		return nil, nil, false
	}

	f, ok := e.Templates.File(e.Path)

	return e, f, ok
}

// prefix returns the text of the cursor line before pos.
func (e *Entry) prefix(pos lang.Position) string {
	if pos.Line < 0 || pos.Line >= len(e.lines) {
		return ""
	}

	line := []rune(e.lines[pos.Line])

	return string(line[:min(max(pos.Column, 0), len(line))])
}

// word returns the name under pos and its range.
func (e *Entry) word(pos lang.Position) (string, lang.Range) {
	if pos.Line < 0 || pos.Line >= len(e.lines) {
		return "", lang.Range{}
	}

	line := []rune(e.lines[pos.Line])
	col := min(max(pos.Column, 0), len(line))

	start := col
	for start > 0 && isNameRune(line, start-1) {
		start--
	}

	end := col
	for end < len(line) && isNameRune(line, end) {
		end++
	}

	rng := lang.Range{
		Start: lang.Position{Line: pos.Line, Column: start},
		End:   lang.Position{Line: pos.Line, Column: end},
	}

	return strings.Trim(string(line[start:end]), ".-"), rng
}

func trailingWord(s string) string {
	r := []rune(s)

	i := len(r)
	for i > 0 && isNameRune(r, i-1) {
		i--
	}

	return strings.TrimLeft(string(r[i:]), ".-")
}

// isNameRune reports whether r[i] belongs to a template name. A hyphen
// does only between two other name runes, so that `a - b` and `a-b`
// differ.
func isNameRune(r []rune, i int) bool {
	c := r[i]

	if c == '-' {
		return i > 0 && i+1 < len(r) && isNameChar(r[i-1]) && isNameChar(r[i+1])
	}

	return isNameChar(c)
}

func isNameChar(c rune) bool {
	return c == '_' || c == '.' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
