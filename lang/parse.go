package lang

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/klauspost/readahead"
)

// ParseReader reads all of r and parses it as the file at path.
func ParseReader(r io.Reader, path string) (*File, error) {
	ra := readahead.NewReader(r)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).With(slog.String("path", path))
	}

	return Parse(data, path), nil
}

// Parse parses the LG source src read from path.
//
// Parse never fails. Problems are recorded in [File.Diagnostics] and
// confined to the template they occur in; a template with errors is kept
// and marked [Template.Broken]. Imports are returned unresolved.
func Parse(src []byte, path string) *File {
	p := &parser{
		file:  &File{Path: path},
		lines: splitLines(src),
	}

	p.parse()

	return p.file
}

type rawLine struct {
	no   int
	text string
}

type parser struct {
	file  *File
	lines []string
	tmpl  *Template
}

func splitLines(src []byte) []string {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	lines := strings.Split(string(src), "\n")

	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	return lines
}

func (p *parser) parse() {
	var (
		header *rawLine
		body   []rawLine
		fence  bool
	)

	flush := func() {
		if header != nil {
			p.template(*header, body)
		}

		header, body = nil, nil
	}

	for no, text := range p.lines {
		l := rawLine{no: no, text: text}
		t := strings.TrimSpace(text)

		if fence {
			body = append(body, l)
			fence = !opensFence(text)

			continue
		}

		switch {
		case t == "", strings.HasPrefix(t, ">"):

		case strings.HasPrefix(t, "#"):
			flush()
			header = &l

		case importLink.MatchString(t):
			p.importLine(l)

		case header == nil:
			p.tmpl = nil
			p.errorf(p.lineRange(no), ErrSyntax,
				"content outside of a template; templates start with '# Name'")

		default:
			body = append(body, l)
			fence = opensFence(text)
		}
	}

	if fence {
		last := body[len(body)-1]
		p.tmpl = nil
		p.errorf(p.lineRange(last.no), ErrSyntax, "unterminated multiline text")
	}

	flush()
	p.duplicates()
}

var headerParams = regexp.MustCompile(`^\((.*)\)\s*$`)

// template parses `# Name(params)` followed by its body lines.
func (p *parser) template(header rawLine, body []rawLine) {
	text := header.text
	hash := strings.IndexByte(text, '#')
	rest := text[hash+1:]
	off := hash + 1 + (len(rest) - len(strings.TrimLeft(rest, " \t")))
	rest = strings.TrimSpace(rest)

	name, params, _ := strings.Cut(rest, "(")
	name = strings.TrimSpace(name)

	t := &Template{
		Name:   name,
		Source: p.file.Path,
		file:   p.file,
		NameRange: Range{
			Start: p.pos(header.no, off),
			End:   p.pos(header.no, off+len(name)),
		},
	}
	p.tmpl = t

	headerRange := p.lineRange(header.no)

	if !validTemplateName(name) {
		p.errorf(headerRange, ErrSyntax, "invalid template name %q", name)

		return
	}

	if strings.Contains(rest, "(") {
		m := headerParams.FindStringSubmatch("(" + params)
		if m == nil {
			p.errorf(headerRange, ErrSyntax, "malformed parameter list in template %q", name)

			return
		}

		seen := map[string]bool{}

		for param := range strings.SplitSeq(m[1], ",") {
			param = strings.TrimSpace(param)
			if param == "" && strings.TrimSpace(m[1]) == "" {
				break
			}

			switch {
			case !isName(param):
				p.errorf(headerRange, ErrSyntax, "invalid parameter name %q", param)
			case seen[param]:
				p.errorf(headerRange, ErrSyntax, "duplicate parameter %q", param)
			}

			seen[param] = true
			t.Params = append(t.Params, param)
		}
	}

	if builtinName(name) {
		p.warnf(t.NameRange, ErrSyntax,
			"template %q has the name of a built-in function and cannot be called", name)
	}

	t.Range = headerRange

	if len(body) == 0 {
		p.warnf(headerRange, ErrSyntax, "template %q has no body", name)
	} else {
		t.Body = p.body(body)
		t.Range.End = t.Body.Range.End
	}

	p.file.Templates = append(p.file.Templates, t)
}

func validTemplateName(name string) bool {
	if name == "" || !isNameStart(name) || strings.HasPrefix(name, "$") {
		return false
	}

	for part := range strings.SplitSeq(name, ".") {
		if part == "" {
			return false
		}

		for _, r := range part {
			if !isNamePart(r) && r != '-' {
				return false
			}
		}
	}

	return true
}

func builtinName(name string) bool {
	_, ok := LookupBuiltin(name)

	return ok
}

// duplicates flags every definition of a name defined more than once.
func (p *parser) duplicates() {
	byName := map[string][]*Template{}

	for _, t := range p.file.Templates {
		byName[t.Name] = append(byName[t.Name], t)
	}

	for _, t := range p.file.Templates {
		if n := len(byName[t.Name]); n > 1 {
			p.tmpl = t
			p.report(SeverityError, t.NameRange, ErrSyntax,
				"duplicate template name %q (%d definitions, the last one is used)", t.Name, n)
		}
	}
}

var importLink = regexp.MustCompile(`^\[[^\]]*\]\([^)]*\)(\s+as\s+\S+)?\s*$`)

// importLine records an `[import](path)` link. The link itself is parsed
// with goldmark so that escaping and angle-bracket destinations follow
// markdown rules.
func (p *parser) importLine(l rawLine) {
	p.tmpl = nil
	rng := p.lineRange(l.no)
	t := strings.TrimSpace(l.text)

	dest, rest, ok := markdownLink(t)
	if !ok || strings.TrimSpace(dest) == "" {
		p.errorf(rng, ErrSyntax, "malformed import directive")

		return
	}

	imp := Import{Path: dest, Range: rng}

	if rest = strings.TrimSpace(rest); rest != "" {
		alias, found := strings.CutPrefix(rest, "as")
		alias = strings.TrimSpace(alias)

		if !found || !isName(alias) {
			p.errorf(rng, ErrSyntax, "invalid import alias %q", rest)

			return
		}

		imp.Alias = alias
	}

	p.file.Imports = append(p.file.Imports, imp)
}

// body parses the lines of a template or of a branch.
func (p *parser) body(lines []rawLine) Body {
	if len(lines) == 0 {
		return Body{Kind: KindNormal}
	}

	rng := Range{
		Start: p.lineRange(lines[0].no).Start,
		End:   p.lineRange(lines[len(lines)-1].no).End,
	}

	if strings.HasPrefix(strings.TrimSpace(lines[0].text), "[") {
		b := p.structure(lines)
		b.Range = rng

		return b
	}

	items := p.group(lines)

	var b Body

	text, _, _ := items[0].content()

	switch kw, _, _ := keyword(text); kw {
	case "IF":
		b = p.conditional(items)
	case "SWITCH":
		b = p.switchCase(items)
	default:
		b = p.normal(items)
	}

	b.Range = rng

	return b
}

// item is a body line starting at the block's indentation, the lines
// continuing its multiline text, and the deeper-indented lines below it.
type item struct {
	head     rawLine
	cont     []rawLine
	children []rawLine
}

// content returns the head text after the leading '-' and the byte offset
// of that text within the head line. ok is false when there is no '-'.
func (it item) content() (string, int, bool) {
	text := it.head.text
	i := len(text) - len(strings.TrimLeft(text, " \t"))

	if i >= len(text) || text[i] != '-' {
		return strings.TrimSpace(text), i, false
	}

	i++
	i += len(text[i:]) - len(strings.TrimLeft(text[i:], " \t"))

	return text[i:], i, true
}

func (p *parser) group(lines []rawLine) []item {
	var items []item

	base := indentOf(lines[0].text)

	for i := 0; i < len(lines); i++ {
		l := lines[i]

		var dst *[]rawLine

		if len(items) > 0 && indentOf(l.text) > base {
			dst = &items[len(items)-1].children
			*dst = append(*dst, l)
		} else {
			items = append(items, item{head: l})
			dst = &items[len(items)-1].cont
		}

		if opensFence(l.text) {
			for i+1 < len(lines) {
				i++
				*dst = append(*dst, lines[i])

				if opensFence(lines[i].text) {
					break
				}
			}
		}
	}

	return items
}

func indentOf(s string) int {
	n := 0

	for _, r := range s {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}

	return n
}

func opensFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}

var (
	keywordPattern = regexp.MustCompile(`(?i)^(if|else\s*if|else|switch|case|default)\s*:`)
	unknownKeyword = regexp.MustCompile(`^(IF|EL|SW|CA|DE)[A-Z]{0,6}\s*:`)
)

// keyword recognizes a conditional keyword at the start of s. It returns
// the canonical keyword, the text after the colon and its offset in s.
func keyword(s string) (string, string, int) {
	m := keywordPattern.FindStringIndex(s)
	if m == nil {
		return "", s, 0
	}

	kw := strings.ToUpper(strings.Join(strings.Fields(s[:m[1]-1]), ""))
	rest := s[m[1]:]
	off := m[1] + len(rest) - len(strings.TrimLeft(rest, " \t"))

	return kw, strings.TrimSpace(rest), off
}

func (p *parser) normal(items []item) Body {
	b := Body{Kind: KindNormal}

	for _, it := range items {
		text, off, dash := it.content()
		rng := p.lineRange(it.head.no)

		if !dash {
			p.errorf(rng, ErrSyntax, "expected a '-' variation, found %q", clip(text))

			continue
		}

		if kw, _, _ := keyword(text); kw != "" {
			p.errorf(rng, ErrSyntax,
				"%s is not valid here; a body is either variations, an IF chain, or a SWITCH", kw)

			continue
		}

		if m := unknownKeyword.FindString(text); m != "" {
			p.errorf(rng, ErrSyntax, "unknown keyword %q", strings.TrimSpace(strings.TrimSuffix(m, ":")))

			continue
		}

		if len(it.children) > 0 {
			p.errorf(p.span(it.children), ErrSyntax,
				"unexpected indented lines; nest them under IF, ELSEIF, ELSE, CASE, or DEFAULT")
		}

		b.Variations = append(b.Variations, p.variation(it, text, off))
	}

	return b
}

func (p *parser) conditional(items []item) Body {
	b := Body{Kind: KindConditional}
	sawElse := false

	for i, it := range items {
		text, off, dash := it.content()
		kw, rest, restOff := keyword(text)
		rng := p.lineRange(it.head.no)

		br := Branch{Range: rng}

		switch {
		case !dash || kw == "":
			p.errorf(rng, ErrSyntax, "expected ELSEIF or ELSE in IF chain, found %q", clip(text))

			continue

		case kw == "IF" && i > 0:
			p.errorf(rng, ErrSyntax, "IF inside an IF chain; use ELSEIF")

			continue

		case kw == "IF":
			br.Kind = BranchIf

		case kw == "ELSEIF" && !sawElse:
			br.Kind = BranchElseIf

		case kw == "ELSE" && !sawElse:
			br.Kind = BranchElse
			sawElse = true

		case kw == "ELSEIF", kw == "ELSE":
			p.errorf(rng, ErrSyntax, "%s after ELSE", kw)

			continue

		default:
			p.errorf(rng, ErrSyntax, "%s is not valid in an IF chain", kw)

			continue
		}

		if br.Kind == BranchElse {
			if rest != "" {
				p.errorf(rng, ErrSyntax, "ELSE takes no condition")
			}
		} else {
			br.Cond = p.condition(it.head.no, kw, rest, off+restOff)
		}

		br.Body = p.branchBody(it, kw)
		br.Range.End = maxEnd(br.Range.End, br.Body.Range.End)
		b.Branches = append(b.Branches, br)
	}

	return b
}

func (p *parser) switchCase(items []item) Body {
	b := Body{Kind: KindSwitch}

	head := items[0]
	text, off, _ := head.content()
	_, rest, restOff := keyword(text)
	b.Switch = p.condition(head.head.no, "SWITCH", rest, off+restOff)

	if len(head.children) > 0 {
		p.errorf(p.span(head.children), ErrSyntax,
			"SWITCH has no body of its own; indent lines under CASE or DEFAULT")
	}

	sawDefault := false

	for _, it := range items[1:] {
		text, off, _ := it.content()
		kw, rest, restOff := keyword(text)
		rng := p.lineRange(it.head.no)

		c := Case{Range: rng}

		switch {
		case kw == "CASE" && !sawDefault:
			c.Value = p.condition(it.head.no, kw, rest, off+restOff)

		case kw == "DEFAULT" && !sawDefault:
			sawDefault = true

			if rest != "" {
				p.errorf(rng, ErrSyntax, "DEFAULT takes no value")
			}

		case kw == "CASE", kw == "DEFAULT":
			p.errorf(rng, ErrSyntax, "%s after DEFAULT", kw)

			continue

		default:
			p.errorf(rng, ErrSyntax, "expected CASE or DEFAULT in SWITCH, found %q", clip(text))

			continue
		}

		c.Body = p.branchBody(it, kw)
		c.Range.End = maxEnd(c.Range.End, c.Body.Range.End)
		b.Cases = append(b.Cases, c)
	}

	if len(b.Cases) == 0 {
		p.errorf(p.lineRange(head.head.no), ErrSyntax, "SWITCH without CASE or DEFAULT")
	}

	return b
}

func (p *parser) branchBody(it item, kw string) Body {
	if len(it.cont) > 0 {
		p.errorf(p.span(it.cont), ErrSyntax, "%s cannot span multiple lines", kw)
	}

	if len(it.children) == 0 {
		p.warnf(p.lineRange(it.head.no), ErrSyntax, "%s has an empty body", kw)

		return Body{Kind: KindNormal}
	}

	return p.body(it.children)
}

// condition parses the `${...}` following a keyword. off is the byte
// offset of rest within line no.
func (p *parser) condition(no int, kw, rest string, off int) *Expression {
	rng := p.lineRange(no)

	if rest == "" {
		p.errorf(rng, ErrSyntax, "%s requires an expression", kw)

		return nil
	}

	segs := p.segments(rest, p.locator(rawLine{no: no, text: p.lines[no]}, off), false)

	var expr *Expression

	for _, s := range segs {
		switch {
		case s.Kind == SegmentText && strings.TrimSpace(s.Text) == "":
		case s.Kind != SegmentText && expr == nil:
			expr = s.Expr
		default:
			p.errorf(rng, ErrSyntax, "%s requires a single ${...} expression", kw)

			return nil
		}
	}

	if expr == nil {
		p.errorf(rng, ErrSyntax, "%s requires a single ${...} expression", kw)
	}

	return expr
}

// variation builds the text line of a '-' item, joining multiline
// continuation lines.
func (p *parser) variation(it item, text string, off int) Line {
	anchors := []anchor{{off: 0, pos: p.pos(it.head.no, off)}}
	joined := text

	for _, c := range it.cont {
		joined += "\n"
		anchors = append(anchors, anchor{off: len(joined), pos: Position{Line: c.no}})
		joined += c.text
	}

	loc := func(i int) Position { return locate(joined, anchors, i) }

	if len(it.cont) == 0 {
		joined = strings.TrimRight(joined, " \t")
	}

	rng := Range{Start: loc(0), End: loc(len(joined))}

	return Line{Segments: p.segments(joined, loc, true), Range: rng}
}

type anchor struct {
	off int
	pos Position
}

func locate(text string, anchors []anchor, off int) Position {
	a := anchors[0]

	for _, b := range anchors[1:] {
		if b.off > off {
			break
		}

		a = b
	}

	off = min(off, len(text))

	return Position{
		Line:   a.pos.Line,
		Column: a.pos.Column + utf8.RuneCountInString(text[a.off:off]),
	}
}

func (p *parser) locator(l rawLine, off int) func(int) Position {
	return func(i int) Position { return p.pos(l.no, off+i) }
}

// segments splits text into literal and ${...} segments. With fences set,
// ``` markers are dropped and escapes are not decoded between them.
func (p *parser) segments(text string, loc func(int) Position, fences bool) []Segment {
	var (
		segs    []Segment
		lit     strings.Builder
		inFence bool
	)

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, Segment{Kind: SegmentText, Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); {
		switch {
		case fences && strings.HasPrefix(text[i:], "```"):
			inFence = !inFence
			i += 3

		case text[i] == '\\' && !inFence && i+1 < len(text):
			if r, ok := escapes[text[i+1]]; ok {
				lit.WriteString(r)
			} else {
				lit.WriteString(text[i : i+2])
			}

			i += 2

		case strings.HasPrefix(text[i:], "${"):
			end := matchBrace(text, i+2)
			if end < 0 {
				p.errorf(Range{Start: loc(i), End: loc(len(text))}, ErrSyntax,
					"unterminated expression; missing '}'")
				lit.WriteString(text[i:])

				i = len(text)

				continue
			}

			flush()

			e := compileExpression(text[i+2:end], Range{Start: loc(i), End: loc(end + 1)})
			e.file = p.file

			if e.err != nil {
				p.errorf(e.Range, ErrSyntax, "invalid expression ${%s}: %v", clip(e.Source), cause(e.err))
			}

			kind := SegmentExpression
			if e.ref != "" {
				kind = SegmentTemplateRef
			}

			segs = append(segs, Segment{Kind: kind, Expr: e})
			i = end + 1

		default:
			_, n := utf8.DecodeRuneInString(text[i:])
			lit.WriteString(text[i : i+n])
			i += n
		}
	}

	flush()

	return segs
}

var escapes = map[byte]string{
	'\\': `\`, 'n': "\n", 'r': "\r", 't': "\t",
	'$': "$", '{': "{", '}': "}", '[': "[", ']': "]",
	'-': "-", '#': "#", '|': "|", '"': `"`, '\'': "'", '`': "`",
}

// cause returns the error wrapped by an *Error for display.
func cause(err error) error {
	if e, ok := err.(*Error); ok && e.err != nil {
		return e.err
	}

	return err
}

// matchBrace returns the index of the '}' closing an expression whose body
// starts at text[i], or -1.
func matchBrace(text string, i int) int {
	depth := 1

	for i < len(text) {
		switch text[i] {
		case '\'', '"', '`':
			i = skipQuoted(text, i)

			continue

		case '{':
			depth++

		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}

		i++
	}

	return -1
}

var structureOpen = regexp.MustCompile(`^\[\s*([^\s\]]*)\s*(\])?\s*$`)

func (p *parser) structure(lines []rawLine) Body {
	first := lines[0]
	rng := p.lineRange(first.no)
	st := &Structure{Range: rng}
	b := Body{Kind: KindStructure, Structure: st}

	m := structureOpen.FindStringSubmatch(strings.TrimSpace(first.text))
	if m == nil || !validTemplateName(m[1]) {
		p.errorf(rng, ErrSyntax, "invalid structure header %q", clip(strings.TrimSpace(first.text)))

		return b
	}

	st.Type = m[1]
	closed := m[2] != ""
	keys := map[string]int{}

	i := 1
	for ; i < len(lines) && !closed; i++ {
		l := lines[i]
		t := strings.TrimSpace(l.text)
		lr := p.lineRange(l.no)
		lead := len(l.text) - len(strings.TrimLeft(l.text, " \t"))

		switch {
		case t == "]":
			closed = true
			st.Range.End = lr.End

			continue

		case strings.HasPrefix(t, "["):
			p.errorf(lr, ErrSyntax,
				"nested structure blocks are not supported; reference a structured template with ${Name()}")

			continue

		case strings.HasPrefix(t, "${") && matchBrace(t, 2) == len(t)-1:
			segs := p.segments(t, p.locator(l, lead), false)
			if len(segs) == 1 && segs[0].Expr != nil {
				st.Merges = append(st.Merges, segs[0].Expr)
			}

			continue
		}

		key, value, found := strings.Cut(t, "=")
		key = strings.TrimSpace(key)

		if !found || !validTemplateName(key) {
			p.errorf(lr, ErrSyntax, "expected 'key = value' in structure, found %q", clip(t))

			continue
		}

		voff := lead + strings.IndexByte(t, '=') + 1
		voff += len(value) - len(strings.TrimLeft(value, " \t"))

		prop := Property{
			Key:    key,
			Values: p.propertyValues(l, voff),
			Range:  lr,
		}

		if j, dup := keys[key]; dup {
			p.warnf(lr, ErrSyntax, "duplicate structure property %q; the last value is used", key)
			st.Properties[j] = prop

			continue
		}

		keys[key] = len(st.Properties)
		st.Properties = append(st.Properties, prop)
	}

	if !closed {
		p.errorf(rng, ErrSyntax, "unterminated structure block %q; missing ']'", "["+st.Type)
	}

	if i < len(lines) {
		p.errorf(p.span(lines[i:]), ErrSyntax, "unexpected content after structure block")
	}

	return b
}

// propertyValues splits the value starting at byte off of l on unescaped
// '|' outside expressions.
func (p *parser) propertyValues(l rawLine, off int) []Line {
	text := strings.TrimRight(l.text[off:], " \t")

	var (
		lines []Line
		start int
	)

	emit := func(end int) {
		seg := text[start:end]
		lead := len(seg) - len(strings.TrimLeft(seg, " \t"))
		seg = strings.TrimSpace(seg)
		loc := p.locator(l, off+start+lead)

		lines = append(lines, Line{
			Segments: p.segments(seg, loc, false),
			Range:    Range{Start: loc(0), End: loc(len(seg))},
		})
	}

	for i := 0; i < len(text); i++ {
		switch {
		case text[i] == '\\':
			i++

		case strings.HasPrefix(text[i:], "${"):
			if end := matchBrace(text, i+2); end > 0 {
				i = end
			}

		case text[i] == '|':
			emit(i)
			start = i + 1
		}
	}

	emit(len(text))

	return lines
}

// markdownLink extracts the destination of the leading link in s and the
// text following it.
func markdownLink(s string) (string, string, bool) {
	dest, ok := linkDestination(s)
	if !ok {
		return "", "", false
	}

	end := strings.Index(s, "](")
	if end < 0 {
		return "", "", false
	}

	paren := strings.IndexByte(s[end:], ')')
	if paren < 0 {
		return "", "", false
	}

	return dest, s[end+paren+1:], true
}

func (p *parser) pos(no, byteOff int) Position {
	line := p.lines[no]
	byteOff = min(max(byteOff, 0), len(line))

	return Position{Line: no, Column: utf8.RuneCountInString(line[:byteOff])}
}

// lineRange spans the non-blank text of line no.
func (p *parser) lineRange(no int) Range {
	line := p.lines[no]
	start := len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))
	end := len(strings.TrimRightFunc(line, unicode.IsSpace))

	return Range{Start: p.pos(no, start), End: p.pos(no, max(start, end))}
}

func (p *parser) span(lines []rawLine) Range {
	return Range{
		Start: p.lineRange(lines[0].no).Start,
		End:   p.lineRange(lines[len(lines)-1].no).End,
	}
}

func maxEnd(a, b Position) Position {
	if a.Before(b) {
		return b
	}

	return a
}

func (p *parser) errorf(rng Range, kind *Error, format string, args ...any) {
	p.report(SeverityError, rng, kind, format, args...)

	if p.tmpl != nil {
		p.tmpl.Broken = true
	}
}

func (p *parser) warnf(rng Range, kind *Error, format string, args ...any) {
	p.report(SeverityWarning, rng, kind, format, args...)
}

func (p *parser) report(sev Severity, rng Range, kind *Error, format string, args ...any) {
	d := diagnose(sev, kind, p.file.Path, rng, fmt.Sprintf(format, args...))
	if p.tmpl != nil {
		d.Template = p.tmpl.Name
	}

	p.file.Diagnostics = append(p.file.Diagnostics, d)
}

func clip(s string) string {
	const n = 40

	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n]) + "..."
}
