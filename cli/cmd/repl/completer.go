package repl

import (
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/ardnew/lgen/lang"
)

// commands are the names accepted after a leading ':'.
var commands = []string{
	"help", "list", "check", "expand", "set", "unset",
	"reload", "edit", "clear", "quit",
}

// isWordBoundary returns true if the rune is a word delimiter for completion
// purposes: whitespace and expression operator or punctuation characters.
// The dot is excluded so that aliased names (cards.Hero) and member paths
// (user.name) complete as one word.
func isWordBoundary(r rune) bool {
	switch r {
	case ' ', '\t',
		'(', ')', '[', ']', '{', '}',
		'+', '-', '*', '/', '%', '^',
		'<', '>', '=', '!',
		'&', '|', ',', '?', ':', ';',
		'\'', '"', '`':
		return true
	}

	return false
}

// wordBounds returns the current word at the cursor position and its byte
// boundaries within input. Returns an empty word when the cursor sits on a
// boundary (after a space, start of line, etc.).
func wordBounds(input string, cursor int) (word string, start, end int) {
	if cursor > len(input) {
		cursor = len(input)
	}

	start = cursor

	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:start])
		if isWordBoundary(r) {
			break
		}

		start -= size
	}

	end = cursor

	for end < len(input) {
		r, size := utf8.DecodeRuneInString(input[end:])
		if isWordBoundary(r) {
			break
		}

		end += size
	}

	return input[start:end], start, end
}

// commandPosition reports whether the word starting at wordStart is the
// command name of a ':' line.
func commandPosition(input string, wordStart int) bool {
	return strings.HasPrefix(input, ":") && wordStart == 1
}

// scopePaths returns the keys of scope, plus "key.sub" for every key whose
// value is itself a map, sorted.
func scopePaths(scope map[string]any) []string {
	paths := make([]string, 0, len(scope))

	for key, v := range scope {
		paths = append(paths, key)

		if sub, ok := v.(map[string]any); ok {
			for child := range maps.Keys(sub) {
				paths = append(paths, key+"."+child)
			}
		}
	}

	slices.Sort(paths)

	return paths
}

// expressionCandidates returns the names an expression can refer to:
// templates, built-in functions and the scope.
func expressionCandidates(ts *lang.Templates, scope map[string]any) []string {
	var names []string

	if ts != nil {
		names = append(names, ts.Names()...)
	}

	for fn := range lang.Builtins() {
		names = append(names, fn.Name)
	}

	return append(names, scopePaths(scope)...)
}

// computeMatches calculates the fuzzy match results for the word at the
// cursor, ranked best-first, along with the word boundaries. An empty word
// has no matches so that the hint line stays visible.
func (m model) computeMatches() (matches fuzzy.Matches, wordStart, wordEnd int) {
	input := m.input.Value()

	word, wordStart, wordEnd := wordBounds(input, m.input.Position())
	if word == "" {
		return nil, wordStart, wordEnd
	}

	candidates := commands
	if !commandPosition(input, wordStart) {
		candidates = expressionCandidates(m.ts, m.scope)
	}

	return fuzzy.Find(word, candidates), wordStart, wordEnd
}

// isFunction reports whether name is callable: a template or a built-in.
func (m model) isFunction(name string) bool {
	if m.ts != nil {
		if _, ok := m.ts.Get(name); ok {
			return true
		}
	}

	_, ok := lang.LookupBuiltin(name)

	return ok
}

// renderCandidateBar builds the single-line completion bar, ellipsized to fit
// within the given terminal width. The selected candidate (when tabbing) uses
// the selected style.
func renderCandidateBar(
	matches fuzzy.Matches,
	suggIdx int,
	tabActive bool,
	width int,
	isFunction func(string) bool,
) string {
	if len(matches) == 0 || width <= 0 {
		return ""
	}

	const sep = "  "

	sepWidth := lipgloss.Width(sep)
	ellipsis := hintStyle.Render("...")
	ellipsisWidth := lipgloss.Width(ellipsis)

	var b strings.Builder

	used := 0

	for i, match := range matches {
		selected := tabActive && i == suggIdx
		rendered := renderCandidate(match, selected, isFunction(match.Str))

		entryWidth := lipgloss.Width(rendered)
		if i > 0 {
			entryWidth += sepWidth
		}

		if i > 0 && used+entryWidth+ellipsisWidth > width {
			b.WriteString(sep)
			b.WriteString(ellipsis)

			break
		}

		if i > 0 {
			b.WriteString(sep)
		}

		b.WriteString(rendered)

		used += entryWidth
	}

	return b.String()
}

// renderCandidate renders a single candidate with matched characters
// highlighted. Functions get a "()" suffix that is not part of the
// completion.
func renderCandidate(match fuzzy.Match, selected, function bool) string {
	baseStyle := suggestionStyle
	highlightStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("4")).
		Bold(true)

	if selected {
		baseStyle = selectedStyle
		highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4")).
			Bold(true)
	}

	matched := make(map[int]bool, len(match.MatchedIndexes))
	for _, idx := range match.MatchedIndexes {
		matched[idx] = true
	}

	var b strings.Builder

	for i, r := range match.Str {
		if matched[i] {
			b.WriteString(highlightStyle.Render(string(r)))
		} else {
			b.WriteString(baseStyle.Render(string(r)))
		}
	}

	if function {
		b.WriteString(baseStyle.Render("()"))
	}

	return b.String()
}
