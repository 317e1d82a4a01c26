package lang

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// atFunc is the internal function `@Name` is rewritten to.
const atFunc = "__at"

// rewrite translates the LG-specific forms of an expression into plain
// expr-lang syntax:
//
//	@Name                 -> __at("Name")
//	where(list, x, cond)  -> filter(list, cond with x replaced by #)
//	count(list)           -> len(list)
//	contains(a, b)        -> includes(a, b)
//	if(cond, a, b)        -> (cond ? a : b)
//
// String literals are copied verbatim.
func rewrite(src string) string {
	var b strings.Builder

	b.Grow(len(src))

	for i := 0; i < len(src); {
		c := src[i]

		switch {
		case c == '\'' || c == '"' || c == '`':
			j := skipQuoted(src, i)
			b.WriteString(src[i:j])
			i = j

		case c == '@' && i+1 < len(src) && isNameStart(src[i+1:]):
			j := scanName(src, i+1, true)
			b.WriteString(atFunc + `("` + src[i+1:j] + `")`)
			i = j

		case isNameStart(src[i:]) && !afterName(src, i):
			j := scanName(src, i, false)
			word := src[i:j]

			if k := skipSpace(src, j); k < len(src) && src[k] == '(' &&
				(i == 0 || src[i-1] != '.') {
				if args, end, ok := splitArgs(src, k); ok {
					if out, ok := rewriteCall(word, args); ok {
						b.WriteString(out)
						i = end

						continue
					}
				}
			}

			b.WriteString(word)
			i = j

		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

func rewriteCall(name string, args []string) (string, bool) {
	switch {
	case name == "where" && len(args) == 3:
		item := strings.TrimSpace(args[1])
		if !isName(item) {
			return "", false
		}

		return "filter(" + rewrite(args[0]) + ", " +
			replaceName(rewrite(args[2]), item, "#") + ")", true

	case name == "count" && len(args) == 1:
		return "len(" + rewrite(args[0]) + ")", true

	case name == "contains" && len(args) == 2:
		return "includes(" + rewrite(args[0]) + "," + rewrite(args[1]) + ")", true

	case name == "if" && len(args) == 3:
		return "(" + rewrite(args[0]) + " ? " + rewrite(args[1]) + " : " + rewrite(args[2]) + ")", true
	}

	return "", false
}

// replaceName substitutes every free occurrence of the identifier name in
// src. Member names following '.' are left alone.
func replaceName(src, name, with string) string {
	var b strings.Builder

	for i := 0; i < len(src); {
		c := src[i]

		switch {
		case c == '\'' || c == '"' || c == '`':
			j := skipQuoted(src, i)
			b.WriteString(src[i:j])
			i = j

		case isNameStart(src[i:]) && !afterName(src, i):
			j := scanName(src, i, false)
			if src[i:j] == name && (i == 0 || src[i-1] != '.') {
				b.WriteString(with)
			} else {
				b.WriteString(src[i:j])
			}

			i = j

		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

// splitArgs splits the parenthesized argument list starting at src[open]
// on top-level commas. It returns the index just past the closing paren.
func splitArgs(src string, open int) ([]string, int, bool) {
	var (
		args  []string
		depth int
		start = open + 1
	)

	for i := open; i < len(src); {
		switch src[i] {
		case '\'', '"', '`':
			i = skipQuoted(src, i)

			continue

		case '(', '[', '{':
			depth++

		case ')', ']', '}':
			depth--
			if depth == 0 {
				if s := src[start:i]; strings.TrimSpace(s) != "" || len(args) > 0 {
					args = append(args, s)
				}

				return args, i + 1, true
			}

		case ',':
			if depth == 1 {
				args = append(args, src[start:i])
				start = i + 1
			}
		}

		i++
	}

	return nil, 0, false
}

// skipQuoted returns the index just past the string literal at src[i].
// An unterminated literal extends to the end of src.
func skipQuoted(src string, i int) int {
	q := src[i]

	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			return j + 1
		}
	}

	return len(src)
}

func skipSpace(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}

	return i
}

func isNameStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)

	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isNamePart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// afterName reports whether src[i] continues a preceding identifier or
// number, as in "x2" or "1e5".
func afterName(src string, i int) bool {
	if i == 0 {
		return false
	}

	r, _ := utf8.DecodeLastRuneInString(src[:i])

	return isNamePart(r)
}

// scanName returns the end of the identifier starting at src[i]. With
// dotted set, '.' followed by another identifier continues the name.
func scanName(src string, i int, dotted bool) int {
	for i < len(src) {
		r, n := utf8.DecodeRuneInString(src[i:])

		switch {
		case isNamePart(r):
			i += n
		case dotted && r == '.' && i+1 < len(src) && isNameStart(src[i+1:]):
			i++
		default:
			return i
		}
	}

	return i
}

func isName(s string) bool {
	return s != "" && isNameStart(s) && scanName(s, 0, false) == len(s)
}
