package lsp

import (
	"unicode/utf16"

	"github.com/ardnew/lgen/lang"
)

// Editors count columns in UTF-16 code units; the index counts runes.

// runeColumn converts a UTF-16 column of line to a rune column. A column
// inside a surrogate pair maps to the start of its rune.
func runeColumn(line string, units int) int {
	col := 0

	for _, r := range line {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}

		if units < n {
			return col
		}

		units -= n
		col++
	}

	return col + units
}

// unitColumn converts a rune column of line to a UTF-16 column.
func unitColumn(line string, col int) int {
	units := 0

	for _, r := range line {
		if col <= 0 {
			break
		}

		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}

		units += n
		col--
	}

	return units + max(col, 0)
}

// lineFunc returns line n of a document.
type lineFunc func(n int) (string, bool)

func linesOf(lines []string) lineFunc {
	return func(n int) (string, bool) {
		if n < 0 || n >= len(lines) {
			return "", false
		}

		return lines[n], true
	}
}

func (s *Server) linesOf(path string) lineFunc {
	return func(n int) (string, bool) { return s.index.Line(path, n) }
}

func (f lineFunc) fromClient(pos lang.Position) lang.Position {
	if line, ok := f(pos.Line); ok {
		pos.Column = runeColumn(line, pos.Column)
	}

	return pos
}

func (f lineFunc) toClient(pos lang.Position) lang.Position {
	if line, ok := f(pos.Line); ok {
		pos.Column = unitColumn(line, pos.Column)
	}

	return pos
}

func (f lineFunc) rangeToClient(r lang.Range) lang.Range {
	return lang.Range{Start: f.toClient(r.Start), End: f.toClient(r.End)}
}
