package repl

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/ardnew/lgen/lang"
)

var (
	signatureStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	signatureNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6")).
				Bold(true)
	currentParamStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)
	signatureSeparatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// functionCall represents a detected function call in the input.
type functionCall struct {
	name     string // callee, e.g. "Greeting" or "cards.Hero"
	argIndex int    // current argument index (0-based)
	inCall   bool   // true if cursor is inside parameter list
}

// detectFunctionCall reports the innermost call whose parameter list
// contains the cursor, and which of its arguments the cursor is in.
func detectFunctionCall(input string, cursor int) functionCall {
	if cursor > len(input) {
		cursor = len(input)
	}

	open := openParen(input[:cursor])
	if open < 0 {
		return functionCall{}
	}

	nameStart := open

	for nameStart > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:nameStart])
		if r != '.' && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}

		nameStart -= size
	}

	name := input[nameStart:open]
	if name == "" {
		return functionCall{}
	}

	argIndex, depth := 0, 0

	for _, r := range input[open+1 : cursor] {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				argIndex++
			}
		}
	}

	return functionCall{name: name, argIndex: argIndex, inCall: true}
}

// openParen returns the offset of the unmatched '(' closest to the end of
// s, or -1.
func openParen(s string) int {
	depth := 0

	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			if depth == 0 {
				return i
			}

			depth--
		}
	}

	return -1
}

// getSignature returns the signature and parameter names of the template or
// built-in function called name. Templates shadow built-ins.
func getSignature(ts *lang.Templates, name string) (signature string, params []string) {
	if ts != nil {
		if tmpl, ok := ts.Get(name); ok {
			return tmpl.Signature(), tmpl.Params
		}
	}

	if fn, ok := lang.LookupBuiltin(name); ok {
		return fn.Signature, signatureParams(fn.Signature)
	}

	return "", nil
}

// signatureParams splits the parameter list of a "name(a, b)" signature.
func signatureParams(signature string) []string {
	open := strings.IndexByte(signature, '(')
	end := strings.LastIndexByte(signature, ')')

	if open < 0 || end <= open+1 {
		return nil
	}

	params := strings.Split(signature[open+1:end], ",")
	for i := range params {
		params[i] = strings.TrimSpace(params[i])
	}

	return params
}

// renderSignatureHint renders the function signature with the current
// parameter highlighted.
func renderSignatureHint(signature string, params []string, currentArgIdx int) string {
	if signature == "" {
		return ""
	}

	open := strings.IndexByte(signature, '(')
	if open == -1 {
		return signatureStyle.Render(signature)
	}

	name := signature[:open]

	if len(params) == 0 {
		return signatureNameStyle.Render(name) + signatureStyle.Render("()")
	}

	var b strings.Builder

	b.WriteString(signatureNameStyle.Render(name))
	b.WriteString(signatureStyle.Render("("))

	for i, param := range params {
		if i > 0 {
			b.WriteString(signatureSeparatorStyle.Render(", "))
		}

		// A variadic parameter absorbs every argument from its index on.
		variadic := strings.HasSuffix(param, "...")

		if (variadic && currentArgIdx >= i) || currentArgIdx == i {
			b.WriteString(currentParamStyle.Render(param))
		} else {
			b.WriteString(signatureStyle.Render(param))
		}
	}

	b.WriteString(signatureStyle.Render(")"))

	return b.String()
}
