package lang

import (
	"regexp"

	"github.com/yuin/goldmark"
	mdast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	markdown    = goldmark.New()
	rawLinkDest = regexp.MustCompile(`^\[[^\]]*\]\(\s*([^)]*?)\s*\)`)
)

// linkDestination returns the destination of the first markdown link in s.
// Destinations goldmark rejects as links, such as paths with spaces, fall
// back to the raw text between the parentheses.
func linkDestination(s string) (string, bool) {
	src := []byte(s)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var dest string

	_ = mdast.Walk(doc, func(n mdast.Node, entering bool) (mdast.WalkStatus, error) {
		if link, ok := n.(*mdast.Link); ok && entering {
			dest = string(link.Destination)

			return mdast.WalkStop, nil
		}

		return mdast.WalkContinue, nil
	})

	if dest != "" {
		return dest, true
	}

	if m := rawLinkDest.FindStringSubmatch(s); m != nil && m[1] != "" {
		return m[1], true
	}

	return "", false
}
