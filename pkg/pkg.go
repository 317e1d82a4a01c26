// Package pkg holds the identity of the lgen module: its name, version
// and authors, plus the per-user directories derived from them.
//
//nolint:gochecknoglobals
package pkg

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

// Version is the semantic version embedded at build time. The language
// server reports it in serverInfo and the CLI prints it with version.
var Version = strings.TrimSpace(version)

const (
	// Name identifies the command, the diagnostic source reported to
	// editors, and the default config paths.
	Name = "lgen"
	// Description is a short summary used in help output.
	Description = "Language generation template engine"
)

// AuthorInfo represents an individual author's name and email address.
type AuthorInfo struct {
	Name  string
	Email string
}

// Author lists the primary author(s) of the project.
var Author = []AuthorInfo{
	{"ardnew", "andrew@ardnew.com"},
}
