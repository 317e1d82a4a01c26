// Package cmd implements the lgen subcommands: check, list, eval,
// expand, serve, repl, init and version.
//
// Commands read their LG sources from files named on the command line, or
// from stdin when a source is "-". Output goes to the writer stored with
// [WithOutput], stdout by default.
package cmd

var (
	// CacheIdentifier is the kong variable holding the path to the
	// runtime cache directory.
	CacheIdentifier = "cache"

	// ConfigIdentifier is the kong variable holding the path to the
	// configuration file.
	ConfigIdentifier = "config"
)
