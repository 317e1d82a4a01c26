package cmd

import (
	"context"
	"log/slog"

	"github.com/ardnew/lgen/log"
	"github.com/ardnew/lgen/lsp"
)

// Serve runs the language server over stdin and stdout.
type Serve struct {
	Root  string `help:"Workspace directory (default: the client's root)" type:"existingdir"`
	Watch bool   `help:"Reindex files changed outside the editor"`
}

// Run executes the serve command.
func (s *Serve) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	log.InfoContext(ctx, "language server starting",
		slog.String("root", s.Root),
		slog.Bool("watch", s.Watch))

	return lsp.New(
		lsp.WithRoot(s.Root),
		lsp.WithWatch(s.Watch),
		lsp.WithLogger(log.Default()),
	).Serve(ctx)
}
