package cmd

import (
	"context"
	"log/slog"

	"github.com/ardnew/lgen/cli/cmd/repl"
	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
)

// Repl starts an interactive session over LG files.
type Repl struct {
	Sources `embed:""`

	Data    string `help:"Scope data file: JSON with comments, or YAML (.yaml, .yml)" short:"d" type:"existingfile"`
	Lenient bool   `help:"Keep failed expressions as their source text instead of failing"`
	History string `default:"${cache}/history" help:"History file (empty to disable)" type:"path"`
}

// Run executes the repl command.
func (r *Repl) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	data, err := readData(r.Data)
	if err != nil {
		return err
	}

	scope, _ := data.(map[string]any)

	// Resolve once: stdin is read a single time and served from memory on
	// every reload.
	src, err := r.resolve(ctx)
	if err != nil {
		return err
	}

	load := func() (*lang.Templates, error) {
		return lang.ParseFiles(src.paths,
			lang.WithReader(src),
			lang.WithLogger(log.Default())), nil
	}

	log.DebugContext(ctx, "repl",
		slog.Any("files", src.paths),
		slog.String("history", r.History))

	return repl.Run(ctx, repl.Config{
		Load:        load,
		Scope:       scope,
		Options:     []lang.EvalOption{lang.WithStrict(!r.Lenient)},
		HistoryPath: r.History,
		Logger:      log.Default(),
	})
}
