package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardnew/lgen/lang"
)

// Check reports the diagnostics of LG files and their imports.
type Check struct {
	Sources `embed:""`

	Output string `default:"text" enum:"text,json" help:"Output format (${enum})" short:"o"`
}

// Run executes the check command.
func (c *Check) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	ts, err := c.load(ctx)
	if err != nil {
		return err
	}

	diags := ts.Diagnostics()
	w := outputFrom(ctx)

	if c.Output == formatJSON {
		if diags == nil {
			diags = lang.Diagnostics{}
		}

		if err := encode(w, diags, formatJSON); err != nil {
			return err
		}
	} else {
		for _, d := range diags {
			fmt.Fprintln(w, line(d))
		}
	}

	if ts.HasErrors() {
		return ErrCheckFailed.With(slog.Int("diagnostics", len(diags)))
	}

	return nil
}

// line renders d as "file:line:col: severity: message [code]" with
// 1-based positions.
func line(d lang.Diagnostic) string {
	file := d.Source
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, file); err == nil && !strings.HasPrefix(rel, "..") {
			file = rel
		}
	}

	s := fmt.Sprintf("%s:%d:%d: %s: %s", file,
		d.Range.Start.Line+1, d.Range.Start.Column+1, d.Severity, d.Message)

	if d.Code != "" {
		s += " [" + d.Code + "]"
	}

	return s
}
