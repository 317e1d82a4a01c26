package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
)

const defaultEditor = "vi"

// editCommand implements [tea.ExecCommand] for the edit-load-retry loop. It
// opens a source file in the user's editor and reloads every source
// afterward. While the reload reports errors the user is prompted to edit
// again; declining keeps the broken collection and returns
// [ErrEditDeclined].
type editCommand struct {
	path   string
	line   int // one-based line to open at, or 0
	load   func() (*lang.Templates, error)
	ctx    context.Context
	logger log.Logger
	result *lang.Templates
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// SetStdin sets the stdin reader for the command.
func (c *editCommand) SetStdin(r io.Reader) { c.stdin = r }

// SetStdout sets the stdout writer for the command.
func (c *editCommand) SetStdout(w io.Writer) { c.stdout = w }

// SetStderr sets the stderr writer for the command.
func (c *editCommand) SetStderr(w io.Writer) { c.stderr = w }

// Run executes the edit loop.
func (c *editCommand) Run() error {
	scanner := bufio.NewScanner(c.stdin)

	for {
		if err := runEditor(c.ctx, c.stdin, c.stdout, c.stderr, c.path, c.line); err != nil {
			return err
		}

		ts, err := c.load()
		if err != nil {
			return err
		}

		c.result = ts

		c.logger.TraceContext(c.ctx, "editor reload",
			slog.String("file", c.path),
			slog.Bool("errors", ts.HasErrors()))

		if !ts.HasErrors() {
			return nil
		}

		fmt.Fprintln(c.stderr)

		for _, d := range ts.Diagnostics() {
			if d.Severity == lang.SeverityError {
				fmt.Fprintln(c.stderr, d)
			}
		}

		fmt.Fprint(c.stdout, "Re-edit? [Y/n] ")

		if !scanner.Scan() {
			return ErrEditDeclined
		}

		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "n", "no":
			return ErrEditDeclined
		}
	}
}

// runEditor launches $EDITOR on path, positioned at line when it is
// positive, and waits for it to exit.
func runEditor(
	ctx context.Context,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	path string,
	line int,
) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = defaultEditor
	}

	args := strings.Fields(editor)

	if line > 0 {
		args = append(args, "+"+strconv.Itoa(line))
	}

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], path)...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	return cmd.Run()
}
