package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// List prints the templates of LG files with their parameters and the
// names they refer to.
type List struct {
	Sources `embed:""`

	Output string `default:"text" enum:"text,json,yaml" help:"Output format (${enum})" short:"o"`
}

// listing is one template in list output.
type listing struct {
	Name      string   `json:"name" yaml:"name"`
	Params    []string `json:"params,omitempty" yaml:"params,omitempty"`
	Source    string   `json:"source" yaml:"source"`
	Line      int      `json:"line" yaml:"line"`
	Templates []string `json:"templates,omitempty" yaml:"templates,omitempty"`
	Functions []string `json:"functions,omitempty" yaml:"functions,omitempty"`
	Variables []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Callers   []string `json:"callers,omitempty" yaml:"callers,omitempty"`
}

// Run executes the list command.
func (l *List) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	ts, err := l.load(ctx)
	if err != nil {
		return err
	}

	var out []listing

	for t := range ts.All() {
		refs := ts.ReferencesOf(t)
		out = append(out, listing{
			Name:      t.Name,
			Params:    t.Params,
			Source:    filepath.Base(t.Source),
			Line:      t.Range.Start.Line + 1,
			Templates: refs.Templates,
			Functions: refs.Functions,
			Variables: refs.Variables,
			Callers:   ts.Callers(t.Name),
		})
	}

	w := outputFrom(ctx)

	if l.Output != formatText {
		if out == nil {
			out = []listing{}
		}

		return encode(w, out, l.Output)
	}

	for _, e := range out {
		fmt.Fprintf(w, "%s(%s)\t%s:%d", e.Name, strings.Join(e.Params, ", "), e.Source, e.Line)

		if len(e.Templates) > 0 {
			fmt.Fprintf(w, "\t-> %s", strings.Join(e.Templates, ", "))
		}

		fmt.Fprintln(w)
	}

	return nil
}
