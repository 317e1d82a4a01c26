package cmd

import (
	"context"
	"log/slog"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
)

// EvalFlags are shared by eval and expand.
type EvalFlags struct {
	Data     string  `help:"Scope data file: JSON with comments, or YAML (.yaml, .yml)" short:"d" type:"existingfile"`
	Locale   string  `help:"Locale to generate for, with fallback to its parents (e.g. en-US)" short:"l"`
	Seed     *uint64 `help:"Choose variations at random from this seed"`
	Lenient  bool    `help:"Keep failed expressions as their source text instead of failing"`
	MaxDepth int     `default:"0"    help:"Maximum depth of nested template calls (0: 100)"`
	Output   string  `default:"text" enum:"text,json,yaml" help:"Output format (${enum})" short:"o"`
}

func (f *EvalFlags) options() []lang.EvalOption {
	opts := []lang.EvalOption{
		lang.WithStrict(!f.Lenient),
		lang.WithMaxDepth(f.MaxDepth),
	}

	if f.Seed != nil {
		opts = append(opts, lang.WithSeed(*f.Seed))
	}

	return opts
}

// Eval evaluates a template of LG files.
type Eval struct {
	Name string `arg:"" help:"Template to evaluate" name:"template"`

	Sources   `embed:""`
	EvalFlags `embed:""`

	Activity bool `help:"Shape the result as a bot activity"`
}

// Run executes the eval command.
func (e *Eval) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	data, err := readData(e.Data)
	if err != nil {
		return err
	}

	m, err := e.locales(ctx)
	if err != nil {
		return err
	}

	log.DebugContext(ctx, "evaluate",
		slog.String("template", e.Name),
		slog.String("locale", e.Locale),
		slog.Any("locales", m.Locales()))

	var result any

	if e.Activity {
		result, err = m.GenerateActivity(ctx, e.Name, data, e.Locale, e.options()...)
	} else {
		result, err = m.Generate(ctx, e.Name, data, e.Locale, e.options()...)
	}

	if err != nil {
		return err
	}

	return encode(outputFrom(ctx), result, e.Output)
}

// Expand enumerates the renderings of a template, up to a limit.
type Expand struct {
	Name string `arg:"" help:"Template to expand" name:"template"`

	Sources   `embed:""`
	EvalFlags `embed:""`

	N int `default:"10" help:"Maximum number of renderings" short:"n"`
}

// Run executes the expand command.
func (x *Expand) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	data, err := readData(x.Data)
	if err != nil {
		return err
	}

	m, err := x.locales(ctx)
	if err != nil {
		return err
	}

	seq, err := m.Expand(x.Name, data, x.Locale, x.options()...)
	if err != nil {
		return err
	}

	var renderings []any

	for v, err := range lang.Take(seq, x.N) {
		if err != nil {
			return err
		}

		renderings = append(renderings, v)
	}

	w := outputFrom(ctx)

	if x.Output != formatText {
		if renderings == nil {
			renderings = []any{}
		}

		return encode(w, renderings, x.Output)
	}

	for _, v := range renderings {
		if err := encode(w, v, formatText); err != nil {
			return err
		}
	}

	return nil
}
