package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/lgen/cli/cmd"
	"github.com/ardnew/lgen/log"
)

// resolve is a [kong.ConfigurationLoader] for YAML config files.
//
// Keys name long flags. Nested mappings are joined with hyphens and
// underscores are read as hyphens, so these are equivalent:
//
//	log-level: debug
//
//	log:
//	  level: debug
//
// Command-line flags override config file values.
func resolve(r io.Reader) (kong.Resolver, error) {
	var doc map[string]any

	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, cmd.ErrReadConfig.Wrap(err)
	}

	c := config{}
	c.flatten("", doc)

	return c, nil
}

// config implements [kong.Resolver] over flattened flag names.
type config map[string]any

func (c config) flatten(prefix string, m map[string]any) {
	for k, v := range m {
		key := strings.ReplaceAll(k, "_", "-")
		if prefix != "" {
			key = prefix + "-" + key
		}

		if sub, ok := v.(map[string]any); ok {
			c.flatten(key, sub)

			continue
		}

		c[key] = scalar(v)
	}
}

// scalar renders v in a form kong's mappers accept: numbers as text and
// lists as comma-separated text.
func scalar(v any) any {
	switch x := v.(type) {
	case bool, string, nil:
		return x

	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = fmt.Sprint(e)
		}

		return strings.Join(parts, ",")

	default:
		return fmt.Sprint(x)
	}
}

// Validate implements [kong.Resolver]. Unknown keys are logged and
// ignored, since flags differ between builds with and without pprof.
func (c config) Validate(app *kong.Application) error {
	known := map[string]bool{}

	_ = kong.Visit(app.Node, func(n kong.Visitable, next kong.Next) error {
		if f, ok := n.(*kong.Flag); ok {
			known[f.Name] = true
		}

		return next(nil)
	})

	for key := range c {
		if !known[key] {
			log.Warn("ignoring unknown configuration key", slog.String("key", key))
		}
	}

	return nil
}

// Resolve implements [kong.Resolver].
func (c config) Resolve(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
	v, ok := c[flag.Name]
	if !ok {
		return nil, nil
	}

	return v, nil
}
