package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/lgen/log"
	"github.com/ardnew/lgen/profile"
)

// Init writes the current values of the global flags to the configuration
// file, grouped by flag prefix:
//
//	log:
//	  format: text
//	  level: info
type Init struct {
	Force bool `help:"Overwrite existing configuration file" short:"f"`
}

// Run executes the init command.
func (i *Init) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	ktx := kongContextFrom(ctx)
	if ktx == nil {
		return ErrWriteConfig.With(slog.String("reason", "no command context"))
	}

	confPath, ok := ktx.Model.Vars()[ConfigIdentifier]
	if !ok {
		return ErrWriteConfig.With(slog.String("reason", "config path undefined"))
	}

	if _, err := os.Stat(confPath); err == nil && !i.Force {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			Wrap(ErrFileExists)
	}

	out, err := yaml.Marshal(flagValues(ktx))
	if err != nil {
		return ErrWriteConfig.With(slog.String("file", confPath)).Wrap(err)
	}

	if err := os.MkdirAll(filepath.Dir(confPath), 0o700); err != nil {
		return ErrWriteConfig.With(slog.String("file", confPath)).Wrap(err)
	}

	if err := os.WriteFile(confPath, out, 0o600); err != nil {
		return ErrWriteConfig.With(slog.String("file", confPath)).Wrap(err)
	}

	log.DebugContext(ctx, "initialized configuration file", slog.String("path", confPath))

	return nil
}

// flagValues collects the application-level flags, nesting each under
// its prefix: "log-level" becomes log.level. Help and profiling flags are
// skipped, as are empty values.
func flagValues(ktx *kong.Context) map[string]any {
	values := map[string]any{}

	for _, flag := range ktx.Model.Flags {
		if flag.Hidden || flag.Name == "help" || strings.HasPrefix(flag.Name, profile.Tag) {
			continue
		}

		v := configValue(ktx.FlagValue(flag))
		if v == nil {
			continue
		}

		group, key, nested := strings.Cut(flag.Name, "-")
		if !nested {
			values[flag.Name] = v

			continue
		}

		sub, _ := values[group].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
			values[group] = sub
		}

		sub[key] = v
	}

	return values
}

// configValue converts a flag value to a YAML scalar, or nil when unset.
func configValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil

	case string:
		if x == "" {
			return nil
		}

		return x

	case bool, int, int64, uint64, float64:
		return x

	case []string:
		if len(x) == 0 {
			return nil
		}

		return x

	default:
		if s := fmt.Sprint(x); s != "" {
			return s
		}

		return nil
	}
}
