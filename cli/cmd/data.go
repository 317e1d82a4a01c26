package cmd

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/tidwall/jsonc"

	"github.com/ardnew/lgen/lang"
)

// Output formats accepted by --output.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// readData decodes the scope file at path: YAML for .yaml and .yml, JSON
// with comments otherwise. An empty path yields a nil scope.
func readData(path string) (any, error) {
	if path == "" {
		return nil, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrReadData.Wrap(err).With(slog.String("file", path))
	}

	var data map[string]any

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(buf, &data)
	default:
		err = json.Unmarshal(jsonc.ToJSON(buf), &data)
	}

	if err != nil {
		return nil, ErrReadData.Wrap(err).With(slog.String("file", path))
	}

	return data, nil
}

// encode writes v to w in format. Text renders v with [lang.Format].
func encode(w io.Writer, v any, format string) error {
	var (
		out []byte
		err error
	)

	switch format {
	case formatText, "":
		out = []byte(lang.Format(v))

	case formatJSON:
		out, err = json.MarshalIndent(v, "", "  ")

	case formatYAML:
		out, err = yaml.Marshal(v)
		out = []byte(strings.TrimSuffix(string(out), "\n"))

	default:
		return ErrInvalidFormat.With(
			slog.String("format", format),
			slog.String("valid", strings.Join([]string{formatText, formatJSON, formatYAML}, ", ")))
	}

	if err != nil {
		return ErrMarshal.Wrap(err).With(slog.String("format", format))
	}

	if _, err := w.Write(append(out, '\n')); err != nil {
		return ErrMarshal.Wrap(err)
	}

	return nil
}
