package workspace

import (
	"log/slog"
	"net/url"
	"path/filepath"
)

// URI returns the file URI of an absolute path.
func URI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}

	return u.String()
}

// Path returns the file system path of a file URI.
func Path(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", ErrInvalidURI.Wrap(err).With(slog.String("uri", uri))
	}

	if u.Scheme != "file" {
		return "", ErrInvalidURI.With(
			slog.String("uri", uri),
			slog.String("reason", "not a file URI"),
		)
	}

	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}
