package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

type initCLI struct {
	LogLevel  string   `default:"info" name:"log-level"`
	LogPretty bool     `default:"true" name:"log-pretty"`
	PprofMode string   `default:"cpu"  name:"pprof-mode"`
	Secret    string   `default:"x"    hidden:""`
	Empty     string   `name:"empty"`
	Tags      []string `default:"a,b"  name:"tags"`
}

// initContext parses no arguments into initCLI with the configuration
// file at confPath.
func initContext(t *testing.T, confPath string) context.Context {
	t.Helper()

	var cli initCLI

	parser, err := kong.New(&cli, kong.Vars{ConfigIdentifier: confPath})
	if err != nil {
		t.Fatal(err)
	}

	ktx, err := parser.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}

	return WithContext(context.Background(), ktx)
}

func TestInit_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		force   bool
		exists  bool
		wantErr error
	}{
		{"create_new_config", false, false, nil},
		{"overwrite_existing_with_force", true, true, nil},
		{"fail_without_force", false, true, ErrFileExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			confPath := filepath.Join(t.TempDir(), "lgen", "config.yaml")

			if tt.exists {
				if err := os.MkdirAll(filepath.Dir(confPath), 0o700); err != nil {
					t.Fatal(err)
				}

				if err := os.WriteFile(confPath, []byte("existing: true\n"), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			err := (&Init{Force: tt.force}).Run(initContext(t, confPath))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			buf, err := os.ReadFile(confPath)
			if err != nil {
				t.Fatal(err)
			}

			var got map[string]any
			if err := yaml.Unmarshal(buf, &got); err != nil {
				t.Fatalf("expected YAML, got %q: %v", buf, err)
			}

			if _, ok := got["existing"]; ok {
				t.Error("expected the existing file to be replaced")
			}
		})
	}
}

func TestInit_Values(t *testing.T) {
	t.Parallel()

	confPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := (&Init{}).Run(initContext(t, confPath)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	buf, err := os.ReadFile(confPath)
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		Log struct {
			Level  string `yaml:"level"`
			Pretty bool   `yaml:"pretty"`
		} `yaml:"log"`
		Tags   []string       `yaml:"tags"`
		Pprof  map[string]any `yaml:"pprof"`
		Secret string         `yaml:"secret"`
		Empty  string         `yaml:"empty"`
		Help   any            `yaml:"help"`
	}

	if err := yaml.Unmarshal(buf, &got); err != nil {
		t.Fatalf("expected YAML, got %q: %v", buf, err)
	}

	if got.Log.Level != "info" || !got.Log.Pretty {
		t.Errorf("expected log level info and pretty, got %+v", got.Log)
	}

	if !slices.Equal(got.Tags, []string{"a", "b"}) {
		t.Errorf("expected tags [a b], got %v", got.Tags)
	}

	if got.Pprof != nil || got.Secret != "" || got.Empty != "" || got.Help != nil {
		t.Errorf("expected profiling, hidden, empty and help flags to be skipped, got %q", buf)
	}
}

func TestInit_Errors(t *testing.T) {
	t.Parallel()

	if err := (&Init{}).Run(context.Background()); !errors.Is(err, ErrWriteConfig) {
		t.Errorf("expected ErrWriteConfig without a command context, got %v", err)
	}

	// A regular file where a directory is expected.
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	err := (&Init{}).Run(initContext(t, filepath.Join(file, "config.yaml")))
	if !errors.Is(err, ErrWriteConfig) {
		t.Errorf("expected ErrWriteConfig for an unusable path, got %v", err)
	}
}

func TestConfigValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"nil", nil, nil},
		{"empty_string", "", nil},
		{"string", "text", "text"},
		{"bool", false, false},
		{"int", 42, 42},
		{"empty_slice", []string{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := configValue(tt.value); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
