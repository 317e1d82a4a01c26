package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
	"github.com/ardnew/lgen/pkg"
)

const greetSource = "# Greet\n- Hello ${name}\n"

// run executes fn with its output captured.
func run(t *testing.T, fn func(context.Context) error) (string, error) {
	t.Helper()

	var buf bytes.Buffer

	err := fn(WithOutput(context.Background(), &buf))

	return buf.String(), err
}

func TestEval_Data(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.lg", greetSource)

	tests := []struct {
		name string
		file string
		data string
		want string
	}{
		{"jsonc", "data.json", "{\n  // who\n  \"name\": \"Ann\",\n}\n", "Hello Ann\n"},
		{"yaml", "data.yaml", "name: Bo\n", "Hello Bo\n"},
		{"yml", "data.yml", "name: Cy\n", "Hello Cy\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Eval{
				Name:      "Greet",
				Sources:   Sources{Files: []string{src}},
				EvalFlags: EvalFlags{Data: writeFile(t, dir, tt.file, tt.data), Output: formatText},
			}

			got, err := run(t, e.Run)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEval_InvalidData(t *testing.T) {
	dir := t.TempDir()

	e := &Eval{
		Name:      "Greet",
		Sources:   Sources{Files: []string{writeFile(t, dir, "main.lg", greetSource)}},
		EvalFlags: EvalFlags{Data: writeFile(t, dir, "data.json", "{ nope"), Output: formatText},
	}

	if _, err := run(t, e.Run); !errors.Is(err, ErrReadData) {
		t.Errorf("expected ErrReadData, got %v", err)
	}
}

func TestEval_LocaleFallback(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "main.lg", "# Hi\n- Hello\n# Bye\n- Goodbye\n"),
		writeFile(t, dir, "main.fr.lg", "# Hi\n- Bonjour\n"),
	}

	tests := []struct {
		name    string
		tmpl    string
		locale  string
		want    string
		wantErr error
	}{
		{"neutral", "Hi", "", "Hello\n", nil},
		{"exact", "Hi", "fr", "Bonjour\n", nil},
		{"parent", "Hi", "fr-CA", "Bonjour\n", nil},
		{"unknown locale", "Hi", "de", "Hello\n", nil},
		{"missing in exact locale", "Bye", "fr", "", lang.ErrTemplateNotFound},
		{"missing everywhere", "Nope", "de", "", lang.ErrNoSupportedLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Eval{
				Name:      tt.tmpl,
				Sources:   Sources{Files: files},
				EvalFlags: EvalFlags{Locale: tt.locale, Output: formatText},
			}

			got, err := run(t, e.Run)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEval_Activity(t *testing.T) {
	dir := t.TempDir()

	e := &Eval{
		Name:      "Hi",
		Sources:   Sources{Files: []string{writeFile(t, dir, "main.lg", "# Hi\n- Hello\n")}},
		EvalFlags: EvalFlags{Output: formatJSON},
		Activity:  true,
	}

	got, err := run(t, e.Run)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var activity map[string]any
	if err := json.Unmarshal([]byte(got), &activity); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", got, err)
	}

	for key, want := range map[string]string{"type": "message", "text": "Hello", "speak": "Hello"} {
		if activity[key] != want {
			t.Errorf("expected %s %q, got %v", key, want, activity[key])
		}
	}
}

func TestEval_Lenient(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.lg", "# Hi\n- Hi ${missing}!\n")

	strict := &Eval{Name: "Hi", Sources: Sources{Files: []string{src}}, EvalFlags: EvalFlags{Output: formatText}}
	if _, err := run(t, strict.Run); !errors.Is(err, lang.ErrUndefinedReference) {
		t.Errorf("expected ErrUndefinedReference, got %v", err)
	}

	lenient := &Eval{Name: "Hi", Sources: Sources{Files: []string{src}}, EvalFlags: EvalFlags{Lenient: true, Output: formatText}}

	got, err := run(t, lenient.Run)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got != "Hi ${missing}!\n" {
		t.Errorf("expected placeholder, got %q", got)
	}
}

func TestEval_LogsDiagnostics(t *testing.T) {
	var logs bytes.Buffer

	log.Config(log.WithOutput(&logs), log.WithFormat(log.FormatJSON))
	t.Cleanup(func() { log.Config(log.WithOutput(os.Stderr), log.WithFormat(log.DefaultFormat)) })

	dir := t.TempDir()
	src := writeFile(t, dir, "main.lg", "# Good\n- fine\n# Bad\n- ${Nope()}\n")

	e := &Eval{Name: "Good", Sources: Sources{Files: []string{src}}, EvalFlags: EvalFlags{Output: formatText}}

	got, err := run(t, e.Run)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got != "fine\n" {
		t.Errorf("expected %q, got %q", "fine\n", got)
	}

	for _, want := range []string{"template error", "undefined template or function"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("expected log to contain %q, got %q", want, logs.String())
		}
	}
}

func TestEval_Seed(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.lg", "# Pick\n- a\n- b\n- c\n- d\n")
	seed := uint64(7)

	var outputs []string

	for range 2 {
		e := &Eval{Name: "Pick", Sources: Sources{Files: []string{src}}, EvalFlags: EvalFlags{Seed: &seed, Output: formatText}}

		got, err := run(t, e.Run)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		outputs = append(outputs, got)
	}

	if outputs[0] != outputs[1] {
		t.Errorf("expected one seed to pick one variation, got %q and %q", outputs[0], outputs[1])
	}
}

func TestExpand_Formats(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.lg", "# Pick\n- a\n- b\n- c\n")

	tests := []struct {
		name   string
		n      int
		output string
		want   string
	}{
		{"text", 10, formatText, "a\nb\nc\n"},
		{"limited", 2, formatText, "a\nb\n"},
		{"json", 10, formatJSON, "[\n  \"a\",\n  \"b\",\n  \"c\"\n]\n"},
		{"yaml", 1, formatYAML, "- a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := &Expand{
				Name:      "Pick",
				Sources:   Sources{Files: []string{src}},
				EvalFlags: EvalFlags{Output: tt.output},
				N:         tt.n,
			}

			got, err := run(t, x.Run)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCheck_Diagnostics(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	src := writeFile(t, dir, "main.lg", "# Use\n- ${Missing()}\n")

	c := &Check{Sources: Sources{Files: []string{src}}, Output: formatText}

	got, err := run(t, c.Run)
	if !errors.Is(err, ErrCheckFailed) {
		t.Fatalf("expected ErrCheckFailed, got %v", err)
	}

	if !strings.HasPrefix(got, "main.lg:2:") {
		t.Errorf("expected a relative position, got %q", got)
	}

	if !strings.Contains(got, "error: ") || !strings.Contains(got, "[undefined reference]") {
		t.Errorf("expected an undefined reference error, got %q", got)
	}
}

func TestCheck_CleanJSON(t *testing.T) {
	dir := t.TempDir()

	c := &Check{
		Sources: Sources{Files: []string{writeFile(t, dir, "main.lg", greetSource)}},
		Output:  formatJSON,
	}

	got, err := run(t, c.Run)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got != "[]\n" {
		t.Errorf("expected %q, got %q", "[]\n", got)
	}
}

func TestList_Text(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.lg", "# Greet(name)\n- Hello ${name}\n# Use\n- ${Greet('a')}\n")

	l := &List{Sources: Sources{Files: []string{src}}, Output: formatText}

	got, err := run(t, l.Run)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := "Greet(name)\tmain.lg:1\nUse()\tmain.lg:3\t-> Greet\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestList_JSON(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.lg", "# Greet(name)\n- Hello ${name}\n# Use\n- ${Greet('a')}\n")

	l := &List{Sources: Sources{Files: []string{src}}, Output: formatJSON}

	got, err := run(t, l.Run)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var out []listing
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", got, err)
	}

	if len(out) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(out))
	}

	if len(out[0].Callers) != 1 || out[0].Callers[0] != "Use" {
		t.Errorf("expected Greet to be called by Use, got %v", out[0].Callers)
	}

	if len(out[1].Templates) != 1 || out[1].Templates[0] != "Greet" {
		t.Errorf("expected Use to refer to Greet, got %v", out[1].Templates)
	}
}

func TestVersion_Run(t *testing.T) {
	got, err := run(t, (&Version{}).Run)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if want := pkg.Name + " " + pkg.Version + "\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEncode_InvalidFormat(t *testing.T) {
	var buf bytes.Buffer

	if err := encode(&buf, "x", "xml"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestReadData_Empty(t *testing.T) {
	data, err := readData("")
	if err != nil || data != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", data, err)
	}
}
