package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// writeFile creates name under dir with content and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestSources_ResolveEmpty(t *testing.T) {
	_, err := Sources{}.resolve(context.Background())
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestSources_ResolveDuplicates(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "main.lg", "# A\n- a\n")
	other := writeFile(t, dir, "other.lg", "# B\n- b\n")

	link := filepath.Join(dir, "link.lg")
	if err := os.Symlink(path, link); err != nil {
		t.Fatal(err)
	}

	src := Sources{Files: []string{"main.lg", path, link, other, "./other.lg"}}

	r, err := src.resolve(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{path, other}
	if !slices.Equal(r.paths, want) {
		t.Errorf("expected %v, got %v", want, r.paths)
	}
}

func TestSources_ResolveStdinLast(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "main.lg", "# A\n- a\n")
	ctx := WithInput(context.Background(), strings.NewReader("# S\n- from stdin\n"))

	r, err := Sources{Files: []string{"-", path, "-"}}.resolve(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(r.paths) != 2 {
		t.Fatalf("expected 2 paths, got %v", r.paths)
	}

	if r.paths[0] != path {
		t.Errorf("expected %q first, got %q", path, r.paths[0])
	}

	if filepath.Base(r.paths[1]) != stdinName {
		t.Errorf("expected stdin last, got %q", r.paths[1])
	}

	if string(r.stdin) != "# S\n- from stdin\n" {
		t.Errorf("expected stdin content, got %q", r.stdin)
	}
}

func TestSources_LoadStdinImports(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	writeFile(t, dir, "shared.lg", "# Shared\n- shared\n")

	ctx := WithInput(context.Background(),
		strings.NewReader("[import](shared.lg)\n# S\n- ${Shared()}\n"))

	ts, err := Sources{Files: []string{"-"}}.load(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if ts.HasErrors() {
		t.Fatalf("expected no errors, got %v", ts.Diagnostics())
	}

	got, err := ts.Evaluate("S", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got != "shared" {
		t.Errorf("expected %q, got %v", "shared", got)
	}
}

func TestSources_Locales(t *testing.T) {
	dir := t.TempDir()

	src := Sources{Files: []string{
		writeFile(t, dir, "main.lg", "# A\n- a\n"),
		writeFile(t, dir, "main.fr.lg", "# A\n- le a\n"),
		writeFile(t, dir, "main.en-US.lg", "# A\n- an a\n"),
	}}

	m, err := src.locales(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"", "en-US", "fr"}
	if got := m.Locales(); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
