package repl

import (
	"context"
	"slices"
	"testing"

	"github.com/ardnew/lgen/lang"
)

const testSource = `# Greeting
- Hello
# Greet(name)
- Hello ${name}
`

func testModel(t *testing.T, scope map[string]any) model {
	t.Helper()

	ts := lang.ParseText(testSource, "test.lg")
	if ts.HasErrors() {
		t.Fatalf("expected no errors, got %v", ts.Diagnostics())
	}

	cfg := Config{
		Load:  func() (*lang.Templates, error) { return ts, nil },
		Scope: scope,
	}

	return newModel(context.Background(), cfg, ts, NewHistory(""))
}

func TestWordBounds_Operators(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		cursor    int
		wantWord  string
		wantStart int
		wantEnd   int
	}{
		{"simple", "foo", 3, "foo", 0, 3},
		{"member_path", "user.na", 7, "user.na", 0, 7},
		{"after_plus", "a + fo", 6, "fo", 4, 6},
		{"after_paren", "Greet(fo", 8, "fo", 6, 8},
		{"after_comma", "add(a, fo", 9, "fo", 7, 9},
		{"in_ternary", "x ? fo", 6, "fo", 4, 6},
		{"minus", "a-b", 3, "b", 2, 3},
		{"after_quote", "'abc", 4, "abc", 1, 4},
		{"command", ":li", 3, "li", 1, 3},
		{"empty_at_boundary", "a + ", 4, "", 4, 4},
		{"empty_input", "", 0, "", 0, 0},
		{"mid_word", "foobar", 3, "foobar", 0, 6},
		{"cursor_past_end", "foo", 10, "foo", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, start, end := wordBounds(tt.input, tt.cursor)
			if word != tt.wantWord || start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("wordBounds(%q, %d) = (%q, %d, %d), want (%q, %d, %d)",
					tt.input, tt.cursor, word, start, end,
					tt.wantWord, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestCommandPosition(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wordStart int
		want      bool
	}{
		{"command_name", ":li", 1, true},
		{"command_argument", ":expand Gr", 8, false},
		{"expression", "li", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandPosition(tt.input, tt.wordStart); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestScopePaths(t *testing.T) {
	scope := map[string]any{
		"n":    1,
		"user": map[string]any{"name": "Ann", "age": 30},
	}

	want := []string{"n", "user", "user.age", "user.name"}
	if got := scopePaths(scope); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestComputeMatches_Expression(t *testing.T) {
	m := testModel(t, map[string]any{"guest": "Bo"})
	m.input.SetValue("1 + Gre")
	m.input.SetCursor(7)

	matches, start, end := m.computeMatches()
	if start != 4 || end != 7 {
		t.Errorf("expected bounds (4, 7), got (%d, %d)", start, end)
	}

	var names []string
	for _, match := range matches {
		names = append(names, match.Str)
	}

	for _, want := range []string{"Greet", "Greeting"} {
		if !slices.Contains(names, want) {
			t.Errorf("expected %q in %v", want, names)
		}
	}
}

func TestComputeMatches_Command(t *testing.T) {
	m := testModel(t, nil)
	m.input.SetValue(":exp")
	m.input.SetCursor(4)

	matches, _, _ := m.computeMatches()
	if len(matches) == 0 || matches[0].Str != "expand" {
		t.Errorf("expected expand first, got %v", matches)
	}
}

func TestComputeMatches_EmptyWord(t *testing.T) {
	m := testModel(t, nil)
	m.input.SetValue("1 + ")
	m.input.SetCursor(4)

	if matches, _, _ := m.computeMatches(); matches != nil {
		t.Errorf("expected no matches, got %v", matches)
	}
}

func TestIsFunction(t *testing.T) {
	m := testModel(t, map[string]any{"user": "Ann"})

	tests := []struct {
		name string
		want bool
	}{
		{"Greet", true},
		{"len", true},
		{"coalesce", true},
		{"user", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.isFunction(tt.name); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
