package repl

import (
	"slices"
	"strings"
	"testing"

	"github.com/ardnew/lgen/lang"
)

func TestDetectFunctionCall(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		cursor     int
		wantName   string
		wantIndex  int
		wantInCall bool
	}{
		{"no call", "Greeting", 8, "", 0, false},
		{"first arg", "Greet(", 6, "Greet", 0, true},
		{"second arg", "add(1, ", 7, "add", 1, true},
		{"closed call", "Greet(x)", 8, "", 0, false},
		{"nested call", "Greet(len(y", 11, "len", 0, true},
		{"after nested call", "add(len(y), ", 12, "add", 1, true},
		{"alias", "cards.Hero(", 11, "cards.Hero", 0, true},
		{"list argument", "add([1, 2], ", 12, "add", 1, true},
		{"bare paren", "(1 + ", 5, "", 0, false},
		{"cursor inside", "Greet(a, b)", 7, "Greet", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectFunctionCall(tt.input, tt.cursor)

			if got.inCall != tt.wantInCall {
				t.Fatalf("expected inCall %v, got %v", tt.wantInCall, got.inCall)
			}

			if got.name != tt.wantName || got.argIndex != tt.wantIndex {
				t.Errorf("expected (%q, %d), got (%q, %d)",
					tt.wantName, tt.wantIndex, got.name, got.argIndex)
			}
		})
	}
}

func TestGetSignature(t *testing.T) {
	ts := lang.ParseText(testSource, "test.lg")

	tests := []struct {
		name       string
		wantSig    string
		wantParams []string
	}{
		{"Greet", "Greet(name)", []string{"name"}},
		{"Greeting", "Greeting()", nil},
		{"add", "add(a, b)", []string{"a", "b"}},
		{"createArray", "createArray(items...)", []string{"items..."}},
		{"len", "len(...)", []string{"..."}},
		{"missing", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, params := getSignature(ts, tt.name)

			if sig != tt.wantSig {
				t.Errorf("expected signature %q, got %q", tt.wantSig, sig)
			}

			if !slices.Equal(params, tt.wantParams) {
				t.Errorf("expected params %v, got %v", tt.wantParams, params)
			}
		})
	}
}

func TestRenderSignatureHint(t *testing.T) {
	tests := []struct {
		name       string
		signature  string
		params     []string
		currentArg int
	}{
		{"no params", "Greeting()", nil, 0},
		{"first param", "add(a, b)", []string{"a", "b"}, 0},
		{"second param", "add(a, b)", []string{"a", "b"}, 1},
		{"variadic", "coalesce(values...)", []string{"values..."}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderSignatureHint(tt.signature, tt.params, tt.currentArg)

			name, _, _ := strings.Cut(tt.signature, "(")
			if !strings.Contains(got, name) {
				t.Errorf("expected %q in %q", name, got)
			}

			for _, p := range tt.params {
				if !strings.Contains(got, p) {
					t.Errorf("expected %q in %q", p, got)
				}
			}
		})
	}

	if got := renderSignatureHint("", nil, 0); got != "" {
		t.Errorf("expected empty hint, got %q", got)
	}
}
