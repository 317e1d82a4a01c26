package lang

import "testing"

func TestRewrite(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"plain", "a + b", "a + b"},
		{"at", "@Greeting", `__at("Greeting")`},
		{"at_dotted", "@common.Greeting", `__at("common.Greeting")`},
		{"count", "count(items)", "len(items)"},
		{"contains", "contains(name, 'x')", "includes(name, 'x')"},
		{"where", "where(items, x, x.age > 18)", "filter(items,  #.age > 18)"},
		{"where_member_untouched", "where(items, x, y.x > 1)", "filter(items,  y.x > 1)"},
		{"if", "if(a, 'y', 'n')", "(a ?  'y' :  'n')"},
		{"quoted", `"count(x) @y"`, `"count(x) @y"`},
		{"method_untouched", "s.count(x)", "s.count(x)"},
		{"nested", "count(where(l, i, i > 1))", "len(filter(l,  # > 1))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewrite(tt.src); got != tt.want {
				t.Errorf("rewrite(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestCompileExpression_References(t *testing.T) {
	e := compileExpression("Greeting(user.name) + exists(missing) + common.Title() + x", Range{})
	if e.Err() != nil {
		t.Fatalf("compile error: %v", e.Err())
	}

	vars := e.Variables()
	if len(vars) != 2 || vars[0] != "user" || vars[1] != "x" {
		t.Errorf("expected variables [user x], got %v", vars)
	}

	names := map[string]int{}
	for _, c := range e.Calls() {
		names[c.Name] = c.Args
	}

	if names["Greeting"] != 1 || names["common.Title"] != 0 {
		t.Errorf("unexpected calls %v", e.Calls())
	}

	if _, ok := names["exists"]; !ok {
		t.Errorf("expected exists call, got %v", e.Calls())
	}
}

func TestCompileExpression_Empty(t *testing.T) {
	e := compileExpression("  ", Range{})
	if e.Err() == nil {
		t.Fatal("expected error for empty expression")
	}
}
