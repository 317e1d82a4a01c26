package lang

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Templates {
	t.Helper()

	ts := ParseText(src, filepath.Join(t.TempDir(), "test.lg"))
	if ts.HasErrors() {
		t.Fatalf("unexpected errors: %v", ts.Diagnostics())
	}

	return ts
}

func TestEvaluate_Parameter(t *testing.T) {
	ts := mustParse(t, "# Greet(name)\n- Hello ${name}!\n")

	got, err := ts.Evaluate("Greet", map[string]any{"name": "Ana"})
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	if got != "Hello Ana!" {
		t.Errorf("expected 'Hello Ana!', got %v", got)
	}
}

func TestEvaluate_MutualRecursion(t *testing.T) {
	ts := ParseText("# A\n- ${B()}\n# B\n- ${A()}\n", "cycle.lg")

	var warned bool

	for _, d := range ts.Diagnostics() {
		if d.Severity == SeverityWarning && strings.Contains(d.Message, "circular reference") {
			warned = true
		}
	}

	if !warned {
		t.Errorf("expected circular reference warning, got %v", ts.Diagnostics())
	}

	_, err := ts.Evaluate("A", map[string]any{})
	if !errors.Is(err, ErrCircularReference) {
		t.Fatalf("expected ErrCircularReference, got %v", err)
	}
}

func TestParse_UnterminatedStructureIsolated(t *testing.T) {
	src := `# Before
- before
# Card
[HeroCard
    title = hello
# After
- after
`

	ts := ParseText(src, "broken.lg")

	var names []string
	for tmpl := range ts.All() {
		names = append(names, tmpl.Name)
	}

	if !slices.Equal(names, []string{"Before", "Card", "After"}) {
		t.Errorf("expected all templates, got %v", names)
	}

	for _, d := range ts.Diagnostics() {
		if d.Template != "Card" {
			t.Errorf("diagnostic outside Card: %v", d)
		}
	}

	if got, err := ts.Evaluate("After", nil); err != nil || got != "after" {
		t.Errorf("expected 'after', got %v, %v", got, err)
	}

	if _, err := ts.Evaluate("Card", nil); !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
}

func TestEvaluate_DiagnosticsDeterminism(t *testing.T) {
	src := "# A\n- ${B(x)} ${Nope()}\n# B(y)\n- ${y}\n# B(z)\n- ${z} ${A()}\n"

	first := ParseText(src, "p1.lg")
	second := ParseText(src, "p1.lg")

	if !reflect.DeepEqual(first.Diagnostics(), second.Diagnostics()) {
		t.Errorf("diagnostics differ:\n%v\n%v", first.Diagnostics(), second.Diagnostics())
	}

	for _, name := range []string{"A", "B"} {
		r1, _ := first.References(name)
		r2, _ := second.References(name)

		if !reflect.DeepEqual(r1, r2) {
			t.Errorf("references of %s differ: %+v %+v", name, r1, r2)
		}
	}
}

func TestEvaluate_ScopeIsolation(t *testing.T) {
	ts := mustParse(t, `# Outer
- ${x} ${Inner(5)} ${x}
# Inner(x)
- ${x}
`)

	got, err := ts.Evaluate("Outer", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	if got != "1 5 1" {
		t.Errorf("expected '1 5 1', got %v", got)
	}
}

func TestEvaluate_CalleeCannotSeeCallerParams(t *testing.T) {
	ts := mustParse(t, `# Main
- ${Caller('s3cret')}
# Caller(secret)
- ${Peek(1)}
# Peek(y)
- ${secret}
`)

	_, err := ts.Evaluate("Main", nil)
	if !errors.Is(err, ErrUndefinedReference) {
		t.Errorf("expected ErrUndefinedReference, got %v", err)
	}
}

func TestEvaluate_ParameterlessInheritsScope(t *testing.T) {
	ts := mustParse(t, `# Main(name)
- ${Polite()}
# Polite
- Dear ${name}
`)

	got, err := ts.EvaluateExpression("Main('Bo')", nil)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	if got != "Dear Bo" {
		t.Errorf("expected 'Dear Bo', got %v", got)
	}
}

func TestEvaluate_Conditional(t *testing.T) {
	ts := mustParse(t, `# TimeOfDay
- IF: ${hour < 12}
    - morning
- ELSEIF: ${hour < 18}
    - afternoon
- ELSE:
    - evening
`)

	for hour, want := range map[int]string{9: "morning", 15: "afternoon", 20: "evening"} {
		got, err := ts.Evaluate("TimeOfDay", map[string]any{"hour": hour})
		if err != nil {
			t.Fatalf("evaluate error: %v", err)
		}

		if got != want {
			t.Errorf("hour %d: expected %q, got %v", hour, want, got)
		}
	}
}

func TestEvaluate_Switch(t *testing.T) {
	ts := mustParse(t, `# Weekday
- SWITCH: ${day}
- CASE: ${'sat'}
    - weekend
- DEFAULT:
    - workday
`)

	for day, want := range map[string]string{"sat": "weekend", "mon": "workday"} {
		got, err := ts.Evaluate("Weekday", map[string]any{"day": day})
		if err != nil {
			t.Fatalf("evaluate error: %v", err)
		}

		if got != want {
			t.Errorf("day %s: expected %q, got %v", day, want, got)
		}
	}
}

func TestEvaluate_Structure(t *testing.T) {
	ts := mustParse(t, `# Card
[HeroCard
    title = ${title}
    buttons = Yes | No
    ${Defaults()}
]
# Defaults
[Base
    subtitle = default
    title = ignored
]
`)

	got, err := ts.Evaluate("Card", map[string]any{"title": "T"})
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	want := map[string]any{
		"lgType":   "HeroCard",
		"title":    "T",
		"buttons":  []any{"Yes", "No"},
		"subtitle": "default",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEvaluate_RawValue(t *testing.T) {
	ts := mustParse(t, "# Total\n- ${price * qty}\n# Label\n- total: ${price * qty}\n")

	scope := map[string]any{"price": 2.5, "qty": 4}

	got, err := ts.Evaluate("Total", scope)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	if got != 10.0 {
		t.Errorf("expected 10.0, got %v (%T)", got, got)
	}

	if got, _ := ts.Evaluate("Label", scope); got != "total: 10" {
		t.Errorf("expected 'total: 10', got %v", got)
	}
}

func TestEvaluate_Seeded(t *testing.T) {
	ts := mustParse(t, "# Pick\n- a\n- b\n- c\n- d\n")

	first, err := ts.Evaluate("Pick", nil, WithSeed(7))
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	for range 5 {
		if again, _ := ts.Evaluate("Pick", nil, WithSeed(7)); again != first {
			t.Fatalf("seeded evaluation not reproducible: %v != %v", again, first)
		}
	}

	if got, _ := ts.Evaluate("Pick", nil); got != "a" {
		t.Errorf("expected first variation by default, got %v", got)
	}
}

func TestEvaluate_Lenient(t *testing.T) {
	ts := mustParse(t, "# Hi\n- Hi ${missing}!\n")

	if _, err := ts.Evaluate("Hi", nil); !errors.Is(err, ErrUndefinedReference) {
		t.Errorf("expected ErrUndefinedReference, got %v", err)
	}

	got, err := ts.Evaluate("Hi", nil, WithStrict(false))
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	if got != "Hi ${missing}!" {
		t.Errorf("expected placeholder, got %v", got)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	ts := mustParse(t, "# Greeting(name)\n- hi ${name}\n# Plain\n- plain\n")

	tests := []struct {
		name string
		expr string
		want error
	}{
		{"divide_by_zero", "1 / 0", ErrArithmetic},
		{"modulo_by_zero", "5 % zero", ErrArithmetic},
		{"type_mismatch", `1 + "a"`, ErrTypeMismatch},
		{"undefined_variable", "missing + 1", ErrUndefinedReference},
		{"undefined_function", "Nope()", ErrUndefinedReference},
		{"argument_mismatch", "Greeting()", ErrArgumentMismatch},
		{"dynamic_not_found", "template('Nope')", ErrTemplateNotFound},
		{"syntax", "1 +", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.EvaluateExpression(tt.expr, map[string]any{"zero": 0})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := ts.Evaluate("Missing", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestEvaluateExpression_Builtins(t *testing.T) {
	ts := mustParse(t, "# Greeting\n- hello\n# Named(n)\n- hi ${n}\n")

	scope := map[string]any{
		"items": []any{1, 2, 3},
		"name":  "Ana",
	}

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"count", "count(items)", 3},
		{"where", "count(where(items, x, x > 1))", 2},
		{"contains_string", "contains(name, 'An')", true},
		{"contains_list", "contains(items, 2)", true},
		{"create_array", "count(createArray(1, 2))", 2},
		{"exists_missing", "exists(nothing)", false},
		{"coalesce", "coalesce(nothing, name)", "Ana"},
		{"is_empty", "isEmpty('')", true},
		{"add_numbers", "add(1, 2)", 3},
		{"add_text", "add('a', 1)", "a1"},
		{"if", "if(count(items) > 2, 'many', 'few')", "many"},
		{"at", "@Greeting", "hello"},
		{"call", "Named('Bo')", "hi Bo"},
		{"template", "template('Named', 'Cy')", "hi Cy"},
		{"is_template", "isTemplate('Greeting')", true},
		{"to_upper", "toUpper(name)", "ANA"},
		{"format_number", "formatNumber(3.14159, 2)", "3.14"},
		{"json_stringify", "jsonStringify(createArray(1))", "[1]"},
		{"divide_float", "3 / 2", 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ts.EvaluateExpression(tt.expr, scope)
			if err != nil {
				t.Fatalf("evaluate error: %v", err)
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v (%T), got %v (%T)", tt.want, tt.want, got, got)
			}
		})
	}
}

func TestEvaluateExpression_Arithmetic(t *testing.T) {
	ts := mustParse(t, "# Plain\n- plain\n")

	tests := []struct {
		name string
		expr string
		want any
		text string
	}{
		{"int_sum", "2 + 3", 5, "5"},
		{"int_difference", "10 - 4", 6, "6"},
		{"int_product", "6 * 7", 42, "42"},
		{"mixed_product", "2 * 1.5", 3.0, "3"},
		{"sum_overflow", "9223372036854775807 + 1", float64(1 << 63), "9223372036854776000"},
		{"difference_overflow", "-9223372036854775807 - 2", -float64(1 << 63), "-9223372036854776000"},
		{"product_overflow", "3037000500 * 3037000500", float64(3037000500) * float64(3037000500), "9223372037000250000"},
		{"concat_text", "'a' + 'b'", "ab", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ts.EvaluateExpression(tt.expr, nil)
			if err != nil {
				t.Fatalf("evaluate error: %v", err)
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v (%T), got %v (%T)", tt.want, tt.want, got, got)
			}

			if text := Format(got); text != tt.text {
				t.Errorf("expected %q, got %q", tt.text, text)
			}
		})
	}
}

func TestEvaluate_Imports(t *testing.T) {
	dir := t.TempDir()

	write := func(name, src string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
			t.Fatal(err)
		}

		return path
	}

	write("common.lg", "[import](deep.lg)\n# Hello\n- hi from common\n")
	write("deep.lg", "# Deep\n- deep\n")
	write("cards.lg", "# Title(x)\n- [${x}]\n")
	main := write("main.lg", `[import](common.lg)
[import](cards.lg) as cards
[import](missing.lg)
# Main
- ${Hello()} ${Deep()} ${cards.Title('t')}
`)

	ts := ParseFile(main)

	var notFound bool

	for _, d := range ts.Diagnostics() {
		if d.Severity == SeverityError && strings.Contains(d.Message, "file not found") {
			notFound = true
		} else if d.Severity == SeverityError {
			t.Errorf("unexpected error: %v", d)
		}
	}

	if !notFound {
		t.Errorf("expected file not found diagnostic, got %v", ts.Diagnostics())
	}

	got, err := ts.Evaluate("Main", nil)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	if got != "hi from common deep [t]" {
		t.Errorf("expected imported renderings, got %v", got)
	}

	if _, ok := ts.Get("cards.Title"); !ok {
		t.Error("expected aliased template in collection")
	}

	if _, ok := ts.Get("Title"); ok {
		t.Error("aliased import must not expose bare names")
	}

	if len(ts.Files()) != 4 {
		t.Errorf("expected 4 files, got %v", ts.Files())
	}
}

func TestTemplates_ImportCycle(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "a.lg")
	b := filepath.Join(dir, "b.lg")

	if err := os.WriteFile(a, []byte("[import](b.lg)\n# A\n- ${B()}a\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(b, []byte("[import](a.lg)\n# B\n- b\n# UsesA\n- ${A()}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ts := ParseFile(a)
	if ts.HasErrors() {
		t.Fatalf("unexpected errors: %v", ts.Diagnostics())
	}

	if got, err := ts.Evaluate("A", nil); err != nil || got != "ba" {
		t.Errorf("expected 'ba', got %v, %v", got, err)
	}

	if got, err := ts.Evaluate("UsesA", nil); err != nil || got != "ba" {
		t.Errorf("expected 'ba', got %v, %v", got, err)
	}
}

func TestTemplates_StaticChecks(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains string
	}{
		{"undefined", "# A\n- ${Nope()}\n", "undefined template or function"},
		{"undefined_at", "# A\n- ${@Nope}\n", "undefined template or function"},
		{"arity", "# A\n- ${B(1, 2)}\n# B(x)\n- ${x}\n", "expects 1 argument(s), got 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := ParseText(tt.src, tt.name+".lg")

			for _, d := range ts.Diagnostics() {
				if d.Severity == SeverityError && strings.Contains(d.Message, tt.contains) {
					return
				}
			}

			t.Errorf("expected error containing %q, got %v", tt.contains, ts.Diagnostics())
		})
	}
}

func TestTemplates_References(t *testing.T) {
	ts := mustParse(t, "# Main(user)\n- ${Greeting(user.name)} ${toUpper(title)}\n# Greeting(n)\n- hi ${n}\n")

	refs, ok := ts.References("Main")
	if !ok {
		t.Fatal("expected references for Main")
	}

	if !slices.Equal(refs.Templates, []string{"Greeting"}) {
		t.Errorf("expected templates [Greeting], got %v", refs.Templates)
	}

	if !slices.Equal(refs.Functions, []string{"toUpper"}) {
		t.Errorf("expected functions [toUpper], got %v", refs.Functions)
	}

	if !slices.Equal(refs.Variables, []string{"title"}) {
		t.Errorf("expected variables [title], got %v", refs.Variables)
	}

	if callers := ts.Callers("Greeting"); !slices.Equal(callers, []string{"Main"}) {
		t.Errorf("expected callers [Main], got %v", callers)
	}
}

func TestTemplates_DuplicateLastWins(t *testing.T) {
	ts := ParseText("# A\n- first\n# A\n- second\n", "dup.lg")

	got, err := ts.Evaluate("A", nil)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}

	if got != "second" {
		t.Errorf("expected last definition, got %v", got)
	}

	var n int
	for range ts.All() {
		n++
	}

	if n != 1 {
		t.Errorf("expected one template, got %d", n)
	}
}
