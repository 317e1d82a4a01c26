package lang

import (
	"errors"
	"slices"
	"testing"
)

func TestExpand_Completeness(t *testing.T) {
	ts := mustParse(t, `# Greeting
- Hello
- Hi
# Status
- IF: ${ready}
    - ready
- ELSE:
    - waiting
# Main
- ${Greeting()}, ${Status()}
`)

	var got []string

	for v, err := range ts.Expand("Main", nil) {
		if err != nil {
			t.Fatalf("expand error: %v", err)
		}

		got = append(got, v.(string))
	}

	want := []string{"Hello, ready", "Hello, waiting", "Hi, ready", "Hi, waiting"}

	slices.Sort(got)

	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExpand_DecidedConditionIsNotAChoice(t *testing.T) {
	ts := mustParse(t, `# Status
- IF: ${ready}
    - ready
- ELSE:
    - waiting
`)

	var got []any
	for v := range ts.Expand("Status", map[string]any{"ready": false}) {
		got = append(got, v)
	}

	if !slices.Equal(got, []any{"waiting"}) {
		t.Errorf("expected only 'waiting', got %v", got)
	}
}

func TestExpand_Switch(t *testing.T) {
	ts := mustParse(t, `# Day
- SWITCH: ${day}
- CASE: ${'sat'}
    - weekend
- DEFAULT:
    - weekday
    - workday
`)

	var got []any
	for v := range ts.Expand("Day", nil) {
		got = append(got, v)
	}

	if !slices.Equal(got, []any{"weekend", "weekday", "workday"}) {
		t.Errorf("unexpected renderings %v", got)
	}
}

func TestExpand_EarlyStop(t *testing.T) {
	ts := mustParse(t, "# Many\n- ${A()}${A()}${A()}\n# A\n- a\n- b\n- c\n")

	n := 0
	for range ts.Expand("Many", nil) {
		n++
		if n == 5 {
			break
		}
	}

	if n != 5 {
		t.Errorf("expected to stop after 5, got %d", n)
	}

	var all int
	for range ts.Expand("Many", nil) {
		all++
	}

	if all != 27 {
		t.Errorf("expected 27 renderings, got %d", all)
	}
}

func TestExpand_Errors(t *testing.T) {
	ts := mustParse(t, "# Fails\n- ${1 / zero}\n- fine\n")

	var results []any

	var errs int

	for v, err := range ts.Expand("Fails", map[string]any{"zero": 0}) {
		if err != nil {
			if !errors.Is(err, ErrArithmetic) {
				t.Errorf("expected ErrArithmetic, got %v", err)
			}

			errs++

			continue
		}

		results = append(results, v)
	}

	if errs != 1 || !slices.Equal(results, []any{"fine"}) {
		t.Errorf("expected one error and 'fine', got %d errors and %v", errs, results)
	}

	for _, err := range ts.Expand("Nope", nil) {
		if !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("expected ErrTemplateNotFound, got %v", err)
		}
	}
}

func TestTake(t *testing.T) {
	ts := mustParse(t, "# Pick\n- a\n- b\n- c\n")

	var got []any
	for v := range Take(ts.Expand("Pick", nil), 2) {
		got = append(got, v)
	}

	if !slices.Equal(got, []any{"a", "b"}) {
		t.Errorf("expected [a b], got %v", got)
	}

	for range Take(ts.Expand("Pick", nil), 0) {
		t.Error("expected no renderings")
	}
}
