package lang

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Position is a zero-based line and column (in runes) within a source file.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"character"`
}

// String formats p one-based, as editors and compilers print it.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Column+1)
}

// Before reports whether p precedes q.
func (p Position) Before(q Position) bool {
	return p.Line < q.Line || (p.Line == q.Line && p.Column < q.Column)
}

// Range is a half-open span [Start, End) within a source file.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether p falls inside r. The end position is included
// so that a cursor placed right after a word still selects it.
func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && !r.End.Before(p)
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Severity classifies a [Diagnostic].
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}

	return "unknown"
}

// Diagnostic is a problem found while building a template collection.
// Diagnostics never abort a build.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Range    Range    `json:"range"`
	Source   string   `json:"source"`
	Template string   `json:"template,omitempty"`
	// Code is the message of the sentinel error that classifies the
	// diagnostic, e.g. "syntax error".
	Code string `json:"code,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%s: %s: %s", d.Source, d.Range.Start, d.Severity, d.Message)
}

// LogValue implements [slog.LogValuer].
func (d Diagnostic) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("severity", d.Severity.String()),
		slog.String("source", d.Source),
		slog.String("position", d.Range.Start.String()),
		slog.String("message", d.Message),
	)
}

// Diagnostics is an ordered list of diagnostics.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic has [SeverityError].
func (ds Diagnostics) HasErrors() bool {
	return slices.ContainsFunc(ds, func(d Diagnostic) bool {
		return d.Severity == SeverityError
	})
}

// For returns the diagnostics reported against source.
func (ds Diagnostics) For(source string) Diagnostics {
	var out Diagnostics

	for _, d := range ds {
		if d.Source == source {
			out = append(out, d)
		}
	}

	return out
}

// sortByPosition orders ds by start position, keeping the original order of
// diagnostics that start at the same place.
func (ds Diagnostics) sortByPosition() {
	slices.SortStableFunc(ds, func(a, b Diagnostic) int {
		if c := cmp.Compare(a.Range.Start.Line, b.Range.Start.Line); c != 0 {
			return c
		}

		return cmp.Compare(a.Range.Start.Column, b.Range.Start.Column)
	})
}

func diagnose(sev Severity, kind *Error, src string, rng Range, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Message:  msg,
		Range:    rng,
		Source:   src,
		Code:     kind.msg,
	}
}
