package lang

import (
	"iter"
	"strings"
)

// File is the parse result of one LG source file. Imports are recorded but
// not resolved.
type File struct {
	Path        string
	Templates   []*Template
	Imports     []Import
	Diagnostics Diagnostics

	visible map[string]*Template // populated by the collection builder
}

// Import is an `[import](path)` directive, optionally aliased with
// `as name`.
type Import struct {
	Path     string // as written
	Resolved string // absolute path, set by the collection builder
	Alias    string
	Range    Range
}

// Template is a named, parameterized unit of LG source.
type Template struct {
	Name      string
	Params    []string
	Body      Body
	Source    string
	Range     Range // header through the last body line
	NameRange Range
	// Broken is set when the template produced error diagnostics.
	// Evaluating it fails with [ErrSyntax].
	Broken bool

	file *File
}

// Signature formats the template header without the leading '#'.
func (t *Template) Signature() string {
	return t.Name + "(" + strings.Join(t.Params, ", ") + ")"
}

// File returns the file that defines t.
func (t *Template) File() *File { return t.file }

// Expressions yields every expression in t's body in source order.
func (t *Template) Expressions() iter.Seq[*Expression] {
	return func(yield func(*Expression) bool) {
		t.Body.walk(yield)
	}
}

// Kind identifies the shape of a template body.
type Kind int

const (
	// KindNormal is a list of alternative variations.
	KindNormal Kind = iota
	// KindConditional is an IF/ELSEIF/ELSE chain.
	KindConditional
	// KindSwitch is a SWITCH/CASE/DEFAULT block.
	KindSwitch
	// KindStructure is a `[Type ... ]` structured value.
	KindStructure
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindConditional:
		return "conditional"
	case KindSwitch:
		return "switch"
	case KindStructure:
		return "structure"
	}

	return "unknown"
}

// Body is the closed set of template body shapes. Kind selects which of
// the remaining fields are meaningful.
type Body struct {
	Kind  Kind
	Range Range

	Variations []Line   // KindNormal
	Branches   []Branch // KindConditional

	Switch *Expression // KindSwitch discriminant
	Cases  []Case      // KindSwitch; DEFAULT has a nil Value

	Structure *Structure // KindStructure
}

// Line is one rendered text line: a variation, or a structure value.
type Line struct {
	Segments []Segment
	Range    Range
}

// Expression returns the single expression making up l, if any.
// Such lines evaluate to the raw expression value instead of text.
func (l Line) Expression() (*Expression, bool) {
	if len(l.Segments) == 1 && l.Segments[0].Kind != SegmentText {
		return l.Segments[0].Expr, true
	}

	return nil, false
}

// SegmentKind identifies the payload of a [Segment].
type SegmentKind int

const (
	// SegmentText is literal text with escapes already decoded.
	SegmentText SegmentKind = iota
	// SegmentExpression is an embedded ${...} expression.
	SegmentExpression
	// SegmentTemplateRef is an embedded expression that is a single call
	// to a named template, e.g. ${Greeting(name)}.
	SegmentTemplateRef
)

// Segment is a piece of a [Line].
type Segment struct {
	Kind SegmentKind
	Text string
	Expr *Expression
}

// BranchKind is the keyword introducing a [Branch].
type BranchKind int

const (
	BranchIf BranchKind = iota
	BranchElseIf
	BranchElse
)

func (k BranchKind) String() string {
	return [...]string{"IF", "ELSEIF", "ELSE"}[k]
}

// Branch is one arm of a conditional. Cond is nil for ELSE.
type Branch struct {
	Kind  BranchKind
	Cond  *Expression
	Body  Body
	Range Range
}

// Case is one arm of a switch. Value is nil for DEFAULT.
type Case struct {
	Value *Expression
	Body  Body
	Range Range
}

// Structure is a structured value: a type name, ordered properties, and
// expressions whose object results are merged in.
type Structure struct {
	Type       string
	Properties []Property
	Merges     []*Expression
	Range      Range
}

// Property is `key = value | value ...`. More than one value produces a
// list.
type Property struct {
	Key    string
	Values []Line
	Range  Range
}

func (b *Body) walk(yield func(*Expression) bool) bool {
	lines := func(ls []Line) bool {
		for _, l := range ls {
			for _, s := range l.Segments {
				if s.Expr != nil && !yield(s.Expr) {
					return false
				}
			}
		}

		return true
	}

	switch b.Kind {
	case KindNormal:
		return lines(b.Variations)

	case KindConditional:
		for i := range b.Branches {
			br := &b.Branches[i]
			if br.Cond != nil && !yield(br.Cond) {
				return false
			}

			if !br.Body.walk(yield) {
				return false
			}
		}

	case KindSwitch:
		if b.Switch != nil && !yield(b.Switch) {
			return false
		}

		for i := range b.Cases {
			c := &b.Cases[i]
			if c.Value != nil && !yield(c.Value) {
				return false
			}

			if !c.Body.walk(yield) {
				return false
			}
		}

	case KindStructure:
		if b.Structure == nil {
			return true
		}

		for _, p := range b.Structure.Properties {
			if !lines(p.Values) {
				return false
			}
		}

		for _, m := range b.Structure.Merges {
			if !yield(m) {
				return false
			}
		}
	}

	return true
}
