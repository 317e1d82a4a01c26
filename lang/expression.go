package lang

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	exprparser "github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/ardnew/lgen/log"
)

// Expression is the source of one ${...} marker together with its parsed
// form and the names it refers to.
type Expression struct {
	Source string
	Range  Range

	code  string // Source after LG-specific rewrites
	ref   string // callee when the expression is a single call
	calls []Call
	vars  []string
	err   error

	file *File

	once sync.Once
	prog *vm.Program
	perr error
}

// Call is a function or template invocation found in an expression.
// Args is -1 for the `@Name` form, which passes no arguments and evaluates
// in the caller's scope. Indirect calls name their template with a string,
// as `@Name` and `template("Name", ...)` do.
type Call struct {
	Name     string
	Args     int
	Indirect bool
}

// Calls returns the invocations made by e in source order.
func (e *Expression) Calls() []Call { return e.calls }

// Variables returns the distinct free variables read by e, sorted.
func (e *Expression) Variables() []string { return e.vars }

// Err returns the error from parsing e, if any.
func (e *Expression) Err() error { return e.err }

// compileExpression rewrites and parses src. The returned Expression is
// always usable; parse failures are kept in Err.
func compileExpression(src string, rng Range) *Expression {
	e := &Expression{Source: src, Range: rng}

	if strings.TrimSpace(src) == "" {
		e.err = ErrSyntax.Wrap(errEmptyExpression)

		return e
	}

	e.code = rewrite(src)

	tree, err := exprparser.Parse(e.code)
	if err != nil {
		e.err = ErrSyntax.Wrap(firstLine(err))

		return e
	}

	e.ref = templateCall(tree.Node)

	v := newRefVisitor()
	ast.Walk(&tree.Node, v)
	e.calls, e.vars = v.result()

	return e
}

// program compiles e on first use. Template calls are resolved against the
// namespace of the file defining e, so compilation waits until the
// collection is built.
func (e *Expression) program(logger log.Logger) (*vm.Program, error) {
	e.once.Do(func() {
		if e.err != nil {
			e.perr = e.err

			return
		}

		var visible map[string]*Template
		if e.file != nil {
			visible = e.file.visible
		}

		opts := append(staticFunctions(),
			expr.Patch(&callPatcher{visible: visible, logger: logger}),
			expr.Patch(arithmeticPatcher{}),
		)

		prog, err := expr.Compile(e.code, opts...)
		if err != nil {
			e.perr = classify(err, ErrSyntax).With(slog.String("expression", e.Source))

			return
		}

		e.prog = prog
	})

	return e.prog, e.perr
}

// classify maps an error reported by expr-lang to the matching sentinel.
// Errors raised by LG functions arrive wrapped in expr-lang's own error
// type, so their messages are matched as well.
func classify(err error, fallback *Error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	msg := firstLine(err)

	for _, kind := range []*Error{
		ErrArithmetic, ErrTypeMismatch, ErrArgumentMismatch,
		ErrUndefinedReference, ErrTemplateNotFound, ErrCircularReference,
	} {
		if strings.Contains(msg.Error(), kind.msg) {
			return kind.Wrap(msg)
		}
	}

	for _, hint := range []string{"invalid operation", "mismatched types", "cannot use", "cannot fetch", "unsupported type"} {
		if strings.Contains(msg.Error(), hint) {
			return ErrTypeMismatch.Wrap(msg)
		}
	}

	if strings.Contains(msg.Error(), "divide by zero") {
		return ErrArithmetic.Wrap(msg)
	}

	return fallback.Wrap(msg)
}

// templateCall reports the callee when the whole expression is a single
// call with a plain or dotted name, e.g. `Greeting(name)` or `@Greeting`.
func templateCall(root ast.Node) string {
	call, ok := root.(*ast.CallNode)
	if !ok {
		return ""
	}

	name := calleeName(call.Callee)
	if name == atFunc && len(call.Arguments) == 1 {
		if s, ok := call.Arguments[0].(*ast.StringNode); ok {
			return s.Value
		}
	}

	if _, custom := customFuncs[name]; custom || strings.HasPrefix(name, "__") {
		return ""
	}

	return name
}

type errorString string

func (e errorString) Error() string { return string(e) }

const errEmptyExpression = errorString("empty expression")

// firstLine drops the source snippet expr-lang appends to its messages.
func firstLine(err error) error {
	msg, _, _ := strings.Cut(err.Error(), "\n")

	return errorString(msg)
}

// refVisitor collects calls and free variables. [ast.Walk] visits children
// before their parent, so callees are only known after the walk.
type refVisitor struct {
	idents  []*ast.IdentifierNode
	callees map[*ast.IdentifierNode]bool
	lets    map[string]bool
	soft    []ast.Node
	calls   []Call
}

func newRefVisitor() *refVisitor {
	return &refVisitor{
		callees: map[*ast.IdentifierNode]bool{},
		lets:    map[string]bool{},
	}
}

// Visit implements [ast.Visitor].
func (v *refVisitor) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		v.idents = append(v.idents, n)

	case *ast.VariableDeclaratorNode:
		v.lets[n.Name] = true

	case *ast.CallNode:
		if root := calleeRoot(n.Callee); root != nil {
			v.callees[root] = true
		}

		name := calleeName(n.Callee)

		switch name {
		case "":
			return

		case atFunc, "template":
			if len(n.Arguments) > 0 {
				if s, ok := n.Arguments[0].(*ast.StringNode); ok {
					args := len(n.Arguments) - 1
					if name == atFunc {
						args = -1
					}

					v.calls = append(v.calls, Call{Name: s.Value, Args: args, Indirect: true})
				}
			}

		case "exists", "coalesce", "isEmpty":
			// undefined names are legal arguments here
			v.soft = append(v.soft, n.Arguments...)
		}

		if !strings.HasPrefix(name, "__") {
			v.calls = append(v.calls, Call{Name: name, Args: len(n.Arguments)})
		}

	case *ast.BuiltinNode:
		v.calls = append(v.calls, Call{Name: n.Name, Args: len(n.Arguments)})
	}
}

func (v *refVisitor) result() ([]Call, []string) {
	soft := map[*ast.IdentifierNode]bool{}

	for i := range v.soft {
		c := &identCollector{}
		ast.Walk(&v.soft[i], c)

		for _, id := range c.idents {
			soft[id] = true
		}
	}

	var vars []string

	for _, id := range v.idents {
		switch {
		case v.callees[id], soft[id], v.lets[id.Value]:
		case strings.HasPrefix(id.Value, "$"):
		default:
			vars = append(vars, id.Value)
		}
	}

	slices.Sort(vars)

	return v.calls, slices.Compact(vars)
}

type identCollector struct{ idents []*ast.IdentifierNode }

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		c.idents = append(c.idents, id)
	}
}

// calleeName returns "a.b.c" for callees written as plain or dotted names.
func calleeName(n ast.Node) string {
	switch c := n.(type) {
	case *ast.IdentifierNode:
		return c.Value

	case *ast.MemberNode:
		prop, ok := c.Property.(*ast.StringNode)
		if !ok || c.Optional {
			return ""
		}

		base := calleeName(c.Node)
		if base == "" {
			return ""
		}

		return base + "." + prop.Value
	}

	return ""
}

func calleeRoot(n ast.Node) *ast.IdentifierNode {
	switch c := n.(type) {
	case *ast.IdentifierNode:
		return c
	case *ast.MemberNode:
		if _, ok := c.Property.(*ast.StringNode); ok {
			return calleeRoot(c.Node)
		}
	}

	return nil
}
