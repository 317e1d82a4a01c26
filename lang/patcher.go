package lang

import (
	"log/slog"

	"github.com/expr-lang/expr/ast"

	"github.com/ardnew/lgen/log"
)

// callPatcher resolves dotted template names.
//
// LG template names and import aliases may contain dots ("Card.Header",
// "common.Greeting"), which expr-lang parses as member access on a
// variable. When the joined name is a visible template, the callee is
// replaced with a single identifier naming the registered function.
type callPatcher struct {
	visible map[string]*Template
	logger  log.Logger
}

// Visit implements [ast.Visitor].
func (p *callPatcher) Visit(node *ast.Node) {
	call, ok := (*node).(*ast.CallNode)
	if !ok {
		return
	}

	if _, ok := call.Callee.(*ast.MemberNode); !ok {
		return
	}

	name := calleeName(call.Callee)
	if name == "" {
		return
	}

	if _, ok := p.visible[name]; !ok {
		return
	}

	p.logger.Trace("patch dotted call", slog.String("name", name))

	ast.Patch(&call.Callee, &ast.IdentifierNode{Value: name})
}

// arithmeticPatcher routes the arithmetic operators through functions.
// '/' and '%' report division by zero as [ErrArithmetic] instead of
// producing Inf or a runtime panic; '+', '-' and '*' compute in float64
// when an integer result would overflow.
type arithmeticPatcher struct{}

// Visit implements [ast.Visitor].
func (arithmeticPatcher) Visit(node *ast.Node) {
	bin, ok := (*node).(*ast.BinaryNode)
	if !ok {
		return
	}

	var fn string

	switch bin.Operator {
	case "+":
		fn = "__add"
	case "-":
		fn = "__subtract"
	case "*":
		fn = "__multiply"
	case "/":
		fn = "__divide"
	case "%":
		fn = "__modulo"
	default:
		return
	}

	ast.Patch(node, &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: fn},
		Arguments: []ast.Node{bin.Left, bin.Right},
	})
}
