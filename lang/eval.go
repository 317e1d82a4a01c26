package lang

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ardnew/lgen/log"
)

// DefaultMaxDepth bounds the template call stack of one evaluation.
const DefaultMaxDepth = 100

// EvalOption configures a call to [Templates.Evaluate] or
// [Templates.Expand].
type EvalOption func(*evalConfig)

type evalConfig struct {
	strict   bool
	seeded   bool
	seed     uint64
	maxDepth int
}

// WithStrict selects whether expression failures abort the evaluation
// (the default) or are replaced by their ${...} source text and logged.
func WithStrict(strict bool) EvalOption {
	return func(c *evalConfig) { c.strict = strict }
}

// WithSeed picks variations at random from a generator seeded with seed.
// Without it the first variation is always chosen.
func WithSeed(seed uint64) EvalOption {
	return func(c *evalConfig) {
		c.seeded = true
		c.seed = seed
	}
}

// WithMaxDepth bounds the depth of nested template calls.
func WithMaxDepth(depth int) EvalOption {
	return func(c *evalConfig) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// state is the phase of an evaluation, reported at trace level.
type state int

const (
	stateResolving state = iota
	stateLiteral
	stateExpression
	stateRecursing
	stateBranching
	stateDone
	stateFailed
)

func (s state) String() string {
	return [...]string{
		"resolving", "literal", "expression", "recursing", "branching", "done", "failed",
	}[s]
}

// chooser picks one of n alternatives.
type chooser interface {
	choose(n int) int
}

type firstChoice struct{}

func (firstChoice) choose(int) int { return 0 }

type randomChoice struct{ rng *rand.Rand }

func (c randomChoice) choose(n int) int { return c.rng.IntN(n) }

type frame struct {
	tmpl  *Template
	scope *Scope
}

// session is the state of one top-level evaluation.
type session struct {
	t       *Templates
	cfg     evalConfig
	choice  chooser
	expand  bool
	root    *Scope
	stack   []frame
	fault   error
	logger  log.Logger
	tracing bool
}

func (t *Templates) newSession(root *Scope, opts []EvalOption) *session {
	cfg := evalConfig{strict: true, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &session{
		t:       t,
		cfg:     cfg,
		choice:  firstChoice{},
		root:    root,
		logger:  t.logger,
		tracing: t.logger.Enabled(context.Background(), log.LevelTrace),
	}

	if cfg.seeded {
		s.choice = randomChoice{rng: rand.New(rand.NewPCG(cfg.seed, cfg.seed))}
	}

	return s
}

// Evaluate renders the template called name against scope.
//
// Text templates produce a string, structure templates a map[string]any
// with an "lgType" key. A variation made of a single ${...} produces the
// expression's value unchanged.
func (t *Templates) Evaluate(name string, scope any, opts ...EvalOption) (any, error) {
	tmpl, ok := t.index[name]
	if !ok {
		return nil, ErrTemplateNotFound.With(slog.String("template", name))
	}

	root, err := NewScope(scope)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("evaluate template", slog.String("template", name))

	return t.newSession(root, opts).call(tmpl, nil, root)
}

// EvaluateExpression evaluates the expression src against scope. Every
// template of the collection is callable from it.
func (t *Templates) EvaluateExpression(src string, scope any, opts ...EvalOption) (any, error) {
	e := compileExpression(src, Range{})
	e.file = &File{Path: "<expression>", visible: t.index}

	if e.err != nil {
		return nil, e.err
	}

	root, err := NewScope(scope)
	if err != nil {
		return nil, err
	}

	return t.newSession(root, opts).value(e, root)
}

func (s *session) trace(st state, attrs ...slog.Attr) {
	if !s.tracing {
		return
	}

	attrs = append(attrs, slog.String("state", st.String()), slog.Int("depth", len(s.stack)))
	if n := len(s.stack); n > 0 {
		attrs = append(attrs, slog.String("template", s.stack[n-1].tmpl.Name))
	}

	s.logger.Trace("evaluate", attrs...)
}

// pick chooses among n alternatives.
func (s *session) pick(n int) int {
	if n <= 1 {
		return 0
	}

	return s.choice.choose(n)
}

// lenient reports whether err is replaced instead of returned.
func (s *session) lenient(err error) bool {
	return !s.cfg.strict && !errors.Is(err, ErrCircularReference)
}

// call evaluates tmpl. Arguments bind tmpl's parameters over the root
// scope; without any, tmpl evaluates in the caller's scope. A nil args
// skips the arity check, which lets the top-level template and @Name read
// their parameters from the scope.
func (s *session) call(tmpl *Template, args []any, caller *Scope) (any, error) {
	if len(s.stack) >= s.cfg.maxDepth {
		return nil, ErrCircularReference.With(
			slog.String("template", tmpl.Name),
			slog.String("chain", s.chain(tmpl)),
			slog.Int("depth", len(s.stack)),
		)
	}

	if tmpl.Broken {
		return nil, ErrSyntax.With(
			slog.String("template", tmpl.Name),
			slog.String("source", tmpl.Source),
			slog.String("reason", "template has errors"),
		)
	}

	scope := caller

	if args != nil && len(args) != len(tmpl.Params) {
		return nil, ErrArgumentMismatch.With(
			slog.String("template", tmpl.Name),
			slog.Int("want", len(tmpl.Params)),
			slog.Int("got", len(args)),
		)
	}

	if len(args) > 0 {
		vars := make(map[string]any, len(args))
		for i, p := range tmpl.Params {
			vars[p] = args[i]
		}

		scope = s.root.Child(vars)
	}

	s.stack = append(s.stack, frame{tmpl: tmpl, scope: scope})
	defer func() { s.stack = s.stack[:len(s.stack)-1] }()

	s.trace(stateResolving)

	v, err := s.body(&tmpl.Body, scope)
	if err != nil {
		s.trace(stateFailed)

		return nil, err
	}

	s.trace(stateDone)

	return v, nil
}

// chain describes the frames leading back to tmpl, "A -> B -> A".
func (s *session) chain(tmpl *Template) string {
	start := 0

	for i, f := range s.stack {
		if f.tmpl == tmpl {
			start = i

			break
		}
	}

	names := make([]string, 0, len(s.stack)-start+1)
	for _, f := range s.stack[start:] {
		names = append(names, f.tmpl.Name)
	}

	return strings.Join(append(names, tmpl.Name), " -> ")
}

func (s *session) body(b *Body, sc *Scope) (any, error) {
	switch b.Kind {
	case KindNormal:
		if len(b.Variations) == 0 {
			return "", nil
		}

		return s.line(b.Variations[s.pick(len(b.Variations))], sc)

	case KindConditional:
		return s.conditional(b, sc)

	case KindSwitch:
		return s.switchCase(b, sc)

	case KindStructure:
		return s.structure(b.Structure, sc)
	}

	return "", nil
}

func (s *session) conditional(b *Body, sc *Scope) (any, error) {
	for i := range b.Branches {
		br := &b.Branches[i]

		if br.Kind == BranchElse {
			return s.body(&br.Body, sc)
		}

		ok, err := s.test(br.Cond, sc)
		if err != nil {
			return nil, err
		}

		if ok {
			return s.body(&br.Body, sc)
		}
	}

	return "", nil
}

// test evaluates a condition. When expanding, a condition that cannot be
// decided because it reads unbound names is a choice between taking and
// skipping its branch.
func (s *session) test(e *Expression, sc *Scope) (bool, error) {
	s.trace(stateBranching, slog.String("condition", e.Source))

	v, err := s.eval(e, sc)

	switch {
	case err == nil:
		return truthy(v), nil

	case s.expand && errors.Is(err, ErrUndefinedReference):
		return s.pick(2) == 0, nil

	case s.lenient(err):
		s.logger.Warn("condition failed, treating as false",
			slog.String("condition", e.Source), slog.Any("error", asError(err)))

		return false, nil
	}

	return false, err
}

func (s *session) switchCase(b *Body, sc *Scope) (any, error) {
	s.trace(stateBranching, slog.String("switch", b.Switch.Source))

	d, err := s.eval(b.Switch, sc)
	if err != nil {
		switch {
		case s.expand && errors.Is(err, ErrUndefinedReference):
			if len(b.Cases) == 0 {
				return "", nil
			}

			return s.body(&b.Cases[s.pick(len(b.Cases))].Body, sc)

		case s.lenient(err):
			s.logger.Warn("switch failed, using DEFAULT",
				slog.String("switch", b.Switch.Source), slog.Any("error", asError(err)))

			d = nil

		default:
			return nil, err
		}
	}

	var def *Case

	for i := range b.Cases {
		c := &b.Cases[i]

		if c.Value == nil {
			def = c

			continue
		}

		if err != nil {
			continue
		}

		v, verr := s.eval(c.Value, sc)
		if verr != nil {
			if s.lenient(verr) {
				continue
			}

			return nil, verr
		}

		if equal(d, v) {
			return s.body(&c.Body, sc)
		}
	}

	if def != nil {
		return s.body(&def.Body, sc)
	}

	return "", nil
}

func (s *session) structure(st *Structure, sc *Scope) (any, error) {
	out := map[string]any{"lgType": st.Type}

	for _, p := range st.Properties {
		if len(p.Values) == 1 {
			v, err := s.line(p.Values[0], sc)
			if err != nil {
				return nil, err
			}

			out[p.Key] = v

			continue
		}

		list := make([]any, 0, len(p.Values))

		for _, l := range p.Values {
			v, err := s.line(l, sc)
			if err != nil {
				return nil, err
			}

			list = append(list, v)
		}

		out[p.Key] = list
	}

	for _, m := range st.Merges {
		v, err := s.value(m, sc)
		if err != nil {
			return nil, err
		}

		obj, ok := v.(map[string]any)
		if !ok {
			err := ErrTypeMismatch.With(
				slog.String("expression", m.Source),
				slog.String("want", "object"),
				slog.String("got", typeName(v)),
			)

			if s.lenient(err) {
				s.logger.Warn("structure merge skipped", slog.Any("error", err))

				continue
			}

			return nil, err
		}

		for k, val := range obj {
			if _, exists := out[k]; !exists {
				out[k] = val
			}
		}
	}

	return out, nil
}

// line renders l. A line made of one expression yields its raw value.
func (s *session) line(l Line, sc *Scope) (any, error) {
	if e, ok := l.Expression(); ok {
		return s.value(e, sc)
	}

	var b strings.Builder

	for _, seg := range l.Segments {
		if seg.Kind == SegmentText {
			s.trace(stateLiteral)
			b.WriteString(seg.Text)

			continue
		}

		v, err := s.value(seg.Expr, sc)
		if err != nil {
			return nil, err
		}

		b.WriteString(Format(v))
	}

	return b.String(), nil
}

// value evaluates e, substituting its source text for failures when not
// strict.
func (s *session) value(e *Expression, sc *Scope) (any, error) {
	v, err := s.eval(e, sc)
	if err != nil && s.lenient(err) {
		s.logger.Warn("expression failed, substituting its source",
			slog.String("expression", e.Source), slog.Any("error", asError(err)))

		return "${" + e.Source + "}", nil
	}

	return v, err
}

func (s *session) eval(e *Expression, sc *Scope) (any, error) {
	if e.err != nil {
		return nil, e.err
	}

	for _, name := range e.vars {
		if !sc.Has(name) {
			return nil, ErrUndefinedReference.With(
				slog.String("name", name),
				slog.String("expression", e.Source),
			)
		}
	}

	for _, c := range e.calls {
		if c.Indirect || (c.Args >= 0 && isFunction(c.Name)) || e.file.visible[c.Name] != nil {
			continue
		}

		if s.t.undefined(e.file, c) {
			return nil, ErrUndefinedReference.With(
				slog.String("name", c.Name),
				slog.String("expression", e.Source),
			)
		}
	}

	prog, err := e.program(s.logger)
	if err != nil {
		return nil, err
	}

	env := sc.env(len(e.calls) + 3)
	s.bind(env, e, sc)

	s.trace(stateExpression, slog.String("expression", e.Source))

	s.fault = nil

	out, err := expr.Run(prog, env)

	if fault := s.fault; fault != nil {
		s.fault = nil

		return nil, fault
	}

	if err != nil {
		return nil, classify(err, ErrEvaluate).With(slog.String("expression", e.Source))
	}

	return out, nil
}

// bind adds the functions that evaluate templates to env. They run in
// this session and see the scope sc of the calling expression.
func (s *session) bind(env map[string]any, e *Expression, sc *Scope) {
	f := e.file

	for _, c := range e.calls {
		if c.Indirect || isFunction(c.Name) || f.visible[c.Name] == nil {
			continue
		}

		name := c.Name
		env[name] = func(args ...any) (any, error) {
			if args == nil {
				args = []any{}
			}

			return s.invoke(f, name, args, sc)
		}
	}

	env[atFunc] = func(name string) (any, error) {
		return s.invoke(f, name, nil, sc)
	}

	env["template"] = func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, s.record(ErrArgumentMismatch.With(slog.String("function", "template")))
		}

		name, ok := args[0].(string)
		if !ok {
			return nil, s.record(ErrTypeMismatch.With(
				slog.String("function", "template"),
				slog.String("got", typeName(args[0])),
			))
		}

		return s.invoke(f, name, append([]any{}, args[1:]...), sc)
	}

	env["isTemplate"] = func(name string) bool {
		return f.visible[name] != nil
	}
}

func (s *session) invoke(f *File, name string, args []any, sc *Scope) (any, error) {
	tmpl := f.visible[name]
	if tmpl == nil {
		return nil, s.record(ErrTemplateNotFound.With(slog.String("template", name)))
	}

	s.trace(stateRecursing, slog.String("call", name))

	v, err := s.call(tmpl, args, sc)
	if err != nil {
		return nil, s.record(err)
	}

	return v, nil
}

// record keeps the first typed error raised inside expr-lang, which
// otherwise reaches the caller only as text.
func (s *session) record(err error) error {
	if s.fault == nil {
		s.fault = err
	}

	return err
}
