package lang

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// check computes the reference graph and reports calls that resolve to
// nothing, arity mismatches, and unconditional reference cycles.
func (t *Templates) check() {
	for _, f := range t.files {
		for _, tmpl := range f.Templates {
			t.refs[tmpl] = references(tmpl)
			t.checkCalls(f, tmpl)
		}
	}

	t.checkCycles()
}

func references(tmpl *Template) Refs {
	var r Refs

	for e := range tmpl.Expressions() {
		for _, c := range e.calls {
			if c.Args >= 0 && isFunction(c.Name) {
				r.Functions = append(r.Functions, c.Name)
			} else {
				r.Templates = append(r.Templates, c.Name)
			}
		}

		for _, v := range e.vars {
			if !slices.Contains(tmpl.Params, v) {
				r.Variables = append(r.Variables, v)
			}
		}
	}

	for _, names := range []*[]string{&r.Templates, &r.Functions, &r.Variables} {
		slices.Sort(*names)
		*names = slices.Compact(*names)
	}

	return r
}

func (t *Templates) checkCalls(f *File, tmpl *Template) {
	for e := range tmpl.Expressions() {
		if e.err != nil {
			continue
		}

		for _, c := range e.calls {
			if c.Args >= 0 && isFunction(c.Name) {
				continue
			}

			target := f.visible[c.Name]

			switch {
			case target == nil && t.undefined(f, c):
				t.report(f, tmpl, SeverityError, ErrUndefinedReference, e.Range,
					fmt.Sprintf("undefined template or function %q", c.Name))

			case target != nil && c.Args >= 0 && c.Args != len(target.Params):
				t.report(f, tmpl, SeverityError, ErrArgumentMismatch, e.Range,
					fmt.Sprintf("template %q expects %d argument(s), got %d",
						c.Name, len(target.Params), c.Args))
			}
		}
	}
}

// undefined reports whether an unresolved call is an error. Dotted calls
// are method calls on values unless they start with an import alias.
func (t *Templates) undefined(f *File, c Call) bool {
	head, _, dotted := strings.Cut(c.Name, ".")
	if !dotted || c.Args < 0 {
		return true
	}

	return slices.ContainsFunc(f.Imports, func(imp Import) bool {
		return imp.Alias == head
	})
}

func (t *Templates) report(f *File, tmpl *Template, sev Severity, kind *Error, rng Range, msg string) {
	d := diagnose(sev, kind, f.Path, rng, msg)
	d.Template = tmpl.Name
	f.Diagnostics = append(f.Diagnostics, d)

	t.logger.Trace("template check", slog.Any("diagnostic", d))
}

// always returns the templates reached from b on every evaluation path, in
// source order.
func always(f *File, b *Body) []*Template {
	var out []*Template

	add := func(e *Expression) {
		if e == nil {
			return
		}

		for _, c := range e.calls {
			if c.Args >= 0 && isFunction(c.Name) {
				continue
			}

			if target := f.visible[c.Name]; target != nil && !slices.Contains(out, target) {
				out = append(out, target)
			}
		}
	}

	switch b.Kind {
	case KindNormal:
		for i, v := range b.Variations {
			var reached []*Template

			for _, s := range v.Segments {
				if s.Expr == nil {
					continue
				}

				saved := out
				out = nil
				add(s.Expr)
				reached = append(reached, out...)
				out = saved
			}

			if i == 0 {
				out = reached

				continue
			}

			out = slices.DeleteFunc(out, func(t *Template) bool {
				return !slices.Contains(reached, t)
			})
		}

	case KindConditional:
		if len(b.Branches) > 0 {
			add(b.Branches[0].Cond)
		}

	case KindSwitch:
		add(b.Switch)

	case KindStructure:
		b.walk(func(e *Expression) bool {
			add(e)

			return true
		})
	}

	return out
}

// checkCycles warns once per cycle of unconditional references. Such a
// cycle can never terminate.
func (t *Templates) checkCycles() {
	const (
		white = iota
		gray
		black
	)

	color := map[*Template]int{}
	seen := map[string]bool{}

	var (
		stack []*Template
		visit func(*Template)
	)

	visit = func(tmpl *Template) {
		color[tmpl] = gray
		stack = append(stack, tmpl)

		for _, next := range always(tmpl.file, &tmpl.Body) {
			switch color[next] {
			case white:
				visit(next)

			case gray:
				i := slices.Index(stack, next)
				t.warnCycle(slices.Clone(stack[i:]), seen)
			}
		}

		stack = stack[:len(stack)-1]
		color[tmpl] = black
	}

	for _, f := range t.files {
		for _, tmpl := range f.Templates {
			if color[tmpl] == white {
				visit(tmpl)
			}
		}
	}
}

func (t *Templates) warnCycle(cycle []*Template, seen map[string]bool) {
	names := make([]string, 0, len(cycle)+1)
	for _, tmpl := range cycle {
		names = append(names, tmpl.Name)
	}

	key := slices.Clone(names)
	slices.Sort(key)

	if seen[strings.Join(key, "\x00")] {
		return
	}

	seen[strings.Join(key, "\x00")] = true

	chain := strings.Join(append(names, names[0]), " -> ")

	for _, tmpl := range cycle {
		t.report(tmpl.file, tmpl, SeverityWarning, ErrCircularReference, tmpl.NameRange,
			"circular reference: "+chain)
	}
}
