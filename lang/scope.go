package lang

import (
	"encoding/json"
	"log/slog"
	"maps"
)

// Scope is a chain of variable bindings. Lookups that miss in a scope fall
// back to its parent. A Scope is not modified after it is created.
type Scope struct {
	vars   map[string]any
	parent *Scope
}

// NewScope returns a root scope over data.
//
// data may be nil, a *Scope (returned as is), a map[string]any, or any
// value encoding to a JSON object, such as a struct.
func NewScope(data any) (*Scope, error) {
	switch d := data.(type) {
	case nil:
		return &Scope{vars: map[string]any{}}, nil
	case *Scope:
		return d, nil
	case map[string]any:
		return &Scope{vars: d}, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, ErrTypeMismatch.Wrap(err).With(slog.String("scope", typeName(data)))
	}

	var vars map[string]any
	if err := json.Unmarshal(b, &vars); err != nil || vars == nil {
		return nil, ErrTypeMismatch.With(
			slog.String("scope", typeName(data)),
			slog.String("want", "object"),
		)
	}

	return &Scope{vars: vars}, nil
}

// Child returns a scope binding vars over s.
func (s *Scope) Child(vars map[string]any) *Scope {
	return &Scope{vars: vars, parent: s}
}

// Lookup returns the value bound to name in s or its ancestors.
func (s *Scope) Lookup(name string) (any, bool) {
	for c := s; c != nil; c = c.parent {
		if v, ok := c.vars[name]; ok {
			return v, true
		}
	}

	return nil, false
}

// Has reports whether name is bound.
func (s *Scope) Has(name string) bool {
	_, ok := s.Lookup(name)

	return ok
}

// Root returns the outermost ancestor of s.
func (s *Scope) Root() *Scope {
	for s.parent != nil {
		s = s.parent
	}

	return s
}

// env flattens s into a fresh map with inner bindings taking precedence.
func (s *Scope) env(extra int) map[string]any {
	var chain []*Scope

	size := extra
	for c := s; c != nil; c = c.parent {
		chain = append(chain, c)
		size += len(c.vars)
	}

	env := make(map[string]any, size)

	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(env, chain[i].vars)
	}

	return env
}
