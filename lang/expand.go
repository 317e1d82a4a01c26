package lang

import (
	"iter"
	"log/slog"
)

// odometer enumerates every sequence of choices an evaluation can make.
// Each evaluation replays the recorded prefix and takes the first
// alternative at choice points beyond it; next then advances the deepest
// choice that has alternatives left, like the digits of an odometer.
type odometer struct {
	path   []int
	limits []int
	pos    int
}

func (o *odometer) choose(n int) int {
	if o.pos < len(o.path) {
		c := o.path[o.pos]
		o.pos++

		return c
	}

	o.path = append(o.path, 0)
	o.limits = append(o.limits, n)
	o.pos++

	return 0
}

// next prepares the following path. It reports false once every path has
// been taken.
func (o *odometer) next() bool {
	o.path, o.limits = o.path[:o.pos], o.limits[:o.pos]

	for i := len(o.path) - 1; i >= 0; i-- {
		if o.path[i]+1 < o.limits[i] {
			o.path[i]++
			o.path, o.limits = o.path[:i+1], o.limits[:i+1]
			o.pos = 0

			return true
		}
	}

	return false
}

// Expand lazily yields every rendering of the template called name. Each
// rendering is one path through the template's choice points: the
// variations of every normal body, and the branches of conditions that
// read names scope does not bind.
//
// A path that fails yields its error and the enumeration continues with
// the next path. The sequence may be iterated more than once.
func (t *Templates) Expand(name string, scope any, opts ...EvalOption) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		tmpl, ok := t.index[name]
		if !ok {
			yield(nil, ErrTemplateNotFound.With(slog.String("template", name)))

			return
		}

		root, err := NewScope(scope)
		if err != nil {
			yield(nil, err)

			return
		}

		od := &odometer{}

		for n := 0; ; n++ {
			s := t.newSession(root, opts)
			s.choice = od
			s.expand = true
			od.pos = 0

			v, err := s.call(tmpl, nil, root)

			t.logger.Trace("expand path",
				slog.String("template", name),
				slog.Int("index", n),
				slog.Any("path", od.path[:od.pos]))

			if !yield(v, err) || !od.next() {
				return
			}
		}
	}
}

// Take yields at most n pairs of seq.
func Take[K, V any](seq iter.Seq2[K, V], n int) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if n <= 0 {
			return
		}

		i := 0

		for k, v := range seq {
			if !yield(k, v) {
				return
			}

			if i++; i >= n {
				return
			}
		}
	}
}
