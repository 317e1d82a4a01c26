package lang

import (
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/builtin"
)

// Function describes a function callable from expressions.
type Function struct {
	Name      string
	Signature string
	Doc       string
	fn        func(args ...any) (any, error)
}

// customFuncs are the functions LG adds to the expr-lang built-ins.
// Functions that need the evaluation state (template, isTemplate) are bound
// per evaluation; their entries here only describe them.
var customFuncs = map[string]Function{
	"add": {
		Signature: "add(a, b)",
		Doc:       "Adds two numbers, or joins two values as text when either is a string.",
		fn:        add,
	},
	"createArray": {
		Signature: "createArray(items...)",
		Doc:       "Returns its arguments as a list.",
		fn: func(args ...any) (any, error) {
			return append([]any{}, args...), nil
		},
	},
	"includes": {
		Signature: "includes(collection, item)",
		Doc:       "Reports whether a string contains a substring, a list contains an item, or a map contains a key. contains(a, b) is an alias.",
		fn:        includes,
	},
	"json": {
		Signature: "json(text)",
		Doc:       "Parses text as JSON.",
		fn: func(args ...any) (any, error) {
			s, err := stringArg("json", args, 0, 1)
			if err != nil {
				return nil, err
			}

			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, ErrTypeMismatch.Wrap(err).With(slog.String("function", "json"))
			}

			return v, nil
		},
	},
	"jsonStringify": {
		Signature: "jsonStringify(value)",
		Doc:       "Encodes value as compact JSON.",
		fn: func(args ...any) (any, error) {
			if err := arity("jsonStringify", args, 1); err != nil {
				return nil, err
			}

			b, err := json.Marshal(args[0])
			if err != nil {
				return nil, ErrTypeMismatch.Wrap(err).With(slog.String("function", "jsonStringify"))
			}

			return string(b), nil
		},
	},
	"exists": {
		Signature: "exists(value)",
		Doc:       "Reports whether value is defined and not null.",
		fn: func(args ...any) (any, error) {
			if err := arity("exists", args, 1); err != nil {
				return nil, err
			}

			return args[0] != nil, nil
		},
	},
	"isEmpty": {
		Signature: "isEmpty(value)",
		Doc:       "Reports whether value is null, an empty string, or an empty list or map.",
		fn: func(args ...any) (any, error) {
			if err := arity("isEmpty", args, 1); err != nil {
				return nil, err
			}

			return isEmpty(args[0]), nil
		},
	},
	"coalesce": {
		Signature: "coalesce(values...)",
		Doc:       "Returns the first argument that is not null.",
		fn: func(args ...any) (any, error) {
			for _, a := range args {
				if a != nil {
					return a, nil
				}
			}

			return nil, nil
		},
	},
	"toLower": {
		Signature: "toLower(text)",
		Doc:       "Returns text in lower case.",
		fn: func(args ...any) (any, error) {
			s, err := stringArg("toLower", args, 0, 1)

			return strings.ToLower(s), err
		},
	},
	"toUpper": {
		Signature: "toUpper(text)",
		Doc:       "Returns text in upper case.",
		fn: func(args ...any) (any, error) {
			s, err := stringArg("toUpper", args, 0, 1)

			return strings.ToUpper(s), err
		},
	},
	"formatNumber": {
		Signature: "formatNumber(number, precision)",
		Doc:       "Formats number with a fixed count of decimal places.",
		fn: func(args ...any) (any, error) {
			if err := arity("formatNumber", args, 2); err != nil {
				return nil, err
			}

			n, ok1 := toFloat(args[0])
			p, ok2 := toFloat(args[1])

			if !ok1 || !ok2 {
				return nil, ErrTypeMismatch.With(slog.String("function", "formatNumber"))
			}

			return strconv.FormatFloat(n, 'f', int(p), 64), nil
		},
	},
	"template": {
		Signature: "template(name, args...)",
		Doc:       "Evaluates the template called name with args.",
	},
	"isTemplate": {
		Signature: "isTemplate(name)",
		Doc:       "Reports whether a template called name is visible.",
	},
}

// internalFuncs implement operators whose expr-lang semantics differ from
// LG. See [arithmeticPatcher].
var internalFuncs = map[string]func(args ...any) (any, error){
	"__add":      plus,
	"__subtract": minus,
	"__multiply": times,
	"__divide":   divide,
	"__modulo":   modulo,
}

// Builtins yields every function callable from an expression, including
// the expr-lang built-ins, sorted by name.
func Builtins() iter.Seq[Function] {
	return func(yield func(Function) bool) {
		names := slices.Collect(maps.Keys(customFuncs))
		for name := range builtin.Index {
			if _, ok := customFuncs[name]; !ok {
				names = append(names, name)
			}
		}

		slices.Sort(names)

		for _, name := range names {
			f, ok := customFuncs[name]
			if !ok {
				f = Function{Signature: name + "(...)", Doc: "expr-lang built-in"}
			}

			f.Name = name

			if !yield(f) {
				return
			}
		}
	}
}

// LookupBuiltin returns the function called name.
func LookupBuiltin(name string) (Function, bool) {
	if f, ok := customFuncs[name]; ok {
		f.Name = name

		return f, true
	}

	if _, ok := builtin.Index[name]; ok {
		return Function{Name: name, Signature: name + "(...)", Doc: "expr-lang built-in"}, true
	}

	return Function{}, false
}

// isFunction reports whether name is a function rather than a template.
func isFunction(name string) bool {
	if _, ok := customFuncs[name]; ok {
		return true
	}

	if _, ok := internalFuncs[name]; ok {
		return true
	}

	_, ok := builtin.Index[name]

	return ok || name == atFunc
}

// staticFunctions returns the compile options registering the functions
// that do not depend on evaluation state.
func staticFunctions() []expr.Option {
	opts := make([]expr.Option, 0, len(customFuncs)+len(internalFuncs))

	for name, f := range customFuncs {
		if f.fn != nil {
			opts = append(opts, expr.Function(name, f.fn))
		}
	}

	for name, fn := range internalFuncs {
		opts = append(opts, expr.Function(name, fn))
	}

	return opts
}

func arity(name string, args []any, n int) error {
	if len(args) != n {
		return ErrArgumentMismatch.With(
			slog.String("function", name),
			slog.Int("want", n),
			slog.Int("got", len(args)),
		)
	}

	return nil
}

func stringArg(name string, args []any, i, n int) (string, error) {
	if err := arity(name, args, n); err != nil {
		return "", err
	}

	s, ok := args[i].(string)
	if !ok {
		return "", ErrTypeMismatch.With(
			slog.String("function", name),
			slog.String("want", "string"),
			slog.String("got", typeName(args[i])),
		)
	}

	return s, nil
}

func includes(args ...any) (any, error) {
	if err := arity("includes", args, 2); err != nil {
		return nil, err
	}

	switch c := args[0].(type) {
	case nil:
		return false, nil

	case string:
		s, ok := args[1].(string)
		if !ok {
			s = fmt.Sprint(args[1])
		}

		return strings.Contains(c, s), nil

	case map[string]any:
		k, ok := args[1].(string)
		if !ok {
			return false, nil
		}

		_, found := c[k]

		return found, nil
	}

	v := reflect.ValueOf(args[0])
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		for i := range v.Len() {
			if equal(v.Index(i).Interface(), args[1]) {
				return true, nil
			}
		}

		return false, nil
	}

	return nil, ErrTypeMismatch.With(
		slog.String("function", "includes"),
		slog.String("got", typeName(args[0])),
	)
}

func add(args ...any) (any, error) {
	if err := arity("add", args, 2); err != nil {
		return nil, err
	}

	_, s1 := args[0].(string)
	_, s2 := args[1].(string)

	if s1 || s2 {
		return Format(args[0]) + Format(args[1]), nil
	}

	return plus(args...)
}

// plus sums numbers, and concatenates strings or arrays.
func plus(args ...any) (any, error) {
	if len(args) == 2 {
		switch a := args[0].(type) {
		case string:
			if b, ok := args[1].(string); ok {
				return a + b, nil
			}
		case []any:
			if b, ok := args[1].([]any); ok {
				return slices.Concat(a, b), nil
			}
		}
	}

	return arithmetic("+", args, func(a, b int64) (int64, bool) {
		s := a + b

		return s, (a >= 0) == (b >= 0) && (s >= 0) != (a >= 0)
	}, func(a, b float64) float64 { return a + b })
}

func minus(args ...any) (any, error) {
	return arithmetic("-", args, func(a, b int64) (int64, bool) {
		d := a - b

		return d, (a >= 0) != (b >= 0) && (d >= 0) != (a >= 0)
	}, func(a, b float64) float64 { return a - b })
}

func times(args ...any) (any, error) {
	return arithmetic("*", args, func(a, b int64) (int64, bool) {
		if a == 0 || b == 0 {
			return 0, false
		}

		p := a * b

		return p, p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64)
	}, func(a, b float64) float64 { return a * b })
}

// arithmetic applies an operator to two numbers. Integers stay integers
// while the result fits in 64 bits; anything else is computed as float64.
func arithmetic(
	op string,
	args []any,
	ints func(a, b int64) (r int64, overflow bool),
	floats func(a, b float64) float64,
) (any, error) {
	if len(args) == 2 {
		a, ok1 := toInt64(args[0])
		b, ok2 := toInt64(args[1])

		if ok1 && ok2 {
			if r, overflow := ints(a, b); !overflow {
				return int(r), nil
			}
		}
	}

	a, b, err := operands(op, args)
	if err != nil {
		return nil, err
	}

	return floats(a, b), nil
}

func divide(args ...any) (any, error) {
	a, b, err := operands("/", args)
	if err != nil {
		return nil, err
	}

	if b == 0 {
		return nil, ErrArithmetic.With(slog.String("reason", "division by zero"))
	}

	return a / b, nil
}

func modulo(args ...any) (any, error) {
	a, b, err := operands("%", args)
	if err != nil {
		return nil, err
	}

	if b == 0 {
		return nil, ErrArithmetic.With(slog.String("reason", "modulo by zero"))
	}

	r := math.Mod(a, b)
	if isInt(args[0]) && isInt(args[1]) {
		return int(r), nil
	}

	return r, nil
}

func operands(op string, args []any) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, ErrArgumentMismatch.With(slog.String("operator", op))
	}

	a, ok1 := toFloat(args[0])
	b, ok2 := toFloat(args[1])

	if !ok1 || !ok2 {
		return 0, 0, ErrTypeMismatch.With(
			slog.String("operator", op),
			slog.String("left", typeName(args[0])),
			slog.String("right", typeName(args[1])),
		)
	}

	return a, b, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}

	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint64:
		return int64(n), n <= math.MaxInt64
	}

	return 0, false
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}

	return false
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	if s, ok := v.(string); ok {
		return s == ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}

	return false
}

// equal compares numbers by value regardless of their Go type.
func equal(a, b any) bool {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}

	return reflect.DeepEqual(a, b)
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}

	return reflect.TypeOf(v).String()
}
