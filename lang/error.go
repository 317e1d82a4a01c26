package lang

import (
	"errors"
	"log/slog"
	"strings"
)

// Evaluation and build errors. Every error returned by this package matches
// exactly one of these with [errors.Is].
var (
	ErrSyntax              = NewError("syntax error")
	ErrUndefinedReference  = NewError("undefined reference")
	ErrTypeMismatch        = NewError("type mismatch")
	ErrArithmetic          = NewError("arithmetic error")
	ErrCircularReference   = NewError("circular reference")
	ErrNoSupportedLanguage = NewError("no supported language")
	ErrTemplateNotFound    = NewError("template not found")
	ErrArgumentMismatch    = NewError("argument count mismatch")
	ErrFileNotFound        = NewError("file not found")
	ErrEvaluate            = NewError("expression evaluation failed")
	ErrReadInput           = NewError("failed to read input")
)

// Error is an error carrying structured attributes for [log/slog].
//
// Errors derived from a sentinel with [Error.With] or [Error.Wrap] keep
// a reference to it, so errors.Is(derived, sentinel) holds.
type Error struct {
	msg   string
	err   error
	attrs []slog.Attr
	kind  *Error
}

// NewError returns a new sentinel error.
func NewError(msg string) *Error {
	e := &Error{msg: msg}
	e.kind = e

	return e
}

// Error implements the error interface as "msg: cause".
func (e *Error) Error() string {
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the sentinel e was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e == t || (e.kind != nil && e.kind == t.kind)
}

// Kind returns the sentinel e was derived from.
func (e *Error) Kind() *Error {
	if e.kind == nil {
		return e
	}

	return e.kind
}

// Attrs returns the attributes attached to e.
func (e *Error) Attrs() []slog.Attr { return e.attrs }

// Attr returns the value of the first attribute named key.
func (e *Error) Attr(key string) (slog.Value, bool) {
	for _, a := range e.attrs {
		if a.Key == key {
			return a.Value, true
		}
	}

	return slog.Value{}, false
}

// LogValue implements [slog.LogValuer].
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap returns a copy of e with err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, attrs: e.attrs, kind: e.Kind()}
}

// With returns a copy of e with attrs appended.
func (e *Error) With(attrs ...slog.Attr) *Error {
	return &Error{
		msg:   e.msg,
		err:   e.err,
		attrs: append(e.attrs[:len(e.attrs):len(e.attrs)], attrs...),
		kind:  e.Kind(),
	}
}

// asError returns err as an *Error, converting foreign errors to
// [ErrEvaluate].
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return ErrEvaluate.Wrap(err)
}
