package repl

import "github.com/ardnew/lgen/lang"

// Sentinel errors.
var (
	ErrNoSource       = lang.NewError("no source to load")
	ErrOutOfBounds    = lang.NewError("index out of range")
	ErrEditDeclined   = lang.NewError("decline edit")
	ErrUnknownCommand = lang.NewError("unknown command")
	ErrUsage          = lang.NewError("invalid command usage")
)
