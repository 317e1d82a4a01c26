package cmd

import "github.com/ardnew/lgen/lang"

var (
	ErrReadConfig    = lang.NewError("read configuration file")
	ErrWriteConfig   = lang.NewError("write configuration file")
	ErrFileExists    = lang.NewError("file exists (use --force to overwrite)")
	ErrReadSource    = lang.NewError("read source")
	ErrNoSource      = lang.NewError("no source files")
	ErrReadData      = lang.NewError("read data file")
	ErrInvalidFormat = lang.NewError("invalid format")
	ErrMarshal       = lang.NewError("encode output")
	// ErrCheckFailed is returned by check when a file has error
	// diagnostics, so the process exits with status 1.
	ErrCheckFailed = lang.NewError("check failed")
)
