package workspace

import "github.com/ardnew/lgen/lang"

var (
	ErrScan       = lang.NewError("failed to scan workspace")
	ErrWatch      = lang.NewError("failed to watch workspace")
	ErrInvalidURI = lang.NewError("invalid document URI")
)
