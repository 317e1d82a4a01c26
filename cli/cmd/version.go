package cmd

import (
	"context"
	"fmt"

	"github.com/ardnew/lgen/pkg"
)

// Version prints the program name and version.
type Version struct{}

// Run executes the version command.
func (*Version) Run(ctx context.Context) error {
	_, err := fmt.Fprintln(outputFrom(ctx), pkg.Name, pkg.Version)

	return err
}
