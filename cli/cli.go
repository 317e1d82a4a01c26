package cli

import (
	"context"
	"os"

	"github.com/alecthomas/kong"

	"github.com/ardnew/lgen/cli/cmd"
	"github.com/ardnew/lgen/pkg"
)

// dirMode is the permission mode of created directories.
const dirMode os.FileMode = 0o700

// CLI is the top-level command-line interface for lgen.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Check   cmd.Check   `cmd:"" help:"Report diagnostics of LG files"`
	List    cmd.List    `cmd:"" help:"List templates with their parameters and references"`
	Eval    cmd.Eval    `cmd:"" help:"Evaluate a template"`
	Expand  cmd.Expand  `cmd:"" help:"Enumerate the possible renderings of a template"`
	Serve   cmd.Serve   `cmd:"" help:"Run the language server on stdin and stdout"`
	Repl    cmd.Repl    `cmd:"" help:"Evaluate expressions interactively"`
	Init    cmd.Init    `cmd:"" help:"Write the current flags to the configuration file"`
	Version cmd.Version `cmd:"" help:"Print version information"`
}

// Run executes the lgen CLI with the given context and arguments.
// The exit function is called with the appropriate exit code upon completion.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	var cli CLI

	for _, dir := range []string{pkg.ConfigDir(), pkg.CacheDir()} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return err
		}
	}

	vars := kong.Vars{
		cmd.ConfigIdentifier: pkg.ConfigFile(),
		cmd.CacheIdentifier:  pkg.CacheDir(),
	}.
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Pprof.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Apply logger flags before kong parses, so that parse errors are
	// already logged in the requested format.
	cli.Log.scan(args)

	parser, err := kong.New(&cli,
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(resolve, pkg.ConfigFile()),
		vars,
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	ctx = cmd.WithContext(ctx, ktx)

	// Time layout and caller have no early hook, so the logger is
	// finalized with every parsed value here.
	cli.Log.start(ctx)

	// No-op unless built with tag pprof and enabled.
	defer cli.Pprof.start(ctx)()

	return ktx.Run(ctx, &cli)
}
