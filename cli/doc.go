// Package cli contains the command line interface for lgen.
//
// # Usage
//
//	lgen check main.lg
//	lgen eval Greeting main.lg --data user.json --output json
//	lgen expand Greeting main.lg -n 5
//	lgen serve --watch
//
// # Configuration
//
// Flag defaults are read from config.yaml in the user config directory
// (for example ~/.config/lgen/config.yaml). Keys are long flag names;
// nested mappings are joined with hyphens:
//
//	log:
//	  level: debug
//	  format: json
//
// lgen init writes the current flag values to that file.
//
// # Logging Options
//
//   - --log-level: minimum level (trace, debug, info, warn, error)
//   - --log-format: output format (text, json)
//   - --log-time: timestamp layout (RFC3339, Kitchen, none, ...)
//   - --log-caller: include caller information
//   - --log-pretty: colorize text output
//
// Logs are written to stderr.
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof -o lgen .
//
//   - --pprof-mode: enable profiling (allocs, block, clock, cpu, ...)
//   - --pprof-dir: profile output directory
package cli
