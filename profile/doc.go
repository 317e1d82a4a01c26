// Package profile starts and stops runtime profiling of lgen through
// [github.com/pkg/profile].
//
// Profiling is compiled in only with the pprof build tag:
//
//	go build -tags pprof -o lgen .
//	lgen --pprof-mode=cpu expand Greeting main.lg -n 1000
//
// Without the tag, [Modes] is empty and [Profiler.Start] returns a no-op.
// With it, the package also imports net/http/pprof, which registers its
// handlers on the default mux.
//
// Profiles are written to the directory given by [Profiler.Path], one
// file per mode (cpu.pprof, mem.pprof). Inspect them with:
//
//	go tool pprof -http=: cpu.pprof
package profile

// Tag is the build tag required to enable profiling.
const Tag = `pprof`
