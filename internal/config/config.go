// Package config holds the parsed CLI surface spec.md §6 defines,
// shared between cmd/wasm2swf's flag definitions and the compiler
// pipeline they drive.
package config

import "strings"

// Config is the fully parsed, validated set of options for one
// compiler invocation.
type Config struct {
	Input  string // positional .wasm path
	Output string // -o/--output; extension-dispatched between .swf and .abc

	Sprite bool // --sprite: wrap the class in a Wrapper extends Sprite

	Debug bool // --debug: stored only; the lowerer emits no debugfile/debugline

	Trace        bool     // --trace
	TraceFuncs   bool     // --trace-funcs; TraceEnabled treats it like Trace
	TraceOnly    []string // --trace-only=f1,f2
	TraceExclude []string // --trace-exclude=f1,f2

	SaveWAT string // --save-wat=<path>; "" disables it
}

// TraceEnabled reports whether fn should be traced under this config's
// --trace/--trace-only/--trace-exclude settings (spec.md §4.2/§6).
func (c *Config) TraceEnabled(fn string) bool {
	if !c.Trace && !c.TraceFuncs {
		return false
	}
	if len(c.TraceOnly) > 0 && !contains(c.TraceOnly, fn) {
		return false
	}
	if contains(c.TraceExclude, fn) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// splitCSV parses a comma-separated --trace-only/--trace-exclude value,
// trimming whitespace and dropping empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FromFlags builds a Config from the string/bool values cmd/wasm2swf
// reads off its cli.Command flags.
func FromFlags(input, output string, sprite, debug, trace, traceFuncs bool, traceOnly, traceExclude, saveWAT string) *Config {
	return &Config{
		Input:        input,
		Output:       output,
		Sprite:       sprite,
		Debug:        debug,
		Trace:        trace,
		TraceFuncs:   traceFuncs,
		TraceOnly:    splitCSV(traceOnly),
		TraceExclude: splitCSV(traceExclude),
		SaveWAT:      saveWAT,
	}
}

// OutputIsABC reports whether Output's extension asks for a raw ABC
// blob rather than a SWF-wrapped one (spec.md §6's extension dispatch).
func (c *Config) OutputIsABC() bool {
	return strings.HasSuffix(strings.ToLower(c.Output), ".abc")
}
