// Package ir holds the typed, structured representation of a Wasm module
// that the lowering engine in internal/lower consumes: the expression
// tree of a function body (spec §3 "Wasm expression (input)"), plus the
// surrounding module metadata (globals, memory segments, table segments,
// imports, exports).
//
// Values of this tree are produced by Build from a decoded wasm.Module
// (see build.go) and are assumed, by the time they reach internal/lower,
// to already satisfy the upstream-normalization contract checked by
// Normalize.
package ir

// Type is a Wasm value type as seen at the lowering boundary: none (void),
// i32, f32, or f64. i64 never appears here — it is expected to have been
// lowered to i32 pairs upstream.
type Type byte

const (
	None Type = iota
	I32
	F32
	F64
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case I32:
		return "i32"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "?"
	}
}

// IsFloat reports whether t collapses to AVM2's Number at the target.
func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// ExportKind identifies what a module export refers to.
type ExportKind byte

const (
	ExportFunc ExportKind = iota
	ExportGlobal
	ExportMemory
	ExportTable
)

func (k ExportKind) String() string {
	switch k {
	case ExportFunc:
		return "func"
	case ExportGlobal:
		return "global"
	case ExportMemory:
		return "memory"
	case ExportTable:
		return "table"
	default:
		return "?"
	}
}

// Import describes a function imported from the host. Only function
// imports are modeled: spec §6 only requires a narrow imports/exports
// object model, and memory/table/global imports do not appear in the
// MVP subset this compiler targets.
type Import struct {
	Module string
	Base   string
	Params []Type
	Result Type
}

// Export associates an exported name with a module member.
type Export struct {
	Name   string
	Kind   ExportKind
	Target string // function/global name, or "" for memory/table
}

// Global is a module-level global variable. Init holds a constant
// initializer; Wasm allows only constant-expression initializers for
// globals in the MVP subset, so this is a literal, not an expression.
type Global struct {
	Name     string
	Type     Type
	Mutable  bool
	InitI32  int32
	InitF64  float64
	IsFloat  bool
}

// MemorySegment is one passive/active data segment: raw bytes to be
// written into linear memory at ByteOffset during instance
// initialization.
type MemorySegment struct {
	ByteOffset int32
	Bytes      []byte
}

// TableSegment populates a contiguous run of the function table starting
// at Offset with the named functions, in order.
type TableSegment struct {
	Offset int32
	Funcs  []string
}

// Function is a single Wasm function: either defined (Body != nil) or
// imported (Module/Base set, Body == nil).
type Function struct {
	Name   string
	Module string // non-empty if imported
	Base   string // import base name, set together with Module

	Params []Type
	Result Type
	Locals []Type // appended after Params; local index k -> Params/Locals

	Body *Block // nil for imported functions
}

func (f *Function) Imported() bool { return f.Module != "" }

// Module is the structured IR for an entire Wasm module: everything
// internal/lower needs to synthesize the ABC class (spec §4.3), plus
// every defined/imported function body (spec §4.1/§4.2).
type Module struct {
	MemoryInitialPages int32
	MemoryMaxPages     int32 // -1 if unbounded

	Globals  []Global
	Memory   []MemorySegment
	Table    []TableSegment
	Imports  []Import
	Exports  []Export
	Funcs    []Function
}

func (m *Module) Func(name string) *Function {
	for i := range m.Funcs {
		if m.Funcs[i].Name == name {
			return &m.Funcs[i]
		}
	}
	return nil
}
