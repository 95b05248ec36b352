// Package lower is the Wasm-to-AVM2 instruction lowering engine: it walks
// the structured IR in internal/ir and emits AVM2 bytecode for a method
// body (the per-expression and per-function lowering), then assembles
// the traits, instance initializer, and runtime helpers that make the
// result a loadable ABC class (the module-level synthesis).
package lower

import "fmt"

// UnsupportedConstruct is returned when the IR contains a node the
// lowering engine has no translation for (e.g. a reinterpret op, or a
// node ir.Build would already have rejected, reaching the lowerer
// through IR that wasn't built by ir.Build).
type UnsupportedConstruct struct {
	What string
}

func (e *UnsupportedConstruct) Error() string {
	return fmt.Sprintf("unsupported construct: %s", e.What)
}

// MalformedIR is returned when the IR violates a structural invariant
// the lowerer assumes holds (Break carrying a value, a load or store of
// an unsupported width). A dangling label is reported by
// MethodBuilder.Finish as a plain error instead.
type MalformedIR struct {
	What string
}

func (e *MalformedIR) Error() string {
	return fmt.Sprintf("malformed IR: %s", e.What)
}

// InternalInvariantViolation is the panic value MethodBuilder raises when
// the lowering engine violates one of its own bookkeeping invariants
// (the simulated operand stack depth going negative). It indicates a bug
// in the lowerer, not bad input.
type InternalInvariantViolation struct {
	What string
}

func (e *InternalInvariantViolation) Error() string {
	return fmt.Sprintf("internal invariant violation: %s", e.What)
}
