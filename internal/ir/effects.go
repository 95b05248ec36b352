package ir

// SideEffectFree implements the side-effect predicate of spec §4.1.4: a
// subexpression is side-effect-free iff it is Const, LocalGet, GlobalGet,
// Load, Nop, or a Binary/Unary/Select whose operands are all
// side-effect-free. Side-effect reorderings (Store operand ordering,
// CallIndirect operand/target evaluation) are permitted only when this
// holds.
func SideEffectFree(e Expr) bool {
	switch e := e.(type) {
	case Const, LocalGet, GlobalGet, Load, Nop:
		return true
	case Unary:
		return SideEffectFree(e.Value)
	case Binary:
		return SideEffectFree(e.L) && SideEffectFree(e.R)
	case Select:
		return SideEffectFree(e.Cond) && SideEffectFree(e.IfTrue) && SideEffectFree(e.IfFalse)
	default:
		return false
	}
}
