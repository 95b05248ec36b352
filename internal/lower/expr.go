package lower

import (
	"fmt"
	"math"

	"tlog.app/go/tlog"

	"github.com/brion/wasm2swf/internal/avm2"
	"github.com/brion/wasm2swf/internal/ir"
)

// funcScope is the per-function lowering state: a MethodBuilder to emit
// into, plus the module-wide name table every function shares.
type funcScope struct {
	mb     *MethodBuilder
	m      *moduleCtx
	fnName string
	trace  bool
}

// localSlot maps a Wasm local index to its AVM2 local slot: slot 0 is
// the receiver (this), so every Wasm local index is shifted by one.
func (fs *funcScope) localSlot(idx int) int { return idx + 1 }

func (fs *funcScope) emitGetLocal(slot int) {
	switch slot {
	case 0:
		fs.mb.Emit(avm2.OpGetLocal0, 1)
	case 1:
		fs.mb.Emit(avm2.OpGetLocal1, 1)
	case 2:
		fs.mb.Emit(avm2.OpGetLocal2, 1)
	case 3:
		fs.mb.Emit(avm2.OpGetLocal3, 1)
	default:
		fs.mb.Emit(avm2.OpGetLocal, 1, uint32(slot))
	}
}

func (fs *funcScope) emitSetLocal(slot int) {
	switch slot {
	case 0:
		fs.mb.Emit(avm2.OpSetLocal0, -1)
	case 1:
		fs.mb.Emit(avm2.OpSetLocal1, -1)
	case 2:
		fs.mb.Emit(avm2.OpSetLocal2, -1)
	case 3:
		fs.mb.Emit(avm2.OpSetLocal3, -1)
	default:
		fs.mb.Emit(avm2.OpSetLocal, -1, uint32(slot))
	}
}

// lower emits e's translation into fs.mb. Every call leaves exactly the
// number of stack values e.ResultType() promises (zero for None, one
// otherwise) — callers never need to special-case statement vs. value
// position, mirroring how the IR itself carries that contract.
func (fs *funcScope) lower(e ir.Expr) error {
	if fs.trace {
		tlog.V("lower").Printw("lower expr", "func", fs.fnName, "kind", fmt.Sprintf("%T", e))
	}

	switch e := e.(type) {
	case ir.Nop:
		return nil

	case ir.Unreachable:
		// No host exception type is modeled; throw a plain Error so the
		// SWF's runtime at least fails loudly instead of continuing past
		// a point Wasm guarantees is never reached.
		fs.mb.Emit(avm2.OpFindPropStrict, 1, fs.m.errorQName)
		fs.mb.Emit(avm2.OpConstructProp, 0, fs.m.errorQName, 0)
		fs.mb.Emit(avm2.OpThrow, -1)
		return nil

	case ir.Block:
		for _, c := range e.Children {
			if err := fs.lower(c); err != nil {
				return err
			}
		}
		if e.Name != "" {
			fs.mb.Label(e.Name)
		}
		return nil

	case ir.Loop:
		fs.mb.Label(e.Name)
		for _, c := range e.Body.Children {
			if err := fs.lower(c); err != nil {
				return err
			}
		}
		return nil

	case ir.If:
		return fs.lowerIf(e)

	case ir.Break:
		if e.Value != nil {
			return &MalformedIR{What: "br carries a value at the lowering boundary"}
		}
		if e.Cond == nil {
			fs.mb.EmitBranch(avm2.OpJump, e.Name)
			return nil
		}
		return fs.emitFoldedBranch(e.Cond, e.Name, true)

	case ir.Switch:
		if err := fs.lower(e.Cond); err != nil {
			return err
		}
		fs.mb.EmitSwitch(e.DefaultName, e.Names)
		return nil

	case ir.Return:
		if e.Value == nil {
			fs.mb.Emit(avm2.OpReturnVoid, 0)
			return nil
		}
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpReturnValue, -1)
		return nil

	case ir.Drop:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpPop, -1)
		return nil

	case ir.Const:
		return fs.lowerConst(e)

	case ir.LocalGet:
		fs.emitGetLocal(fs.localSlot(e.Index))
		return nil

	case ir.LocalSet:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		slot := fs.localSlot(e.Index)
		if e.IsTee {
			fs.mb.Emit(avm2.OpDup, 1)
		}
		fs.emitSetLocal(slot)
		return nil

	case ir.GlobalGet:
		fs.mb.Emit(avm2.OpGetLocal0, 1)
		fs.mb.Emit(avm2.OpGetProperty, 0, fs.m.globalName(e.Name))
		return nil

	case ir.GlobalSet:
		fs.mb.Emit(avm2.OpGetLocal0, 1)
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpSetProperty, -2, fs.m.globalName(e.Name))
		return nil

	case ir.Load:
		return fs.lowerLoad(e)

	case ir.Store:
		return fs.lowerStore(e)

	case ir.Unary:
		return fs.lowerUnary(e)

	case ir.Binary:
		return fs.lowerBinary(e)

	case ir.Select:
		return fs.lowerSelect(e)

	case ir.Call:
		return fs.lowerCall(e)

	case ir.CallIndirect:
		return fs.lowerCallIndirect(e)

	case ir.Host:
		return fs.lowerHost(e)

	default:
		return &UnsupportedConstruct{What: "unrecognized IR node"}
	}
}

func (fs *funcScope) lowerIf(e ir.If) error {
	end := fs.mb.NewLabel()
	if e.Else == nil {
		if err := fs.emitFoldedBranch(e.Cond, end, false); err != nil {
			return err
		}
		for _, c := range e.Then.Children {
			if err := fs.lower(c); err != nil {
				return err
			}
		}
		fs.mb.Label(end)
		return nil
	}
	elseLbl := fs.mb.NewLabel()
	if err := fs.emitFoldedBranch(e.Cond, elseLbl, false); err != nil {
		return err
	}
	for _, c := range e.Then.Children {
		if err := fs.lower(c); err != nil {
			return err
		}
	}
	fs.mb.EmitBranch(avm2.OpJump, end)
	fs.mb.Label(elseLbl)
	for _, c := range e.Else.Children {
		if err := fs.lower(c); err != nil {
			return err
		}
	}
	fs.mb.Label(end)
	return nil
}

// emitFoldedBranch implements spec §4.1.2's conditional-folding peephole:
// rather than always lowering cond to a materialized boolean and
// branching on it, recognize comparison and EqZ shapes and branch
// directly on the comparator. branchOnTrue selects direct semantics
// (jump to target when cond is true, for `br`) vs. inverse semantics
// (jump when cond is false, for `if`).
func (fs *funcScope) emitFoldedBranch(cond ir.Expr, target string, branchOnTrue bool) error {
	switch c := cond.(type) {
	case ir.Binary:
		if c.Op.IsUnsignedCompare() {
			if err := fs.lower(c.L); err != nil {
				return err
			}
			fs.mb.Emit(avm2.OpConvertU, 0)
			if err := fs.lower(c.R); err != nil {
				return err
			}
			fs.mb.Emit(avm2.OpConvertU, 0)
			fs.mb.EmitCompareBranch(compareBranchOp(c.Op, branchOnTrue), target)
			return nil
		}
		if c.Op.IsCompare() {
			if err := fs.lower(c.L); err != nil {
				return err
			}
			if err := fs.lower(c.R); err != nil {
				return err
			}
			fs.mb.EmitCompareBranch(compareBranchOp(c.Op, branchOnTrue), target)
			return nil
		}
	case ir.Unary:
		if c.Op == ir.EqZ {
			if err := fs.lower(c.Value); err != nil {
				return err
			}
			if branchOnTrue {
				fs.mb.EmitBranch(avm2.OpIfFalse, target)
			} else {
				fs.mb.EmitBranch(avm2.OpIfTrue, target)
			}
			return nil
		}
	}

	if err := fs.lower(cond); err != nil {
		return err
	}
	if branchOnTrue {
		fs.mb.EmitBranch(avm2.OpIfTrue, target)
	} else {
		fs.mb.EmitBranch(avm2.OpIfFalse, target)
	}
	return nil
}

// compareBranchOp picks the AVM2 comparison-branch opcode matching op:
// direct when branchOnTrue (as `br` needs — jump when the comparison is
// true), logically inverted otherwise (as `if` needs — jump over the
// then-arm when the comparison is false).
func compareBranchOp(op ir.BinOp, branchOnTrue bool) avm2.Opcode {
	switch op {
	case ir.Eq:
		if branchOnTrue {
			return avm2.OpIfEq
		}
		return avm2.OpIfNe
	case ir.Ne:
		if branchOnTrue {
			return avm2.OpIfNe
		}
		return avm2.OpIfEq
	case ir.LtS, ir.LtF, ir.LtU:
		if branchOnTrue {
			return avm2.OpIfLt
		}
		return avm2.OpIfGe
	case ir.LeS, ir.LeF, ir.LeU:
		if branchOnTrue {
			return avm2.OpIfLe
		}
		return avm2.OpIfGt
	case ir.GtS, ir.GtF, ir.GtU:
		if branchOnTrue {
			return avm2.OpIfGt
		}
		return avm2.OpIfLe
	default: // GeS, GeF, GeU
		if branchOnTrue {
			return avm2.OpIfGe
		}
		return avm2.OpIfLt
	}
}

func (fs *funcScope) lowerConst(e ir.Const) error {
	switch e.ResultType() {
	case ir.I32:
		switch {
		case e.I32 >= -128 && e.I32 <= 127:
			fs.mb.EmitByte(int8(e.I32))
		case e.I32 >= -32768 && e.I32 <= 32767:
			fs.mb.EmitShort(e.I32)
		default:
			fs.mb.Emit(avm2.OpPushInt, 1, fs.m.pool.Int(e.I32))
		}
		return nil
	case ir.F32, ir.F64:
		if math.IsNaN(e.F64) {
			fs.mb.Emit(avm2.OpPushNaN, 1)
			return nil
		}
		fs.mb.Emit(avm2.OpPushDouble, 1, fs.m.pool.Double(e.F64))
		return nil
	default:
		return &UnsupportedConstruct{What: "const of unsupported type"}
	}
}

// lowerLoad emits a domain-memory read. ptr + offset is computed with
// plain add first: Wasm's memarg offset is an unsigned constant, folded
// here as an ordinary i32 add ahead of the li* opcode, which itself
// takes no offset operand.
func (fs *funcScope) lowerLoad(e ir.Load) error {
	if err := fs.lowerAddr(e.Ptr, e.Offset); err != nil {
		return err
	}
	return fs.emitLoadOp(e)
}

// emitLoadOp dispatches to the li* domain-memory opcode matching e's
// width. li8/li16 zero-extend; a signed 8/16-bit load is sign-extended
// afterwards by a left shift and an arithmetic right shift, and an
// unsigned one is masked to its width.
func (fs *funcScope) emitLoadOp(e ir.Load) error {
	switch e.Bytes {
	case 1:
		fs.mb.Emit(avm2.OpLI8, 0)
		if e.Signed {
			fs.mb.EmitByte(24)
			fs.mb.Emit(avm2.OpLShift, -1)
			fs.mb.EmitByte(24)
			fs.mb.Emit(avm2.OpRShift, -1)
		} else {
			fs.mb.EmitShort(0xff)
			fs.mb.Emit(avm2.OpBitAnd, -1)
		}
		return nil
	case 2:
		fs.mb.Emit(avm2.OpLI16, 0)
		if e.Signed {
			fs.mb.EmitByte(16)
			fs.mb.Emit(avm2.OpLShift, -1)
			fs.mb.EmitByte(16)
			fs.mb.Emit(avm2.OpRShift, -1)
		} else {
			fs.mb.Emit(avm2.OpPushInt, 1, fs.m.pool.Int(0xffff))
			fs.mb.Emit(avm2.OpBitAnd, -1)
		}
		return nil
	case 4:
		if e.ResultType() == ir.F32 {
			fs.mb.Emit(avm2.OpLF32, 0)
			return nil
		}
		fs.mb.Emit(avm2.OpLI32, 0)
		return nil
	case 8:
		fs.mb.Emit(avm2.OpLF64, 0)
		return nil
	default:
		return &MalformedIR{What: "load of unsupported width"}
	}
}

func (fs *funcScope) lowerStore(e ir.Store) error {
	// Wasm evaluates the address operand before the value operand; AVM2's
	// si*/sf* opcodes take the value below the address on the stack. When
	// neither operand has side effects the value is simply emitted first;
	// otherwise Wasm's order is kept and a swap puts the two in place.
	if ir.SideEffectFree(e.Ptr) && ir.SideEffectFree(e.Value) {
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		if err := fs.lowerAddr(e.Ptr, e.Offset); err != nil {
			return err
		}
	} else {
		if err := fs.lowerAddr(e.Ptr, e.Offset); err != nil {
			return err
		}
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpSwap, 0)
	}
	switch e.Bytes {
	case 1:
		fs.mb.Emit(avm2.OpSI8, -2)
	case 2:
		fs.mb.Emit(avm2.OpSI16, -2)
	case 4:
		if e.ValueType == ir.F32 {
			fs.mb.Emit(avm2.OpSF32, -2)
		} else {
			fs.mb.Emit(avm2.OpSI32, -2)
		}
	case 8:
		fs.mb.Emit(avm2.OpSF64, -2)
	default:
		return &MalformedIR{What: "store of unsupported width"}
	}
	return nil
}

// lowerAddr pushes ptr+offset, folding a zero offset away (by far the
// common case) rather than always emitting a redundant add.
func (fs *funcScope) lowerAddr(ptr ir.Expr, offset uint32) error {
	if err := fs.lower(ptr); err != nil {
		return err
	}
	if offset == 0 {
		return nil
	}
	if offset <= 127 {
		fs.mb.EmitByte(int8(offset))
	} else if offset <= 32767 {
		fs.mb.EmitShort(int32(offset))
	} else {
		fs.mb.Emit(avm2.OpPushUInt, 1, fs.m.pool.UInt(offset))
	}
	fs.mb.Emit(avm2.OpAdd, -1)
	return nil
}

func (fs *funcScope) lowerUnary(e ir.Unary) error {
	switch e.Op {
	case ir.Neg:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpNegate, 0)
		return nil
	case ir.EqZ:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.EmitByte(0)
		fs.mb.Emit(avm2.OpEquals, -1)
		return nil
	case ir.Clz32:
		fs.mb.Emit(avm2.OpGetLocal0, 1)
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpCallProperty, -1, fs.m.clz32QName, 1)
		return nil
	case ir.Abs, ir.Ceil, ir.Floor, ir.Sqrt:
		return fs.lowerMathUnary(e)
	case ir.ConvertS:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertD, 0)
		return nil
	case ir.ConvertU:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertU, 0)
		fs.mb.Emit(avm2.OpConvertD, 0)
		return nil
	case ir.TruncS:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertI, 0)
		return nil
	case ir.TruncU:
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertU, 0)
		fs.mb.Emit(avm2.OpConvertI, 0)
		return nil
	case ir.Promote:
		// f32 and f64 both collapse to AVM2's single Number type, and
		// widening never loses precision, so this is a nop.
		return fs.lower(e.Value)
	case ir.Demote:
		// Narrowing f64->f32 must be precision-faithful, unlike Promote;
		// round-trip through the host-provided scratch helpers (spec
		// §4.1.3).
		fs.mb.Emit(avm2.OpGetLocal0, 1)
		if err := fs.lower(e.Value); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpCallPropVoid, -2, fs.m.funcName("scratch_store_f64"), 1)
		fs.mb.Emit(avm2.OpGetLocal0, 1)
		fs.mb.Emit(avm2.OpCallProperty, 0, fs.m.funcName("scratch_load_f32"), 0)
		return nil
	default:
		return &UnsupportedConstruct{What: "unary reinterpret op has no AVM2 lowering"}
	}
}

func (fs *funcScope) lowerMathUnary(e ir.Unary) error {
	name, ok := mathUnaryName(e.Op)
	if !ok {
		return &UnsupportedConstruct{What: "unhandled math unary op"}
	}
	fs.mb.Emit(avm2.OpGetLex, 1, fs.m.mathQName)
	if err := fs.lower(e.Value); err != nil {
		return err
	}
	fs.mb.Emit(avm2.OpCallProperty, -1, fs.m.mathMethods[name], 1)
	return nil
}

func mathUnaryName(op ir.UnOp) (string, bool) {
	switch op {
	case ir.Abs:
		return "abs", true
	case ir.Ceil:
		return "ceil", true
	case ir.Floor:
		return "floor", true
	case ir.Sqrt:
		return "sqrt", true
	default:
		return "", false
	}
}

func (fs *funcScope) lowerBinary(e ir.Binary) error {
	if e.Op == ir.Min || e.Op == ir.Max {
		name := "min"
		if e.Op == ir.Max {
			name = "max"
		}
		fs.mb.Emit(avm2.OpGetLex, 1, fs.m.mathQName)
		if err := fs.lower(e.L); err != nil {
			return err
		}
		if err := fs.lower(e.R); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpCallProperty, -2, fs.m.mathMethods[name], 2)
		return nil
	}

	if e.Op.IsUnsignedCompare() {
		if err := fs.lower(e.L); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertU, 0)
		if err := fs.lower(e.R); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertU, 0)
		fs.mb.Emit(unsignedCompareOp(e.Op), -1)
		fs.mb.Emit(avm2.OpConvertI, 0)
		return nil
	}

	// DivU/RemU need both operands reinterpreted as unsigned before the
	// divide/modulo runs, not just the result afterward: dividing the
	// signed bit pattern first would give the wrong quotient whenever the
	// high bit is set.
	if e.Op == ir.DivU || e.Op == ir.RemU {
		if err := fs.lower(e.L); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertU, 0)
		if err := fs.lower(e.R); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpConvertU, 0)
		if e.Op == ir.DivU {
			fs.mb.Emit(avm2.OpDivide, -1)
		} else {
			fs.mb.Emit(avm2.OpModulo, -1)
		}
		fs.mb.Emit(avm2.OpConvertU, 0)
		fs.mb.Emit(avm2.OpConvertI, 0)
		return nil
	}

	if err := fs.lower(e.L); err != nil {
		return err
	}
	if err := fs.lower(e.R); err != nil {
		return err
	}

	if op, ok := intFastOp(e); ok {
		fs.mb.Emit(op, -1)
		return nil
	}

	if e.Op == ir.Eq {
		fs.mb.Emit(avm2.OpStrictEquals, -1)
		fs.mb.Emit(avm2.OpConvertI, 0)
		return nil
	}
	if e.Op == ir.Ne {
		fs.mb.Emit(avm2.OpStrictEquals, -1)
		fs.mb.Emit(avm2.OpNot, 0)
		fs.mb.Emit(avm2.OpConvertI, 0)
		return nil
	}

	op, err := genericBinOp(e.Op)
	if err != nil {
		return err
	}
	fs.mb.Emit(op, -1)

	switch {
	case e.Op.IsCompare():
		fs.mb.Emit(avm2.OpConvertI, 0)
	case e.Op == ir.ShrU:
		fs.mb.Emit(avm2.OpConvertI, 0)
	case (e.Op == ir.DivS || e.Op == ir.RemS) && e.OperandType == ir.I32:
		fs.mb.Emit(avm2.OpConvertI, 0)
	}
	return nil
}

// intFastOp picks AVM2's integer-optimized add_i/subtract_i/multiply_i
// for i32 add/sub/mul, matching Wasm's wraparound arithmetic far more
// closely than the generic Number-based add/subtract/multiply would.
func intFastOp(e ir.Binary) (avm2.Opcode, bool) {
	if e.OperandType != ir.I32 {
		return 0, false
	}
	switch e.Op {
	case ir.Add:
		return avm2.OpAddI, true
	case ir.Sub:
		return avm2.OpSubtractI, true
	case ir.Mul:
		return avm2.OpMultiplyI, true
	default:
		return 0, false
	}
}

func genericBinOp(op ir.BinOp) (avm2.Opcode, error) {
	switch op {
	case ir.Add:
		return avm2.OpAdd, nil
	case ir.Sub:
		return avm2.OpSubtract, nil
	case ir.Mul:
		return avm2.OpMultiply, nil
	case ir.DivS:
		return avm2.OpDivide, nil
	case ir.RemS:
		return avm2.OpModulo, nil
	case ir.And:
		return avm2.OpBitAnd, nil
	case ir.Or:
		return avm2.OpBitOr, nil
	case ir.Xor:
		return avm2.OpBitXor, nil
	case ir.Shl:
		return avm2.OpLShift, nil
	case ir.ShrS:
		return avm2.OpRShift, nil
	case ir.ShrU:
		return avm2.OpURShift, nil
	case ir.LtS, ir.LtF:
		return avm2.OpLessThan, nil
	case ir.LeS, ir.LeF:
		return avm2.OpLessEquals, nil
	case ir.GtS, ir.GtF:
		return avm2.OpGreaterThan, nil
	case ir.GeS, ir.GeF:
		return avm2.OpGreaterEquals, nil
	default:
		return 0, &UnsupportedConstruct{What: "unhandled binary op"}
	}
}

func unsignedCompareOp(op ir.BinOp) avm2.Opcode {
	switch op {
	case ir.LtU:
		return avm2.OpLessThan
	case ir.LeU:
		return avm2.OpLessEquals
	case ir.GtU:
		return avm2.OpGreaterThan
	default: // GeU
		return avm2.OpGreaterEquals
	}
}

func (fs *funcScope) lowerSelect(e ir.Select) error {
	strict := !(ir.SideEffectFree(e.IfTrue) && ir.SideEffectFree(e.IfFalse))
	trueLbl := fs.mb.NewLabel()
	end := fs.mb.NewLabel()

	if !strict {
		if err := fs.lower(e.Cond); err != nil {
			return err
		}
		fs.mb.EmitBranch(avm2.OpIfTrue, trueLbl)
		if err := fs.lower(e.IfFalse); err != nil {
			return err
		}
		fs.mb.EmitBranch(avm2.OpJump, end)
		fs.mb.Label(trueLbl)
		if err := fs.lower(e.IfTrue); err != nil {
			return err
		}
		fs.mb.Label(end)
		return nil
	}

	// Both candidates may have side effects: Wasm's select evaluates both,
	// in source order, regardless of which one the condition picks. Stash
	// each into a fresh local so evaluation order is preserved while only
	// one value ends up on the stack.
	a := fs.mb.AllocLocal()
	b := fs.mb.AllocLocal()
	if err := fs.lower(e.IfTrue); err != nil {
		return err
	}
	fs.emitSetLocal(a)
	if err := fs.lower(e.IfFalse); err != nil {
		return err
	}
	fs.emitSetLocal(b)
	if err := fs.lower(e.Cond); err != nil {
		return err
	}
	fs.mb.EmitBranch(avm2.OpIfTrue, trueLbl)
	fs.emitGetLocal(b)
	fs.mb.EmitBranch(avm2.OpJump, end)
	fs.mb.Label(trueLbl)
	fs.emitGetLocal(a)
	fs.mb.Label(end)
	return nil
}

func (fs *funcScope) lowerCall(e ir.Call) error {
	fs.mb.Emit(avm2.OpGetLocal0, 1)
	for _, op := range e.Operands {
		if err := fs.lower(op); err != nil {
			return err
		}
	}
	nargs := uint32(len(e.Operands))
	name := fs.m.funcName(e.Target)
	if e.ResultType() == ir.None {
		fs.mb.Emit(avm2.OpCallPropVoid, -(1+int(nargs)), name, nargs)
		return nil
	}
	fs.mb.Emit(avm2.OpCallProperty, -(int(nargs)), name, nargs)
	return nil
}

// lowerCallIndirect resolves the table entry through the synthesized
// __table_get helper (a single late-bound array index, spec's scope
// decision to avoid repeating MultinameL machinery at every call site),
// then invokes the resulting Function value directly with the plain
// call opcode. AVM2 needs the function object ahead of the arguments,
// but Wasm evaluates the call's operands before its target (spec
// §4.1.6/§9): when everything involved is side-effect-free the two
// orders are observationally identical and the helper-first emission
// below is used directly; otherwise operands are stashed into fresh
// temporary locals in source order first, so each is evaluated exactly
// once in the right place even though the call sequence reads them back
// after the target.
func (fs *funcScope) lowerCallIndirect(e ir.CallIndirect) error {
	safe := ir.SideEffectFree(e.Target)
	for _, op := range e.Operands {
		safe = safe && ir.SideEffectFree(op)
	}
	if safe {
		return fs.lowerCallIndirectFast(e)
	}
	return fs.lowerCallIndirectOrdered(e)
}

func (fs *funcScope) lowerCallIndirectFast(e ir.CallIndirect) error {
	fs.mb.Emit(avm2.OpGetLocal0, 1)
	if err := fs.lower(e.Target); err != nil {
		return err
	}
	fs.mb.Emit(avm2.OpCallProperty, -1, fs.m.tableGetQName, 1)

	fs.mb.Emit(avm2.OpPushNull, 1)
	for _, op := range e.Operands {
		if err := fs.lower(op); err != nil {
			return err
		}
	}
	nargs := uint32(len(e.Operands))
	fs.mb.Emit(avm2.OpCall, -(1+int(nargs)), nargs)
	if e.ResultType() == ir.None {
		fs.mb.Emit(avm2.OpPop, -1)
	}
	return nil
}

func (fs *funcScope) lowerCallIndirectOrdered(e ir.CallIndirect) error {
	temps := make([]int, len(e.Operands))
	for i, op := range e.Operands {
		if err := fs.lower(op); err != nil {
			return err
		}
		temps[i] = fs.mb.AllocLocal()
		fs.emitSetLocal(temps[i])
	}

	fs.mb.Emit(avm2.OpGetLocal0, 1)
	if err := fs.lower(e.Target); err != nil {
		return err
	}
	fs.mb.Emit(avm2.OpCallProperty, -1, fs.m.tableGetQName, 1)

	fs.mb.Emit(avm2.OpPushNull, 1)
	for _, slot := range temps {
		fs.emitGetLocal(slot)
		fs.mb.Emit(avm2.OpKill, 0, uint32(slot))
	}
	nargs := uint32(len(e.Operands))
	fs.mb.Emit(avm2.OpCall, -(1+int(nargs)), nargs)
	if e.ResultType() == ir.None {
		fs.mb.Emit(avm2.OpPop, -1)
	}
	return nil
}

func (fs *funcScope) lowerHost(e ir.Host) error {
	switch e.Op {
	case ir.MemorySize:
		fs.mb.Emit(avm2.OpGetLocal0, 1)
		fs.mb.Emit(avm2.OpCallProperty, 0, fs.m.memSizeQName, 0)
		return nil
	case ir.MemoryGrow:
		fs.mb.Emit(avm2.OpGetLocal0, 1)
		if err := fs.lower(e.Operand); err != nil {
			return err
		}
		fs.mb.Emit(avm2.OpCallProperty, -1, fs.m.memGrowQName, 1)
		return nil
	default:
		return &UnsupportedConstruct{What: "unhandled host op"}
	}
}
