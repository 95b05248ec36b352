package lower

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brion/wasm2swf/internal/avm2"
	"github.com/brion/wasm2swf/internal/ir"
)

func hasOp(code []byte, op avm2.Opcode) bool {
	return bytes.Contains(code, []byte{byte(op)})
}

func countOp(code []byte, op avm2.Opcode) int {
	return bytes.Count(code, []byte{byte(op)})
}

func ltS(l, r ir.Expr) ir.Binary {
	return ir.Binary{Op: ir.LtS, OperandType: ir.I32, L: l, R: r}
}

// TestLowerFunctionIfFoldsSignedCompare exercises the conditional-folding
// peephole (spec §4.1.2) for If's inverse-comparator row: lt_s folds into
// a direct ifge branch instead of lowering the compare to a Boolean and
// branching on it.
func TestLowerFunctionIfFoldsSignedCompare(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "cmp",
		Params: []ir.Type{ir.I32, ir.I32},
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.If{
					Cond: ltS(ir.LocalGet{Index: 0}, ir.LocalGet{Index: 1}),
					Then: &ir.Block{Children: []ir.Expr{ir.Drop{Value: i32(1)}}},
				},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpIfGe), "expected the inverted ifge branch")
	assert.False(t, hasOp(lm.Code, avm2.OpLessThan), "compare op should not be materialized separately")
	assert.False(t, hasOp(lm.Code, avm2.OpIfFalse), "generic boolean branch should not be used")
}

// TestLowerFunctionBreakFoldsUnsignedCompare exercises the folding table's
// unsigned row for a conditional br: both operands get convert_u framing
// before the direct (non-inverted) comparison branch.
func TestLowerFunctionBreakFoldsUnsignedCompare(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "loop",
		Params: []ir.Type{ir.I32, ir.I32},
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Loop{
					Name: "L0",
					Body: &ir.Block{
						Children: []ir.Expr{
							ir.Break{
								Name: "L0",
								Cond: ir.Binary{Op: ir.LtU, OperandType: ir.I32, L: ir.LocalGet{Index: 0}, R: ir.LocalGet{Index: 1}},
							},
						},
					},
				},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpIfLt), "expected the direct iflt branch for br")
	assert.Equal(t, 2, countOp(lm.Code, avm2.OpConvertU), "both unsigned operands should be convert_u framed")
}

// TestLowerFunctionIfFoldsEqZ exercises the EqZ row: the raw operand
// value is branched on directly, with no equals/not materialization.
func TestLowerFunctionIfFoldsEqZ(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "nz",
		Params: []ir.Type{ir.I32},
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.If{
					Cond: ir.Unary{Op: ir.EqZ, OperandType: ir.I32, Value: ir.LocalGet{Index: 0}},
					Then: &ir.Block{Children: []ir.Expr{ir.Drop{Value: i32(1)}}},
				},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpIfTrue))
	assert.False(t, hasOp(lm.Code, avm2.OpEquals), "EqZ branch should not materialize a Boolean")
}

// TestLowerFunctionBinaryEqUsesStrictEquals covers the non-folded value
// position (e.g. stored into a local rather than branched on): Eq must
// use strictequals, not equals, followed by convert_i to recover the
// Wasm i32 result.
func TestLowerFunctionBinaryEqUsesStrictEquals(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "eq",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Binary{Op: ir.Eq, OperandType: ir.I32, L: ir.LocalGet{Index: 0}, R: ir.LocalGet{Index: 1}}},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpStrictEquals))
	assert.True(t, hasOp(lm.Code, avm2.OpConvertI))
	assert.False(t, hasOp(lm.Code, avm2.OpEquals))
}

func TestLowerFunctionBinaryNeUsesStrictEqualsAndNot(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "ne",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Binary{Op: ir.Ne, OperandType: ir.I32, L: ir.LocalGet{Index: 0}, R: ir.LocalGet{Index: 1}}},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpStrictEquals))
	assert.True(t, hasOp(lm.Code, avm2.OpNot))
	assert.True(t, hasOp(lm.Code, avm2.OpConvertI))
}

// TestLowerFunctionBinaryShrUConvertsResult covers spec §4.1.3's ShrU
// normalization: urshift, then convert_i to fold the result back to i32.
func TestLowerFunctionBinaryShrUConvertsResult(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "shru",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Binary{Op: ir.ShrU, OperandType: ir.I32, L: ir.LocalGet{Index: 0}, R: ir.LocalGet{Index: 1}}},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpURShift))
	assert.True(t, hasOp(lm.Code, avm2.OpConvertI))
}

// TestLowerFunctionBinaryDivURemUConvertsOperandsAndResult covers both
// operands being convert_u framed plus the result re-normalized through
// convert_u then convert_i.
func TestLowerFunctionBinaryDivURemUConvertsOperandsAndResult(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "divu",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Binary{Op: ir.DivU, OperandType: ir.I32, L: ir.LocalGet{Index: 0}, R: ir.LocalGet{Index: 1}}},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpDivide))
	assert.Equal(t, 3, countOp(lm.Code, avm2.OpConvertU), "both operands plus the result are convert_u framed")
	assert.True(t, hasOp(lm.Code, avm2.OpConvertI))
}

// TestLowerFunctionBinaryUnsignedCompareConvertsOperandsAndResult covers
// the unsigned-compare row: both operands convert_u framed, then the
// comparison result convert_i'd back to i32.
func TestLowerFunctionBinaryUnsignedCompareConvertsOperandsAndResult(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "ltu",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Binary{Op: ir.LtU, OperandType: ir.I32, L: ir.LocalGet{Index: 0}, R: ir.LocalGet{Index: 1}}},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpLessThan))
	assert.Equal(t, 2, countOp(lm.Code, avm2.OpConvertU))
	assert.True(t, hasOp(lm.Code, avm2.OpConvertI))
}

// TestLowerUnaryConversions exercises every reachable conversion kind
// (spec §4.1.3) now that the decoder/opmap wiring makes them reachable.
func TestLowerUnaryConversions(t *testing.T) {
	cases := []struct {
		name string
		op   ir.UnOp
		from ir.Type
		to   ir.Type
		want []avm2.Opcode
		not  []avm2.Opcode
	}{
		{"trunc_s", ir.TruncS, ir.F64, ir.I32, []avm2.Opcode{avm2.OpConvertI}, []avm2.Opcode{avm2.OpConvertU}},
		{"trunc_u", ir.TruncU, ir.F64, ir.I32, []avm2.Opcode{avm2.OpConvertU, avm2.OpConvertI}, nil},
		{"convert_s", ir.ConvertS, ir.I32, ir.F64, []avm2.Opcode{avm2.OpConvertD}, []avm2.Opcode{avm2.OpConvertU}},
		{"convert_u", ir.ConvertU, ir.I32, ir.F64, []avm2.Opcode{avm2.OpConvertU, avm2.OpConvertD}, nil},
		{"promote", ir.Promote, ir.F32, ir.F64, nil, []avm2.Opcode{avm2.OpConvertD, avm2.OpConvertI}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := newModuleCtx()
			fn := &ir.Function{
				Name:   c.name,
				Params: []ir.Type{c.from},
				Result: c.to,
				Body: &ir.Block{
					Children: []ir.Expr{
						ir.Return{Value: ir.Unary{Op: c.op, OperandType: c.from, Value: ir.LocalGet{Index: 0}}},
					},
				},
			}
			lm, err := lowerFunction(m, fn)
			assert.NoError(t, err)
			for _, op := range c.want {
				assert.True(t, hasOp(lm.Code, op), "expected opcode missing for %s", c.name)
			}
			for _, op := range c.not {
				assert.False(t, hasOp(lm.Code, op), "unexpected opcode present for %s", c.name)
			}
		})
	}
}

// TestLowerUnaryDemoteRoundTripsThroughScratchHelpers covers Demote's
// host-import round trip, distinct from Promote's plain nop.
func TestLowerUnaryDemoteRoundTripsThroughScratchHelpers(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "demote",
		Params: []ir.Type{ir.F64},
		Result: ir.F32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Unary{Op: ir.Demote, OperandType: ir.F64, Value: ir.LocalGet{Index: 0}}},
			},
		},
	}
	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpCallPropVoid))
	assert.True(t, hasOp(lm.Code, avm2.OpCallProperty))
	_, ok := m.funcQName["scratch_store_f64"]
	assert.True(t, ok)
	_, ok = m.funcQName["scratch_load_f32"]
	assert.True(t, ok)
}

// TestLowerFunctionCallIndirectFastPath covers the side-effect-free
// escape hatch: no temporaries are allocated, and the existing
// helper-first emission order is used directly.
func TestLowerFunctionCallIndirectFastPath(t *testing.T) {
	m := newModuleCtx()
	call := ir.CallIndirect{
		Target:   ir.LocalGet{Index: 0},
		Operands: []ir.Expr{ir.LocalGet{Index: 1}},
	}
	call.Type = ir.I32
	fn := &ir.Function{
		Name:   "invoke",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: call},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpCall))
	assert.False(t, hasOp(lm.Code, avm2.OpKill), "fast path allocates no temporaries to kill")
	assert.Equal(t, 3, lm.LocalCount, "receiver+2 params, no extra temps")
}

// TestLowerModuleMemoryInitHelper covers finding 5: a data segment is
// written via one call to the synthesized __memory_init helper, not an
// unrolled per-byte writeByte loop.
func TestLowerModuleMemoryInitHelper(t *testing.T) {
	mod := &ir.Module{
		MemoryInitialPages: 1,
		Memory: []ir.MemorySegment{
			{ByteOffset: 0, Bytes: []byte{1, 2, 3}},
		},
	}

	asm, err := LowerModule(mod, "Instance", nil)
	assert.NoError(t, err)

	var found bool
	for _, h := range asm.Helpers {
		if h.Name == "__memory_init" {
			found = true
			assert.Equal(t, 2, len(h.ParamTypes))
			assert.True(t, hasOp(h.Code, avm2.OpSI8))
			assert.True(t, hasOp(h.Code, avm2.OpCallProperty), "charCodeAt lookup")
		}
	}
	assert.True(t, found, "__memory_init helper must be synthesized")

	assert.True(t, hasOp(asm.InstanceInit.Code, avm2.OpCallPropVoid))
	assert.True(t, hasOp(asm.InstanceInit.Code, avm2.OpPushString), "segment bytes are pooled as a constant string")
}

// TestLowerFunctionCallIndirectOrderedPath covers the escape hatch: a
// side-effecting operand forces operands into temporaries evaluated
// before the target, reloaded (and killed) after.
func TestLowerFunctionCallIndirectOrderedPath(t *testing.T) {
	m := newModuleCtx()
	// LocalSet with IsTee is side-effecting (it is not one of
	// SideEffectFree's allowed leaf/recursive kinds) yet still leaves a
	// real value on the stack, so it stands in for "an operand with a
	// side effect" without needing a zero-value-only node from another
	// package's unexported embedded field.
	sideEffecting := ir.LocalSet{Index: 1, Value: i32(7), IsTee: true, Type: ir.I32}
	call := ir.CallIndirect{
		Target:   ir.LocalGet{Index: 0},
		Operands: []ir.Expr{sideEffecting},
	}
	call.Type = ir.I32
	fn := &ir.Function{
		Name:   "invoke",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: call},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.True(t, hasOp(lm.Code, avm2.OpKill), "ordered path must kill its temporary after reload")
	assert.Equal(t, 4, lm.LocalCount, "receiver+2 params+1 temp for the side-effecting operand")
}
