package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brion/wasm2swf/internal/ir"
)

func i32(v int32) ir.Const {
	c := ir.Const{I32: v}
	c.Type = ir.I32
	return c
}

func TestLowerFunctionConstReturn(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "answer",
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: i32(42)},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.NotEmpty(t, lm.Code)
	assert.GreaterOrEqual(t, lm.MaxStack, 1)
	assert.Equal(t, "answer", lm.Name)
}

func TestLowerFunctionBinaryAdd(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "add",
		Params: []ir.Type{ir.I32, ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Binary{
					Op:          ir.Add,
					OperandType: ir.I32,
					L:           ir.LocalGet{Index: 0},
					R:           ir.LocalGet{Index: 1},
				}},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.NotEmpty(t, lm.Code)
}

func TestLowerFunctionSelectShortCircuit(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name:   "pick",
		Params: []ir.Type{ir.I32},
		Result: ir.I32,
		Body: &ir.Block{
			Children: []ir.Expr{
				ir.Return{Value: ir.Select{
					Cond:    ir.LocalGet{Index: 0},
					IfTrue:  i32(1),
					IfFalse: i32(2),
				}},
			},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.NotEmpty(t, lm.Code)
	// side-effect-free operands take the short-circuit branch, so no
	// extra scratch locals beyond receiver+param are allocated.
	assert.Equal(t, 2, lm.LocalCount)
}

func TestLowerFunctionUnreachableThrows(t *testing.T) {
	m := newModuleCtx()
	fn := &ir.Function{
		Name: "trap",
		Body: &ir.Block{
			Children: []ir.Expr{ir.Unreachable{}},
		},
	}

	lm, err := lowerFunction(m, fn)
	assert.NoError(t, err)
	assert.NotEmpty(t, lm.Code)
}
