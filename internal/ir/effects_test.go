package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideEffectFreeConstAndLocalGet(t *testing.T) {
	assert.True(t, SideEffectFree(i32Const(1)))
	assert.True(t, SideEffectFree(LocalGet{Index: 0}))
	assert.True(t, SideEffectFree(GlobalGet{Name: "g0"}))
	assert.True(t, SideEffectFree(Nop{}))
}

func TestSideEffectFreeBinaryPropagates(t *testing.T) {
	b := Binary{Op: Add, OperandType: I32, L: i32Const(1), R: LocalGet{Index: 0}}
	assert.True(t, SideEffectFree(b))
}

func TestSideEffectFreeCallIsNotFree(t *testing.T) {
	assert.False(t, SideEffectFree(Call{Target: "f", Operands: nil}))
}

func TestSideEffectFreeSelectRequiresAllArmsFree(t *testing.T) {
	free := Select{Cond: i32Const(1), IfTrue: i32Const(2), IfFalse: i32Const(3)}
	assert.True(t, SideEffectFree(free))

	notFree := Select{Cond: i32Const(1), IfTrue: Call{Target: "f"}, IfFalse: i32Const(3)}
	assert.False(t, SideEffectFree(notFree))
}
