package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brion/wasm2swf/internal/avm2"
)

func TestMethodBuilderTracksMaxStack(t *testing.T) {
	mb := NewMethodBuilder(1)
	mb.EmitByte(1)
	mb.EmitByte(2)
	mb.Emit(avm2.OpAdd, -1)
	mb.Emit(avm2.OpReturnValue, -1)

	_, maxStack, _, err := mb.Finish()
	assert.NoError(t, err)
	assert.Equal(t, 2, maxStack)
}

func TestMethodBuilderNegativeDepthPanics(t *testing.T) {
	mb := NewMethodBuilder(1)
	assert.Panics(t, func() {
		mb.Emit(avm2.OpAdd, -1)
	})
}

func TestMethodBuilderLabelResolution(t *testing.T) {
	mb := NewMethodBuilder(1)
	done := mb.NewLabel()
	mb.EmitByte(1)
	mb.EmitBranch(avm2.OpIfTrue, done)
	mb.EmitByte(2)
	mb.Label(done)
	mb.Emit(avm2.OpReturnValue, -1)

	code, _, _, err := mb.Finish()
	assert.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestMethodBuilderUnresolvedLabelErrors(t *testing.T) {
	mb := NewMethodBuilder(1)
	mb.EmitByte(1)
	mb.EmitBranch(avm2.OpIfTrue, "nowhere")

	_, _, _, err := mb.Finish()
	assert.Error(t, err)
}

func TestAllocLocalGrowsLocalCount(t *testing.T) {
	mb := NewMethodBuilder(2)
	a := mb.AllocLocal()
	b := mb.AllocLocal()
	assert.Equal(t, 2, a)
	assert.Equal(t, 3, b)

	mb.Emit(avm2.OpReturnVoid, 0)
	_, _, maxLocal, err := mb.Finish()
	assert.NoError(t, err)
	assert.Equal(t, 4, maxLocal)
}
