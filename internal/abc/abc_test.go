package abc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brion/wasm2swf/internal/ir"
	"github.com/brion/wasm2swf/internal/lower"
)

func constI32(v int32) ir.Const {
	c := ir.Const{I32: v}
	c.Type = ir.I32
	return c
}

func sampleModule() *ir.Module {
	return &ir.Module{
		MemoryInitialPages: 1,
		MemoryMaxPages:      -1,
		Funcs: []ir.Function{
			{
				Name:   "answer",
				Result: ir.I32,
				Body: &ir.Block{
					Children: []ir.Expr{ir.Return{Value: constI32(42)}},
				},
			},
		},
		Exports: []ir.Export{
			{Name: "answer", Kind: ir.ExportFunc, Target: "answer"},
		},
	}
}

func TestAssembleProducesNonEmptyBytes(t *testing.T) {
	asm, err := lower.LowerModule(sampleModule(), "Instance", nil)
	assert.NoError(t, err)

	out, err := Assemble(asm, false)
	assert.NoError(t, err)
	assert.NotEmpty(t, out)

	// minor/major version header
	assert.Equal(t, []byte{0x10, 0x00, 0x2e, 0x00}, out[:4])
}

func TestAssembleWithSpriteAddsWrapperClass(t *testing.T) {
	asm, err := lower.LowerModule(sampleModule(), "Instance", nil)
	assert.NoError(t, err)

	plain, err := Assemble(asm, false)
	assert.NoError(t, err)

	withSprite, err := Assemble(asm, true)
	assert.NoError(t, err)

	assert.Greater(t, len(withSprite), len(plain))
}
