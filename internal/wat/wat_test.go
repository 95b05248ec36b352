package wat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brion/wasm2swf/internal/ir"
)

func TestDumpIncludesFunctionAndExport(t *testing.T) {
	c := ir.Const{I32: 42}
	c.Type = ir.I32

	mod := &ir.Module{
		MemoryInitialPages: 1,
		MemoryMaxPages:      -1,
		Funcs: []ir.Function{
			{
				Name:   "answer",
				Result: ir.I32,
				Body:   &ir.Block{Children: []ir.Expr{ir.Return{Value: c}}},
			},
		},
		Exports: []ir.Export{{Name: "answer", Kind: ir.ExportFunc, Target: "answer"}},
	}

	out := Dump(mod)
	assert.True(t, strings.Contains(out, "$answer"))
	assert.True(t, strings.Contains(out, "i32.const 42"))
	assert.True(t, strings.Contains(out, "export"))
}

func TestDumpHandlesImportedFunc(t *testing.T) {
	mod := &ir.Module{
		Funcs: []ir.Function{
			{Name: "env.log", Module: "env", Base: "log", Params: []ir.Type{ir.I32}},
		},
	}

	out := Dump(mod)
	assert.True(t, strings.Contains(out, "import"))
}
