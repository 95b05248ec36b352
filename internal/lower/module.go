package lower

import (
	"tlog.app/go/errors"

	"github.com/brion/wasm2swf/internal/avm2"
	"github.com/brion/wasm2swf/internal/config"
	"github.com/brion/wasm2swf/internal/ir"
)

// Assembly is the fully lowered module: everything internal/abc needs to
// write cpool_info, the method/method_body records, and the single
// instance/class pair this compiler synthesizes per Wasm module.
type Assembly struct {
	Pool *avm2.ConstantPool

	ClassName string

	Methods      []*LoweredMethod // one per defined Wasm function
	Helpers      []*LoweredMethod // synthesized runtime support methods
	InstanceInit *LoweredMethod
	ClassInit    *LoweredMethod

	Exports []ir.Export
}

// LowerModule walks the whole IR module and produces the ABC-ready
// method bodies plus the instance initializer that wires memory, the
// function table, globals, and host imports together at construction
// time (spec §4.3).
func LowerModule(mod *ir.Module, className string, cfg *config.Config) (*Assembly, error) {
	m := newModuleCtx()
	if cfg != nil {
		m.traceFunc = cfg.TraceEnabled
	}

	for i := range mod.Globals {
		m.globalName(mod.Globals[i].Name)
	}
	for i := range mod.Funcs {
		m.funcName(mod.Funcs[i].Name)
	}

	asm := &Assembly{Pool: m.pool, ClassName: className, Exports: mod.Exports}

	for i := range mod.Funcs {
		fn := &mod.Funcs[i]
		if fn.Imported() {
			continue
		}
		lm, err := lowerFunction(m, fn)
		if err != nil {
			return nil, errors.Wrap(err, "function %q", fn.Name)
		}
		asm.Methods = append(asm.Methods, lm)
	}

	asm.Helpers = []*LoweredMethod{
		synthClz32(m),
		synthTableGet(m),
		synthMemorySize(m),
		synthMemoryGrow(m),
		synthMemoryInit(m),
	}

	init, err := synthInstanceInit(m, mod)
	if err != nil {
		return nil, errors.Wrap(err, "instance initializer")
	}
	asm.InstanceInit = init
	asm.ClassInit = synthEmptyVoidMethod()

	return asm, nil
}

func synthEmptyVoidMethod() *LoweredMethod {
	mb := NewMethodBuilder(1)
	mb.Emit(avm2.OpReturnVoid, 0)
	code, maxStack, maxLocal, err := mb.Finish()
	if err != nil {
		panic(err)
	}
	return &LoweredMethod{Code: code, MaxStack: maxStack, LocalCount: maxLocal, InitScopeDepth: 1, MaxScopeDepth: 1, ResultType: ir.None}
}

// synthClz32 counts the leading zero bits of its i32 argument, the one
// numeric primitive AVM2 has no bytecode for (spec §4.1.3's count-leading-
// zeros op).
func synthClz32(m *moduleCtx) *LoweredMethod {
	mb := NewMethodBuilder(2) // this, x
	n := mb.AllocLocal()

	nonzero := mb.NewLabel()
	loop := mb.NewLabel()
	done := mb.NewLabel()

	mb.Emit(avm2.OpGetLocal1, 1)
	mb.EmitBranch(avm2.OpIfTrue, nonzero)
	mb.EmitByte(32)
	mb.Emit(avm2.OpReturnValue, -1)

	mb.Label(nonzero)
	mb.EmitByte(0)
	mb.Emit(avm2.OpSetLocal, -1, uint32(n))

	mb.Label(loop)
	mb.Emit(avm2.OpGetLocal1, 1)
	mb.Emit(avm2.OpPushInt, 1, m.pool.Int(int32(-2147483648))) // 0x80000000
	mb.Emit(avm2.OpBitAnd, -1)
	mb.EmitBranch(avm2.OpIfTrue, done)

	mb.Emit(avm2.OpGetLocal1, 1)
	mb.EmitByte(1)
	mb.Emit(avm2.OpLShift, -1)
	mb.Emit(avm2.OpSetLocal1, -1)

	mb.Emit(avm2.OpGetLocal, 1, uint32(n))
	mb.EmitByte(1)
	mb.Emit(avm2.OpAddI, -1)
	mb.Emit(avm2.OpSetLocal, -1, uint32(n))

	mb.EmitBranch(avm2.OpJump, loop)

	mb.Label(done)
	mb.Emit(avm2.OpGetLocal, 1, uint32(n))
	mb.Emit(avm2.OpReturnValue, -1)

	return finishSynth(mb, "__clz32", m.clz32QName, []ir.Type{ir.I32}, ir.I32)
}

// synthTableGet resolves a CallIndirect target through a single
// late-bound array index, so every call site just invokes this helper
// instead of repeating the MultinameL machinery itself.
func synthTableGet(m *moduleCtx) *LoweredMethod {
	mb := NewMethodBuilder(2) // this, idx
	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpGetProperty, 0, m.tableQName)
	mb.Emit(avm2.OpGetLocal1, 1)
	mb.Emit(avm2.OpGetProperty, -1, m.tableIndexMultiname)
	mb.Emit(avm2.OpReturnValue, -1)
	return finishSynth(mb, "__table_get", m.tableGetQName, []ir.Type{ir.I32}, ir.I32)
}

// synthMemorySize reports current linear memory size in 64KiB pages.
func synthMemorySize(m *moduleCtx) *LoweredMethod {
	mb := NewMethodBuilder(1) // this
	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpGetProperty, 0, m.memoryQName)
	mb.Emit(avm2.OpGetProperty, 0, m.lengthQName)
	mb.EmitByte(16)
	mb.Emit(avm2.OpRShift, -1)
	mb.Emit(avm2.OpReturnValue, -1)
	return finishSynth(mb, "__memory_size", m.memSizeQName, nil, ir.I32)
}

// synthMemoryGrow grows linear memory by deltaPages 64KiB pages and
// returns the previous page count. AVM2's domainMemory binding is
// re-assigned after the resize: Adobe's runtime does not always notice a
// ByteArray's length change under an already-pinned domain memory slot,
// so every grow re-pins it defensively.
func synthMemoryGrow(m *moduleCtx) *LoweredMethod {
	mb := NewMethodBuilder(2) // this, deltaPages
	mem := mb.AllocLocal()
	old := mb.AllocLocal()

	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpGetProperty, 0, m.memoryQName)
	mb.Emit(avm2.OpSetLocal, -1, uint32(mem))

	mb.Emit(avm2.OpGetLocal, 1, uint32(mem))
	mb.Emit(avm2.OpGetProperty, 0, m.lengthQName)
	mb.EmitByte(16)
	mb.Emit(avm2.OpRShift, -1)
	mb.Emit(avm2.OpSetLocal, -1, uint32(old))

	mb.Emit(avm2.OpGetLocal, 1, uint32(mem))
	mb.Emit(avm2.OpGetLocal, 1, uint32(mem))
	mb.Emit(avm2.OpGetProperty, 0, m.lengthQName)
	mb.Emit(avm2.OpGetLocal1, 1)
	mb.Emit(avm2.OpPushInt, 1, m.pool.Int(65536))
	mb.Emit(avm2.OpMultiply, -1)
	mb.Emit(avm2.OpAdd, -1)
	mb.Emit(avm2.OpSetProperty, -2, m.lengthQName)

	mb.Emit(avm2.OpGetLex, 1, m.appDomainQName)
	mb.Emit(avm2.OpGetProperty, 0, m.currentDomainQName)
	mb.Emit(avm2.OpGetLocal, 1, uint32(mem))
	mb.Emit(avm2.OpSetProperty, -2, m.domainMemoryQName)

	mb.Emit(avm2.OpGetLocal, 1, uint32(old))
	mb.Emit(avm2.OpReturnValue, -1)

	return finishSynth(mb, "__memory_grow", m.memGrowQName, []ir.Type{ir.I32}, ir.I32)
}

// synthMemoryInit unpacks a data segment's string-encoded bytes (spec
// §4.3's "Data-segment encoding": one Unicode code point per byte,
// 0-255) into domain memory starting at byteOffset, via si8 — the
// constant pool's strings are the only channel wide enough to carry
// arbitrary byte data through the ABC file.
func synthMemoryInit(m *moduleCtx) *LoweredMethod {
	mb := NewMethodBuilder(3) // this, byteOffset, data
	i := mb.AllocLocal()

	loop := mb.NewLabel()
	done := mb.NewLabel()

	mb.EmitByte(0)
	mb.Emit(avm2.OpSetLocal, -1, uint32(i))

	mb.Label(loop)
	mb.Emit(avm2.OpGetLocal, 1, uint32(i))
	mb.Emit(avm2.OpGetLocal2, 1)
	mb.Emit(avm2.OpGetProperty, 0, m.lengthQName)
	mb.EmitCompareBranch(avm2.OpIfGe, done)

	mb.Emit(avm2.OpGetLocal1, 1)
	mb.Emit(avm2.OpGetLocal, 1, uint32(i))
	mb.Emit(avm2.OpAdd, -1)

	mb.Emit(avm2.OpGetLocal2, 1)
	mb.Emit(avm2.OpGetLocal, 1, uint32(i))
	mb.Emit(avm2.OpCallProperty, -1, m.charCodeAtQName, 1)

	mb.Emit(avm2.OpSwap, 0) // si8 takes the value below the address
	mb.Emit(avm2.OpSI8, -2)

	mb.Emit(avm2.OpGetLocal, 1, uint32(i))
	mb.EmitByte(1)
	mb.Emit(avm2.OpAddI, -1)
	mb.Emit(avm2.OpSetLocal, -1, uint32(i))

	mb.EmitBranch(avm2.OpJump, loop)

	mb.Label(done)
	mb.Emit(avm2.OpReturnVoid, 0)

	return finishSynth(mb, "__memory_init", m.memInitQName, []ir.Type{ir.I32, ir.I32}, ir.None)
}

func finishSynth(mb *MethodBuilder, name string, nameIdx uint32, params []ir.Type, result ir.Type) *LoweredMethod {
	code, maxStack, maxLocal, err := mb.Finish()
	if err != nil {
		panic(err)
	}
	return &LoweredMethod{
		Name: name, NameIdx: nameIdx, ParamTypes: params, ResultType: result,
		Code: code, MaxStack: maxStack, LocalCount: maxLocal,
		InitScopeDepth: 1, MaxScopeDepth: 1,
	}
}

// synthInstanceInit builds the constructor: super(), linear memory setup
// and data-segment writes, global initialization, table population, and
// copying the single "imports" constructor argument's functions onto
// same-named instance properties (so Call's lowering never needs to
// distinguish an imported target from a defined one, spec §4.3/§6).
func synthInstanceInit(m *moduleCtx, mod *ir.Module) (*LoweredMethod, error) {
	mb := NewMethodBuilder(2) // this, imports

	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpConstructSuper, -1, 0)

	if err := emitMemorySetup(mb, m, mod); err != nil {
		return nil, err
	}
	emitGlobalsInit(mb, m, mod)
	emitTableInit(mb, m, mod)
	emitImportsCopy(mb, m, mod)
	emitExportsInit(mb, m, mod)

	mb.Emit(avm2.OpReturnVoid, 0)

	code, maxStack, maxLocal, err := mb.Finish()
	if err != nil {
		return nil, err
	}
	return &LoweredMethod{
		Name: "", ParamTypes: nil, ResultType: ir.None,
		Code: code, MaxStack: maxStack, LocalCount: maxLocal,
		InitScopeDepth: 1, MaxScopeDepth: 1,
	}, nil
}

func emitMemorySetup(mb *MethodBuilder, m *moduleCtx, mod *ir.Module) error {
	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpFindPropStrict, 1, m.byteArrayQName)
	mb.Emit(avm2.OpConstructProp, 0, m.byteArrayQName, 0)
	mb.Emit(avm2.OpSetProperty, -2, m.memoryQName)

	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpGetProperty, 0, m.memoryQName)
	mb.Emit(avm2.OpPushInt, 1, m.pool.Int(mod.MemoryInitialPages*65536))
	mb.Emit(avm2.OpSetProperty, -2, m.lengthQName)

	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpGetProperty, 0, m.memoryQName)
	mb.Emit(avm2.OpGetLex, 1, m.endianClassQName)
	mb.Emit(avm2.OpGetProperty, 0, m.littleEndianQName)
	mb.Emit(avm2.OpSetProperty, -2, m.endianQName)

	mb.Emit(avm2.OpGetLex, 1, m.appDomainQName)
	mb.Emit(avm2.OpGetProperty, 0, m.currentDomainQName)
	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpGetProperty, 0, m.memoryQName)
	mb.Emit(avm2.OpSetProperty, -2, m.domainMemoryQName)

	for _, seg := range mod.Memory {
		mb.Emit(avm2.OpGetLocal0, 1)
		mb.Emit(avm2.OpPushInt, 1, m.pool.Int(seg.ByteOffset))
		mb.Emit(avm2.OpPushString, 1, m.pool.String(segmentString(seg.Bytes)))
		mb.Emit(avm2.OpCallPropVoid, -3, m.memInitQName, 2)
	}
	return nil
}

// segmentString encodes a data segment's raw bytes as spec §4.3's
// "Data-segment encoding" requires: one Unicode code point per byte
// (0-255), so __memory_init's charCodeAt(i) recovers the original byte
// exactly after the constant pool round-trips it through UTF-8.
func segmentString(bytes []byte) string {
	runes := make([]rune, len(bytes))
	for i, b := range bytes {
		runes[i] = rune(b)
	}
	return string(runes)
}

func emitGlobalsInit(mb *MethodBuilder, m *moduleCtx, mod *ir.Module) {
	for _, g := range mod.Globals {
		mb.Emit(avm2.OpGetLocal0, 1)
		if g.IsFloat {
			mb.Emit(avm2.OpPushDouble, 1, m.pool.Double(g.InitF64))
		} else {
			mb.Emit(avm2.OpPushInt, 1, m.pool.Int(g.InitI32))
		}
		mb.Emit(avm2.OpSetProperty, -2, m.globalName(g.Name))
	}
}

func emitTableInit(mb *MethodBuilder, m *moduleCtx, mod *ir.Module) {
	arrayQName := m.qname("Array")
	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpFindPropStrict, 1, arrayQName)
	mb.Emit(avm2.OpConstructProp, 0, arrayQName, 0)
	mb.Emit(avm2.OpSetProperty, -2, m.tableQName)

	for _, seg := range mod.Table {
		for i, name := range seg.Funcs {
			mb.Emit(avm2.OpGetLocal0, 1)
			mb.Emit(avm2.OpGetProperty, 0, m.tableQName)
			mb.Emit(avm2.OpPushInt, 1, m.pool.Int(seg.Offset+int32(i)))
			mb.Emit(avm2.OpGetLocal0, 1)
			mb.Emit(avm2.OpGetProperty, 0, m.funcName(name))
			mb.Emit(avm2.OpSetProperty, -3, m.tableIndexMultiname)
		}
	}
}

// emitExportsInit aliases every Wasm export onto the instance under the
// naming convention spec §6 gives the generated exports object: func$N,
// global$N, wasm$memory, wasm$table.
func emitExportsInit(mb *MethodBuilder, m *moduleCtx, mod *ir.Module) {
	for _, exp := range mod.Exports {
		var alias uint32
		var source uint32
		switch exp.Kind {
		case ir.ExportFunc:
			alias = m.qname("func$" + exp.Name)
			source = m.funcName(exp.Target)
		case ir.ExportGlobal:
			alias = m.qname("global$" + exp.Name)
			source = m.globalName(exp.Target)
		case ir.ExportMemory:
			alias = m.qname("wasm$memory")
			source = m.memoryQName
		case ir.ExportTable:
			alias = m.qname("wasm$table")
			source = m.tableQName
		}
		mb.Emit(avm2.OpGetLocal0, 1)
		mb.Emit(avm2.OpGetLocal0, 1)
		mb.Emit(avm2.OpGetProperty, 0, source)
		mb.Emit(avm2.OpSetProperty, -2, alias)
	}
}

func emitImportsCopy(mb *MethodBuilder, m *moduleCtx, mod *ir.Module) {
	for _, fn := range mod.Funcs {
		if !fn.Imported() {
			continue
		}
		mb.Emit(avm2.OpGetLocal0, 1)
		mb.Emit(avm2.OpGetLocal1, 1)
		mb.Emit(avm2.OpGetProperty, 0, m.qname(fn.Module))
		mb.Emit(avm2.OpGetProperty, 0, m.qname(fn.Base))
		mb.Emit(avm2.OpSetProperty, -2, m.funcName(fn.Name))
	}
}
