package ir

import (
	"fmt"

	wasm "github.com/brion/wasm2swf"
	"tlog.app/go/errors"
)

// Build turns a decoded wasm.Module into the structured IR the lowering
// engine consumes. It plays the role of the "module preparation" stage of
// spec §2 step 1 to the extent this repo implements it concretely (see
// SPEC_FULL.md §9.1): it reconstructs the nested block/loop/if tree a
// flattening pass would have handed the core, but it does not perform
// i64 legalization or general optimization: Build itself rejects i64
// value types and opcodes that have no IR mapping as it decodes.
func Build(m *wasm.Module) (*Module, error) {
	b := &builder{src: m}

	if err := b.assignNames(); err != nil {
		return nil, errors.Wrap(err, "assign names")
	}

	out := &Module{}

	if len(m.Memory) > 0 {
		out.MemoryInitialPages = int32(m.Memory[0].Lo)
		if m.Memory[0].Hi >= 0 {
			out.MemoryMaxPages = int32(m.Memory[0].Hi)
		} else {
			out.MemoryMaxPages = -1
		}
	} else {
		out.MemoryMaxPages = -1
	}

	for i, im := range m.Import {
		if im.Kind() != 0 {
			continue
		}
		ft, err := b.funcTypeOf(im.FuncTypeIndex())
		if err != nil {
			return nil, errors.Wrap(err, "import %d", i)
		}
		out.Imports = append(out.Imports, Import{
			Module: string(im.Module),
			Base:   string(im.Name),
			Params: ft.Params,
			Result: ft.Result,
		})
	}

	for gi, g := range m.Global {
		ig, err := b.buildGlobal(gi, g)
		if err != nil {
			return nil, errors.Wrap(err, "global %d", gi)
		}
		out.Globals = append(out.Globals, ig)
		b.globalTypes = append(b.globalTypes, ig.Type)
	}

	for di, d := range m.Data {
		off, _, err := b.constI32(d.Expr)
		if err != nil {
			return nil, errors.Wrap(err, "data %d: offset", di)
		}
		out.Memory = append(out.Memory, MemorySegment{ByteOffset: off, Bytes: append([]byte(nil), d.Init...)})
	}

	for ei, el := range m.Element {
		off, _, err := b.constI32(el.Expr)
		if err != nil {
			return nil, errors.Wrap(err, "element %d: offset", ei)
		}
		seg := TableSegment{Offset: off}
		for _, idx := range el.Funcs {
			seg.Funcs = append(seg.Funcs, b.funcName(int(idx)))
		}
		out.Table = append(out.Table, seg)
	}

	for fi := range b.funcNames {
		fn, err := b.buildFunc(fi)
		if err != nil {
			return nil, errors.Wrap(err, "function %s", b.funcName(fi))
		}
		out.Funcs = append(out.Funcs, fn)
	}

	for xi, ex := range m.Export {
		e, err := b.buildExport(ex)
		if err != nil {
			return nil, errors.Wrap(err, "export %d", xi)
		}
		out.Exports = append(out.Exports, e)
	}

	return out, nil
}

type builder struct {
	src *wasm.Module

	funcNames   []string // index over imported+defined functions, import-first
	globalNames []string
	globalTypes []Type
}

func (b *builder) assignNames() error {
	n := 0
	for _, im := range b.src.Import {
		if im.Kind() == 0 {
			b.funcNames = append(b.funcNames, fmt.Sprintf("f%d", n))
			n++
		}
	}
	for range b.src.Function {
		b.funcNames = append(b.funcNames, fmt.Sprintf("f%d", n))
		n++
	}

	for i := range b.src.Global {
		b.globalNames = append(b.globalNames, fmt.Sprintf("g%d", i))
	}

	return nil
}

func (b *builder) funcName(idx int) string {
	if idx < 0 || idx >= len(b.funcNames) {
		return fmt.Sprintf("f%d", idx)
	}
	return b.funcNames[idx]
}

func (b *builder) importFuncCount() int {
	n := 0
	for _, im := range b.src.Import {
		if im.Kind() == 0 {
			n++
		}
	}
	return n
}

func (b *builder) definedFuncIndices() []int {
	base := b.importFuncCount()
	out := make([]int, len(b.src.Function))
	for i := range out {
		out[i] = base + i
	}
	return out
}

func (b *builder) funcTypeOf(typeIdx int) (FuncSig, error) {
	if typeIdx < 0 || typeIdx >= len(b.src.Type) {
		return FuncSig{}, errors.New("type index %d out of range", typeIdx)
	}
	ft := b.src.Type[typeIdx]

	sig := FuncSig{Result: None}
	for _, t := range ft.Params {
		tt, err := wasmType(byte(t))
		if err != nil {
			return FuncSig{}, errors.Wrap(err, "param")
		}
		sig.Params = append(sig.Params, tt)
	}
	if len(ft.Result) > 1 {
		return FuncSig{}, errors.New("multi-value results are unsupported")
	}
	if len(ft.Result) == 1 {
		tt, err := wasmType(byte(ft.Result[0]))
		if err != nil {
			return FuncSig{}, errors.Wrap(err, "result")
		}
		sig.Result = tt
	}

	return sig, nil
}

// FuncSig is a resolved Wasm function signature (the part of FuncType
// Build has already translated to ir.Type).
type FuncSig struct {
	Params []Type
	Result Type
}

// funcSigByIndex resolves a Wasm function-index-space index (imports
// first, then defined functions) to its signature. It assumes every
// import is a function import, matching the types.Import doc comment's
// MVP restriction.
func (b *builder) funcSigByIndex(idx int) (FuncSig, error) {
	if idx < 0 {
		return FuncSig{}, errors.New("function index %d out of range", idx)
	}
	if idx < len(b.src.Import) {
		return b.funcTypeOf(b.src.Import[idx].FuncTypeIndex())
	}
	defIdx := idx - len(b.src.Import)
	if defIdx >= len(b.src.Function) {
		return FuncSig{}, errors.New("function index %d out of range", idx)
	}
	return b.funcTypeOf(int(b.src.Function[defIdx]))
}

func wasmType(t byte) (Type, error) {
	switch t {
	case wasm.I32:
		return I32, nil
	case wasm.F32:
		return F32, nil
	case wasm.F64:
		return F64, nil
	case wasm.I64:
		return 0, errors.New("i64 value type reached the lowering boundary; run i64-to-i32 legalization upstream")
	default:
		return 0, errors.New("unsupported value type 0x%02x", t)
	}
}

func (b *builder) buildGlobal(idx int, g wasm.Global) (Global, error) {
	tt, err := wasmType(byte(g.Type))
	if err != nil {
		return Global{}, err
	}

	out := Global{Name: b.globalNames[idx], Type: tt, Mutable: g.Mut != 0}

	switch tt {
	case I32:
		v, _, err := b.constI32(g.Expr)
		if err != nil {
			return Global{}, errors.Wrap(err, "initializer")
		}
		out.InitI32 = v
	case F32, F64:
		v, err := b.constFloat(g.Expr)
		if err != nil {
			return Global{}, errors.Wrap(err, "initializer")
		}
		out.InitF64 = v
		out.IsFloat = true
	}

	return out, nil
}

// constI32 evaluates a constant expression of the form `i32.const v end`,
// the only initializer shape spec §7 ("non-constant global initializer")
// allows for offsets.
func (b *builder) constI32(code wasm.Code) (int32, int, error) {
	var dec wasm.LowDecoder

	if len(code) < 2 || code[0] != wasm.I32Const {
		return 0, 0, errors.New("non-constant initializer")
	}

	v, i, err := dec.Int64(code, 1)
	if err != nil {
		return 0, 0, errors.Wrap(err, "i32.const operand")
	}
	if i >= len(code) || code[i] != wasm.End {
		return 0, 0, errors.New("malformed constant expression")
	}

	return int32(v), i + 1, nil
}

func (b *builder) constFloat(code wasm.Code) (float64, error) {
	var dec wasm.LowDecoder

	switch {
	case len(code) >= 1 && code[0] == wasm.F64Const:
		v, i, err := dec.Float64(code, 1)
		if err != nil {
			return 0, errors.Wrap(err, "f64.const operand")
		}
		if i >= len(code) || code[i] != wasm.End {
			return 0, errors.New("malformed constant expression")
		}
		return v, nil
	case len(code) >= 1 && code[0] == wasm.F32Const:
		v, i, err := dec.Float32(code, 1)
		if err != nil {
			return 0, errors.Wrap(err, "f32.const operand")
		}
		if i >= len(code) || code[i] != wasm.End {
			return 0, errors.New("malformed constant expression")
		}
		return float64(v), nil
	default:
		return 0, errors.New("non-constant initializer")
	}
}

func (b *builder) buildExport(ex wasm.Export) (Export, error) {
	switch ex.ExportType {
	case 0:
		return Export{Name: string(ex.Name), Kind: ExportFunc, Target: b.funcName(int(ex.Index))}, nil
	case 1:
		return Export{Name: string(ex.Name), Kind: ExportTable}, nil
	case 2:
		return Export{Name: string(ex.Name), Kind: ExportMemory}, nil
	case 3:
		return Export{Name: string(ex.Name), Kind: ExportGlobal, Target: b.globalNames[int(ex.Index)]}, nil
	default:
		return Export{}, errors.New("unknown export kind 0x%02x", ex.ExportType)
	}
}

func (b *builder) buildFunc(idx int) (Function, error) {
	name := b.funcName(idx)
	nImports := b.importFuncCount()

	if idx < nImports {
		im := b.src.Import[idx]
		ft, err := b.funcTypeOf(im.FuncTypeIndex())
		if err != nil {
			return Function{}, err
		}
		return Function{Name: name, Module: string(im.Module), Base: string(im.Name), Params: ft.Params, Result: ft.Result}, nil
	}

	defIdx := idx - nImports
	typeIdx := int(b.src.Function[defIdx])
	ft, err := b.funcTypeOf(typeIdx)
	if err != nil {
		return Function{}, err
	}

	fc, err := (&wasm.Decoder{}).Func(b.src.Code[defIdx], wasm.FuncCode{})
	if err != nil {
		return Function{}, errors.Wrap(err, "decode body")
	}

	locals := make([]Type, 0, len(fc.Locals))
	for _, t := range fc.Locals {
		tt, err := wasmType(byte(t))
		if err != nil {
			return Function{}, errors.Wrap(err, "local")
		}
		locals = append(locals, tt)
	}

	fn := Function{Name: name, Params: ft.Params, Result: ft.Result, Locals: locals}

	fb := &funcBuilder{builder: b, localTypes: append(append([]Type(nil), ft.Params...), locals...), resultType: ft.Result}

	kids, leftover, pos, term, err := fb.parseSeq(fc.Expr, 0, nil)
	if err != nil {
		return Function{}, errors.Wrap(err, "body")
	}
	if term != wasm.End || pos != len(fc.Expr) {
		return Function{}, errors.New("malformed function body")
	}

	if len(leftover) == 1 && ft.Result != None {
		kids = append(kids, Return{Value: leftover[0]})
		leftover = nil
	}
	if len(leftover) != 0 {
		return Function{}, errors.New("unconsumed values at function end")
	}

	fn.Body = &Block{Name: "", Children: kids}

	return fn, nil
}
