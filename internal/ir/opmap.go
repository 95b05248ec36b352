package ir

import wasm "github.com/brion/wasm2swf"

// unaryOps maps a Wasm unary opcode to its ir.UnOp, the type of its
// operand, and the type of its result. Ops not present here either take
// no operand (handled elsewhere) or must have been removed by the
// upstream normalization passes spec §6 requires (rotate, popcnt, ctz,
// copysign, trunc-float, nearest, i64/f64-reinterpret) — Build returns an
// unsupported-opcode error if one is seen.
var unaryOps = map[int]struct {
	Op          UnOp
	OperandType Type
	ResultType  Type
}{
	wasm.I32Clz:  {Clz32, I32, I32},
	wasm.I32EqZ:  {EqZ, I32, I32},
	wasm.F32Abs:  {Abs, F32, F32},
	wasm.F32Neg:  {Neg, F32, F32},
	wasm.F32Ceil: {Ceil, F32, F32},
	wasm.F32Floor: {Floor, F32, F32},
	wasm.F32Sqrt: {Sqrt, F32, F32},
	wasm.F64Abs:  {Abs, F64, F64},
	wasm.F64Neg:  {Neg, F64, F64},
	wasm.F64Ceil: {Ceil, F64, F64},
	wasm.F64Floor: {Floor, F64, F64},
	wasm.F64Sqrt: {Sqrt, F64, F64},

	// Conversions (spec §4.1.3). The i64-operand members of this family
	// (i32.wrap_i64, i64.extend_i32_*, i64.trunc_f*, f32/f64.convert_i64_*)
	// and the two f32/i32 reinterpret ops decode at the byte level but have
	// no entry here — Build's default case rejects them if actually used,
	// matching the i64-legalization boundary Build's wasmType enforces for
	// value types.
	wasm.I32TruncF32S:   {TruncS, F32, I32},
	wasm.I32TruncF32U:   {TruncU, F32, I32},
	wasm.I32TruncF64S:   {TruncS, F64, I32},
	wasm.I32TruncF64U:   {TruncU, F64, I32},
	wasm.F32ConvertI32S: {ConvertS, I32, F32},
	wasm.F32ConvertI32U: {ConvertU, I32, F32},
	wasm.F32DemoteF64:   {Demote, F64, F32},
	wasm.F64ConvertI32S: {ConvertS, I32, F64},
	wasm.F64ConvertI32U: {ConvertU, I32, F64},
	wasm.F64PromoteF32:  {Promote, F32, F64},
}

// binaryOps maps a Wasm binary opcode to its ir.BinOp and shared operand
// type. Comparison opcodes produce I32; arithmetic opcodes produce their
// operand type.
var binaryOps = map[int]struct {
	Op          BinOp
	OperandType Type
}{
	wasm.I32Add: {Add, I32}, wasm.I32Sub: {Sub, I32}, wasm.I32Mul: {Mul, I32},
	wasm.I32DivS: {DivS, I32}, wasm.I32DivU: {DivU, I32},
	wasm.I32RemS: {RemS, I32}, wasm.I32RemU: {RemU, I32},
	wasm.I32And: {And, I32}, wasm.I32Or: {Or, I32}, wasm.I32Xor: {Xor, I32},
	wasm.I32Shl: {Shl, I32}, wasm.I32ShrS: {ShrS, I32}, wasm.I32ShrU: {ShrU, I32},

	wasm.I32Eq: {Eq, I32}, wasm.I32Ne: {Ne, I32},
	wasm.I32LtS: {LtS, I32}, wasm.I32LeS: {LeS, I32}, wasm.I32GtS: {GtS, I32}, wasm.I32GeS: {GeS, I32},
	wasm.I32LtU: {LtU, I32}, wasm.I32LeU: {LeU, I32}, wasm.I32GtU: {GtU, I32}, wasm.I32GeU: {GeU, I32},

	wasm.F32Add: {Add, F32}, wasm.F32Sub: {Sub, F32}, wasm.F32Mul: {Mul, F32}, wasm.F32Div: {DivS, F32},
	wasm.F32Min: {Min, F32}, wasm.F32Max: {Max, F32},
	wasm.F32Eq: {Eq, F32}, wasm.F32Ne: {Ne, F32},
	wasm.F32Lt: {LtF, F32}, wasm.F32Le: {LeF, F32}, wasm.F32Gt: {GtF, F32}, wasm.F32Ge: {GeF, F32},

	wasm.F64Add: {Add, F64}, wasm.F64Sub: {Sub, F64}, wasm.F64Mul: {Mul, F64}, wasm.F64Div: {DivS, F64},
	wasm.F64Min: {Min, F64}, wasm.F64Max: {Max, F64},
	wasm.F64Eq: {Eq, F64}, wasm.F64Ne: {Ne, F64},
	wasm.F64Lt: {LtF, F64}, wasm.F64Le: {LeF, F64}, wasm.F64Gt: {GtF, F64}, wasm.F64Ge: {GeF, F64},
}

// loadInfo describes the byte width, signedness, and result type of a
// Wasm load opcode in the i32/f32/f64 subset this compiler handles.
type loadInfo struct {
	Bytes  int
	Signed bool
	Type   Type
}

var loadOps = map[int]loadInfo{
	wasm.I32Load:    {4, false, I32},
	wasm.I32Load8S:  {1, true, I32},
	wasm.I32Load8U:  {1, false, I32},
	wasm.I32Load16S: {2, true, I32},
	wasm.I32Load16U: {2, false, I32},
	wasm.F32Load:    {4, false, F32},
	wasm.F64Load:    {8, false, F64},
}

var storeOps = map[int]struct {
	Bytes int
	Type  Type
}{
	wasm.I32Store:   {4, I32},
	wasm.I32Store8:  {1, I32},
	wasm.I32Store16: {2, I32},
	wasm.F32Store:   {4, F32},
	wasm.F64Store:   {8, F64},
}
