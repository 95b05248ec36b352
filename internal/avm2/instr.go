package avm2

// Instr is one AVM2 method-body instruction. Most opcodes take zero or
// more plain u30 operands (Args); pushbyte/pushshort have their own odd
// immediate shapes, and the branch family takes a fixed 3-byte relative
// offset the method builder fills in only after it has assigned byte
// offsets to every instruction (see internal/lower's two-pass layout).
type Instr struct {
	Op Opcode

	Args []uint32 // u30 operands, in emission order

	Byte  int8  // pushbyte's raw signed-byte immediate
	Short int32 // pushshort's s32 immediate

	Offset int32 // resolved s24 branch offset (jump/if*)
}

// IsBranch reports whether op takes a fixed s24 offset operand rather
// than u30/byte/short immediates.
func (op Opcode) IsBranch() bool {
	switch op {
	case OpJump, OpIfTrue, OpIfFalse, OpIfEq, OpIfNe, OpIfLt, OpIfLe, OpIfGt, OpIfGe, OpIfStrictEq, OpIfStrictNe:
		return true
	default:
		return false
	}
}

// Len reports the byte length Encode will produce for ins.
func (ins Instr) Len() int {
	n := 1 // opcode byte
	switch {
	case ins.Op == OpPushByte:
		n++
	case ins.Op == OpPushShort:
		n += SizeS32(ins.Short)
	case ins.Op.IsBranch():
		n += 3
	default:
		for _, a := range ins.Args {
			n += SizeU30(a)
		}
	}
	return n
}

// Encode appends ins to w. Branch instructions must have Offset already
// resolved to the relative jump distance (spec's two-pass patching
// contract); Encode does not compute it.
func (ins Instr) Encode(w *Writer) {
	w.Byte(byte(ins.Op))
	switch {
	case ins.Op == OpPushByte:
		w.Byte(byte(ins.Byte))
	case ins.Op == OpPushShort:
		w.S32(ins.Short)
	case ins.Op.IsBranch():
		w.S24(ins.Offset)
	default:
		for _, a := range ins.Args {
			w.U30(a)
		}
	}
}

// Switch is a lookupswitch instruction: it does not fit Instr's shape
// (a variable-length list of s24 case offsets plus one default), so the
// method builder emits it as its own record interleaved into the
// instruction stream.
type Switch struct {
	DefaultOffset int32
	CaseOffsets   []int32
}

// caseCount is the AVM2 case_count field: one less than the number of
// case offsets actually present (the instruction format writes
// case_count+1 offsets).
func (s Switch) caseCount() uint32 { return uint32(len(s.CaseOffsets) - 1) }

func (s Switch) Len() int {
	return 1 + 3 + SizeU30(s.caseCount()) + 3*len(s.CaseOffsets)
}

func (s Switch) Encode(w *Writer) {
	w.Byte(byte(OpLookupSwitch))
	w.S24(s.DefaultOffset)
	w.U30(s.caseCount())
	for _, o := range s.CaseOffsets {
		w.S24(o)
	}
}
