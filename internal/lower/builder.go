package lower

import (
	"strconv"

	"tlog.app/go/errors"

	"github.com/brion/wasm2swf/internal/avm2"
)

// entry is one slot in a MethodBuilder's instruction stream: either a
// real instruction/switch, or a bare label marking a byte position for
// later branches to resolve against.
type entry struct {
	instr *avm2.Instr
	sw    *avm2.Switch

	label string // set if this entry defines a label, nothing else is

	branchTo    string   // set if instr is a branch awaiting resolution
	switchDflt  string
	switchCases []string
}

// MethodBuilder accumulates one AVM2 method body's instruction stream.
// Instructions reference forward and backward branch targets by name;
// Finish lays out byte offsets in one pass, then re-walks the stream in
// a second pass to compute each branch's relative s24 offset and emit
// the final bytes — mirroring the label-then-patch structure a real
// two-address assembler uses, adapted here to AVM2's fixed-width branch
// operands.
type MethodBuilder struct {
	entries []entry

	depth    int
	maxStack int

	localCount int
	maxLocal   int

	labelSeq int
}

// NewMethodBuilder starts a method body with localCount local variable
// slots already reserved (receiver + parameters + declared locals).
func NewMethodBuilder(localCount int) *MethodBuilder {
	return &MethodBuilder{localCount: localCount, maxLocal: localCount}
}

// NewLabel allocates a unique, unbound label name for internal control
// flow the lowerer introduces (conditional folding, comparison
// short-circuiting) that has no corresponding IR label.
func (mb *MethodBuilder) NewLabel() string {
	mb.labelSeq++
	return "T" + strconv.Itoa(mb.labelSeq)
}

// AllocLocal reserves a fresh local slot, e.g. for CallIndirect target
// caching or Select evaluation order preservation.
func (mb *MethodBuilder) AllocLocal() int {
	idx := mb.maxLocal
	mb.maxLocal++
	return idx
}

func (mb *MethodBuilder) adjust(delta int) {
	mb.depth += delta
	if mb.depth > mb.maxStack {
		mb.maxStack = mb.depth
	}
	if mb.depth < 0 {
		panic(&InternalInvariantViolation{What: "operand stack depth went negative"})
	}
}

// Depth reports the builder's current simulated operand-stack depth.
func (mb *MethodBuilder) Depth() int { return mb.depth }

// Emit appends a plain instruction (a fixed opcode plus zero or more
// u30 operands) and adjusts the simulated stack depth by delta, the net
// number of values the instruction leaves behind.
func (mb *MethodBuilder) Emit(op avm2.Opcode, delta int, args ...uint32) {
	mb.entries = append(mb.entries, entry{instr: &avm2.Instr{Op: op, Args: args}})
	mb.adjust(delta)
}

// EmitByte emits pushbyte's raw signed-byte immediate form.
func (mb *MethodBuilder) EmitByte(v int8) {
	mb.entries = append(mb.entries, entry{instr: &avm2.Instr{Op: avm2.OpPushByte, Byte: v}})
	mb.adjust(1)
}

// EmitShort emits pushshort's s32 immediate form.
func (mb *MethodBuilder) EmitShort(v int32) {
	mb.entries = append(mb.entries, entry{instr: &avm2.Instr{Op: avm2.OpPushShort, Short: v}})
	mb.adjust(1)
}

// EmitBranch emits a jump or conditional branch to the named label.
// jump has no stack effect; every if* pops its condition.
func (mb *MethodBuilder) EmitBranch(op avm2.Opcode, target string) {
	delta := 0
	if op != avm2.OpJump {
		delta = -1
	}
	mb.entries = append(mb.entries, entry{instr: &avm2.Instr{Op: op}, branchTo: target})
	mb.adjust(delta)
}

// EmitCompareBranch emits one of the eight if* comparison-branch opcodes
// (ifeq/ifne/iflt/ifle/ifgt/ifge/ifstricteq/ifstrictne), which pop two
// operands and branch directly — used by the conditional-folding
// peephole to avoid materializing a boolean before branching.
func (mb *MethodBuilder) EmitCompareBranch(op avm2.Opcode, target string) {
	mb.entries = append(mb.entries, entry{instr: &avm2.Instr{Op: op}, branchTo: target})
	mb.adjust(-2)
}

// EmitSwitch emits a lookupswitch over the named case labels, with
// defaultTarget as the fallback. Pops the index value.
func (mb *MethodBuilder) EmitSwitch(defaultTarget string, cases []string) {
	mb.entries = append(mb.entries, entry{
		sw:          &avm2.Switch{CaseOffsets: make([]int32, len(cases))},
		switchDflt:  defaultTarget,
		switchCases: cases,
	})
	mb.adjust(-1)
}

// Label marks the current position under name for later EmitBranch/
// EmitSwitch targets to resolve against.
func (mb *MethodBuilder) Label(name string) {
	mb.entries = append(mb.entries, entry{label: name})
}

// Finish lays out the accumulated stream and returns the final bytes
// plus the max_stack/local_count a method_body_info record needs.
func (mb *MethodBuilder) Finish() (code []byte, maxStack, maxLocal int, err error) {
	offsets := make([]int, len(mb.entries))
	labelPos := map[string]int{}

	pos := 0
	for idx, e := range mb.entries {
		offsets[idx] = pos
		switch {
		case e.label != "":
			labelPos[e.label] = pos
		case e.sw != nil:
			pos += e.sw.Len()
		case e.instr != nil:
			pos += e.instr.Len()
		}
	}

	var w avm2.Writer
	for idx, e := range mb.entries {
		switch {
		case e.label != "":
			continue
		case e.sw != nil:
			base := offsets[idx]
			defOff, ok := labelPos[e.switchDflt]
			if !ok {
				return nil, 0, 0, errors.New("unresolved switch default label %q", e.switchDflt)
			}
			sw := *e.sw
			sw.DefaultOffset = int32(defOff - base)
			for i, c := range e.switchCases {
				cOff, ok := labelPos[c]
				if !ok {
					return nil, 0, 0, errors.New("unresolved switch case label %q", c)
				}
				sw.CaseOffsets[i] = int32(cOff - base)
			}
			sw.Encode(&w)
		case e.instr != nil:
			ins := *e.instr
			if e.branchTo != "" {
				target, ok := labelPos[e.branchTo]
				if !ok {
					return nil, 0, 0, errors.New("unresolved branch label %q", e.branchTo)
				}
				nextPos := offsets[idx] + ins.Len()
				ins.Offset = int32(target - nextPos)
			}
			ins.Encode(&w)
		}
	}

	return w.Bytes(), mb.maxStack, mb.maxLocal, nil
}
