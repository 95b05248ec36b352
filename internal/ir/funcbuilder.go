package ir

import (
	"fmt"

	wasm "github.com/brion/wasm2swf"
	"tlog.app/go/errors"
)

// funcBuilder reconstructs a single function's expression tree from its
// flat Wasm instruction stream by simulating the operand stack a Wasm
// validator would carry: each instruction pops its operands off the
// simulated stack (as the Expr nodes that produced them) and pushes an
// Expr for its own result, exactly mirroring how the stack machine
// executes. Structured control (block/loop/if/loop) recurses into a
// fresh sub-sequence with its own simulated stack.
//
// Nested block/loop/if constructs are required to be void-typed: this
// compiler targets the common case (control-flow used for statements,
// not as a value-producing sub-expression). Only the outermost function
// body may leave a trailing value, which becomes the function's return.
type funcBuilder struct {
	*builder

	localTypes []Type
	resultType Type

	labelSeq int
}

func (fb *funcBuilder) newLabel() string {
	fb.labelSeq++
	return fmt.Sprintf("L%d", fb.labelSeq)
}

// parseSeq parses instructions starting at pos until a matching End or
// Else, returning the statements it collected, the simulated stack left
// over at the terminator (for a void sequence this must end up empty),
// the position just past the terminator byte, and which terminator
// (wasm.End or wasm.Else) was hit.
func (fb *funcBuilder) parseSeq(code []byte, pos int, labels []string) (stmts, leftover []Expr, next int, term byte, err error) {
	var dec wasm.LowDecoder
	var stack []Expr

	pop := func() (Expr, error) {
		if len(stack) == 0 {
			return nil, errors.New("operand stack underflow")
		}
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return e, nil
	}
	popN := func(n int) ([]Expr, error) {
		if len(stack) < n {
			return nil, errors.New("operand stack underflow")
		}
		out := append([]Expr(nil), stack[len(stack)-n:]...)
		stack = stack[:len(stack)-n]
		return out, nil
	}

	i := pos
	for i < len(code) {
		op := code[i]
		opst := i
		i++

		switch op {
		case wasm.Unreachable:
			stmts = append(stmts, Unreachable{})

		case wasm.Nop:
			// dropped: Nop carries no information the lowerer needs.

		case wasm.Block, wasm.Loop, wasm.If:
			bt, ni, e := fb.blockType(code, i)
			if e != nil {
				return nil, nil, opst, 0, errors.Wrap(e, "at 0x%x", opst)
			}
			i = ni
			if bt != None {
				return nil, nil, opst, 0, errors.New("at 0x%x: value-typed nested blocks are unsupported", opst)
			}

			var cond Expr
			if op == wasm.If {
				cond, err = pop()
				if err != nil {
					return nil, nil, opst, 0, err
				}
			}

			name := fb.newLabel()
			sub := append(append([]string(nil), labels...), name)

			bodyStmts, bodyLeft, ni2, term2, e := fb.parseSeq(code, i, sub)
			if e != nil {
				return nil, nil, opst, 0, e
			}
			i = ni2
			if len(bodyLeft) != 0 {
				return nil, nil, opst, 0, errors.New("at 0x%x: unconsumed operand in void block", opst)
			}

			switch op {
			case wasm.Block:
				if term2 != wasm.End {
					return nil, nil, opst, 0, errors.New("at 0x%x: malformed block", opst)
				}
				stmts = append(stmts, Block{Name: name, Children: bodyStmts})

			case wasm.Loop:
				if term2 != wasm.End {
					return nil, nil, opst, 0, errors.New("at 0x%x: malformed loop", opst)
				}
				stmts = append(stmts, Loop{Name: name, Body: &Block{Children: bodyStmts}})

			case wasm.If:
				thenBlk := &Block{Name: name, Children: bodyStmts}
				var elseBlk *Block
				if term2 == wasm.Else {
					elseStmts, elseLeft, ni3, term3, e := fb.parseSeq(code, i, sub)
					if e != nil {
						return nil, nil, opst, 0, e
					}
					i = ni3
					if term3 != wasm.End {
						return nil, nil, opst, 0, errors.New("at 0x%x: malformed if/else", opst)
					}
					if len(elseLeft) != 0 {
						return nil, nil, opst, 0, errors.New("at 0x%x: unconsumed operand in void block", opst)
					}
					elseBlk = &Block{Name: name, Children: elseStmts}
				} else if term2 != wasm.End {
					return nil, nil, opst, 0, errors.New("at 0x%x: malformed if", opst)
				}
				stmts = append(stmts, If{Cond: cond, Then: thenBlk, Else: elseBlk})
			}

		case wasm.End:
			return stmts, stack, i, wasm.End, nil

		case wasm.Else:
			return stmts, stack, i, wasm.Else, nil

		case wasm.Br, wasm.BrIf:
			var d int64
			d, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "br label")
			}
			lbl, e := resolveLabel(labels, int(d))
			if e != nil {
				return nil, nil, opst, 0, errors.Wrap(e, "at 0x%x", opst)
			}
			if op == wasm.BrIf {
				cond, e := pop()
				if e != nil {
					return nil, nil, opst, 0, e
				}
				stmts = append(stmts, Break{Name: lbl, Cond: cond})
			} else {
				stmts = append(stmts, Break{Name: lbl})
			}

		case wasm.BrTable:
			var l int
			l, i, err = dec.Int(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "br_table count")
			}
			names := make([]string, 0, l)
			for j := 0; j < l; j++ {
				var d int
				d, i, err = dec.Int(code, i)
				if err != nil {
					return nil, nil, opst, 0, errors.Wrap(err, "br_table entry")
				}
				lbl, e := resolveLabel(labels, d)
				if e != nil {
					return nil, nil, opst, 0, e
				}
				names = append(names, lbl)
			}
			var dflt int
			dflt, i, err = dec.Int(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "br_table default")
			}
			dfltName, e := resolveLabel(labels, dflt)
			if e != nil {
				return nil, nil, opst, 0, e
			}
			cond, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			stmts = append(stmts, Switch{Cond: cond, Names: names, DefaultName: dfltName})

		case wasm.Ret:
			if fb.resultType != None {
				v, e := pop()
				if e != nil {
					return nil, nil, opst, 0, e
				}
				stmts = append(stmts, Return{Value: v})
			} else {
				stmts = append(stmts, Return{})
			}

		case wasm.Call:
			var idx int64
			idx, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "call target")
			}
			sig, e := fb.funcSigByIndex(int(idx))
			if e != nil {
				return nil, nil, opst, 0, errors.Wrap(e, "at 0x%x", opst)
			}
			ops, e := popN(len(sig.Params))
			if e != nil {
				return nil, nil, opst, 0, e
			}
			call := Call{baseExpr: baseExpr{Type: sig.Result}, Target: fb.funcName(int(idx)), Operands: ops}
			if sig.Result == None {
				stmts = append(stmts, call)
			} else {
				stack = append(stack, call)
			}

		case wasm.CallIndir:
			var typeIdx int64
			typeIdx, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "call_indirect type")
			}
			i++ // reserved table index byte, always 0x00 in the MVP subset
			sig, e := fb.funcTypeOf(int(typeIdx))
			if e != nil {
				return nil, nil, opst, 0, errors.Wrap(e, "at 0x%x", opst)
			}
			target, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			ops, e := popN(len(sig.Params))
			if e != nil {
				return nil, nil, opst, 0, e
			}
			ci := CallIndirect{baseExpr: baseExpr{Type: sig.Result}, Target: target, Operands: ops}
			if sig.Result == None {
				stmts = append(stmts, ci)
			} else {
				stack = append(stack, ci)
			}

		case wasm.Drop:
			v, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			stmts = append(stmts, Drop{Value: v})

		case wasm.Select:
			cond, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			ifFalse, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			ifTrue, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			stack = append(stack, Select{baseExpr: baseExpr{Type: ifTrue.ResultType()}, Cond: cond, IfTrue: ifTrue, IfFalse: ifFalse})

		case wasm.LocalGet:
			var idx int64
			idx, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "local.get index")
			}
			tt, e := fb.localType(int(idx))
			if e != nil {
				return nil, nil, opst, 0, errors.Wrap(e, "at 0x%x", opst)
			}
			stack = append(stack, LocalGet{baseExpr: baseExpr{Type: tt}, Index: int(idx)})

		case wasm.LocalSet, wasm.LocalTee:
			var idx int64
			idx, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "local.set index")
			}
			tt, e := fb.localType(int(idx))
			if e != nil {
				return nil, nil, opst, 0, errors.Wrap(e, "at 0x%x", opst)
			}
			v, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			ls := LocalSet{Index: int(idx), Value: v, IsTee: op == wasm.LocalTee, Type: tt}
			if op == wasm.LocalTee {
				stack = append(stack, ls)
			} else {
				stmts = append(stmts, ls)
			}

		case wasm.GlobalGet:
			var idx int64
			idx, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "global.get index")
			}
			if int(idx) >= len(fb.globalTypes) {
				return nil, nil, opst, 0, errors.New("at 0x%x: global index %d out of range", opst, idx)
			}
			stack = append(stack, GlobalGet{baseExpr: baseExpr{Type: fb.globalTypes[idx]}, Name: fb.globalNames[idx]})

		case wasm.GlobalSet:
			var idx int64
			idx, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "global.set index")
			}
			if int(idx) >= len(fb.globalNames) {
				return nil, nil, opst, 0, errors.New("at 0x%x: global index %d out of range", opst, idx)
			}
			v, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			stmts = append(stmts, GlobalSet{Name: fb.globalNames[idx], Value: v})

		case wasm.I32Load, wasm.I32Load8S, wasm.I32Load8U, wasm.I32Load16S, wasm.I32Load16U, wasm.F32Load, wasm.F64Load:
			li, ok := loadOps[int(op)]
			if !ok {
				return nil, nil, opst, 0, errors.New("at 0x%x: unsupported load opcode", opst)
			}
			var off int
			_, i, err = dec.Int(code, i) // align, unused at this level
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "load align")
			}
			off, i, err = dec.Int(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "load offset")
			}
			ptr, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			stack = append(stack, Load{baseExpr: baseExpr{Type: li.Type}, Ptr: ptr, Offset: uint32(off), Bytes: li.Bytes, Signed: li.Signed})

		case wasm.I32Store, wasm.I32Store8, wasm.I32Store16, wasm.F32Store, wasm.F64Store:
			si, ok := storeOps[int(op)]
			if !ok {
				return nil, nil, opst, 0, errors.New("at 0x%x: unsupported store opcode", opst)
			}
			var off int
			_, i, err = dec.Int(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "store align")
			}
			off, i, err = dec.Int(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "store offset")
			}
			val, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			ptr, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			stmts = append(stmts, Store{Ptr: ptr, Offset: uint32(off), Value: val, Bytes: si.Bytes, ValueType: si.Type})

		case wasm.MemorySize:
			i++ // reserved memory index byte
			stack = append(stack, Host{baseExpr: baseExpr{Type: I32}, Op: MemorySize})

		case wasm.MemoryGrow:
			i++ // reserved memory index byte
			v, e := pop()
			if e != nil {
				return nil, nil, opst, 0, e
			}
			stack = append(stack, Host{baseExpr: baseExpr{Type: I32}, Op: MemoryGrow, Operand: v})

		case wasm.I32Const:
			var v int64
			v, i, err = dec.Int64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "i32.const")
			}
			stack = append(stack, Const{baseExpr: baseExpr{Type: I32}, I32: int32(v)})

		case wasm.F32Const:
			var v float32
			v, i, err = dec.Float32(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "f32.const")
			}
			stack = append(stack, Const{baseExpr: baseExpr{Type: F32}, F64: float64(v)})

		case wasm.F64Const:
			var v float64
			v, i, err = dec.Float64(code, i)
			if err != nil {
				return nil, nil, opst, 0, errors.Wrap(err, "f64.const")
			}
			stack = append(stack, Const{baseExpr: baseExpr{Type: F64}, F64: v})

		default:
			if info, ok := unaryOps[int(op)]; ok {
				v, e := pop()
				if e != nil {
					return nil, nil, opst, 0, e
				}
				stack = append(stack, Unary{baseExpr: baseExpr{Type: info.ResultType}, Op: info.Op, OperandType: info.OperandType, Value: v})
				break
			}
			if info, ok := binaryOps[int(op)]; ok {
				r, e := pop()
				if e != nil {
					return nil, nil, opst, 0, e
				}
				l, e := pop()
				if e != nil {
					return nil, nil, opst, 0, e
				}
				resultType := info.OperandType
				if info.Op.IsCompare() {
					resultType = I32
				}
				stack = append(stack, Binary{baseExpr: baseExpr{Type: resultType}, Op: info.Op, OperandType: info.OperandType, L: l, R: r})
				break
			}
			return nil, nil, opst, 0, errors.New("at 0x%x: unsupported opcode 0x%02x", opst, op)
		}

		if err != nil {
			return nil, nil, opst, 0, err
		}
	}

	return nil, nil, pos, 0, wasm.ErrUnexpectedEOF
}

// blockType decodes the immediate block type byte for block/loop/if.
func (fb *funcBuilder) blockType(code []byte, pos int) (Type, int, error) {
	if pos >= len(code) {
		return None, pos, errors.New("truncated block type")
	}
	b0 := code[pos]
	if b0 == 0x40 {
		return None, pos + 1, nil
	}
	switch b0 {
	case wasm.I32, wasm.F32, wasm.F64:
		t, err := wasmType(b0)
		return t, pos + 1, err
	case wasm.I64:
		return None, pos, errors.New("i64 value type reached the lowering boundary; run i64-to-i32 legalization upstream")
	default:
		return None, pos, errors.New("multi-value block types are unsupported")
	}
}

func (fb *funcBuilder) localType(idx int) (Type, error) {
	if idx < 0 || idx >= len(fb.localTypes) {
		return None, errors.New("local index %d out of range", idx)
	}
	return fb.localTypes[idx], nil
}

// resolveLabel maps a Wasm relative branch depth (0 = innermost) to the
// label name assigned when that construct was entered.
func resolveLabel(labels []string, depth int) (string, error) {
	idx := len(labels) - 1 - depth
	if idx < 0 || idx >= len(labels) {
		return "", errors.New("branch depth %d out of range", depth)
	}
	return labels[idx], nil
}
