// Package wat renders the post-pass internal/ir tree as a minimal,
// WAT-like text dump (spec.md §6's --save-wat). It is purely diagnostic:
// not a parser, and the output is not guaranteed to round-trip back
// into a Wasm module — it exists so a developer can eyeball what the
// lowerer is about to consume.
package wat

import (
	"fmt"
	"strings"

	"github.com/brion/wasm2swf/internal/ir"
)

// Dump renders mod as indented s-expression-flavored text.
func Dump(mod *ir.Module) string {
	var b strings.Builder

	fmt.Fprintf(&b, "(module\n")
	fmt.Fprintf(&b, "  (memory %d %d)\n", mod.MemoryInitialPages, mod.MemoryMaxPages)

	for _, g := range mod.Globals {
		fmt.Fprintf(&b, "  (global $%s %s)\n", g.Name, g.Type)
	}

	for i := range mod.Funcs {
		fn := &mod.Funcs[i]
		dumpFunc(&b, fn)
	}

	for _, exp := range mod.Exports {
		fmt.Fprintf(&b, "  (export %q %v %q)\n", exp.Name, exp.Kind, exp.Target)
	}

	fmt.Fprintf(&b, ")\n")
	return b.String()
}

func dumpFunc(b *strings.Builder, fn *ir.Function) {
	if fn.Imported() {
		fmt.Fprintf(b, "  (func $%s (import %q %q) %s -> %s)\n",
			fn.Name, fn.Module, fn.Base, fn.Params, fn.Result)
		return
	}

	fmt.Fprintf(b, "  (func $%s %s -> %s\n", fn.Name, fn.Params, fn.Result)
	w := &writer{b: b, indent: 2}
	for _, c := range fn.Body.Children {
		w.expr(c)
	}
	fmt.Fprintf(b, "  )\n")
}

type writer struct {
	b      *strings.Builder
	indent int
}

func (w *writer) line(format string, args ...any) {
	fmt.Fprint(w.b, strings.Repeat("  ", w.indent))
	fmt.Fprintf(w.b, format, args...)
	fmt.Fprint(w.b, "\n")
}

func (w *writer) nested(body func()) {
	w.indent++
	body()
	w.indent--
}

// expr writes one node and, for compound nodes, its children at one
// deeper indent level. It does not attempt to be exhaustive about every
// field — only the ones useful for a quick read of the tree's shape.
func (w *writer) expr(e ir.Expr) {
	switch e := e.(type) {
	case *ir.Block:
		w.line("(block $%s", e.Name)
		w.nested(func() {
			for _, c := range e.Children {
				w.expr(c)
			}
		})
		w.line(")")
	case *ir.Loop:
		w.line("(loop $%s", e.Name)
		w.nested(func() {
			for _, c := range e.Body.Children {
				w.expr(c)
			}
		})
		w.line(")")
	case *ir.If:
		w.line("(if")
		w.nested(func() { w.expr(e.Cond) })
		w.line("(then")
		w.nested(func() {
			for _, c := range e.Then.Children {
				w.expr(c)
			}
		})
		w.line(")")
		if e.Else != nil {
			w.line("(else")
			w.nested(func() {
				for _, c := range e.Else.Children {
					w.expr(c)
				}
			})
			w.line(")")
		}
		w.line(")")
	case *ir.Break:
		if e.Cond != nil {
			w.line("(br_if $%s", e.Name)
			w.nested(func() { w.expr(e.Cond) })
			w.line(")")
		} else {
			w.line("(br $%s)", e.Name)
		}
	case *ir.Switch:
		w.line("(br_table %v default=$%s", e.Names, e.DefaultName)
		w.nested(func() { w.expr(e.Cond) })
		w.line(")")
	case *ir.Call:
		w.line("(call $%s", e.Target)
		w.nested(func() {
			for _, op := range e.Operands {
				w.expr(op)
			}
		})
		w.line(")")
	case *ir.CallIndirect:
		w.line("(call_indirect")
		w.nested(func() {
			w.expr(e.Target)
			for _, op := range e.Operands {
				w.expr(op)
			}
		})
		w.line(")")
	case *ir.LocalGet:
		w.line("(local.get %d)", e.Index)
	case *ir.LocalSet:
		op := "local.set"
		if e.IsTee {
			op = "local.tee"
		}
		w.line("(%s %d", op, e.Index)
		w.nested(func() { w.expr(e.Value) })
		w.line(")")
	case *ir.GlobalGet:
		w.line("(global.get $%s)", e.Name)
	case *ir.GlobalSet:
		w.line("(global.set $%s", e.Name)
		w.nested(func() { w.expr(e.Value) })
		w.line(")")
	case *ir.Load:
		sign := ""
		if e.Bytes < 4 {
			if e.Signed {
				sign = "_s"
			} else {
				sign = "_u"
			}
		}
		w.line("(load%d%s offset=%d", e.Bytes*8, sign, e.Offset)
		w.nested(func() { w.expr(e.Ptr) })
		w.line(")")
	case *ir.Store:
		w.line("(store%d offset=%d", e.Bytes*8, e.Offset)
		w.nested(func() {
			w.expr(e.Ptr)
			w.expr(e.Value)
		})
		w.line(")")
	case *ir.Const:
		if e.ResultType() == ir.I32 {
			w.line("(i32.const %d)", e.I32)
		} else {
			w.line("(%s.const %v)", e.ResultType(), e.F64)
		}
	case *ir.Unary:
		w.line("(%v.%v", e.OperandType, e.Op)
		w.nested(func() { w.expr(e.Value) })
		w.line(")")
	case *ir.Binary:
		w.line("(%v.%v", e.OperandType, e.Op)
		w.nested(func() {
			w.expr(e.L)
			w.expr(e.R)
		})
		w.line(")")
	case *ir.Select:
		w.line("(select")
		w.nested(func() {
			w.expr(e.Cond)
			w.expr(e.IfTrue)
			w.expr(e.IfFalse)
		})
		w.line(")")
	case *ir.Drop:
		w.line("(drop")
		w.nested(func() { w.expr(e.Value) })
		w.line(")")
	case *ir.Return:
		if e.Value != nil {
			w.line("(return")
			w.nested(func() { w.expr(e.Value) })
			w.line(")")
		} else {
			w.line("(return)")
		}
	case *ir.Host:
		if e.Op == ir.MemoryGrow {
			w.line("(memory.grow")
			w.nested(func() { w.expr(e.Operand) })
			w.line(")")
		} else {
			w.line("(memory.size)")
		}
	case *ir.Nop:
		w.line("(nop)")
	case *ir.Unreachable:
		w.line("(unreachable)")
	default:
		w.line("(?unknown %T)", e)
	}
}
