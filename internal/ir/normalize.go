package ir

import "tlog.app/go/errors"

// Normalize checks that m satisfies the contract internal/lower assumes:
// every Break/Switch targets a label actually in scope at that point
// (a function body's own name is not a label), and no Break carries a value
// (spec's upstream flattening pass is assumed to have removed br-with-
// value; this is a checked assumption, not something Normalize fixes).
//
// It does not look for i64 operations: Build already rejects i64 opcodes
// and a handful of other disallowed constructs as they're decoded, so in
// practice Normalize mostly catches hand-assembled or future-frontend IR
// that didn't go through Build.
func Normalize(m *Module) error {
	labels := map[string]bool{}
	for _, fn := range m.Funcs {
		if fn.Body == nil {
			continue
		}
		if err := normalizeStmts(fn.Body.Children, labels); err != nil {
			return errors.Wrap(err, "function %s", fn.Name)
		}
	}
	return nil
}

func normalizeStmts(stmts []Expr, labels map[string]bool) error {
	for _, s := range stmts {
		if err := normalizeExpr(s, labels); err != nil {
			return err
		}
	}
	return nil
}

func normalizeExpr(e Expr, labels map[string]bool) error {
	switch e := e.(type) {
	case Block:
		return withLabel(e.Name, labels, func() error { return normalizeStmts(e.Children, labels) })

	case Loop:
		return withLabel(e.Name, labels, func() error { return normalizeStmts(e.Body.Children, labels) })

	case If:
		if err := normalizeExpr(e.Cond, labels); err != nil {
			return err
		}
		if err := normalizeStmts(e.Then.Children, labels); err != nil {
			return err
		}
		if e.Else != nil {
			if err := normalizeStmts(e.Else.Children, labels); err != nil {
				return err
			}
		}
		return nil

	case Break:
		if e.Value != nil {
			return errors.New("br with a value reached the lowering boundary; run block flattening upstream")
		}
		if !labels[e.Name] {
			return errors.New("branch to out-of-scope label %q", e.Name)
		}
		if e.Cond != nil {
			return normalizeExpr(e.Cond, labels)
		}
		return nil

	case Switch:
		for _, n := range e.Names {
			if !labels[n] {
				return errors.New("br_table targets out-of-scope label %q", n)
			}
		}
		if !labels[e.DefaultName] {
			return errors.New("br_table default targets out-of-scope label %q", e.DefaultName)
		}
		return normalizeExpr(e.Cond, labels)

	case Call:
		return normalizeAll(e.Operands, labels)

	case CallIndirect:
		if err := normalizeExpr(e.Target, labels); err != nil {
			return err
		}
		return normalizeAll(e.Operands, labels)

	case LocalSet:
		return normalizeExpr(e.Value, labels)

	case GlobalSet:
		return normalizeExpr(e.Value, labels)

	case Load:
		return normalizeExpr(e.Ptr, labels)

	case Store:
		if err := normalizeExpr(e.Ptr, labels); err != nil {
			return err
		}
		return normalizeExpr(e.Value, labels)

	case Unary:
		return normalizeExpr(e.Value, labels)

	case Binary:
		if err := normalizeExpr(e.L, labels); err != nil {
			return err
		}
		return normalizeExpr(e.R, labels)

	case Select:
		if err := normalizeExpr(e.Cond, labels); err != nil {
			return err
		}
		if err := normalizeExpr(e.IfTrue, labels); err != nil {
			return err
		}
		return normalizeExpr(e.IfFalse, labels)

	case Drop:
		return normalizeExpr(e.Value, labels)

	case Return:
		if e.Value != nil {
			return normalizeExpr(e.Value, labels)
		}
		return nil

	case Host:
		if e.Operand != nil {
			return normalizeExpr(e.Operand, labels)
		}
		return nil

	case Const, LocalGet, GlobalGet, Nop, Unreachable:
		return nil

	default:
		return errors.New("unrecognized IR node %T", e)
	}
}

func normalizeAll(es []Expr, labels map[string]bool) error {
	for _, e := range es {
		if err := normalizeExpr(e, labels); err != nil {
			return err
		}
	}
	return nil
}

// withLabel adds name to the in-scope label set for the duration of fn,
// then removes it — label scopes are lexical, and Wasm forbids duplicate
// label names at the same nesting level but allows a name to be reused
// once its original scope has closed.
func withLabel(name string, labels map[string]bool, fn func() error) error {
	had := labels[name]
	labels[name] = true
	err := fn()
	if !had {
		delete(labels, name)
	}
	return err
}
