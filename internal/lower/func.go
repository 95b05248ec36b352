package lower

import (
	"github.com/brion/wasm2swf/internal/avm2"
	"github.com/brion/wasm2swf/internal/ir"
)

// LoweredMethod is one function's AVM2 method body, ready for
// internal/abc to wrap into a method_info/method_body_info pair.
type LoweredMethod struct {
	Name       string
	NameIdx    uint32 // multiname index this method is exposed under as an instance trait; 0 for iinit/cinit, which aren't traits
	ParamTypes []ir.Type
	ResultType ir.Type

	Code       []byte
	MaxStack   int
	LocalCount int

	// InitScopeDepth/MaxScopeDepth are constant across every method this
	// compiler emits: none of them push an activation object or a with
	// scope, so the method body never grows the scope stack past the one
	// scope frame its caller already set up.
	InitScopeDepth int
	MaxScopeDepth  int
}

// lowerFunction builds the method body for one defined function. fn must
// not be imported — imports never reach this path, since they're copied
// onto instance properties during construction (module.go) instead of
// getting a method trait of their own.
func lowerFunction(m *moduleCtx, fn *ir.Function) (*LoweredMethod, error) {
	localCount := 1 + len(fn.Params) + len(fn.Locals) // +1 for the receiver
	mb := NewMethodBuilder(localCount)
	fs := &funcScope{mb: mb, m: m, fnName: fn.Name, trace: m.traceFunc != nil && m.traceFunc(fn.Name)}

	for _, c := range fn.Body.Children {
		if err := fs.lower(c); err != nil {
			return nil, err
		}
	}
	// ir.Build already wraps a function's trailing value expression in an
	// explicit Return, so every reachable path out of fn.Body ends in a
	// real returnvalue/returnvoid. This trailing returnvoid only catches
	// a body that falls off the end without one (e.g. an empty void
	// function), so the verifier never sees code run past the array end.
	mb.Emit(avm2.OpReturnVoid, 0)

	code, maxStack, maxLocal, err := mb.Finish()
	if err != nil {
		return nil, err
	}

	return &LoweredMethod{
		Name:           fn.Name,
		NameIdx:        m.funcName(fn.Name),
		ParamTypes:     fn.Params,
		ResultType:     fn.Result,
		Code:           code,
		MaxStack:       maxStack,
		LocalCount:     maxLocal,
		InitScopeDepth: 1,
		MaxScopeDepth:  1,
	}, nil
}
