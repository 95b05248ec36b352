// Package abc serializes a lowered module (internal/lower's Assembly)
// into an ABC (ActionScript Byte Code) file body: the cpool_info record
// plus the method/instance/class/script/method_body record arrays that
// make up a loadable AVM2 program, per the ActionScript Virtual Machine
// 2 (AVM2) Overview's abcFile format.
package abc

import (
	"github.com/brion/wasm2swf/internal/avm2"
	"github.com/brion/wasm2swf/internal/lower"
)

const (
	minorVersion = 16
	majorVersion = 46
)

// traitKind values for traits_info's low nibble.
const (
	traitSlot   = 0
	traitMethod = 1
	traitClass  = 4
)

// Assemble builds the full ABC byte stream for asm: one instance/class
// pair named asm.ClassName, its instance initializer as the
// constructor, every lowered Wasm function and runtime helper as an
// instance method, and a script that exposes the class at the top
// level (so internal/swf's DoABC/SymbolClass tags can bind a SWF
// symbol to it). When sprite is set, a second class, "Wrapper extends
// flash.display.Sprite", is emitted alongside it: its constructor
// builds a bare Instance (passing an empty imports object) and stores
// it, so a SWF player can instantiate Wrapper as the document class
// without itself knowing asm.ClassName's constructor signature.
func Assemble(asm *lower.Assembly, sprite bool) ([]byte, error) {
	// scriptInit runs once at script load time to register the classes;
	// this compiler never touches the global script scope beyond that,
	// so it shares the trivial "do nothing, return" body asm.ClassInit
	// already carries, but needs its own method_info/method_body slot —
	// one method_info can't back two roles in the same abcFile.
	scriptInit := &lower.LoweredMethod{
		Code: asm.ClassInit.Code, MaxStack: asm.ClassInit.MaxStack, LocalCount: asm.ClassInit.LocalCount,
		InitScopeDepth: asm.ClassInit.InitScopeDepth, MaxScopeDepth: asm.ClassInit.MaxScopeDepth,
	}

	methods := []*lower.LoweredMethod{asm.InstanceInit, asm.ClassInit, scriptInit}
	methods = append(methods, asm.Methods...)
	methods = append(methods, asm.Helpers...)

	classNameIdx := asm.Pool.QName(avm2.NSPackageNamespace, "", asm.ClassName)
	objectNameIdx := asm.Pool.QName(avm2.NSPackageNamespace, "", "Object")

	var wrapperIinit, wrapperCinit *lower.LoweredMethod
	var wrapperNameIdx uint32
	if sprite {
		wrapperIinit = synthWrapperIinit(asm.Pool, classNameIdx)
		wrapperCinit = &lower.LoweredMethod{
			Code: asm.ClassInit.Code, MaxStack: asm.ClassInit.MaxStack, LocalCount: asm.ClassInit.LocalCount,
			InitScopeDepth: asm.ClassInit.InitScopeDepth, MaxScopeDepth: asm.ClassInit.MaxScopeDepth,
		}
		methods = append(methods, wrapperIinit, wrapperCinit)
		wrapperNameIdx = asm.Pool.QName(avm2.NSPackageNamespace, "", "Wrapper")
	}

	methodIndex := map[*lower.LoweredMethod]uint32{}
	for i, m := range methods {
		methodIndex[m] = uint32(i)
	}

	var w avm2.Writer
	w.Raw([]byte{byte(minorVersion), byte(minorVersion >> 8), byte(majorVersion), byte(majorVersion >> 8)})

	writeCPool(&w, asm.Pool)

	w.U30(uint32(len(methods)))
	for _, m := range methods {
		writeMethodInfo(&w, m)
	}

	w.U30(0) // metadata_count

	classCount := uint32(1)
	if sprite {
		classCount = 2
	}
	w.U30(classCount)
	writeInstanceInfo(&w, classNameIdx, objectNameIdx, methodIndex[asm.InstanceInit], asm.Methods, asm.Helpers, methodIndex)
	if sprite {
		spriteNameIdx := asm.Pool.QName(avm2.NSPackageNamespace, "flash.display", "Sprite")
		writeInstanceInfo(&w, wrapperNameIdx, spriteNameIdx, methodIndex[wrapperIinit], nil, nil, methodIndex)
	}
	writeClassInfo(&w, methodIndex[asm.ClassInit])
	if sprite {
		writeClassInfo(&w, methodIndex[wrapperCinit])
	}

	docClassNameIdx := classNameIdx
	docClassIndex := uint32(0)
	if sprite {
		docClassNameIdx = wrapperNameIdx
		docClassIndex = 1 // Wrapper is the second class_info entry
	}

	w.U30(1) // script_count
	writeScriptInfo(&w, methodIndex[scriptInit], docClassNameIdx, docClassIndex)

	w.U30(uint32(len(methods)))
	for _, m := range methods {
		writeMethodBody(&w, methodIndex[m], m)
	}

	return w.Bytes(), nil
}

// synthWrapperIinit builds Wrapper's constructor: super(), then
// this.instance = new <Instance>(new Object()) — passing a plain
// dynamic object in place of a real imports object, since a SWF
// player's document-class instantiation passes no constructor
// arguments of its own.
func synthWrapperIinit(pool *avm2.ConstantPool, instanceNameIdx uint32) *lower.LoweredMethod {
	objectNameIdx := pool.QName(avm2.NSPackageNamespace, "", "Object")
	instancePropIdx := pool.QName(avm2.NSPackageNamespace, "", "instance")

	mb := lower.NewMethodBuilder(1) // this
	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpConstructSuper, -1, 0)

	mb.Emit(avm2.OpGetLocal0, 1)
	mb.Emit(avm2.OpFindPropStrict, 1, instanceNameIdx)
	mb.Emit(avm2.OpFindPropStrict, 1, objectNameIdx)
	mb.Emit(avm2.OpConstructProp, 0, objectNameIdx, 0)
	mb.Emit(avm2.OpConstructProp, -1, instanceNameIdx, 1)
	mb.Emit(avm2.OpSetProperty, -2, instancePropIdx)

	mb.Emit(avm2.OpReturnVoid, 0)

	code, maxStack, maxLocal, err := mb.Finish()
	if err != nil {
		panic(err)
	}
	return &lower.LoweredMethod{Code: code, MaxStack: maxStack, LocalCount: maxLocal, InitScopeDepth: 1, MaxScopeDepth: 1}
}

func writeCPool(w *avm2.Writer, p *avm2.ConstantPool) {
	ints := p.Ints()
	w.U30(uint32(len(ints) + 1))
	for _, v := range ints {
		w.S32(v)
	}

	uints := p.UInts()
	w.U30(uint32(len(uints) + 1))
	for _, v := range uints {
		w.U30(v)
	}

	doubles := p.Doubles()
	w.U30(uint32(len(doubles) + 1))
	for _, v := range doubles {
		w.Double(v)
	}

	strings := p.Strings()
	w.U30(uint32(len(strings) + 1))
	for _, s := range strings {
		b := []byte(s)
		w.U30(uint32(len(b)))
		w.Raw(b)
	}

	namespaces := p.Namespaces()
	w.U30(uint32(len(namespaces) + 1))
	for _, ns := range namespaces {
		w.Byte(byte(ns.Kind))
		w.U30(ns.NameIdx)
	}

	nsSets := p.NamespaceSets()
	w.U30(uint32(len(nsSets) + 1))
	for _, set := range nsSets {
		w.Byte(byte(len(set)))
		for _, idx := range set {
			w.U30(idx)
		}
	}

	multinames := p.Multinames()
	w.U30(uint32(len(multinames) + 1))
	for _, mn := range multinames {
		if mn.IsLate {
			w.Byte(byte(avm2.MNMultinameL))
			w.U30(mn.NSSet)
			continue
		}
		w.Byte(byte(avm2.MNQName))
		w.U30(mn.NSIdx)
		w.U30(mn.NameIdx)
	}
}

func writeMethodInfo(w *avm2.Writer, m *lower.LoweredMethod) {
	w.U30(uint32(len(m.ParamTypes)))
	w.U30(0) // return_type: "*" for every method (no static return-type coercion synthesized)
	for range m.ParamTypes {
		w.U30(0) // param types: "*"
	}
	w.U30(0)    // name: no debug name string interned
	w.Byte(0x00) // flags: none (no NEED_REST, no optional/named params)
}

func writeInstanceInfo(w *avm2.Writer, nameIdx, superIdx uint32, iinit uint32, fns, helpers []*lower.LoweredMethod, methodIndex map[*lower.LoweredMethod]uint32) {
	w.U30(nameIdx)
	w.U30(superIdx)
	w.Byte(0x00) // flags: not sealed -> instances may carry dynamic properties (globals, memory, table)
	w.U30(0)     // interface_count
	w.U30(iinit)

	w.U30(uint32(len(fns) + len(helpers)))
	for _, fn := range fns {
		writeMethodTrait(w, fn, methodIndex[fn])
	}
	for _, h := range helpers {
		writeMethodTrait(w, h, methodIndex[h])
	}
}

// writeMethodTrait exposes m as an instance method trait under the
// multiname index the lowerer itself used to reference m at every call
// site (moduleCtx.funcName/the helper QName fields) — reusing that index
// here, rather than interning a fresh one, is what makes callproperty's
// compile-time multiname actually resolve to this trait at runtime.
func writeMethodTrait(w *avm2.Writer, m *lower.LoweredMethod, methodIdx uint32) {
	w.U30(m.NameIdx)
	w.Byte(byte(traitMethod))
	w.U30(0) // disp_id: left to the VM to assign
	w.U30(methodIdx)
}

func writeClassInfo(w *avm2.Writer, cinit uint32) {
	w.U30(cinit)
	w.U30(0) // trait_count: no static members synthesized
}

func writeScriptInfo(w *avm2.Writer, sinit uint32, classNameIdx, classIndex uint32) {
	w.U30(sinit)
	w.U30(1) // trait_count
	w.U30(classNameIdx)
	w.Byte(byte(traitClass))
	w.U30(0)          // slot_id: let the VM assign one
	w.U30(classIndex) // index into the class_info array of the exposed (document) class
}

func writeMethodBody(w *avm2.Writer, methodIdx uint32, m *lower.LoweredMethod) {
	w.U30(methodIdx)
	w.U30(uint32(m.MaxStack))
	w.U30(uint32(m.LocalCount))
	w.U30(uint32(m.InitScopeDepth))
	w.U30(uint32(m.MaxScopeDepth))
	w.U30(uint32(len(m.Code)))
	w.Raw(m.Code)
	w.U30(0) // exception_count: no try/catch synthesized
	w.U30(0) // trait_count: no activation-scoped traits
}
