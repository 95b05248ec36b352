package avm2

import "fmt"

// ConstantPool holds the constant pools an ABC file's cpool_info record
// is built from: integers, unsigned integers, doubles, strings,
// namespaces and namespace sets (all deduplicated), and multinames
// (QName and MultinameL entries, not deduplicated). All AVM2 constant pools
// are 1-indexed; index 0 means "the implicit any/default value" and is
// never emitted as an actual pool entry.
type ConstantPool struct {
	ints     []int32
	intIdx   map[int32]uint32
	uints    []uint32
	uintIdx  map[uint32]uint32
	doubles  []float64
	dblIdx   map[float64]uint32
	strings  []string
	strIdx   map[string]uint32

	namespaces []Namespace
	nsIdx      map[Namespace]uint32

	nsSets   [][]uint32
	nsSetIdx map[string]uint32

	multinames []Multiname
}

// NamespaceKind enumerates the CONSTANT_* namespace kind tags. This
// compiler only ever emits package namespaces (NSPackageNamespace); the
// other kinds are not used.
type NamespaceKind byte

const (
	NSNamespace         NamespaceKind = 0x08
	NSPackageNamespace  NamespaceKind = 0x16
	NSPackageInternalNs NamespaceKind = 0x17
	NSPrivateNs         NamespaceKind = 0x05
)

// Namespace is a cpool namespace entry: a kind tag plus a name string
// pool index (0 for the kinds that carry no name, e.g. the anonymous
// private namespace).
type Namespace struct {
	Kind    NamespaceKind
	NameIdx uint32
}

// MultinameKind enumerates the CONSTANT_* multiname kind tags this
// compiler emits: QName for every statically known name, and
// MultinameL for the function table's computed index.
type MultinameKind byte

const (
	MNQName MultinameKind = 0x07
)

const (
	MNMultinameL MultinameKind = 0x1b
)

// Multiname is a cpool multiname entry. QName-kind entries carry a
// namespace index and a name index; MultinameL ("late") entries carry
// only a namespace-set index, because the name itself comes off the
// operand stack at runtime — this is how ABC bytecode expresses
// computed/indexed property access (e.g. arr[i]), and this compiler
// uses exactly one of those, for indexing the function table (in the
// lookup helper and when the instance initializer fills the table).
type Multiname struct {
	IsLate  bool
	NSIdx   uint32 // QName: namespace index
	NameIdx uint32 // QName: name index
	NSSet   uint32 // MultinameL: namespace-set index
}

func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		intIdx:  map[int32]uint32{},
		uintIdx: map[uint32]uint32{},
		dblIdx:  map[float64]uint32{},
		strIdx:  map[string]uint32{},
		nsIdx:   map[Namespace]uint32{},
		nsSetIdx: map[string]uint32{},
	}
}

func (p *ConstantPool) Int(v int32) uint32 {
	if i, ok := p.intIdx[v]; ok {
		return i
	}
	p.ints = append(p.ints, v)
	i := uint32(len(p.ints))
	p.intIdx[v] = i
	return i
}

func (p *ConstantPool) UInt(v uint32) uint32 {
	if i, ok := p.uintIdx[v]; ok {
		return i
	}
	p.uints = append(p.uints, v)
	i := uint32(len(p.uints))
	p.uintIdx[v] = i
	return i
}

func (p *ConstantPool) Double(v float64) uint32 {
	if i, ok := p.dblIdx[v]; ok {
		return i
	}
	p.doubles = append(p.doubles, v)
	i := uint32(len(p.doubles))
	p.dblIdx[v] = i
	return i
}

func (p *ConstantPool) String(v string) uint32 {
	if i, ok := p.strIdx[v]; ok {
		return i
	}
	p.strings = append(p.strings, v)
	i := uint32(len(p.strings))
	p.strIdx[v] = i
	return i
}

func (p *ConstantPool) Namespace(kind NamespaceKind, name string) uint32 {
	var nameIdx uint32
	if name != "" {
		nameIdx = p.String(name)
	}
	ns := Namespace{Kind: kind, NameIdx: nameIdx}
	if i, ok := p.nsIdx[ns]; ok {
		return i
	}
	p.namespaces = append(p.namespaces, ns)
	i := uint32(len(p.namespaces))
	p.nsIdx[ns] = i
	return i
}

// QName interns a public-namespace qualified name, e.g. "trace" or
// "Memory", and returns its multiname pool index. Multinames are not
// deduplicated by value the way scalar pools are: the ABC format allows
// duplicates and this compiler never needs to compare multiname
// identity, only look one up by the index it handed out at the call
// site.
func (p *ConstantPool) QName(nsKind NamespaceKind, ns, name string) uint32 {
	nameIdx := p.String(name)
	nsIdx := p.Namespace(nsKind, ns)
	p.multinames = append(p.multinames, Multiname{NSIdx: nsIdx, NameIdx: nameIdx})
	return uint32(len(p.multinames))
}

// NamespaceSet interns a namespace set (ABC multinames reference a set,
// not a single namespace, when the name isn't statically known).
func (p *ConstantPool) NamespaceSet(nsIdxs ...uint32) uint32 {
	key := fmt.Sprint(nsIdxs)
	if i, ok := p.nsSetIdx[key]; ok {
		return i
	}
	p.nsSets = append(p.nsSets, nsIdxs)
	i := uint32(len(p.nsSets))
	p.nsSetIdx[key] = i
	return i
}

// MultinameL interns a late-bound multiname over the given namespace
// set: the actual property name is supplied on the operand stack at the
// getproperty/setproperty call site, not here.
func (p *ConstantPool) MultinameL(nsSet uint32) uint32 {
	p.multinames = append(p.multinames, Multiname{IsLate: true, NSSet: nsSet})
	return uint32(len(p.multinames))
}

func (p *ConstantPool) Ints() []int32           { return p.ints }
func (p *ConstantPool) UInts() []uint32         { return p.uints }
func (p *ConstantPool) Doubles() []float64      { return p.doubles }
func (p *ConstantPool) Strings() []string       { return p.strings }
func (p *ConstantPool) Namespaces() []Namespace { return p.namespaces }
func (p *ConstantPool) NamespaceSets() [][]uint32 { return p.nsSets }
func (p *ConstantPool) Multinames() []Multiname { return p.multinames }
