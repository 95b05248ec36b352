package lower

import "github.com/brion/wasm2swf/internal/avm2"

// moduleCtx is built once per module and shared by every function's
// lowering pass: it holds the constant-pool indices for every name the
// lowerer needs to reference (functions, globals, the fixed
// runtime-helper methods the module assembler synthesizes). funcName and
// globalName intern a name on first use, so lowering can still add to it.
type moduleCtx struct {
	pool *avm2.ConstantPool

	publicNS uint32

	// traceFunc reports whether expressions inside the named function
	// should emit a tlog trace line as they're lowered (spec.md §6's
	// --trace/--trace-funcs/--trace-only/--trace-exclude). nil disables
	// tracing entirely.
	traceFunc func(fnName string) bool

	funcQName   map[string]uint32
	globalQName map[string]uint32

	tableQName    uint32 // "table" instance property (Array of Function)
	memoryQName   uint32 // "memory" instance property (ByteArray, pinned as domain memory)
	tableGetQName uint32 // "__table_get" helper method
	clz32QName    uint32 // "__clz32" helper method
	memGrowQName  uint32 // "__memory_grow" helper method
	memSizeQName  uint32 // "__memory_size" helper method
	memInitQName  uint32 // "__memory_init" helper method

	mathQName   uint32
	mathMethods map[string]uint32 // "sqrt"/"abs"/"ceil"/"floor"/"min"/"max" -> QName

	lengthQName          uint32
	endianQName          uint32
	littleEndianQName    uint32
	charCodeAtQName      uint32
	byteArrayQName       uint32
	endianClassQName     uint32
	appDomainQName       uint32
	currentDomainQName   uint32
	domainMemoryQName    uint32
	objectQName          uint32
	errorQName           uint32
	tableIndexMultiname  uint32 // MultinameL used for every this.table[i] access
}

func newModuleCtx() *moduleCtx {
	pool := avm2.NewConstantPool()
	c := &moduleCtx{
		pool:        pool,
		publicNS:    pool.Namespace(avm2.NSPackageNamespace, ""),
		funcQName:   map[string]uint32{},
		globalQName: map[string]uint32{},
		mathMethods: map[string]uint32{},
	}
	c.tableQName = c.qname("table")
	c.memoryQName = c.qname("memory")
	c.tableGetQName = c.qname("__table_get")
	c.clz32QName = c.qname("__clz32")
	c.memGrowQName = c.qname("__memory_grow")
	c.memSizeQName = c.qname("__memory_size")
	c.memInitQName = c.qname("__memory_init")
	c.mathQName = c.qname("Math")
	for _, m := range []string{"sqrt", "abs", "ceil", "floor", "min", "max"} {
		c.mathMethods[m] = c.qname(m)
	}

	c.lengthQName = c.qname("length")
	c.endianQName = c.qname("endian")
	c.littleEndianQName = c.qname("LITTLE_ENDIAN")
	c.charCodeAtQName = c.qname("charCodeAt")
	c.byteArrayQName = c.qname("ByteArray")
	c.endianClassQName = c.qname("Endian")
	c.appDomainQName = c.qname("ApplicationDomain")
	c.currentDomainQName = c.qname("currentDomain")
	c.domainMemoryQName = c.qname("domainMemory")
	c.objectQName = c.qname("Object")
	c.errorQName = c.qname("Error")
	c.tableIndexMultiname = pool.MultinameL(pool.NamespaceSet(c.publicNS))

	return c
}

func (c *moduleCtx) qname(name string) uint32 {
	return c.pool.QName(avm2.NSPackageNamespace, "", name)
}

func (c *moduleCtx) funcName(name string) uint32 {
	if i, ok := c.funcQName[name]; ok {
		return i
	}
	i := c.qname(name)
	c.funcQName[name] = i
	return i
}

func (c *moduleCtx) globalName(name string) uint32 {
	if i, ok := c.globalQName[name]; ok {
		return i
	}
	i := c.qname(name)
	c.globalQName[name] = i
	return i
}
