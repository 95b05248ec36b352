package avm2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantPoolDedup(t *testing.T) {
	p := NewConstantPool()

	a := p.Int(42)
	b := p.Int(42)
	assert.Equal(t, a, b, "repeated Int should return the same index")

	c := p.Int(43)
	assert.NotEqual(t, a, c)

	assert.Equal(t, []int32{42, 43}, p.Ints())
}

func TestConstantPoolOneIndexed(t *testing.T) {
	p := NewConstantPool()
	assert.Equal(t, uint32(1), p.String("foo"))
	assert.Equal(t, uint32(2), p.String("bar"))
	assert.Equal(t, uint32(1), p.String("foo"))
}

func TestQNameNotDeduped(t *testing.T) {
	p := NewConstantPool()
	a := p.QName(NSPackageNamespace, "", "add")
	b := p.QName(NSPackageNamespace, "", "add")
	assert.NotEqual(t, a, b, "multinames are interned per call site, not deduplicated by value")
}

func TestMultinameL(t *testing.T) {
	p := NewConstantPool()
	ns := p.Namespace(NSPackageNamespace, "")
	set := p.NamespaceSet(ns)
	mn := p.MultinameL(set)

	names := p.Multinames()
	assert.True(t, names[mn-1].IsLate)
	assert.Equal(t, set, names[mn-1].NSSet)
}
