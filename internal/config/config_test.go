package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceEnabledOffByDefault(t *testing.T) {
	c := FromFlags("in.wasm", "out.swf", false, false, false, false, "", "", "")
	assert.False(t, c.TraceEnabled("anything"))
}

func TestTraceOnlyIsAllowList(t *testing.T) {
	c := FromFlags("in.wasm", "out.swf", false, false, true, false, "add,sub", "", "")
	assert.True(t, c.TraceEnabled("add"))
	assert.False(t, c.TraceEnabled("mul"))
}

func TestTraceExcludeWinsOverAllowList(t *testing.T) {
	c := FromFlags("in.wasm", "out.swf", false, false, true, false, "add,sub", "add", "")
	assert.False(t, c.TraceEnabled("add"))
	assert.True(t, c.TraceEnabled("sub"))
}

func TestOutputIsABC(t *testing.T) {
	c := FromFlags("in.wasm", "out.abc", false, false, false, false, "", "", "")
	assert.True(t, c.OutputIsABC())

	c.Output = "out.swf"
	assert.False(t, c.OutputIsABC())
}
