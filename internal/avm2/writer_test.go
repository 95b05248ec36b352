package avm2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterU30(t *testing.T) {
	var w Writer
	w.U30(624485)
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, w.Bytes())
}

func TestWriterS24(t *testing.T) {
	var w Writer
	w.S24(-2)
	assert.Equal(t, []byte{0xfe, 0xff, 0xff}, w.Bytes())
}

func TestSizeU30MatchesActualWrite(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16384, 624485} {
		var w Writer
		w.U30(v)
		assert.Equal(t, w.Len(), SizeU30(v))
	}
}
