package swf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapProducesFWSHeader(t *testing.T) {
	out, err := Wrap([]byte{0xde, 0xad, 0xbe, 0xef}, []ClassBinding{{ClassName: "Instance"}})
	assert.NoError(t, err)
	assert.Equal(t, []byte("FWS"), out[:3])

	total := uint32(out[4]) | uint32(out[5])<<8 | uint32(out[6])<<16 | uint32(out[7])<<24
	assert.Equal(t, uint32(len(out)), total)
}

func TestWrapRequiresAtLeastOneBinding(t *testing.T) {
	_, err := Wrap([]byte{1, 2, 3}, nil)
	assert.Error(t, err)
}

func TestRectFieldBitsCoversStageSize(t *testing.T) {
	bits := rectFieldBits(0, stageWidth, 0, stageHeight)
	// 10000 needs 14 magnitude bits + 1 sign bit
	assert.Equal(t, 15, bits)
}

func TestBitWriterRoundTripsByteAlignment(t *testing.T) {
	bw := &bitWriter{}
	bw.writeBits(0x1f, 5)
	bw.writeBits(0x7, 3)
	assert.Equal(t, []byte{0xff}, bw.bytes())
}

func TestAppendTagLongForm(t *testing.T) {
	body := make([]byte, 100)
	buf := appendTag(nil, tagDoABC, body)
	// long-form header: code<<6 | 0x3f, then a u32 length
	assert.Equal(t, byte(0x3f), buf[0]&0x3f)
	n := uint32(buf[2]) | uint32(buf[3])<<8 | uint32(buf[4])<<16 | uint32(buf[5])<<24
	assert.Equal(t, uint32(len(body)), n)
}
