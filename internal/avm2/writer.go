package avm2

import wasm "github.com/brion/wasm2swf"

// Writer accumulates an AVM2 byte stream. u30 and s32 operands reuse the
// same LEB128 scheme wasm.LowEncoder already implements for the Wasm
// binary format (the ABC container borrows the identical variable-length
// integer encoding); only s24 (a fixed 3-byte little-endian field used
// for branch offsets) and d64 need AVM2-specific framing, and d64 is
// also shared with wasm.LowEncoder's Float64.
type Writer struct {
	buf []byte
	enc wasm.LowEncoder
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) U30(v uint32) *Writer {
	w.buf = w.enc.Uint64(w.buf, uint64(v))
	return w
}

func (w *Writer) S32(v int32) *Writer {
	w.buf = w.enc.Int64(w.buf, int64(v))
	return w
}

func (w *Writer) Double(v float64) *Writer {
	w.buf = w.enc.Float64(w.buf, v)
	return w
}

// S24 writes a little-endian 24-bit signed branch offset.
func (w *Writer) S24(v int32) *Writer {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16))
	return w
}

// SizeU30 reports how many bytes v encodes to as a u30, without mutating
// any real output buffer — the method builder needs this up front to lay
// out instruction offsets before it knows branch targets.
func SizeU30(v uint32) int {
	var scratch Writer
	scratch.U30(v)
	return scratch.Len()
}

// SizeS32 is SizeU30's counterpart for pushshort's signed operand.
func SizeS32(v int32) int {
	var scratch Writer
	scratch.S32(v)
	return scratch.Len()
}
