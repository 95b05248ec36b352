// Package swf wraps an ABC byte stream (internal/abc's output) in a
// minimal SWF container: the fixed-size header plus the six tags
// spec.md §6 requires to make a standalone AVM2 movie, following the
// same append-to-[]byte idiom internal/avm2's Writer and the teacher's
// encoder.go both use.
package swf

import "tlog.app/go/errors"

const (
	stageWidth  = 10000 // twips
	stageHeight = 7500  // twips
	frameRate   = 24
)

const (
	tagEnd          = 0
	tagShowFrame    = 1
	tagDoABC        = 82
	tagSymbolClass  = 76
	tagFrameLabel   = 43
	tagFileAttribs  = 69
)

// ClassBinding names the fully-qualified class SymbolClass exposes as
// the document class, per spec.md §4.3/§6: the plain lowered class when
// there's no --sprite, or the Wrapper Sprite subclass when there is.
type ClassBinding struct {
	ClassName string
}

// Wrap builds a complete SWF file: FWS header, then FileAttributes,
// FrameLabel("frame1"), DoABC("frame1", abcBytes), SymbolClass(bindings),
// ShowFrame, End, in that order.
func Wrap(abcBytes []byte, bindings []ClassBinding) ([]byte, error) {
	if len(bindings) == 0 {
		return nil, errors.New("swf: at least one SymbolClass binding required")
	}

	var body []byte
	body = appendTag(body, tagFileAttribs, fileAttributesBody())
	body = appendTag(body, tagFrameLabel, frameLabelBody("frame1"))
	body = appendTag(body, tagDoABC, doABCBody("frame1", abcBytes))
	body = appendTag(body, tagSymbolClass, symbolClassBody(bindings))
	body = appendTag(body, tagShowFrame, nil)
	body = appendTag(body, tagEnd, nil)

	header := fileHeader(len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out, nil
}

// fileHeader writes the uncompressed ("FWS") SWF header: signature,
// version, file length, stage RECT, frame rate, frame count. The file
// length field covers the whole file, header included, so it is only
// known once bodyLen is.
func fileHeader(bodyLen int) []byte {
	rect := rectBytes(0, stageWidth, 0, stageHeight)

	const version = 10

	hdr := []byte{'F', 'W', 'S', version}
	hdr = append(hdr, 0, 0, 0, 0) // file length placeholder, patched below
	hdr = append(hdr, rect...)
	hdr = append(hdr, byte(frameRate), 0) // 8.8 fixed point, whole fps
	hdr = append(hdr, 1, 0)               // frame count: one frame

	total := len(hdr) + bodyLen
	hdr[4] = byte(total)
	hdr[5] = byte(total >> 8)
	hdr[6] = byte(total >> 16)
	hdr[7] = byte(total >> 24)

	return hdr
}

// rectBytes packs an RECT record: a 5-bit field width followed by four
// signed fields of that width (xmin, xmax, ymin, ymax), byte-aligned by
// zero-padding the last byte. nbits is computed from the largest
// magnitude among the four values, since all four share one width.
func rectBytes(xmin, xmax, ymin, ymax int32) []byte {
	nbits := rectFieldBits(xmin, xmax, ymin, ymax)

	bw := &bitWriter{}
	bw.writeBits(uint32(nbits), 5)
	for _, v := range []int32{xmin, xmax, ymin, ymax} {
		bw.writeBits(uint32(v)&mask(nbits), nbits)
	}
	return bw.bytes()
}

// rectFieldBits returns the signed field width (including the sign bit)
// needed to hold the largest of vs.
func rectFieldBits(vs ...int32) int {
	max := int32(1)
	for _, v := range vs {
		if v < 0 {
			v = -v
		}
		if v > max {
			max = v
		}
	}
	bits := 1
	for (int32(1) << uint(bits-1)) <= max {
		bits++
	}
	return bits // 1<<(bits-1) > max, so bits already counts the sign bit
}

func mask(bits int) uint32 {
	if bits >= 32 {
		return 0xffffffff
	}
	return (1 << uint(bits)) - 1
}

// bitWriter packs big-endian bitfields MSB-first, the order every SWF
// record with sub-byte fields (RECT here) uses.
type bitWriter struct {
	buf     []byte
	cur     byte
	curBits int
}

func (bw *bitWriter) writeBits(v uint32, bits int) {
	for bits > 0 {
		bits--
		bit := byte((v >> uint(bits)) & 1)
		bw.cur = bw.cur<<1 | bit
		bw.curBits++
		if bw.curBits == 8 {
			bw.buf = append(bw.buf, bw.cur)
			bw.cur, bw.curBits = 0, 0
		}
	}
}

func (bw *bitWriter) bytes() []byte {
	if bw.curBits > 0 {
		bw.buf = append(bw.buf, bw.cur<<uint(8-bw.curBits))
	}
	return bw.buf
}

// appendTag frames body in a SWF RECORDHEADER: a short header when body
// fits in 6 bits of length, else a long header with a u32 length.
func appendTag(buf []byte, code uint16, body []byte) []byte {
	const longMask = 0x3f
	if len(body) < longMask {
		header := code<<6 | uint16(len(body))
		buf = append(buf, byte(header), byte(header>>8))
	} else {
		header := code<<6 | longMask
		buf = append(buf, byte(header), byte(header>>8))
		n := uint32(len(body))
		buf = append(buf, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	}
	return append(buf, body...)
}

// fileAttributesBody sets ActionScript3 and UseNetwork, per spec.md §6's
// {actionScript3, useNetwork} flag set.
func fileAttributesBody() []byte {
	const (
		actionScript3 = 1 << 3
		useNetwork    = 1 << 0
	)
	return []byte{actionScript3 | useNetwork, 0, 0, 0}
}

func frameLabelBody(name string) []byte {
	b := append([]byte(name), 0)
	return b
}

// doABCBody frames abcBytes as a DoABC tag: a u32 flags field (0, no
// lazy-init), a null-terminated name, then the raw ABC bytes.
func doABCBody(name string, abcBytes []byte) []byte {
	body := []byte{0, 0, 0, 0}
	body = append(body, []byte(name)...)
	body = append(body, 0)
	body = append(body, abcBytes...)
	return body
}

// symbolClassBody binds every entry's SymbolName to the character ID
// that names its top-level class; this compiler only ever emits the
// zero character ID (id 0 means "the main class", the convention
// SymbolClass uses to bind a class with no DisplayObject character).
func symbolClassBody(bindings []ClassBinding) []byte {
	n := uint16(len(bindings))
	body := []byte{byte(n), byte(n >> 8)}
	for _, b := range bindings {
		body = append(body, 0, 0) // character id 0
		body = append(body, []byte(b.ClassName)...)
		body = append(body, 0)
	}
	return body
}
