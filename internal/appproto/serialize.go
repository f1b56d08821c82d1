package appproto

import "encoding/binary"

// buffer is a small byte-builder matching the append_* helpers the
// original protocol module exposed as free functions; kept as methods
// here since every message type in this package needs the same set.
type buffer struct {
	b []byte
}

func newBuffer(capacityHint int) *buffer {
	return &buffer{b: make([]byte, 0, capacityHint)}
}

func (buf *buffer) byte(v byte) {
	buf.b = append(buf.b, v)
}

func (buf *buffer) bool(v bool) {
	if v {
		buf.byte(1)
	} else {
		buf.byte(0)
	}
}

func (buf *buffer) uint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) int32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) uint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) zeros(n int) {
	for i := 0; i < n; i++ {
		buf.b = append(buf.b, 0)
	}
}

// str appends val truncated or zero-padded to exactly length bytes.
func (buf *buffer) str(val string, length int) {
	n := len(val)
	if n > length {
		n = length
	}
	buf.b = append(buf.b, val[:n]...)
	buf.zeros(length - n)
}

func (buf *buffer) bytes() []byte { return buf.b }

// readUint16 decodes a little-endian uint16 from the first two bytes of b.
func readUint16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}
