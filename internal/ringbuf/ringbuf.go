// Package ringbuf implements the fixed-capacity circular byte buffer used
// by both the charger-serial reader and the app-protocol receive path.
package ringbuf

import "fmt"

// RingBuffer is a fixed-capacity circular byte queue addressed by
// monotonically increasing read/write indices. It is not safe for
// concurrent use by itself; Blocking adds the producer/consumer
// synchronization the charger-serial reader needs.
type RingBuffer struct {
	buf      []byte
	writeIdx int64
	readIdx  int64 // one less than the next byte available to read
}

// New creates a RingBuffer with the given byte capacity.
func New(capacity int) *RingBuffer {
	return &RingBuffer{
		buf:     make([]byte, capacity),
		readIdx: -1,
	}
}

// ReadIndex is the absolute index of the next byte available to read.
func (r *RingBuffer) ReadIndex() int64 { return r.readIdx + 1 }

// WriteIndex is the absolute index one past the last byte written.
func (r *RingBuffer) WriteIndex() int64 { return r.writeIdx }

// Capacity returns the buffer's fixed byte capacity.
func (r *RingBuffer) Capacity() int { return len(r.buf) }

// Size returns the number of unread bytes currently buffered.
func (r *RingBuffer) Size() int64 { return r.writeIdx - (r.readIdx + 1) }

// Available returns the number of bytes that can still be appended before
// the buffer is full.
func (r *RingBuffer) Available() int64 { return int64(len(r.buf)) - r.Size() }

// Clear discards all unread bytes without changing capacity.
func (r *RingBuffer) Clear() { r.readIdx = r.writeIdx - 1 }

// IsEmpty reports whether there are no unread bytes.
func (r *RingBuffer) IsEmpty() bool { return r.Size() == 0 }

// IsFull reports whether there is no room left to append.
func (r *RingBuffer) IsFull() bool { return r.Available() == 0 }

// Append copies data into the buffer, wrapping as needed, and returns true.
// It returns false without copying anything if there isn't enough room.
func (r *RingBuffer) Append(data []byte) bool {
	if r.Available() < int64(len(data)) {
		return false
	}
	start := r.realIndex(r.writeIdx)
	n := copy(r.buf[start:], data)
	copy(r.buf, data[n:])
	r.writeIdx += int64(len(data))
	return true
}

// Consume returns the next n bytes and advances the read cursor past them,
// or returns nil if fewer than n bytes are currently buffered.
func (r *RingBuffer) Consume(n int) []byte {
	if r.Size() < int64(n) {
		return nil
	}
	data, err := r.Slice(r.ReadIndex(), r.ReadIndex()+int64(n))
	if err != nil {
		panic(err) // unreachable: bounds already checked by Size
	}
	r.readIdx += int64(n)
	return data
}

// Advance moves the read cursor forward by n bytes without returning them.
func (r *RingBuffer) Advance(n int) { r.readIdx += int64(n) }

// Peek returns the next unread byte, or -1 if the buffer is empty.
func (r *RingBuffer) Peek() int {
	if r.Size() == 0 {
		return -1
	}
	b, err := r.At(r.ReadIndex())
	if err != nil {
		panic(err)
	}
	return int(b)
}

// At returns the byte at absolute index idx, which must be within
// [ReadIndex, WriteIndex).
func (r *RingBuffer) At(idx int64) (byte, error) {
	if idx < r.ReadIndex() || idx >= r.WriteIndex() {
		return 0, fmt.Errorf("ringbuf: index %d out of range [%d, %d)", idx, r.ReadIndex(), r.WriteIndex())
	}
	return r.buf[r.realIndex(idx)], nil
}

// Slice returns a copy of the bytes in the absolute index range
// [start, stop), wrapping through the underlying buffer as needed.
func (r *RingBuffer) Slice(start, stop int64) ([]byte, error) {
	if start < r.ReadIndex() || start >= r.WriteIndex() {
		return nil, fmt.Errorf("ringbuf: start %d out of range [%d, %d)", start, r.ReadIndex(), r.WriteIndex())
	}
	if stop <= r.ReadIndex() || stop > r.WriteIndex() {
		return nil, fmt.Errorf("ringbuf: stop %d out of range (%d, %d]", stop, r.ReadIndex(), r.WriteIndex())
	}
	if stop <= start {
		return []byte{}, nil
	}
	n := int(stop - start)
	realStart := r.realIndex(start)
	realStop := r.realIndex(stop)
	out := make([]byte, n)
	if realStart < realStop || (realStart == realStop && n == 0) {
		copy(out, r.buf[realStart:realStop])
	} else {
		j := copy(out, r.buf[realStart:])
		copy(out[j:], r.buf[:realStop])
	}
	return out, nil
}

func (r *RingBuffer) realIndex(v int64) int {
	m := int64(len(r.buf))
	idx := v % m
	if idx < 0 {
		idx += m
	}
	return int(idx)
}
