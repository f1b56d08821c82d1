package appproto

import (
	"encoding/binary"

	"github.com/fhriley/bump-bridge/internal/bitops"
	"github.com/fhriley/bump-bridge/internal/ringbuf"
)

// EncodeFrame builds a complete frame: preamble, modelID, messageID,
// payload length, payload, and a trailing CRC-16 over everything before
// it.
func EncodeFrame(modelID byte, messageID MessageID, payload []byte) []byte {
	buf := make([]byte, HeaderBytes+len(payload)+CrcBytes)
	buf[0] = PreambleByte
	buf[1] = modelID
	buf[2] = byte(messageID)
	binary.LittleEndian.PutUint16(buf[PayloadLenOffset:], uint16(len(payload)))
	copy(buf[HeaderBytes:], payload)
	crc := bitops.CRC16(buf[:len(buf)-CrcBytes], CrcSeed)
	binary.LittleEndian.PutUint16(buf[len(buf)-CrcBytes:], crc)
	return buf
}

// Fragment splits an encoded frame into chunks no larger than
// NotifyChunkSize, the unit a single BLE notification carries.
func Fragment(frame []byte) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(frame); i += NotifyChunkSize {
		end := i + NotifyChunkSize
		if end > len(frame) {
			end = len(frame)
		}
		chunks = append(chunks, frame[i:end])
	}
	return chunks
}

// Message is one decoded frame: its message ID and payload.
type Message struct {
	ID      MessageID
	Payload []byte
}

// Decoder reassembles frames out of a byte stream that may arrive in
// arbitrary-sized writes (the app's characteristic write is not
// frame-aligned). It mirrors the receive-path parser that scans for the
// preamble byte, reads the length field at a fixed offset, and verifies
// the trailing CRC before dispatching.
type Decoder struct {
	buf *ringbuf.RingBuffer
}

// NewDecoder creates a Decoder backed by a ring buffer of the given
// capacity. Frames larger than capacity can never be decoded and are
// dropped with a resync to the next preamble byte.
func NewDecoder(capacity int) *Decoder {
	return &Decoder{buf: ringbuf.New(capacity)}
}

// Feed appends newly-received bytes. It reports whether all of data fit;
// a false return means the decoder's buffer is saturated and bytes were
// lost, which should never happen in normal operation.
func (d *Decoder) Feed(data []byte) bool {
	return d.buf.Append(data)
}

// Next extracts the next complete, CRC-valid frame from the buffered
// bytes, if any. It returns ok=false when no full frame is available yet;
// call it again after the next Feed.
func (d *Decoder) Next() (msg Message, ok bool) {
	for {
		d.advanceToPreamble()
		start := d.buf.ReadIndex()
		bufLen := d.buf.Size()
		if int64(FrameOverhead) > bufLen {
			return Message{}, false
		}

		lenField, err := d.buf.Slice(start+PayloadLenOffset, start+PayloadLenOffset+2)
		if err != nil {
			return Message{}, false
		}
		payloadLen := int(readUint16(lenField))
		messageSize := payloadLen + FrameOverhead

		if messageSize > d.buf.Capacity() {
			d.buf.Advance(1)
			continue
		}
		if int64(messageSize) > bufLen {
			return Message{}, false
		}

		frame, err := d.buf.Slice(start, start+int64(messageSize))
		if err != nil {
			return Message{}, false
		}
		crcStart := HeaderBytes + payloadLen
		crc := readUint16(frame[crcStart:])
		calcCrc := bitops.CRC16(frame[:crcStart], CrcSeed)
		if crc != calcCrc {
			d.buf.Advance(1)
			continue
		}

		messageID := MessageID(frame[MessageIDOffset])
		payload := append([]byte(nil), frame[HeaderBytes:crcStart]...)
		d.buf.Advance(messageSize)
		return Message{ID: messageID, Payload: payload}, true
	}
}

func (d *Decoder) advanceToPreamble() {
	for {
		b := d.buf.Peek()
		if b < 0 || byte(b) == PreambleByte {
			return
		}
		d.buf.Advance(1)
	}
}
