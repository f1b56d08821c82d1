package appproto

import (
	"bytes"
	"testing"
)

func TestEncodeFrameRoundTripsThroughDecoder(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	frame := EncodeFrame(0x64, ConnectAck, payload)

	dec := NewDecoder(256)
	if !dec.Feed(frame) {
		t.Fatal("Feed rejected a frame within capacity")
	}
	msg, ok := dec.Next()
	if !ok {
		t.Fatal("Next found no frame")
	}
	if msg.ID != ConnectAck {
		t.Fatalf("ID = %v, want %v", msg.ID, ConnectAck)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Fatalf("Payload = %v, want %v", msg.Payload, payload)
	}
	if _, ok := dec.Next(); ok {
		t.Fatal("Next found a second frame that should not exist")
	}
}

func TestDecoderFeedsFragmentedFrame(t *testing.T) {
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := EncodeFrame(0x64, BumpSettingsMsg, payload)
	chunks := Fragment(frame)
	if len(chunks) < 2 {
		t.Fatalf("expected a 107-byte frame to fragment into multiple chunks, got %d", len(chunks))
	}

	dec := NewDecoder(512)
	for _, c := range chunks {
		dec.Feed(c)
	}
	msg, ok := dec.Next()
	if !ok {
		t.Fatal("Next found no frame after feeding all fragments")
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestDecoderSkipsGarbageBeforePreamble(t *testing.T) {
	frame := EncodeFrame(0x64, DeviceInfo, []byte{0xaa})
	noisy := append([]byte{0x00, 0xff, 0x12}, frame...)

	dec := NewDecoder(256)
	dec.Feed(noisy)
	msg, ok := dec.Next()
	if !ok {
		t.Fatal("Next found no frame past leading garbage")
	}
	if msg.ID != DeviceInfo {
		t.Fatalf("ID = %v, want %v", msg.ID, DeviceInfo)
	}
}

func TestDecoderRejectsBadCrcAndResyncs(t *testing.T) {
	good := EncodeFrame(0x64, ConnectRequest, nil)
	corrupt := append([]byte(nil), good...)
	corrupt[len(corrupt)-1] ^= 0xff

	dec := NewDecoder(256)
	dec.Feed(corrupt)
	dec.Feed(good)
	msg, ok := dec.Next()
	if !ok {
		t.Fatal("Next found no frame after a corrupt one preceded a good one")
	}
	if msg.ID != ConnectRequest {
		t.Fatalf("ID = %v, want %v", msg.ID, ConnectRequest)
	}
}

func TestDeserializeManualStart(t *testing.T) {
	m := &ManualStart{
		ChargerPortNumber: 0,
		Chemistry:         ChemistryLiPo,
		Cells:             4,
		Operation:         OperationNormal,
		CellTermV:         4.2,
		Rate:              10,
		Balanced:          true,
	}
	got, err := DeserializeManualStart(m.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if got.Chemistry != ChemistryLiPo || got.Cells != 4 || got.Operation != OperationNormal {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.CellTermV < 4.199 || got.CellTermV > 4.201 {
		t.Fatalf("CellTermV = %v, want close to 4.2", got.CellTermV)
	}
}

func TestDeserializeManualStartRejectsShortPayload(t *testing.T) {
	if _, err := DeserializeManualStart([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a short payload")
	}
}

func TestChargerStatusSerializesPerCellTelemetry(t *testing.T) {
	s := NewChargerStatus()
	s.SetCellCount(4)
	for i := range s.CellVolts {
		s.CellVolts[i] = uint16(4000 + i)
		s.CellIR[i] = uint16(10 + i)
	}
	out := s.Serialize()
	// fixed header fields before the per-cell loop
	const fixedLen = 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 2 + 4 + 4 + 4 + 4 + 4 + 2 + 2 + 1 + 1 + 4 + 4 + 2
	want := fixedLen + 4*5
	if len(out) != want {
		t.Fatalf("Serialize length = %d, want %d", len(out), want)
	}
}

func TestBatteryGroupNotifySerializes(t *testing.T) {
	b := NewBattery()
	b.BrandName = "Test Pack"
	bg := NewBatteryGroup(b, 1)
	n := &BatteryGroupNotify{ChargerPortNumber: 0, Group: bg}
	out := n.Serialize()
	if len(out) == 0 {
		t.Fatal("expected a non-empty serialization")
	}
}
