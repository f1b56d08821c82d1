package appproto

import "fmt"

// ManualStart is the one app-originated message whose body this package
// decodes: a request to start an operation with parameters typed directly
// into the app, rather than selected from a stored preset.
type ManualStart struct {
	ChargerPortNumber byte
	Chemistry         Chemistry
	Cells             byte
	Operation         ChargerOperation
	CellTermV         float64
	Rate              uint16
	Balanced          bool
}

const manualStartWireLen = 9

// DeserializeManualStart decodes a ManualStart out of a MANUAL_OPERATION_CMD
// payload.
func DeserializeManualStart(buf []byte) (*ManualStart, error) {
	if len(buf) < manualStartWireLen {
		return nil, fmt.Errorf("appproto: manual start payload too short: %d bytes", len(buf))
	}
	return &ManualStart{
		ChargerPortNumber: buf[0],
		Chemistry:         Chemistry(buf[1]),
		Cells:             buf[2],
		Operation:         ChargerOperation(buf[3]),
		CellTermV:         float64(readUint16(buf[4:6])) / 1000.0,
		Rate:              readUint16(buf[6:8]),
		Balanced:          buf[8] != 0,
	}, nil
}

func (m *ManualStart) Serialize() []byte {
	buf := newBuffer(manualStartWireLen)
	buf.byte(m.ChargerPortNumber)
	buf.byte(byte(m.Chemistry))
	buf.byte(m.Cells)
	buf.byte(byte(m.Operation))
	buf.uint16(uint16(round(m.CellTermV * 1000)))
	buf.uint16(m.Rate)
	buf.bool(m.Balanced)
	return buf.bytes()
}
