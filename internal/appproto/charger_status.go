package appproto

// ChargerStatus is the periodic per-port notification carrying the
// charger's live operating state and per-cell telemetry.
type ChargerStatus struct {
	PortNumber         byte
	SchemaVersion      byte
	ModelID            ChargerModel
	CommState          CommState
	ModeRunning        ChargerMode
	ErrorCode          byte
	Chemistry          Chemistry
	cellCount          byte
	EstimatedFuelLevel byte
	EstimatedMinutes   uint16
	Amps               int32
	PackVolts          uint32
	CapacityAdded      uint32
	CapacityRemoved    uint32
	CycleTimer         uint32
	StatusFlags        ChargerStatusFlag
	RxStatusFlags      ChargerRxStatusFlag
	OperationFlags     byte
	PowerReducedReason ChargerPowerReducedReason
	SupplyVolts        uint32
	SupplyAmps         int32
	CPUTemp            uint16
	CellVolts          []uint16
	CellIR             []uint16
	CellBypass         []byte
}

// NewChargerStatus returns a status with schema version 6, matching the
// reference payload layout this bridge targets.
func NewChargerStatus() *ChargerStatus {
	return &ChargerStatus{SchemaVersion: 6}
}

// CellCount returns the number of cells this status reports telemetry
// for.
func (c *ChargerStatus) CellCount() byte { return c.cellCount }

// SetCellCount resizes the per-cell slices to n entries, discarding any
// previously recorded values (mirrors the reference property setter).
func (c *ChargerStatus) SetCellCount(n byte) {
	c.cellCount = n
	c.CellVolts = make([]uint16, n)
	c.CellIR = make([]uint16, n)
	c.CellBypass = make([]byte, n)
}

func (c *ChargerStatus) Serialize() []byte {
	buf := newBuffer(32 + int(c.cellCount)*5)
	buf.byte(c.PortNumber)
	buf.byte(c.SchemaVersion)
	buf.byte(byte(c.ModelID))
	buf.byte(byte(c.CommState))
	buf.byte(byte(c.ModeRunning))
	buf.byte(c.ErrorCode)
	buf.byte(byte(c.Chemistry))
	buf.byte(c.cellCount)
	buf.byte(c.EstimatedFuelLevel)
	buf.uint16(c.EstimatedMinutes)
	buf.int32(c.Amps)
	buf.uint32(c.PackVolts)
	buf.uint32(c.CapacityAdded)
	buf.uint32(c.CapacityRemoved)
	buf.uint32(c.CycleTimer)
	buf.uint16(uint16(c.StatusFlags))
	buf.uint16(uint16(c.RxStatusFlags))
	buf.byte(c.OperationFlags)
	buf.byte(byte(c.PowerReducedReason))
	buf.uint32(c.SupplyVolts)
	buf.int32(c.SupplyAmps)
	buf.uint16(c.CPUTemp)
	for i := 0; i < int(c.cellCount); i++ {
		buf.uint16(c.CellVolts[i])
		buf.uint16(c.CellIR[i])
		buf.byte(c.CellBypass[i])
	}
	return buf.bytes()
}
