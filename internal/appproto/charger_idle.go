package appproto

// ChargerIdle is sent in place of ChargerStatus when the bridge has no
// active serial link to the charger on a port, and also while the link is
// up with the session Idle and no forced error pending.
type ChargerIdle struct {
	PortNumber      byte
	ModelID         ChargerModel
	CommState       CommState
	SupplyVolts     uint32
	SupplyAmps      int32
	CPUTemp         uint16
	OperationFlags  byte
	FirmwareVersion uint16
}

func (c *ChargerIdle) Serialize() []byte {
	buf := newBuffer(16)
	buf.byte(c.PortNumber)
	buf.byte(byte(c.ModelID))
	buf.byte(byte(c.CommState))
	buf.uint32(c.SupplyVolts)
	buf.int32(c.SupplyAmps)
	buf.uint16(c.CPUTemp)
	buf.byte(c.OperationFlags)
	buf.uint16(c.FirmwareVersion)
	return buf.bytes()
}
