package appproto

// ChargerSettings is the CHARGER_SETTINGS notification the bridge sends
// the app: the selected operation together with the battery profile
// (chemistry, cell count, rates) it runs with.
type ChargerSettings struct {
	PortNumber                      byte
	RequestedOperation               ChargerOperation
	RequestedChemistry                Chemistry
	RequestedCellCount                byte
	RequestedIR                       float64
	RequestedCapacity                  uint16
	RequestedChargeC                   float64
	RequestedDischargeC                float64
	RequestedChargeRate                uint16
	RequestedDischargeRate             uint16
	RequestedChargeCutoffCellVolts      float64
	RequestedDischargeCutoffCellVolts   float64
	RequestedFuelCurve                  [11]float64
	MultiChargerMode                    byte
	PowerSupplyMode                     PowerSupplyMode
	UseBalanceLeads                     bool
}

// NewChargerSettings returns defaults matching the reference constructor
// (no requested operation, DC supply, balance leads used).
func NewChargerSettings() *ChargerSettings {
	return &ChargerSettings{
		RequestedOperation: OperationNone,
		PowerSupplyMode:    PowerSupplyDC,
		UseBalanceLeads:    true,
	}
}

func (c *ChargerSettings) Serialize() []byte {
	buf := newBuffer(48)
	buf.byte(c.PortNumber)
	buf.byte(byte(c.RequestedOperation))
	buf.byte(byte(c.RequestedChemistry))
	buf.byte(c.RequestedCellCount)
	buf.uint16(uint16(round(c.RequestedIR * 100)))
	buf.uint16(c.RequestedCapacity)
	buf.uint16(uint16(round(c.RequestedChargeC * 10)))
	buf.uint16(uint16(round(c.RequestedDischargeC * 10)))
	buf.uint16(c.RequestedChargeRate)
	buf.uint16(c.RequestedDischargeRate)
	buf.uint16(uint16(round(c.RequestedChargeCutoffCellVolts * 1000)))
	buf.uint16(uint16(round(c.RequestedDischargeCutoffCellVolts * 1000)))
	for _, v := range c.RequestedFuelCurve {
		buf.uint16(uint16(round(v * 1000)))
	}
	buf.byte(c.MultiChargerMode)
	buf.byte(byte(c.PowerSupplyMode))
	buf.bool(c.UseBalanceLeads)
	return buf.bytes()
}
