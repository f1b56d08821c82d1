package session

import "github.com/fhriley/bump-bridge/internal/appproto"

// BatteryConfig is the battery descriptor the calling layer loads once at
// start-up (from YAML, in the shipped command) and hands to the session
// opaquely: the core never parses or persists it. It is immutable after
// construction, except PackCount, which SetBatteryGroupCount updates in
// place as the app's own battery-group screen.
type BatteryConfig struct {
	Chemistry          appproto.Chemistry
	CellCount          byte
	Capacity           uint16 // mAh
	MaxCellVolts       float64
	MinCellVolts       float64
	StorageChargeVolts float64
	StorageDischargeVolts float64
	CycleCount         uint16
	PackCount          byte
	BrandName          string
	PrefOperation      appproto.ChargerOperation

	// ChargeC maps an operation to its preferred charge rate in C. Only
	// Accurate, Normal, Fastest, and Storage are meaningful preset
	// charge rates; Discharge/Analyze/Monitor read 0 here and rely on
	// DischargeC instead, matching the reference descriptor's unused
	// placeholders for those operations.
	ChargeC map[appproto.ChargerOperation]float64

	DischargeC         float64
	InternalResistance float64
	DischargeCMax      float64
	ChargeCMax         float64
	MeasuredFuelTable  [11]uint16
}

func (b *BatteryConfig) chargeCFor(op appproto.ChargerOperation) float64 {
	if b.ChargeC == nil {
		return 0
	}
	return b.ChargeC[op]
}

// PresetMap is the static mapping from an app-visible operation to the
// preset slot (0..74) on the charger that realizes it.
type PresetMap map[appproto.ChargerOperation]int
