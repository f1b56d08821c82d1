package appproto

// maxPowerSourcePorts is the number of charger ports the app's settings
// screen has slots for, independent of how many this bridge actually
// drives (see the single-port Non-goal).
const maxPowerSourcePorts = 4

// BumpSettings is the bridge-wide configuration notification: display
// preferences, the per-port power-source wiring, and which charger ports
// are enabled. The bridge only ever enables port 0.
type BumpSettings struct {
	VolumeLevel              byte
	TouchCalDX               uint16
	TouchCalDY               uint16
	TouchCalCX               uint16
	TouchCalCY               uint16
	CustomColorIdle          uint16
	CustomColorActive        uint16
	CustomColorComplete      uint16
	CustomColorSafety        uint16
	CustomColorSetup         uint16
	SelectedColorTheme       byte
	ScreenLayout             byte
	LastBluetoothUUID        [6]byte
	CellIRWarningThreshold   byte
	CapacityWarningThreshold byte
	PresetsEnabled           bool
	CycleGraphCachingEnabled bool
	ChargerPortsDisabled     [maxPowerSourcePorts]bool
	TouchCalibrationRedone   bool
	PowerSources             [maxPowerSourcePorts]byte
	WiringModes              [maxPowerSourcePorts]byte
	ChargerUpgradeStates     [maxPowerSourcePorts]byte
	ChargerUpgradeModels     [maxPowerSourcePorts]byte
	PowerSourceDefaultsCreated bool
	PowerSourceNames         [maxPowerSourcePorts]string
	PowerSourceTypes         [maxPowerSourcePorts]byte
	PowerSourceWarnDod       [maxPowerSourcePorts]bool
	PowerSourceLowVolts      [maxPowerSourcePorts]uint16
	PowerSourceMaxAmps       [maxPowerSourcePorts]uint16
	PowerSourceMaxRegenAmps  [maxPowerSourcePorts]uint16
	PowerSourceMaxRegenVolts [maxPowerSourcePorts]uint16
	PowerSourceRegenDchgEnabled [maxPowerSourcePorts]bool
	PowerSourceInitialSetupComplete bool
	DeviceName               string
	Checksum                 uint16
}

// NewBumpSettings returns defaults matching the reference constructor:
// all ports disabled, regen-discharge enabled on every port, and the
// initial-setup flag already set (this bridge has no first-run wizard).
func NewBumpSettings() *BumpSettings {
	s := &BumpSettings{DeviceName: "foobar"}
	for i := range s.ChargerPortsDisabled {
		s.ChargerPortsDisabled[i] = true
	}
	for i := range s.PowerSourceWarnDod {
		s.PowerSourceWarnDod[i] = true
	}
	for i := range s.PowerSourceRegenDchgEnabled {
		s.PowerSourceRegenDchgEnabled[i] = true
	}
	s.PowerSourceInitialSetupComplete = true
	return s
}

// EnableChargerPort marks port as wired and selects power source index
// for it. The reference power-source setter defaults regen_dchg_enabled
// to false whenever it's called without passing it explicitly, so
// enabling a port clears the all-ports-true default NewBumpSettings
// starts with.
func (s *BumpSettings) EnableChargerPort(port int, name string, typ byte, lowVolts, maxAmps float64) {
	s.ChargerPortsDisabled[port] = false
	s.PowerSources[port] = byte(port)
	s.PowerSourceNames[port] = name
	s.PowerSourceTypes[port] = typ
	s.PowerSourceLowVolts[port] = uint16(round(lowVolts))
	s.PowerSourceMaxAmps[port] = uint16(round(maxAmps))
	s.PowerSourceRegenDchgEnabled[port] = false
}

const maxPowerSourceNameLen = 16

func (s *BumpSettings) Serialize() []byte {
	buf := newBuffer(256)
	buf.byte(s.VolumeLevel)
	buf.uint16(s.TouchCalDX)
	buf.uint16(s.TouchCalDY)
	buf.uint16(s.TouchCalCX)
	buf.uint16(s.TouchCalCY)
	buf.uint16(s.CustomColorIdle)
	buf.uint16(s.CustomColorActive)
	buf.uint16(s.CustomColorComplete)
	buf.uint16(s.CustomColorSafety)
	buf.uint16(s.CustomColorSetup)
	buf.byte(s.SelectedColorTheme)
	buf.byte(s.ScreenLayout)
	buf.b = append(buf.b, s.LastBluetoothUUID[:]...)
	buf.byte(s.CellIRWarningThreshold)
	buf.byte(s.CapacityWarningThreshold)
	buf.bool(s.PresetsEnabled)
	buf.bool(s.CycleGraphCachingEnabled)
	for _, v := range s.ChargerPortsDisabled {
		buf.bool(v)
	}
	buf.byte(0)
	buf.bool(s.TouchCalibrationRedone)
	buf.byte(0)
	for _, v := range s.PowerSources {
		buf.byte(v)
	}
	buf.zeros(4)
	for _, v := range s.WiringModes {
		buf.byte(v)
	}
	for _, v := range s.ChargerUpgradeStates {
		buf.byte(v)
	}
	for _, v := range s.ChargerUpgradeModels {
		buf.byte(v)
	}
	buf.bool(s.PowerSourceDefaultsCreated)
	for _, v := range s.PowerSourceNames {
		buf.str(v, maxPowerSourceNameLen)
	}
	for _, v := range s.PowerSourceTypes {
		buf.byte(v)
	}
	for _, v := range s.PowerSourceWarnDod {
		buf.bool(v)
	}
	for _, v := range s.PowerSourceLowVolts {
		buf.uint16(v)
	}
	for _, v := range s.PowerSourceMaxAmps {
		buf.uint16(v)
	}
	for _, v := range s.PowerSourceMaxRegenAmps {
		buf.uint16(v)
	}
	for _, v := range s.PowerSourceMaxRegenVolts {
		buf.uint16(v)
	}
	for _, v := range s.PowerSourceRegenDchgEnabled {
		buf.bool(v)
	}
	buf.bool(s.PowerSourceInitialSetupComplete)
	buf.str(s.DeviceName, maxPowerSourceNameLen)
	buf.zeros(70)
	buf.uint16(s.Checksum)
	return buf.bytes()
}
