package appproto

// Battery is the set of battery-pack parameters the app needs to render
// its battery-group screen: preferred C-rates per operation, measured
// fuel curve, and the nameplate numbers used to validate presets against
// a chemistry. Populated from a battery descriptor (see internal/config)
// and serialized as part of a BatteryGroup notification.
type Battery struct {
	Version                  byte
	PrefOperation            ChargerOperation
	PrefChargeCNormal        float64
	PrefChargeCFastest       float64
	PrefChargeCAccurate      float64
	PrefDischargeC           float64
	PrefFastChargeDelta      byte
	PrefDischargeDelta       byte
	MeasuredFuelTable        [11]uint16
	MeasuredInternalResistance float64
	MeasuredCapacity         uint16
	CycleCount               uint16
	PrefAccuChargeDelta      byte
	PrefNormChargeDelta      byte
	PrefStoreChargeDelta     byte
	PrefFlags                byte
	BatteryID                uint16
	Checksum                 uint16
	SettingsVersion          byte
	InternalResistance       float64
	DischargeCMax            float64
	ChargeCMax               float64
	Capacity                 uint16
	Chemistry                Chemistry
	CellCount                byte
	BrandName                string
	MaxCellVolts             float64
	MinCellVolts             float64
	PackCount                byte
}

// NewBattery returns a Battery with the same zero defaults the original
// constructor set (version 2, settings version 1).
func NewBattery() *Battery {
	return &Battery{Version: 2, SettingsVersion: 1}
}

func (b *Battery) Serialize() []byte {
	buf := newBuffer(64)
	buf.byte(b.Version)
	buf.byte(byte(b.PrefOperation))
	buf.uint16(uint16(round(b.PrefChargeCNormal * 10)))
	buf.uint16(uint16(round(b.PrefChargeCFastest * 10)))
	buf.uint16(uint16(round(b.PrefChargeCAccurate * 10)))
	buf.uint16(uint16(round(b.PrefDischargeC * 10)))
	buf.byte(b.PrefFastChargeDelta)
	buf.byte(b.PrefDischargeDelta)
	for _, v := range b.MeasuredFuelTable {
		buf.uint16(v)
	}
	buf.uint16(uint16(round(b.MeasuredInternalResistance * 100)))
	buf.uint16(b.MeasuredCapacity)
	buf.uint16(b.CycleCount)
	buf.byte(b.PrefAccuChargeDelta)
	buf.byte(b.PrefNormChargeDelta)
	buf.byte(b.PrefStoreChargeDelta)
	buf.byte(b.PrefFlags)
	buf.uint16(b.BatteryID)
	buf.zeros(4)
	buf.uint16(b.Checksum)
	buf.byte(b.SettingsVersion)
	buf.uint16(uint16(round(b.InternalResistance * 100)))
	buf.uint16(uint16(round(b.DischargeCMax)))
	buf.uint16(uint16(round(b.ChargeCMax * 10)))
	buf.uint16(b.Capacity)
	buf.byte(byte(b.Chemistry))
	buf.byte(b.CellCount)
	buf.str(b.BrandName, 16)
	buf.uint16(uint16(round(b.MaxCellVolts * 1000)))
	buf.uint16(uint16(round(b.MinCellVolts * 1000)))
	buf.byte(b.PackCount)
	buf.zeros(13)
	return buf.bytes()
}

func round(v float64) int {
	if v < 0 {
		return -round(-v)
	}
	return int(v + 0.5)
}

// BatteryGroup describes one group of battery packs wired to a charger
// port: the packs' shared Battery descriptor plus the NFC tag IDs the
// real hardware would have read off each pack.
type BatteryGroup struct {
	GroupIndex   byte
	BatteryCount byte
	Battery      *Battery
	NFCIds       [8][7]byte
}

const (
	nfcIDCount  = 8
	nfcIDLength = 7
)

// NewBatteryGroup mirrors the reference implementation's placeholder NFC
// IDs: the first pack reads as tag [1..7], the rest as all-zero (no tag
// present).
func NewBatteryGroup(battery *Battery, packCount byte) *BatteryGroup {
	bg := &BatteryGroup{BatteryCount: packCount, Battery: battery}
	bg.NFCIds[0] = [7]byte{1, 2, 3, 4, 5, 6, 7}
	return bg
}

func (bg *BatteryGroup) Serialize() []byte {
	buf := newBuffer(16 + nfcIDCount*nfcIDLength)
	buf.byte(bg.GroupIndex)
	buf.byte(bg.BatteryCount)
	buf.b = append(buf.b, bg.Battery.Serialize()...)
	for _, id := range bg.NFCIds {
		buf.b = append(buf.b, id[:]...)
	}
	return buf.bytes()
}

// BatteryGroupNotify wraps a BatteryGroup with the port it belongs to,
// matching the BATTERY_GROUP_NOT message payload.
type BatteryGroupNotify struct {
	ChargerPortNumber byte
	Group             *BatteryGroup
}

func (n *BatteryGroupNotify) Serialize() []byte {
	buf := newBuffer(1)
	buf.byte(n.ChargerPortNumber)
	buf.b = append(buf.b, n.Group.Serialize()...)
	return buf.bytes()
}
