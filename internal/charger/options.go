package charger

import "github.com/fhriley/bump-bridge/internal/bitops"

// OptionsSize is the byte length of the Options image, as read/written
// whole by the "PrsI"/"WrtC" serial commands.
const OptionsSize = 192

// optionsFlags128Offset and optionsFlags170Offset locate the two 16-bit
// flag words that carry the bulk of the Options image's boolean
// preferences; optionsChecksumOffset locates the trailing checksum.
const (
	optionsFlags128Offset = 128
	optionsFlags170Offset = 170
	optionsChecksumOffset = 190
)

// Options is a structured view over the charger's 192-byte configuration
// image: display preferences, regen/supply limits, and the two greeting
// lines shown on the charger's screen.
type Options struct {
	data [OptionsSize]byte
}

// NewOptions wraps a 192-byte image. The image is copied.
func NewOptions(data []byte) *Options {
	o := &Options{}
	copy(o.data[:], data)
	return o
}

// RawBytes recomputes the trailing checksum and returns a copy of the
// full image, ready to write back to the charger.
func (o *Options) RawBytes() []byte {
	o.setChecksum(o.CalcChecksum())
	out := make([]byte, OptionsSize)
	copy(out, o.data[:])
	return out
}

// CalcChecksum is the sum (mod 2^16) of the big-endian 16-bit words in
// [128, 186).
func (o *Options) CalcChecksum() uint16 {
	return bitops.SumChecksum(o.data[128:186])
}

func (o *Options) Checksum() uint16 {
	return uint16(o.data[optionsChecksumOffset])<<8 | uint16(o.data[optionsChecksumOffset+1])
}

func (o *Options) setChecksum(val uint16) {
	o.data[optionsChecksumOffset] = byte(val >> 8)
	o.data[optionsChecksumOffset+1] = byte(val & 0xff)
}

func (o *Options) flags128() uint16 {
	return uint16(o.data[optionsFlags128Offset])<<8 | uint16(o.data[optionsFlags128Offset+1])
}

func (o *Options) setFlags128(val uint16) {
	o.data[optionsFlags128Offset] = byte(val >> 8)
	o.data[optionsFlags128Offset+1] = byte(val & 0xff)
}

func (o *Options) flags170() uint16 {
	return uint16(o.data[optionsFlags170Offset])<<8 | uint16(o.data[optionsFlags170Offset+1])
}

func (o *Options) setFlags170(val uint16) {
	o.data[optionsFlags170Offset] = byte(val >> 8)
	o.data[optionsFlags170Offset+1] = byte(val & 0xff)
}

func (o *Options) GreetingLine1() string { return bitops.StringFromSwappedASCII(o.data[:], 132, 144) }
func (o *Options) GreetingLine2() string { return bitops.StringFromSwappedASCII(o.data[:], 148, 156) }

func (o *Options) IsEuropeanDecimal() bool   { return o.flags128()&(1<<0) != 0 }
func (o *Options) IsButtonClickEnabled() bool { return o.flags128()&(1<<1) != 0 }
func (o *Options) IsSaveChangesEnabled() bool { return o.flags128()&(1<<2) != 0 }
func (o *Options) SpeakerVolume() int         { return int(o.flags128()&(0x7<<4)) >> 4 }
func (o *Options) CellsScrollSeconds() int    { return int(o.flags128()&(0x7<<7)) >> 7 }

func (o *Options) IsQuickStartEnabled() bool { return o.flags128()&(1<<10) != 0 }
func (o *Options) SetIsQuickStartEnabled(v bool) {
	o.setFlags128(bitops.SetBit(o.flags128(), 10, v))
}

func (o *Options) RegenChargeVoltsInToPb() float64 {
	return (float64(o.data[130]) + 100) / 10.0
}
func (o *Options) RegenAmpsInToPb() float64 { return float64(o.data[131]) / 2.0 }

func (o *Options) SupplyCutoffVolts() float64 { return (float64(o.data[168]) + 100) / 10.0 }
func (o *Options) SupplyAmpsLimit() float64   { return float64(o.data[169]) / 2.0 }

func (o *Options) IsCells3DecimalsEnabled() bool { return o.flags170()&(1<<0) != 0 }

func (o *Options) IsQuietCharging() bool { return o.flags170()&(1<<1) != 0 }
func (o *Options) SetIsQuietCharging(v bool) {
	o.setFlags170(bitops.SetBit(o.flags170(), 1, v))
}

func (o *Options) IsBatteryEnabled() bool  { return o.flags170()&(1<<4) != 0 }
func (o *Options) IsWarn50DodEnabled() bool { return o.flags170()&(1<<6) != 0 }
func (o *Options) IsRegenEnabled() bool     { return o.flags170()&(1<<7) != 0 }

func (o *Options) IsChooseSourceEnabled() bool { return o.flags170()&(1<<8) != 0 }
func (o *Options) SetIsChooseSourceEnabled(v bool) {
	o.setFlags170(bitops.SetBit(o.flags170(), 8, v))
}

func (o *Options) IsSuppressUseBananasEnabled() bool { return o.flags170()&(1<<9) != 0 }
func (o *Options) SetIsSuppressUseBananasEnabled(v bool) {
	o.setFlags170(bitops.SetBit(o.flags170(), 9, v))
}

func (o *Options) IsXhNodeWiring() bool { return o.flags170()&(1<<10) != 0 }
func (o *Options) SetIsXhNodeWiring(v bool) {
	o.setFlags170(bitops.SetBit(o.flags170(), 10, v))
}

func (o *Options) IsNetworkDisabled() bool { return o.flags170()&(1<<11) != 0 }

func (o *Options) ChargeDoneBeeps() int { return int(o.data[173]) }

func (o *Options) BatteryCutoffVolts() float64 { return (float64(o.data[174]) + 100) / 10.0 }
func (o *Options) SetBatteryCutoffVolts(v float64) {
	o.data[174] = byte(v*10 - 100)
}

func (o *Options) BatteryAmpsLimit() float64 { return float64(o.data[175]) / 2.0 }
func (o *Options) SetBatteryAmpsLimit(v float64) {
	o.data[175] = byte(v * 2)
}

func (o *Options) BatteryType() byte { return o.data[177] }
