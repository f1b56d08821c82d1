package charger

import (
	"fmt"

	"github.com/fhriley/bump-bridge/internal/bitops"
)

// PresetSize is the byte length of a single preset image.
const PresetSize = 102

// NumPresets is the number of preset slots the charger holds.
const NumPresets = 75

const presetChecksumOffset = 100

// Chemistry is the charger's fixed chemistry enumeration, indexed the same
// way on the wire as in the charger's own firmware.
var Chemistry = []string{
	"Empty", "LiPo", "Lith Ion", "A123", "LiMn", "LiCo", "NiCd", "NiMH",
	"Pb", "LiFe (Chinese A123)", "Primary (Dsch Only)", "Supply (Low Voltage)",
	"NiZn", "LiHV",
}

// Preset is a structured view over one 102-byte charger preset image.
type Preset struct {
	data       [PresetSize]byte
	presetNum  int
}

// NewPreset wraps a 102-byte image for the given preset slot. The image is
// copied.
func NewPreset(data []byte, presetNum int) *Preset {
	p := &Preset{presetNum: presetNum}
	copy(p.data[:], data)
	return p
}

// PresetNum is the slot index (0..74) this preset occupies.
func (p *Preset) PresetNum() int { return p.presetNum }

// RawBytes recomputes the trailing checksum and returns a copy of the
// image.
func (p *Preset) RawBytes() []byte {
	p.setChecksum(p.CalcChecksum())
	out := make([]byte, PresetSize)
	copy(out, p.data[:])
	return out
}

// CalcChecksum is the rotating checksum (seed 0x2D) over bytes [0,100).
func (p *Preset) CalcChecksum() uint16 {
	return bitops.RotatingChecksum(p.data[:presetChecksumOffset], 0x2d)
}

func (p *Preset) Checksum() uint16 {
	return uint16(p.data[presetChecksumOffset])<<8 | uint16(p.data[presetChecksumOffset+1])
}

func (p *Preset) setChecksum(val uint16) {
	p.data[presetChecksumOffset] = byte(val >> 8)
	p.data[presetChecksumOffset+1] = byte(val & 0xff)
}

// IsEmpty reports whether this slot holds no configured preset: the sum of
// all bytes but the trailing checksum, minus byte 94, is zero.
func (p *Preset) IsEmpty() bool {
	var sum int
	for i := 0; i < presetChecksumOffset; i++ {
		sum += int(p.data[i])
	}
	return sum-int(p.data[94]) == 0
}

func (p *Preset) IsRequireBalanceDoneEnabled() bool {
	return bitops.BitsFromWord(p.data[:], 0, 0, 0) != 0
}
func (p *Preset) SetIsRequireBalanceDoneEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 0, 0, 0, boolInt(v))
}

func (p *Preset) IsRequireAllChargeVoltsEnabled() bool {
	return bitops.BitsFromWord(p.data[:], 0, 11, 11) != 0
}
func (p *Preset) SetIsRequireAllChargeVoltsEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 0, 11, 11, boolInt(v))
}

func (p *Preset) IsTrickleOnly() bool { return bitops.BitsFromWord(p.data[:], 0, 5, 5) != 0 }
func (p *Preset) SetIsTrickleOnly(v bool) {
	bitops.SetBitsInWord(p.data[:], 0, 5, 5, boolInt(v))
}

func (p *Preset) IsUseFuelEnabled() bool { return bitops.BitsFromWord(p.data[:], 0, 10, 10) != 0 }
func (p *Preset) SetIsUseFuelEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 0, 10, 10, boolInt(v))
}

func (p *Preset) AutoChargeRate() int { return bitops.BitsFromWord(p.data[:], 0, 12, 15) }
func (p *Preset) SetAutoChargeRate(v int) {
	bitops.SetBitsInWord(p.data[:], 0, 12, 15, v)
}

func (p *Preset) MaxAutoChargeRate() int { return bitops.BitsFromWord(p.data[:], 2, 10, 13) }
func (p *Preset) SetMaxAutoChargeRate(v int) {
	bitops.SetBitsInWord(p.data[:], 2, 10, 13, v)
}

// Name is the 28-character ASCII preset name.
func (p *Preset) Name() string { return bitops.StringFromSwappedASCII(p.data[:], 4, 30) }

// SetName pads value to 28 characters and writes it byte-swapped, as the
// firmware expects.
func (p *Preset) SetName(value string) error {
	if len(value) > 28 {
		return fmt.Errorf("charger: preset name %q longer than 28 characters", value)
	}
	padded := value
	for len(padded) < 28 {
		padded += " "
	}
	for i := 4; i < 32; i += 2 {
		p.data[i+1] = padded[i-4]
		p.data[i] = padded[i-3]
	}
	return nil
}

// ChargeMamps is the charge current in milliamps.
func (p *Preset) ChargeMamps() int {
	val := bitops.BitsFromWord(p.data[:], 32, 4, 14)
	if val < 200 {
		return val * 5
	}
	return 1000 + (val-200)*50
}

// SetChargeMamps quantizes value to the nearest representable step and
// encodes it. Values are clamped at 40000 mA, matching the firmware limit.
func (p *Preset) SetChargeMamps(value int) {
	setVal := value
	if setVal > 40000 {
		setVal = 40000
	}
	if setVal < 1000 {
		setVal = ((setVal + 2) / 5) * 5
		setVal /= 5
	} else {
		setVal = ((setVal + 25) / 50) * 50
		setVal = ((setVal - 1000) / 50) + 200
	}
	bitops.SetBitsInWord(p.data[:], 32, 4, 14, setVal)
}

func (p *Preset) ChargeVolts() float64 {
	return float64(bitops.BitsFromWord(p.data[:], 34, 0, 9)) / 200.0
}
func (p *Preset) SetChargeVolts(value float64) {
	bitops.SetBitsInWord(p.data[:], 34, 0, 9, roundInt(value*200))
}

func (p *Preset) DischargeMode() int { return bitops.BitsFromWord(p.data[:], 84, 9, 11) }
func (p *Preset) SetDischargeMode(v int) {
	bitops.SetBitsInWord(p.data[:], 84, 9, 11, v)
}

// DischargeMamps is the discharge current in milliamps.
func (p *Preset) DischargeMamps() int {
	val := bitops.BitsFromWord(p.data[:], 48, 0, 8)
	if val <= 100 {
		return val * 10
	}
	return 1000 + (val-100)*250
}

func (p *Preset) SetDischargeMamps(value int) {
	var v int
	if value <= 1000 {
		v = ((value + 5) / 10) * 10
		v /= 10
	} else {
		v = ((value + 125) / 250) * 250
		v = ((v - 1000) / 250) + 100
	}
	bitops.SetBitsInWord(p.data[:], 48, 0, 8, v)
}

func (p *Preset) DischargeVolts() float64 {
	return float64(bitops.BitsFromWord(p.data[:], 98, 6, 14)) / 100.0
}
func (p *Preset) SetDischargeVolts(value float64) {
	bitops.SetBitsInWord(p.data[:], 98, 6, 14, roundInt(value*100))
}

func (p *Preset) IsStoreChargeDischarge() bool {
	return bitops.BitsFromWord(p.data[:], 46, 12, 12) != 0
}
func (p *Preset) SetIsStoreChargeDischarge(v bool) {
	bitops.SetBitsInWord(p.data[:], 46, 12, 12, boolInt(v))
}

func (p *Preset) IsEndCyclingWithDischargeEnabled() bool {
	return bitops.BitsFromWord(p.data[:], 46, 14, 14) != 0
}
func (p *Preset) SetIsEndCyclingWithDischargeEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 46, 14, 14, boolInt(v))
}

func (p *Preset) CoolDownTime() int { return bitops.BitsFromWord(p.data[:], 48, 10, 13) }
func (p *Preset) SetCoolDownTime(v int) {
	bitops.SetBitsInWord(p.data[:], 48, 10, 13, v)
}

func (p *Preset) CvTermination() int { return bitops.BitsFromWord(p.data[:], 48, 14, 15) }
func (p *Preset) SetCvTermination(v int) {
	bitops.SetBitsInWord(p.data[:], 48, 14, 15, v)
}

func (p *Preset) IsBalanceEntireChargeEnabled() bool {
	return bitops.BitsFromWord(p.data[:], 54, 15, 15) != 0
}
func (p *Preset) SetIsBalanceEntireChargeEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 54, 15, 15, boolInt(v))
}

func (p *Preset) BeepAtPercent() int {
	return bitops.BitsFromWord(p.data[:], 58, 11, 15)*2 + 38
}
func (p *Preset) SetBeepAtPercent(v int) {
	bitops.SetBitsInWord(p.data[:], 58, 11, 15, (v-38)/2)
}

func (p *Preset) IsBalanceDischargeEnabled() bool {
	return bitops.BitsFromWord(p.data[:], 96, 8, 8) != 0
}
func (p *Preset) SetIsBalanceDischargeEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 96, 8, 8, boolInt(v))
}

func (p *Preset) ChemistryIdx() int { return bitops.BitsFromWord(p.data[:], 58, 6, 10) }
func (p *Preset) SetChemistryIdx(idx int) {
	bitops.SetBitsInWord(p.data[:], 58, 6, 10, idx)
}

// ChemistryName returns the preset's chemistry as a name from Chemistry.
func (p *Preset) ChemistryName() (string, error) {
	idx := p.ChemistryIdx()
	if idx >= len(Chemistry) {
		return "", fmt.Errorf("charger: unknown chemistry index %d", idx)
	}
	return Chemistry[idx], nil
}

// SetChemistryByName looks up name in Chemistry and sets the index.
func (p *Preset) SetChemistryByName(name string) error {
	for i, c := range Chemistry {
		if c == name {
			p.SetChemistryIdx(i)
			return nil
		}
	}
	return fmt.Errorf("charger: invalid chemistry name %q", name)
}

func (p *Preset) PowerMode() int { return bitops.BitsFromWord(p.data[:], 32, 0, 3) }
func (p *Preset) SetPowerMode(v int) {
	bitops.SetBitsInWord(p.data[:], 32, 0, 3, v)
}

func (p *Preset) IsRequiresNodesEnabled() bool {
	return bitops.BitsFromWord(p.data[:], 86, 13, 13) != 0
}
func (p *Preset) SetIsRequiresNodesEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 86, 13, 13, boolInt(v))
}

// NumCyclesInfinite is the sentinel value NumCycles returns for the
// firmware's "infinite" setting; it must not be truncated to a smaller
// integer type.
const NumCyclesInfinite = 1 << 32

func (p *Preset) NumCycles() (uint64, error) {
	val := bitops.BitsFromWord(p.data[:], 88, 10, 12)
	switch {
	case val == 4:
		return 5, nil
	case val == 5:
		return 10, nil
	case val == 6:
		return 20, nil
	case val == 7:
		return NumCyclesInfinite, nil
	case val > 7:
		return 0, fmt.Errorf("charger: unknown num_cycles raw value %d", val)
	default:
		return uint64(val), nil
	}
}

func (p *Preset) SetNumCycles(val uint64) error {
	var raw int
	switch val {
	case 0, 1, 2, 3:
		raw = int(val)
	case 5:
		raw = 4
	case 10:
		raw = 5
	case 20:
		raw = 6
	case NumCyclesInfinite:
		raw = 7
	default:
		return fmt.Errorf("charger: unsupported num_cycles value %d", val)
	}
	bitops.SetBitsInWord(p.data[:], 88, 10, 12, raw)
	return nil
}

func (p *Preset) TrickleCurrentMamps() int {
	val := bitops.BitsFromWord(p.data[:], 56, 9, 15)
	switch val {
	case 125:
		return 1000
	case 126:
		return 2000
	case 127:
		return 3000
	default:
		return val * 5
	}
}

func (p *Preset) SetTrickleCurrentMamps(val int) error {
	var raw int
	switch {
	case val == 1000:
		raw = 125
	case val == 2000:
		raw = 126
	case val == 3000:
		raw = 127
	case val <= 620:
		raw = val / 5
	default:
		return fmt.Errorf("charger: invalid trickle_current_mamps value %d", val)
	}
	bitops.SetBitsInWord(p.data[:], 56, 9, 15, raw)
	return nil
}

func (p *Preset) IsVisible() bool { return bitops.BitsFromWord(p.data[:], 32, 15, 15) != 0 }
func (p *Preset) SetIsVisible(v bool) {
	bitops.SetBitsInWord(p.data[:], 32, 15, 15, boolInt(v))
}

func (p *Preset) IsHideEmptyEnabled() bool { return bitops.BitsFromWord(p.data[:], 94, 15, 15) != 0 }
func (p *Preset) SetIsHideEmptyEnabled(v bool) {
	bitops.SetBitsInWord(p.data[:], 94, 15, 15, boolInt(v))
}

func (p *Preset) IsLocked() bool { return bitops.BitsFromWord(p.data[:], 98, 15, 15) != 0 }
func (p *Preset) SetIsLocked(v bool) {
	bitops.SetBitsInWord(p.data[:], 98, 15, 15, boolInt(v))
}

// NumParallel is the number of packs wired in parallel for this preset.
func (p *Preset) NumParallel() int { return bitops.BitsFromWord(p.data[:], 52, 8, 10) + 1 }

func (p *Preset) SetNumParallel(value int) error {
	if value <= 0 {
		return fmt.Errorf("charger: num_parallel must be >= 1, got %d", value)
	}
	bitops.SetBitsInWord(p.data[:], 52, 8, 10, value-1)
	return nil
}

func (p *Preset) CvTimeout() int { return bitops.BitsFromWord(p.data[:], 92, 5, 7) }
func (p *Preset) SetCvTimeout(v int) {
	bitops.SetBitsInWord(p.data[:], 92, 5, 7, v)
}

func (p *Preset) ChargeTimeout() int { return bitops.BitsFromWord(p.data[:], 52, 13, 15) }
func (p *Preset) SetChargeTimeout(v int) {
	bitops.SetBitsInWord(p.data[:], 52, 13, 15, v)
}

func (p *Preset) DischargeTimeout() int { return bitops.BitsFromWord(p.data[:], 54, 4, 6) }
func (p *Preset) SetDischargeTimeout(v int) {
	bitops.SetBitsInWord(p.data[:], 54, 4, 6, v)
}

func (p *Preset) IsValidated() bool { return bitops.BitsFromWord(p.data[:], 36, 14, 15) != 0 }
func (p *Preset) SetIsValidated(v bool) {
	bitops.SetBitsInWord(p.data[:], 36, 14, 15, boolInt(v))
}

func (p *Preset) BalanceMode() int { return bitops.BitsFromWord(p.data[:], 82, 10, 13) }
func (p *Preset) RequireNodes() bool { return bitops.BitsFromWord(p.data[:], 86, 13, 13) != 0 }

// FuelCurve returns the 11-point fuel curve as fractional capacity values.
func (p *Preset) FuelCurve() []float64 {
	out := make([]float64, 0, 11)
	for i := 60; i < 82; i += 2 {
		word := int(p.data[i])<<8 | int(p.data[i+1])
		out = append(out, float64(word)*0.001111111)
	}
	return out
}

// SetFuelCurve writes up to 11 raw fuel-curve words.
func (p *Preset) SetFuelCurve(values []int) {
	i := 60
	for _, v := range values {
		if i >= 82 {
			break
		}
		p.data[i] = byte(v >> 8)
		p.data[i+1] = byte(v & 0xff)
		i += 2
	}
}

// MaxChargeAmps is the maximum charge current limit in amps; 0.25 and 0.5
// are represented specially below 1 A.
func (p *Preset) MaxChargeAmps() float64 {
	val := bitops.BitsFromWord(p.data[:], 34, 10, 15)
	switch val {
	case 0:
		return 0.25
	case 1:
		return 0.5
	default:
		return float64(val - 1)
	}
}

func (p *Preset) SetMaxChargeAmps(val float64) {
	var raw int
	if val < 1 {
		hundredths := val * 100
		quantized := int((hundredths+12.5)/25.0) * 25
		switch {
		case quantized <= 25:
			raw = 0
		case quantized <= 50:
			raw = 1
		default:
			raw = 2
		}
	} else {
		raw = roundInt(val) + 1
		if raw > 41 {
			raw = 41
		}
	}
	bitops.SetBitsInWord(p.data[:], 34, 10, 15, raw)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func roundInt(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}
