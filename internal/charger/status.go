package charger

import "encoding/binary"

// StatusSize is the byte length of the status image returned by "Ram\0".
const StatusSize = 151

func toVolts(val uint16) float64 { return (float64(val) * 46.96) / 4095 }

var startModeNames = map[byte]string{
	0: "Charge Only",
	1: "Discharge Only",
	2: "Monitor",
	3: "Cycle",
}

// Status is a read-only structured view over the charger's status image,
// refreshed on every "Ram\0" poll.
type Status struct {
	data [StatusSize]byte
}

// NewStatus wraps a status image. The image is copied.
func NewStatus(data []byte) *Status {
	s := &Status{}
	copy(s.data[:], data)
	return s
}

func (s *Status) u16(off int) uint16 { return binary.BigEndian.Uint16(s.data[off : off+2]) }
func (s *Status) i16(off int) int16  { return int16(s.u16(off)) }
func (s *Status) u32(off int) uint32 { return binary.BigEndian.Uint32(s.data[off : off+4]) }

func (s *Status) FirmwareVersion() uint16 { return s.u16(0) }

// BAvgAdc returns the eight raw per-cell ADC samples.
func (s *Status) BAvgAdc() [8]uint16 {
	var out [8]uint16
	for i := 0; i < 8; i++ {
		out[i] = s.u16(2 + i*2)
	}
	return out
}

// BVolts converts BAvgAdc to per-cell volts (divisor 65536, not 4095).
func (s *Status) BVolts() [8]float64 {
	adc := s.BAvgAdc()
	var out [8]float64
	for i, v := range adc {
		out[i] = (float64(v) * 5.12) / 65536
	}
	return out
}

func (s *Status) ChargeSet() uint16 { return s.u16(20) }

func (s *Status) LSupplyVolts() float64 { return toVolts(s.u16(22)) / 16 }
func (s *Status) SupplyVolts() float64  { return toVolts(s.u16(24)) }

func (s *Status) CPUTemp() float64 {
	val := float64(s.u16(26))
	return (((2.5 * val) / 4095.0) - 0.986) / 0.00355
}

func (s *Status) AvgAmps() float64 { return float64(s.i16(42)) / 600.0 }

func (s *Status) StatusFlags() uint16 { return s.u16(44) }

func (s *Status) SafetyCharge() bool              { return s.StatusFlags()&(1<<0) != 0 }
func (s *Status) GenerateFuel() bool               { return s.StatusFlags()&(1<<5) != 0 }
func (s *Status) IsChargeDischargeComplete() bool  { return s.StatusFlags()&(1<<8) != 0 }
func (s *Status) IsReduceAmps() bool               { return s.StatusFlags()&(1<<11) != 0 }
func (s *Status) ShowVr() bool                     { return s.StatusFlags()&(1<<12) != 0 }
func (s *Status) NodeCurrent() bool                { return s.StatusFlags()&(1<<14) != 0 }
func (s *Status) ColdWeather() bool                { return s.StatusFlags()&(1<<15) != 0 }

func (s *Status) RxStatusFlags() uint16 { return s.u16(46) }

func (s *Status) ShuntSwitch() bool    { return s.RxStatusFlags()&(1<<0) != 0 }
func (s *Status) DschEnable() bool     { return s.RxStatusFlags()&(1<<1) != 0 }
func (s *Status) CdPreComplete() bool  { return s.RxStatusFlags()&(1<<2) != 0 }
func (s *Status) RegenEnable() bool    { return s.RxStatusFlags()&(1<<4) != 0 }
func (s *Status) FastCellAvg() bool    { return s.RxStatusFlags()&(1<<5) != 0 }
func (s *Status) ChgEnable() bool      { return s.RxStatusFlags()&(1<<6) != 0 }
func (s *Status) BpEnable() bool       { return s.RxStatusFlags()&(1<<7) != 0 }
func (s *Status) UseNodes() bool       { return s.RxStatusFlags()&(1<<8) != 0 }
func (s *Status) UseFuel() bool        { return s.RxStatusFlags()&(1<<9) != 0 }
func (s *Status) AmpsLowRange() bool   { return s.RxStatusFlags()&(1<<10) != 0 }
func (s *Status) AmpsDschRange() bool  { return s.RxStatusFlags()&(1<<11) != 0 }

func (s *Status) Debug1() int16 { return s.i16(48) }

func (s *Status) flags50() uint16          { return s.u16(50) }
func (s *Status) HighTemp() bool           { return s.flags50()&(1<<2) != 0 }
func (s *Status) CellCountVerified() bool  { return s.flags50()&(1<<12) != 0 }

// CellVr returns the per-cell voltage-regulation ADC reading in
// millivolts-equivalent units.
func (s *Status) CellVr() [8]float64 {
	var out [8]float64
	for i := 0; i < 8; i++ {
		val := float64(s.u16(52 + i*2))
		out[i] = (((val * 5.12) / 4095) / 8) * 1000
	}
	return out
}

func (s *Status) VrAmps() float64 { return float64(s.u16(68)) / 600.0 }

func (s *Status) VrOffset() float64 {
	return (((float64(s.u16(114)) * 5.12) / 4095) / 8) * 1000
}

func (s *Status) Ch1Cells() int { return int(s.data[132]) }

// Mohm estimates per-cell internal resistance in milliohms from the
// voltage-regulation channel.
func (s *Status) Mohm() [8]float64 {
	var vals [8]float64
	vrAmps := s.VrAmps()
	if vrAmps <= 0 {
		return vals
	}
	cellVr := s.CellVr()
	offset := s.VrOffset()
	ch1 := s.Ch1Cells()
	vals[0] = (cellVr[0] - offset) / vrAmps
	for i := 1; i < len(vals); i++ {
		if ch1 == i {
			vals[i] = (cellVr[i] / vrAmps) - ((cellVr[i] / vrAmps) / 8.0)
		} else {
			vals[i] = cellVr[i] / vrAmps
		}
	}
	return vals
}

func (s *Status) flags76() uint16 { return s.u16(76) }

func (s *Status) CheckingPeak() bool        { return s.flags76()&(1<<0) != 0 }
func (s *Status) Battery24vVisible() bool   { return s.flags76()&(1<<3) != 0 }
func (s *Status) CvStarted() bool           { return s.flags76()&(1<<4) != 0 }
func (s *Status) PresetGood() bool          { return s.flags76()&(1<<5) != 0 }
func (s *Status) PresetFlashChanged() bool  { return s.flags76()&(1<<6) != 0 }
func (s *Status) RegenPossible() bool       { return s.flags76()&(1<<7) != 0 }
func (s *Status) RegenDschFailed() bool     { return s.flags76()&(1<<8) != 0 }
func (s *Status) OptionsFlashChanged() bool { return s.flags76()&(1<<10) != 0 }

func (s *Status) SupplyAmps() float64 { return float64(s.i16(80)) / 150.0 }

func (s *Status) BattPosAvgVolts() float64 {
	return ((float64(s.u16(82)) * 46.96) / 4095) / 16
}

// Mode is the charger's current operating mode byte; see fsm.EventFromMode
// for its mapping to state-machine events.
func (s *Status) Mode() byte     { return s.data[133] }
func (s *Status) SetMode(v byte) { s.data[133] = v }

// ModeString renders Mode as the charger's own human-readable description.
func (s *Status) ModeString() string {
	switch s.Mode() {
	case 0:
		return "idle"
	case 1:
		return "detecting cells"
	case 2:
		return "ch1 startup"
	case 3:
		return "ch1/2 startup"
	case 6:
		switch {
		case s.IsChargeDischargeComplete():
			return "charge complete"
		case s.IsReduceAmps():
			return "low voltage restore"
		default:
			return "charging"
		}
	case 7:
		if s.IsChargeDischargeComplete() {
			return "charge complete"
		}
		return "trickle charging"
	case 8:
		switch {
		case s.IsChargeDischargeComplete():
			return "discharge complete"
		case !s.RegenEnable():
			return "internal discharge"
		default:
			return "regenerative discharge"
		}
	case 9:
		return "monitoring cells"
	case 10:
		return "wait for button press"
	case 30:
		return "slave mode"
	case 0x63:
		return "safety code"
	default:
		return "unknown"
	}
}

func (s *Status) DischargeSet() uint16 { return s.u16(92) }

// SetAmps is the currently commanded current, drawn from ChargeSet unless
// the mode is discharging.
func (s *Status) SetAmps() float64 {
	if s.Mode() == 8 {
		return float64(s.DischargeSet()) / 600.0
	}
	return float64(s.ChargeSet()) / 600.0
}

func (s *Status) MaxCellVolts() float64 {
	return ((float64(s.u16(74)) * 5.12) / 4095) / 16
}

func (s *Status) AvgCellVolts() float64 {
	if s.UseNodes() && s.Ch1Cells() > 0 {
		bv := s.BVolts()
		var sum float64
		for _, v := range bv {
			sum += v
		}
		return sum / float64(s.Ch1Cells())
	}
	return s.MaxCellVolts()
}

func (s *Status) AvgIr() float64 {
	if s.UseNodes() && s.ShowVr() && s.Ch1Cells() > 0 {
		m := s.Mohm()
		var sum float64
		for _, v := range m {
			sum += v
		}
		return sum / float64(s.Ch1Cells())
	}
	return 0
}

func (s *Status) SlowAvgAmps() float64 { return float64(s.u16(116)) / 600 }

// BypassPwm returns the raw per-cell bypass PWM duty bytes.
func (s *Status) BypassPwm() [8]byte {
	var out [8]byte
	copy(out[:], s.data[124:132])
	return out
}

func (s *Status) BypassPercent() [8]float64 {
	pwm := s.BypassPwm()
	var out [8]float64
	for i, v := range pwm {
		out[i] = float64(v) * 3.09375
	}
	return out
}

func (s *Status) BypassCurrent() [8]float64 {
	pwm := s.BypassPwm()
	var out [8]float64
	for i, v := range pwm {
		out[i] = float64(v) * 31.25
	}
	return out
}

func (s *Status) ErrorCode() byte     { return s.data[134] }
func (s *Status) SetErrorCode(v byte) { s.data[134] = v }

func (s *Status) Chem8() byte { return s.data[135] }
func (s *Status) Packs() byte { return s.data[136] }

// ActivePreset is clamped to [0, 74]; out-of-range raw values read back as 0.
func (s *Status) ActivePreset() int {
	num := int(s.data[137])
	if num > 74 {
		return 0
	}
	return num
}

func (s *Status) ScreenNumber() byte { return s.data[139] }

func (s *Status) CheckPack1Volts() float64 {
	return (float64(int8(s.data[140])) * 46.96) / 4095
}

func (s *Status) FuelOffset() int {
	return int((float64(s.data[141])*5.12)/4.095 + 0.5)
}

func (s *Status) CycleCnt() byte        { return s.data[142] }
func (s *Status) LowerPwmReason() byte  { return s.data[143] }
func (s *Status) StartMode() byte       { return s.data[144] }

func (s *Status) StartModeString() string {
	if name, ok := startModeNames[s.StartMode()]; ok {
		return name
	}
	return "Unknown"
}

func (s *Status) RFailReason() byte { return s.data[145] }

// ChargeSeconds handles the firmware's wraparound encoding, switching from
// a raw seconds counter to a separate minutes counter above 0xfd1f.
func (s *Status) ChargeSeconds() int {
	secs := int(s.u16(28))
	mins := int(s.u16(78))
	if secs >= 0xfd1f {
		return (secs - 64800) + (mins * 60)
	}
	return secs
}

// MahIn is charge mAh delivered, accounting for the per-pack scaling and
// the firmware's overflow-to-zero guard on the raw 32-bit counter.
func (s *Status) MahIn() float64 {
	val := s.u32(34)
	if val > 0x7fffffff {
		val = 0
	}
	out := float64(val)
	if s.Packs() > 1 {
		out /= float64(s.Packs())
	}
	return out / 2160.0
}

func (s *Status) MahOut() float64 {
	val := s.u32(84)
	if val > 0x7fffffff {
		val = 0
	}
	out := float64(val)
	if s.Packs() > 1 {
		out /= float64(s.Packs())
	}
	return out / 2160.0
}

func (s *Status) FuelLevel() int {
	val := int(s.i16(38))
	if val < 0 {
		return 0
	}
	if val > 1000 {
		return 1000
	}
	return val
}

// NoDataMax is a mode-dependent tolerance for consecutive missed status
// reads: 30 for modes 6..11, 3 otherwise. The session engine does not
// consult it; it drops the link after five consecutive misses.
func (s *Status) NoDataMax() int {
	mode := s.Mode()
	if mode >= 6 && mode <= 11 {
		return 30
	}
	return 3
}
