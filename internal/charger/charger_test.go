package charger

import "testing"

func TestOptionsChecksumMatchesTrailer(t *testing.T) {
	data := make([]byte, OptionsSize)
	for i := 128; i < 186; i++ {
		data[i] = byte(i)
	}
	o := NewOptions(data)
	want := o.CalcChecksum()
	raw := o.RawBytes()
	got := uint16(raw[190])<<8 | uint16(raw[191])
	if got != want {
		t.Fatalf("Options checksum trailer = %#x, want %#x", got, want)
	}
}

func TestPresetIsEmptyFlips(t *testing.T) {
	data := make([]byte, PresetSize)
	p := NewPreset(data, 3)
	if !p.IsEmpty() {
		t.Fatal("zeroed preset should be empty")
	}
	data2 := make([]byte, PresetSize)
	data2[40] = 1
	p2 := NewPreset(data2, 3)
	if p2.IsEmpty() {
		t.Fatal("preset with a nonzero non-name byte should not be empty")
	}
}

func TestPresetChargeMampsRoundTrip(t *testing.T) {
	values := []int{0, 5, 10, 995, 1000, 1050, 40000}
	for _, v := range values {
		p := NewPreset(make([]byte, PresetSize), 0)
		p.SetChargeMamps(v)
		if got := p.ChargeMamps(); got != v {
			t.Errorf("ChargeMamps round trip for %d: got %d", v, got)
		}
	}
}

func TestPresetDischargeMampsRoundTrip(t *testing.T) {
	values := []int{0, 10, 1000, 1250}
	for _, v := range values {
		p := NewPreset(make([]byte, PresetSize), 0)
		p.SetDischargeMamps(v)
		if got := p.DischargeMamps(); got != v {
			t.Errorf("DischargeMamps round trip for %d: got %d", v, got)
		}
	}
}

func TestPresetVoltsRoundTripWithinTolerance(t *testing.T) {
	p := NewPreset(make([]byte, PresetSize), 0)
	p.SetChargeVolts(4.2)
	if got := p.ChargeVolts(); got < 4.195 || got > 4.205 {
		t.Fatalf("ChargeVolts round trip = %v, want close to 4.2", got)
	}
}

func TestPresetNumCyclesSentinel(t *testing.T) {
	p := NewPreset(make([]byte, PresetSize), 0)
	if err := p.SetNumCycles(NumCyclesInfinite); err != nil {
		t.Fatal(err)
	}
	got, err := p.NumCycles()
	if err != nil {
		t.Fatal(err)
	}
	if got != NumCyclesInfinite {
		t.Fatalf("NumCycles = %d, want sentinel %d", got, NumCyclesInfinite)
	}
}

func TestPresetTrickleCurrentSpecialCases(t *testing.T) {
	cases := map[int]int{1000: 1000, 2000: 2000, 3000: 3000, 100: 100}
	for set, want := range cases {
		p := NewPreset(make([]byte, PresetSize), 0)
		if err := p.SetTrickleCurrentMamps(set); err != nil {
			t.Fatal(err)
		}
		if got := p.TrickleCurrentMamps(); got != want {
			t.Errorf("TrickleCurrentMamps(%d) = %d, want %d", set, got, want)
		}
	}
}

func TestPresetNameRoundTrip(t *testing.T) {
	p := NewPreset(make([]byte, PresetSize), 0)
	if err := p.SetName("LiPo 3S"); err != nil {
		t.Fatal(err)
	}
	got := p.Name()
	if len(got) != 28 {
		t.Fatalf("Name length = %d, want 28", len(got))
	}
	if got[:7] != "LiPo 3S" {
		t.Fatalf("Name = %q, want prefix %q", got, "LiPo 3S")
	}
}

func TestPresetChecksumRecomputedOnRawBytes(t *testing.T) {
	p := NewPreset(make([]byte, PresetSize), 0)
	p.SetChargeMamps(2000)
	want := p.CalcChecksum()
	raw := p.RawBytes()
	got := uint16(raw[100])<<8 | uint16(raw[101])
	if got != want {
		t.Fatalf("preset checksum trailer = %#x, want %#x", got, want)
	}
}

func TestStatusModeAndErrorCodeSettable(t *testing.T) {
	s := NewStatus(make([]byte, StatusSize))
	s.SetMode(0x63)
	s.SetErrorCode(122)
	if s.Mode() != 0x63 {
		t.Fatalf("Mode = %d, want 0x63", s.Mode())
	}
	if s.ErrorCode() != 122 {
		t.Fatalf("ErrorCode = %d, want 122", s.ErrorCode())
	}
}

func TestStatusActivePresetClampsOutOfRange(t *testing.T) {
	data := make([]byte, StatusSize)
	data[137] = 200
	s := NewStatus(data)
	if got := s.ActivePreset(); got != 0 {
		t.Fatalf("ActivePreset = %d, want 0 for out-of-range raw value", got)
	}
}
