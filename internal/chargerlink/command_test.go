package chargerlink

import (
	"bytes"
	"testing"

	"github.com/fhriley/bump-bridge/internal/bitops"
)

func TestBuildCommandPadsWithZeros(t *testing.T) {
	got := buildCommand("Ram\x00", 8)
	want := []byte{'R', 'a', 'm', 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("buildCommand = %v, want %v", got, want)
	}
}

func TestBuildCommandNoPaddingNeeded(t *testing.T) {
	got := buildCommand("Prst", 0)
	if !bytes.Equal(got, []byte("Prst")) {
		t.Fatalf("buildCommand = %q, want %q", got, "Prst")
	}
}

func TestNumParallelToChar(t *testing.T) {
	cases := map[int]byte{1: 'l', 2: 'm', 3: 'n'}
	for n, want := range cases {
		if got := numParallelToChar(n); got != want {
			t.Errorf("numParallelToChar(%d) = %c, want %c", n, got, want)
		}
	}
}

func TestPrestartOffset(t *testing.T) {
	cases := map[int]int{0: 0, 4: 408, 5: 512, 9: 920, 10: 1024}
	for presetNum, want := range cases {
		if got := prestartOffset(presetNum); got != want {
			t.Errorf("prestartOffset(%d) = %d, want %d", presetNum, got, want)
		}
	}
}

func TestVerifyPresetChecksumsAcceptsValidImage(t *testing.T) {
	data := make([]byte, 7680)
	for b := 0; b < 15; b++ {
		start := b * 512
		end := start + 510
		for i := start; i < end; i++ {
			data[i] = byte(i)
		}
		cksum := bitops.RotatingChecksum(data[start:end], 0xc8)
		data[end] = byte(cksum >> 8)
		data[end+1] = byte(cksum & 0xff)
	}
	if err := verifyPresetChecksums(data); err != nil {
		t.Fatalf("verifyPresetChecksums rejected a valid image: %v", err)
	}
}

func TestVerifyPresetChecksumsRejectsCorruption(t *testing.T) {
	data := make([]byte, 7680)
	for b := 0; b < 15; b++ {
		start := b * 512
		end := start + 510
		cksum := bitops.RotatingChecksum(data[start:end], 0xc8)
		data[end] = byte(cksum >> 8)
		data[end+1] = byte(cksum & 0xff)
	}
	data[100] ^= 0xff
	if err := verifyPresetChecksums(data); err == nil {
		t.Fatal("expected a checksum error for a corrupted block")
	}
}

func TestVerifyCmdAndVerifyCmdWithValues(t *testing.T) {
	cmd := buildCommand("ErsP", 0)
	resp := append(append([]byte{}, cmd...), 0x22, 0x1b)
	if err := verifyCmd(cmd, resp); err != nil {
		t.Fatalf("verifyCmd rejected a matching echo: %v", err)
	}
	if err := verifyCmdWithValues(cmd, resp, []byte{0x22, 0x1b}); err != nil {
		t.Fatalf("verifyCmdWithValues rejected a matching response: %v", err)
	}
	if err := verifyCmdWithValues(cmd, resp, []byte{0x00, 0x00}); err == nil {
		t.Fatal("expected a verify error for mismatched trailing bytes")
	}
}

func TestRetryGivesUpAfterExhaustingAttempts(t *testing.T) {
	attempts := 0
	err := retry(func() error {
		attempts++
		return errAlways
	}, 2)
	if err != errAlways {
		t.Fatalf("retry returned %v, want errAlways", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetrySucceedsWithoutExhaustingAttempts(t *testing.T) {
	attempts := 0
	err := retry(func() error {
		attempts++
		if attempts < 2 {
			return errAlways
		}
		return nil
	}, 5)
	if err != nil {
		t.Fatalf("retry returned %v, want nil", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

type sentinelError struct{}

func (sentinelError) Error() string { return "sentinel" }

var errAlways error = sentinelError{}
