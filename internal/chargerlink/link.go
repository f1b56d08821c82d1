// Package chargerlink drives the Powerlab charger over its RS-232
// command protocol: building the fixed-width commands the firmware
// expects, verifying the echoed response against the expected bytes,
// trailing CRC, or (for preset images) per-block checksum, and retrying
// transient failures.
package chargerlink

import (
	"fmt"
	"log"
	"time"

	"github.com/tarm/serial"

	"github.com/fhriley/bump-bridge/internal/bitops"
	"github.com/fhriley/bump-bridge/internal/charger"
	"github.com/fhriley/bump-bridge/internal/ringbuf"
)

const (
	readTimeout  = time.Second
	writeTimeout = time.Second
	portBaud     = 19200

	// portPollInterval is the Config.ReadTimeout tarm/serial is opened
	// with; the reader goroutine loops on top of it, so it bounds how
	// promptly Close can stop the loop rather than how long a caller
	// waits for a response.
	portPollInterval = 100 * time.Millisecond

	readBufferCapacity = 48 * 1024
	readChunkSize      = 240
)

// Link owns the serial connection to one charger. It holds no lock of its
// own: transactions issued from concurrent goroutines are not serialized
// by Link.
type Link struct {
	configuredPort string
	usingPort      string
	ser            *serial.Port
	buf            *ringbuf.Blocking
	stopChan       chan struct{}
	done           chan struct{}
	logger         *log.Logger
}

// New creates a Link bound to port. If port is empty, Connect auto-detects
// the charger by its USB-UART description.
func New(port string, logger *log.Logger) *Link {
	if logger == nil {
		logger = log.Default()
	}
	return &Link{configuredPort: port, logger: logger}
}

// Port returns the device path Connect last opened.
func (l *Link) Port() string { return l.usingPort }

// Connect opens the serial port at 19200 8-N-1 and probes it with a
// read-options command up to three times before giving up. It sets no
// DTR or low-latency mode itself; the port's control lines are whatever
// opening the device leaves them at. On success it
// starts the background reader and returns the charger's current
// options.
func (l *Link) Connect() (*charger.Options, error) {
	usingPort := l.configuredPort
	if usingPort == "" {
		found, err := findPortByDescription(portDescription)
		if err != nil {
			return nil, err
		}
		usingPort = found
	}

	l.logger.Printf("chargerlink: connecting port=%s", usingPort)

	cfg := &serial.Config{
		Name:        usingPort,
		Baud:        portBaud,
		ReadTimeout: portPollInterval,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	ser, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, &ConnectFailedError{Msg: fmt.Sprintf("open %s: %v", usingPort, err)}
	}

	l.ser = ser
	l.usingPort = usingPort

	var options *charger.Options
	retries := 3
	for retries > 0 {
		options, err = l.readOptionsDirect()
		if err == nil {
			break
		}
		l.logger.Printf("chargerlink: options probe failed: %v", err)
		retries--
	}
	if err != nil {
		ser.Close()
		l.ser = nil
		return nil, &ConnectFailedError{Msg: err.Error()}
	}

	l.logger.Printf("chargerlink: connected to %s", usingPort)
	l.buf = ringbuf.NewBlocking(readBufferCapacity)
	l.stopChan = make(chan struct{})
	l.done = make(chan struct{})
	go l.readLoop()

	return options, nil
}

// Close stops the reader and releases the serial port.
func (l *Link) Close() error {
	if l.stopChan != nil {
		close(l.stopChan)
		<-l.done
		l.buf.Stop()
		l.buf = nil
		l.stopChan = nil
	}
	if l.ser == nil {
		return nil
	}
	l.logger.Printf("chargerlink: closed %s", l.usingPort)
	err := l.ser.Close()
	l.ser = nil
	return err
}

func (l *Link) readLoop() {
	defer close(l.done)
	tmp := make([]byte, readChunkSize)
	for {
		select {
		case <-l.stopChan:
			return
		default:
		}
		n, err := l.ser.Read(tmp)
		if err != nil {
			continue
		}
		if n > 0 {
			l.buf.AppendWait(append([]byte(nil), tmp[:n]...))
		}
	}
}

// CommandEnter puts the charger into the idle "Enter" state.
func (l *Link) CommandEnter(numParallel int, retries int) error {
	return retry(func() error { return l.sendCmd(numParallel, 'E') }, retries)
}

// CommandMonitor starts passive voltage monitoring.
func (l *Link) CommandMonitor(numParallel int, useBananas bool, retries int) error {
	return retry(func() error { return l.sendCmd(numParallel, pickChar('M', 'm', useBananas)) }, retries)
}

// CommandCharge starts a charge operation.
func (l *Link) CommandCharge(numParallel int, useBananas bool, retries int) error {
	return retry(func() error { return l.sendCmd(numParallel, pickChar('C', 'c', useBananas)) }, retries)
}

// CommandDischarge starts a discharge operation.
func (l *Link) CommandDischarge(numParallel int, useBananas bool, retries int) error {
	return retry(func() error { return l.sendCmd(numParallel, pickChar('D', 'd', useBananas)) }, retries)
}

// CommandCycle starts a charge/discharge cycling operation.
func (l *Link) CommandCycle(numParallel int, useBananas bool, retries int) error {
	return retry(func() error { return l.sendCmd(numParallel, pickChar('Y', 'y', useBananas)) }, retries)
}

func pickChar(withBananas, withoutBananas byte, useBananas bool) byte {
	if useBananas {
		return withBananas
	}
	return withoutBananas
}

// CommandSetActivePreset makes preset index which (0-74) active.
func (l *Link) CommandSetActivePreset(which int, retries int) error {
	if which < 0 || which >= charger.NumPresets {
		return fmt.Errorf("chargerlink: invalid preset index %d", which)
	}
	return retry(func() error {
		writeCmd := buildCommand("SelP"+string(rune(which)), 0)
		calcCrc := bitops.CRC16([]byte{byte(which)}, 0x1114)
		if err := l.write(writeCmd, writeTimeout); err != nil {
			return err
		}
		resp, err := l.read(len(writeCmd)+2, readTimeout, 0)
		if err != nil {
			return err
		}
		crc := uint16(resp[len(writeCmd)])<<8 | uint16(resp[len(writeCmd)+1])
		if crc != calcCrc {
			return crcErrorf("set preset %d failed: invalid CRC %#x != %#x", which, crc, calcCrc)
		}
		return nil
	}, retries)
}

// ReadStatus reads the charger's live status block.
func (l *Link) ReadStatus(retries int) (*charger.Status, error) {
	var status *charger.Status
	err := retry(func() error {
		cmd := buildCommand("Ram\x00", 0)
		if err := l.write(cmd, writeTimeout); err != nil {
			return err
		}
		resp, err := l.read(153, readTimeout, 0)
		if err != nil {
			return err
		}
		if err := l.verifyCmdWithCrc(cmd, resp, 151, 0x926); err != nil {
			return err
		}
		status = charger.NewStatus(resp[len(cmd):151])
		return nil
	}, retries)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ReadPresets reads all 75 presets in one image transfer.
func (l *Link) ReadPresets(retries int) ([]*charger.Preset, error) {
	var presets []*charger.Preset
	err := retry(func() error {
		cmd := buildCommand("Prst", 0)
		if err := l.write(cmd, writeTimeout); err != nil {
			return err
		}
		resp, err := l.read(7686, 7*time.Second, 0)
		if err != nil {
			return err
		}
		if err := verifyCmd(cmd, resp); err != nil {
			return err
		}
		if err := l.verifyCrc(resp[4:], 7680, 0x18e4); err != nil {
			return err
		}
		if err := verifyPresetChecksums(resp[4:]); err != nil {
			return err
		}
		presets = make([]*charger.Preset, charger.NumPresets)
		for presetNum := 0; presetNum < charger.NumPresets; presetNum++ {
			offset := prestartOffset(presetNum)
			presets[presetNum] = charger.NewPreset(resp[4+offset:4+offset+charger.PresetSize], presetNum)
		}
		return nil
	}, retries)
	if err != nil {
		return nil, err
	}
	return presets, nil
}

// WritePresets erases and rewrites all 75 presets.
func (l *Link) WritePresets(presets []*charger.Preset, retries int) error {
	return retry(func() error {
		writeCmd := buildCommand("WrtP", 0)
		for i, preset := range presets {
			preset.SetIsValidated(!preset.IsEmpty())
			writeCmd = append(writeCmd, preset.RawBytes()...)
			if (i+1)%5 == 0 {
				blockNum := (i+1)/5 - 1
				start := 4 + blockNum*512
				end := start + 510
				if len(writeCmd) != end {
					return fmt.Errorf("chargerlink: preset block %d framing mismatch", blockNum)
				}
				cksum := bitops.RotatingChecksum(writeCmd[start:end], 0xc8)
				writeCmd = append(writeCmd, byte(cksum>>8), byte(cksum&0xff))
			}
		}
		if len(writeCmd) != 7684 {
			return fmt.Errorf("chargerlink: unexpected preset image length %d", len(writeCmd))
		}
		bitops.SwapBytes(writeCmd, 4)
		calcCrc := bitops.CRC16(writeCmd[4:], 0x4d1)

		cmd := buildCommand("ErsP", 0)
		if err := l.write(cmd, writeTimeout); err != nil {
			return err
		}
		resp, err := l.read(6, readTimeout, 0)
		if err != nil {
			return err
		}
		if err := verifyCmdWithValues(cmd, resp, []byte{0x22, 0x1b}); err != nil {
			return err
		}

		time.Sleep(50 * time.Millisecond)
		if err := l.write(writeCmd, 7*time.Second); err != nil {
			return err
		}
		time.Sleep(5250 * time.Millisecond)
		resp, err = l.read(7686, 7*time.Second, 0)
		if err != nil {
			return err
		}
		if len(resp) != 7686 {
			return verifyErrorf("did not get expected response length: %d != %d", len(resp), 7686)
		}
		crc := uint16(resp[7684])<<8 | uint16(resp[7685])
		if crc != calcCrc {
			return crcErrorf("write presets failed: invalid CRC %#x != %#x", crc, calcCrc)
		}
		return nil
	}, retries)
}

// ReadOptions reads the charger's configuration image.
func (l *Link) ReadOptions(retries int) (*charger.Options, error) {
	var options *charger.Options
	err := retry(func() error {
		o, err := l.readOptionsDirect()
		options = o
		return err
	}, retries)
	if err != nil {
		return nil, err
	}
	return options, nil
}

// readOptionsDirect performs one read-options transaction with no retry,
// used both by ReadOptions and by the connect-time probe (before the
// background reader exists).
func (l *Link) readOptionsDirect() (*charger.Options, error) {
	cmd := buildCommand("PrsI", 0)
	if err := l.write(cmd, writeTimeout); err != nil {
		return nil, err
	}
	resp, err := l.read(262, readTimeout, 0)
	if err != nil {
		return nil, err
	}
	if err := l.verifyCmdWithCrc(cmd, resp, 260, 0x342); err != nil {
		return nil, err
	}
	return charger.NewOptions(resp[len(cmd):260]), nil
}

// WriteOptions erases and rewrites the charger's configuration image.
func (l *Link) WriteOptions(options *charger.Options, retries int) error {
	return retry(func() error {
		writeCmd := buildCommand("WrtC", 0)
		raw := options.RawBytes()
		writeCmd = append(writeCmd, raw[128:192]...)
		if len(writeCmd) != 68 {
			return fmt.Errorf("chargerlink: unexpected options image length %d", len(writeCmd))
		}
		bitops.SwapBytes(writeCmd, 4)
		calcCrc := bitops.CRC16(writeCmd[4:], 0xf5)

		cmd := buildCommand("ErsC", 0)
		if err := l.write(cmd, writeTimeout); err != nil {
			return err
		}
		resp, err := l.read(6, readTimeout, 0)
		if err != nil {
			return err
		}
		if err := verifyCmdWithValues(cmd, resp, []byte{0x0d, 0x04}); err != nil {
			return err
		}

		if err := l.write(writeCmd, writeTimeout); err != nil {
			return err
		}
		resp, err = l.read(70, readTimeout, 0)
		if err != nil {
			return err
		}
		crc := uint16(resp[68])<<8 | uint16(resp[69])
		if crc != calcCrc {
			return crcErrorf("write options failed: invalid CRC %#x != %#x", crc, calcCrc)
		}
		return nil
	}, retries)
}

func (l *Link) sendCmd(numParallel int, commandChar byte) error {
	cmd := buildCommand("Se"+string(rune(numParallelToChar(numParallel)))+string(rune(commandChar)), 0)
	if err := l.write(cmd, writeTimeout); err != nil {
		return err
	}
	resp, err := l.read(6, readTimeout, 0)
	if err != nil {
		return err
	}
	return verifyCmdWithValues(cmd, resp, []byte{0x05, 0xdc})
}

// read pulls nbytes from the background reader if it is running,
// otherwise directly from the port (used only during the connect-time
// probe). retries beyond the first are for short reads, distinct from
// the transaction-level retry wrapping each public command.
func (l *Link) read(nbytes int, timeout time.Duration, retries int) ([]byte, error) {
	var resp []byte
	if l.buf != nil {
		for i := 0; i <= retries; i++ {
			resp = l.buf.ConsumeWait(nbytes, timeout)
			if len(resp) >= nbytes {
				break
			}
		}
	} else {
		resp = l.readPortDirect(nbytes, timeout)
	}
	if len(resp) < nbytes {
		return resp, verifyErrorf("read did not get expected number of bytes: %d != %d", len(resp), nbytes)
	}
	return resp, nil
}

// readPortDirect reads nbytes straight off the port, looping because the
// port itself is opened with a short fixed ReadTimeout.
func (l *Link) readPortDirect(nbytes int, timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	out := make([]byte, 0, nbytes)
	tmp := make([]byte, nbytes)
	for len(out) < nbytes && time.Now().Before(deadline) {
		n, err := l.ser.Read(tmp)
		if err != nil {
			continue
		}
		out = append(out, tmp[:n]...)
	}
	return out
}

func (l *Link) write(data []byte, timeout time.Duration) error {
	if l.buf != nil {
		l.buf.Clear()
	}
	if _, err := l.ser.Write(data); err != nil {
		return fmt.Errorf("chargerlink: write: %w", err)
	}
	return nil
}

func (l *Link) verifyCrc(buf []byte, crcIndex int, crcInit uint16) error {
	crc := uint16(buf[crcIndex])<<8 | uint16(buf[crcIndex+1])
	calcCrc := bitops.CRC16(buf[:crcIndex], crcInit)
	if crc != calcCrc {
		return crcErrorf("bad CRC %#x != %#x", crc, calcCrc)
	}
	return nil
}

func (l *Link) verifyCmdWithCrc(cmd, buf []byte, crcIndex int, crcInit uint16) error {
	if err := verifyCmd(cmd, buf); err != nil {
		return err
	}
	return l.verifyCrc(buf[len(cmd):], crcIndex-len(cmd), crcInit)
}

func verifyCmd(cmd, buf []byte) error {
	if len(buf) < len(cmd) {
		return verifyErrorf("%s failed", cmd)
	}
	for i := range cmd {
		if buf[i] != cmd[i] {
			return verifyErrorf("%s failed", cmd)
		}
	}
	return nil
}

func verifyCmdWithValues(cmd, buf, byteVals []byte) error {
	if err := verifyCmd(cmd, buf); err != nil {
		return err
	}
	rest := buf[len(cmd):]
	if len(rest) != len(byteVals) {
		return verifyErrorf("%s failed", cmd)
	}
	for i := range byteVals {
		if rest[i] != byteVals[i] {
			return verifyErrorf("%s failed", cmd)
		}
	}
	return nil
}

// retry calls fn, retrying up to num additional times with a fixed
// backoff between attempts.
func retry(fn func() error, num int) error {
	interval := 100 * time.Millisecond
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if num <= 0 {
			return err
		}
		num--
		time.Sleep(interval)
	}
}
