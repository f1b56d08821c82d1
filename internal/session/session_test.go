package session

import (
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fhriley/bump-bridge/internal/appproto"
	"github.com/fhriley/bump-bridge/internal/charger"
	"github.com/fhriley/bump-bridge/internal/fsm"
)

var (
	errFakeWrite = errors.New("fake: write presets failed")
	errFakeRead  = errors.New("fake: read status failed")
)

// fakeLink is a scriptable ChargerLink for driving the session engine
// without a real serial port.
type fakeLink struct {
	connected      bool
	connectErr     error
	options        *charger.Options
	presets        []*charger.Preset
	readStatusErr  error
	status         *charger.Status
	writePresetsErr error

	closeCount    int
	writeCount    int
	enterCalls    int
	chargeCalls   int
	activePresets []int
}

func (f *fakeLink) Connect() (*charger.Options, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.connected = true
	return f.options, nil
}

func (f *fakeLink) Close() error {
	f.closeCount++
	f.connected = false
	return nil
}

func (f *fakeLink) ReadStatus(retries int) (*charger.Status, error) {
	if f.readStatusErr != nil {
		return nil, f.readStatusErr
	}
	return f.status, nil
}

func (f *fakeLink) ReadPresets(retries int) ([]*charger.Preset, error) {
	return f.presets, nil
}

func (f *fakeLink) WritePresets(presets []*charger.Preset, retries int) error {
	f.writeCount++
	if f.writePresetsErr != nil {
		return f.writePresetsErr
	}
	f.presets = presets
	return nil
}

func (f *fakeLink) CommandEnter(numParallel, retries int) error {
	f.enterCalls++
	return nil
}

func (f *fakeLink) CommandMonitor(numParallel int, useBananas bool, retries int) error { return nil }

func (f *fakeLink) CommandCharge(numParallel int, useBananas bool, retries int) error {
	f.chargeCalls++
	return nil
}

func (f *fakeLink) CommandDischarge(numParallel int, useBananas bool, retries int) error {
	return nil
}

func (f *fakeLink) CommandSetActivePreset(which, retries int) error {
	f.activePresets = append(f.activePresets, which)
	return nil
}

// fakeSink records every notified frame's message ID in order and never
// yields inbound app writes.
type fakeSink struct {
	decoder *appproto.Decoder
	ids     []appproto.MessageID
}

func newFakeSink() *fakeSink {
	return &fakeSink{decoder: appproto.NewDecoder(4096)}
}

func (f *fakeSink) Notify(chunk []byte) error {
	f.decoder.Feed(chunk)
	for {
		msg, ok := f.decoder.Next()
		if !ok {
			return nil
		}
		f.ids = append(f.ids, msg.ID)
	}
}

func (f *fakeSink) Recv() ([]byte, error) { return nil, nil }
func (f *fakeSink) Close() error          { return nil }

func testOptions() *charger.Options {
	data := make([]byte, charger.OptionsSize)
	return charger.NewOptions(data)
}

func testStatus(mode byte) *charger.Status {
	data := make([]byte, charger.StatusSize)
	data[133] = mode
	return charger.NewStatus(data)
}

func emptyPreset(num int) *charger.Preset {
	return charger.NewPreset(make([]byte, charger.PresetSize), num)
}

func allPresets() []*charger.Preset {
	out := make([]*charger.Preset, charger.NumPresets)
	for i := range out {
		out[i] = emptyPreset(i)
	}
	return out
}

func newTestSession(link ChargerLink, sink *fakeSink, battery *BatteryConfig, presetMap PresetMap) *Session {
	logger := log.New(newNullWriter(), "", 0)
	s := New(link, sink, battery, presetMap, time.Second, logger)
	return s
}

type nullWriter struct{}

func newNullWriter() *nullWriter       { return &nullWriter{} }
func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestConnectEmitsHandshakeThenIdleStatus(t *testing.T) {
	link := &fakeLink{
		options: testOptions(),
		presets: allPresets(),
		status:  testStatus(0),
	}
	sink := newFakeSink()
	s := newTestSession(link, sink, nil, nil)

	s.StartNotify()
	s.ConnectRequest()

	require.Equal(t, []appproto.MessageID{
		appproto.ConnectAck,
		appproto.DeviceInfo,
		appproto.SelectChargerCmd,
		appproto.BumpSettingsMsg,
		appproto.StatusIdleUpdateNot2,
	}, sink.ids)
}

func TestPresetChemistryMismatchForcesErrorThatClearErrorCannotClear(t *testing.T) {
	mismatched := emptyPreset(3)
	mismatched.SetChemistryIdx(6) // NiCd

	presets := allPresets()
	presets[3] = mismatched

	link := &fakeLink{
		options: testOptions(),
		presets: presets,
		status:  testStatus(0),
	}
	sink := newFakeSink()
	battery := &BatteryConfig{Chemistry: appproto.ChemistryLiPo, PackCount: 1}
	presetMap := PresetMap{appproto.OperationNormal: 3}
	s := newTestSession(link, sink, battery, presetMap)

	s.StartNotify()
	s.ConnectRequest()

	require.NotNil(t, s.forcedErrorCode)
	require.Equal(t, byte(errBadChemistry), *s.forcedErrorCode)

	s.ClearError()
	require.NotNil(t, s.forcedErrorCode)
	require.Equal(t, byte(errBadChemistry), *s.forcedErrorCode)
}

func TestOperationStartRejectedWithNoPresetMapConfigured(t *testing.T) {
	link := &fakeLink{
		options: testOptions(),
		presets: allPresets(),
		status:  testStatus(0),
	}
	sink := newFakeSink()
	battery := &BatteryConfig{Chemistry: appproto.ChemistryLiPo, PackCount: 1}
	s := newTestSession(link, sink, battery, nil)

	s.StartNotify()
	s.ConnectRequest()

	s.OperationStart()

	require.Equal(t, 0, link.chargeCalls)
	require.NotNil(t, s.forcedErrorCode)
	require.Equal(t, byte(errNotAllowed), *s.forcedErrorCode)
}

func TestBatteryGroupCountChangeUpdatesPresets(t *testing.T) {
	presets := allPresets()
	for _, num := range []int{0, 1} {
		_ = presets[num].SetNumParallel(2)
		presets[num].SetChemistryIdx(int(appproto.ChemistryLiPo))
	}

	link := &fakeLink{
		options: testOptions(),
		presets: presets,
		status:  testStatus(0),
	}
	sink := newFakeSink()
	battery := &BatteryConfig{Chemistry: appproto.ChemistryLiPo, PackCount: 2}
	presetMap := PresetMap{appproto.OperationNormal: 0, appproto.OperationFastest: 1}
	s := newTestSession(link, sink, battery, presetMap)

	s.StartNotify()
	s.ConnectRequest()

	s.SetBatteryGroupCount(3)
	require.Equal(t, byte(3), battery.PackCount)
	require.Equal(t, 3, s.presets[0].NumParallel())
	require.Equal(t, 3, s.presets[1].NumParallel())
}

func TestBatteryGroupCountChangeRevertsOnWriteFailure(t *testing.T) {
	presets := allPresets()
	for _, num := range []int{0, 1} {
		_ = presets[num].SetNumParallel(2)
		presets[num].SetChemistryIdx(int(appproto.ChemistryLiPo))
	}

	link := &fakeLink{
		options:         testOptions(),
		presets:         presets,
		status:          testStatus(0),
		writePresetsErr: errFakeWrite,
	}
	sink := newFakeSink()
	battery := &BatteryConfig{Chemistry: appproto.ChemistryLiPo, PackCount: 2}
	presetMap := PresetMap{appproto.OperationNormal: 0, appproto.OperationFastest: 1}
	s := newTestSession(link, sink, battery, presetMap)

	s.StartNotify()
	s.ConnectRequest()

	s.SetBatteryGroupCount(3)

	require.Equal(t, byte(2), battery.PackCount)
	require.Equal(t, 2, s.presets[0].NumParallel())
	require.Equal(t, 2, s.presets[1].NumParallel())
}

func TestFiveConsecutiveReadFailuresDisconnect(t *testing.T) {
	link := &fakeLink{
		options:       testOptions(),
		presets:       allPresets(),
		readStatusErr: errFakeRead,
	}
	sink := newFakeSink()
	s := newTestSession(link, sink, nil, nil)

	s.StartNotify()
	s.ConnectRequest() // first read failure counted here; reset() also closes once

	closeAfterConnect := link.closeCount
	require.Equal(t, fsm.Idle, s.state)

	// four more failures reach the fifth consecutive miss and force a
	// disconnect/close.
	for i := 0; i < 4; i++ {
		s.StatusLoop()
	}

	require.Equal(t, closeAfterConnect+1, link.closeCount)
	require.Equal(t, fsm.Disconnected, s.state)
}

func TestHandleAppFrameDispatchesClearErrorAndCycleGraphGet(t *testing.T) {
	link := &fakeLink{
		options: testOptions(),
		presets: allPresets(),
		status:  testStatus(0),
	}
	sink := newFakeSink()
	s := newTestSession(link, sink, nil, nil)

	s.StartNotify()
	s.ConnectRequest()
	sink.ids = nil

	frame := appproto.EncodeFrame(modelID, appproto.OperationClearErrorCmd, []byte{0})
	for _, chunk := range appproto.Fragment(frame) {
		s.HandleAppFrame(chunk)
	}
	require.Equal(t, 1, link.enterCalls)

	frame = appproto.EncodeFrame(modelID, appproto.CycleGraphGet, nil)
	for _, chunk := range appproto.Fragment(frame) {
		s.HandleAppFrame(chunk)
	}
	require.Contains(t, sink.ids, appproto.CycleGraphGetComplete)
}
