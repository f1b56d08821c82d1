// Package session implements the single-port bridging session: it owns
// the charger link and the app notify sink, drives the state machine off
// status polls, reconciles presets against the configured battery, and
// admits or rejects app commands depending on the current state.
package session

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/fhriley/bump-bridge/internal/appnotify"
	"github.com/fhriley/bump-bridge/internal/appproto"
	"github.com/fhriley/bump-bridge/internal/charger"
	"github.com/fhriley/bump-bridge/internal/fsm"
)

const (
	modelID         = 0x64
	firmwareVersion = 408
	deviceName      = "BumpEmulator"

	errBadChemistry = 122 // unknown/mismatched chemistry
	errNotAllowed   = 49  // charge not allowed
	errNotIdle      = 108 // preset loaded while charging
	errOpNotSet     = 13  // preset is empty

	modeErrorRaw = 0x63

	defaultRetries = 2
)

var deviceID = [6]byte{0, 1, 2, 3, 4, 5}

var notClearableErrors = map[byte]bool{errBadChemistry: true}

// Session is the single charger-port bridging engine: one charger link,
// one notify sink, one state machine, reentered under mu for every
// inbound command and every status-loop tick so that no two serial
// transactions ever race on the wire.
type Session struct {
	link           ChargerLink
	sink           appnotify.Sink
	battery        *BatteryConfig
	presetMap      PresetMap
	statusInterval time.Duration
	logger         *log.Logger

	mu sync.Mutex

	state                fsm.State
	options              *charger.Options
	presets              []*charger.Preset
	activePreset         *charger.Preset
	lastStatus           *charger.Status
	selectedOperation    appproto.ChargerOperation
	hasSelectedOperation bool
	forcedErrorCode      *byte
	disallowOperations   bool
	noStatusCount        int
	notifying            bool
	running              bool

	decoder *appproto.Decoder
}

// appRecvBufferCapacity bounds how much partial app-write data
// HandleAppFrame holds onto waiting for a frame to complete.
const appRecvBufferCapacity = 4096

// New builds a session over link and sink. battery and presetMap may be
// nil/empty: the session still connects and reports idle status, but
// every preset-dependent operation stays force-erroring (not-allowed).
func New(link ChargerLink, sink appnotify.Sink, battery *BatteryConfig, presetMap PresetMap, statusInterval time.Duration, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		link:               link,
		sink:               sink,
		battery:            battery,
		presetMap:          presetMap,
		statusInterval:     statusInterval,
		logger:             logger,
		state:              fsm.Disconnected,
		disallowOperations: true,
		decoder:            appproto.NewDecoder(appRecvBufferCapacity),
	}
	if battery != nil {
		// A battery always carries a concrete preferred operation (the
		// reference descriptor never leaves this unset); selection
		// becomes "unset" only in the no-battery case.
		s.selectedOperation = battery.PrefOperation
		s.hasSelectedOperation = true
	}
	return s
}

// ClearHaltForSafety implements fsm.SafetyClearer. It is only ever invoked
// by fsm.Transition from inside a method that already holds mu.
func (s *Session) ClearHaltForSafety() error {
	return s.link.CommandEnter(1, defaultRetries)
}

func (s *Session) transition(event fsm.Event) {
	s.state = fsm.Transition(s.state, event, s)
}

// setForcedError records code and immediately re-renders the last known
// status so the app sees the error without waiting for the next poll.
func (s *Session) setForcedError(code byte) {
	s.forcedErrorCode = &code
	s.emitCachedStatus()
}

func (s *Session) setEvent(event fsm.Event) {
	s.transition(event)
	s.emitCachedStatus()
}

func (s *Session) emitCachedStatus() {
	if s.state == fsm.Disconnected || s.lastStatus == nil {
		return
	}
	st := s.lastStatus
	if s.forcedErrorCode != nil {
		st.SetErrorCode(*s.forcedErrorCode)
		st.SetMode(modeErrorRaw)
	}
	s.emitStatus(st, false)
}

func (s *Session) write(id appproto.MessageID, payload []byte) error {
	if !s.notifying {
		return nil
	}
	frame := appproto.EncodeFrame(modelID, id, payload)
	for _, chunk := range appproto.Fragment(frame) {
		if err := s.sink.Notify(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) batteryPackCount() byte {
	if s.battery == nil {
		return 1
	}
	return s.battery.PackCount
}

// StartNotify marks the app as subscribed to status notifications,
// matching a GATT StartNotify on the status characteristic.
func (s *Session) StartNotify() {
	s.mu.Lock()
	s.notifying = true
	s.mu.Unlock()
}

// StopNotify marks the app unsubscribed; the status loop observes this
// and lets its scheduling stop.
func (s *Session) StopNotify() {
	s.mu.Lock()
	s.notifying = false
	s.mu.Unlock()
	s.logger.Println("session: ble disconnected")
}

// ConnectRequest handles a fresh BLE connection: it waits for any prior
// status loop to notice !notifying and exit (guarding against a stale
// scheduled tick reinitializing over a fresh connection), then resets
// session state and kicks off one status-loop iteration.
func (s *Session) ConnectRequest() {
	s.mu.Lock()
	s.notifying = false
	deadline := time.Now().Add(2 * s.statusInterval)
	for {
		s.mu.Unlock()
		s.mu.Lock()
		if !s.running {
			break
		}
		if time.Now().After(deadline) {
			s.logger.Println("session: timed out waiting for status loop to exit")
			break
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		s.mu.Lock()
	}
	s.notifying = true
	s.resetLocked()
	s.disallowOperations = true
	s.connectAck()
	s.deviceInfoLocked()
	s.statusLoopLocked(false)
	s.mu.Unlock()
	s.logger.Println("session: ble connected")
}

func (s *Session) resetLocked() {
	s.link.Close()
	s.state = fsm.Disconnected
	s.options = nil
	s.presets = nil
	s.activePreset = nil
	s.lastStatus = nil
	s.forcedErrorCode = nil
	s.disallowOperations = true
	s.noStatusCount = 0
}

func (s *Session) connectAck() {
	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf, firmwareVersion)
	if err := s.write(appproto.ConnectAck, buf); err != nil {
		s.logger.Printf("session: connect ack: %v", err)
	}
}

// DeviceInfo answers a GET_DEVICE_INFO_CMD.
func (s *Session) DeviceInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceInfoLocked()
}

func (s *Session) deviceInfoLocked() {
	buf := make([]byte, 0, 22)
	buf = append(buf, deviceID[:]...)
	name := deviceName
	if len(name) > 16 {
		name = name[:16]
	}
	buf = append(buf, []byte(name)...)
	for len(buf) < 22 {
		buf = append(buf, 0)
	}
	if err := s.write(appproto.DeviceInfo, buf); err != nil {
		s.logger.Printf("session: device info: %v", err)
	}
}

// StatusLoop runs one iteration of the periodic status poll: connect if
// disconnected, read status, reconcile presets, and emit a notification.
// It returns whether the app is still subscribed, which the caller's
// scheduler uses to decide whether to keep ticking.
func (s *Session) StatusLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLoopLocked(false)
}

func (s *Session) statusLoopLocked(forceIdle bool) bool {
	var status *charger.Status

	if s.state == fsm.Disconnected {
		options, err := s.link.Connect()
		if err == nil {
			s.options = options
			s.chargerConnectedLocked()
		}
	}

	if s.state != fsm.Disconnected {
		st, err := s.link.ReadStatus(defaultRetries)
		if err != nil {
			s.logger.Printf("session: read status: %v", err)
			s.noStatusCount++
			if s.noStatusCount >= 5 {
				s.noStatusCount = 0
				s.options = nil
				s.link.Close()
				s.transition(fsm.EventDisconnected)
			}
		} else {
			s.noStatusCount = 0
			status = st
		}
	}

	if s.state == fsm.Disconnected {
		idle := &appproto.ChargerIdle{
			ModelID:   appproto.ChargerModelPL8,
			CommState: appproto.CommDisconnected,
		}
		if err := s.write(appproto.StatusIdleUpdateNot2, idle.Serialize()); err != nil {
			s.logger.Printf("session: notify idle status: %v", err)
		}
	} else if status != nil {
		s.lastStatus = status
		if s.forcedErrorCode != nil {
			status.SetErrorCode(*s.forcedErrorCode)
			status.SetMode(modeErrorRaw)
		}
		event := fsm.EventFromMode(status.Mode(), status.IsChargeDischargeComplete())
		s.transition(event)
		s.checkPreset(status)
		s.emitStatus(status, forceIdle)
	}

	s.running = s.notifying
	return s.running
}

func (s *Session) chargerConnectedLocked() {
	presets, err := s.link.ReadPresets(defaultRetries)
	if err != nil {
		s.logger.Printf("session: read presets: %v", err)
		return
	}
	s.presets = presets
	s.checkPresetChemistries()
	s.selectChargerNotify()
	s.bumpSettingsNotify()
	s.chargerSettingsNotify()
	s.batteryGroupNotify()
	s.transition(fsm.EventConnected)
	s.logger.Println("session: charger connected")
}

func (s *Session) checkPresetChemistries() {
	if s.battery == nil {
		return
	}
	for _, presetNum := range s.presetMap {
		preset := s.presets[presetNum]
		if preset.ChemistryIdx() != int(s.battery.Chemistry) {
			s.setForcedError(errBadChemistry)
			s.logger.Printf("session: preset %d is not the correct chemistry", preset.PresetNum()+1)
		}
	}
}

func (s *Session) canChangePreset() bool {
	// Resolved open question: the app has no competing writer to race
	// against in this bridge, so a preset update is always safe to
	// flash as soon as it is staged.
	return true
}

// updatePresets stages and, if needed, flashes preset changes for every
// mapped operation. It returns true when reconciliation is not yet
// settled (so the caller must not proceed to verify the active preset
// this tick) and any error from the write itself.
func (s *Session) updatePresets() (bool, error) {
	if s.battery == nil || len(s.presetMap) == 0 || s.state != fsm.Idle {
		return true, nil
	}

	var changedPresetNums []int
	seen := make(map[int]bool)
	for op, presetNum := range s.presetMap {
		if seen[presetNum] {
			continue
		}
		seen[presetNum] = true
		preset := s.presets[presetNum]

		chargeC := s.battery.chargeCFor(op)
		chargeMamps := roundInt(chargeC * float64(s.battery.Capacity))
		dischargeMamps := roundInt(s.battery.DischargeC * float64(s.battery.Capacity))
		numParallel := int(s.battery.PackCount)

		var chargeVolts, dischargeVolts float64
		var numCycles uint64
		setNumCycles := false
		if op == appproto.OperationStorage {
			chargeVolts = s.battery.StorageChargeVolts
			dischargeVolts = s.battery.StorageDischargeVolts
		} else {
			chargeVolts = s.battery.MaxCellVolts
			dischargeVolts = s.battery.MinCellVolts
			numCycles = uint64(s.battery.CycleCount)
			setNumCycles = true
		}

		if modifyPreset(preset, chargeMamps, dischargeMamps, numParallel, chargeVolts, dischargeVolts, setNumCycles, numCycles) {
			changedPresetNums = append(changedPresetNums, preset.PresetNum()+1)
		}
	}

	if len(changedPresetNums) > 0 {
		if s.canChangePreset() {
			s.logger.Printf("session: writing presets %v", changedPresetNums)
			if err := s.link.WritePresets(s.presets, defaultRetries); err != nil {
				return true, err
			}
			return false, nil
		}
	} else {
		return false, nil
	}
	return true, nil
}

// modifyPreset stages the target values into preset, forcing
// max_charge_amps to 40 A regardless, and reports whether anything
// changed.
func modifyPreset(preset *charger.Preset, chargeMamps, dischargeMamps, numParallel int, chargeVolts, dischargeVolts float64, setNumCycles bool, numCycles uint64) bool {
	changed := false
	if preset.AutoChargeRate() != 0 {
		preset.SetAutoChargeRate(0)
		changed = true
	}
	if preset.ChargeMamps() != chargeMamps {
		preset.SetChargeMamps(chargeMamps)
		changed = true
	}
	if preset.DischargeMamps() != dischargeMamps {
		preset.SetDischargeMamps(dischargeMamps)
		changed = true
	}
	if preset.NumParallel() != numParallel {
		_ = preset.SetNumParallel(numParallel)
		changed = true
	}
	if preset.ChargeVolts() != chargeVolts {
		preset.SetChargeVolts(chargeVolts)
		changed = true
	}
	if preset.DischargeVolts() != dischargeVolts {
		preset.SetDischargeVolts(dischargeVolts)
		changed = true
	}
	if setNumCycles {
		if cur, err := preset.NumCycles(); err != nil || cur != numCycles {
			_ = preset.SetNumCycles(numCycles)
			changed = true
		}
	}
	if preset.MaxChargeAmps() != 40 {
		preset.SetMaxChargeAmps(40)
		changed = true
	}
	return changed
}

func (s *Session) checkPreset(status *charger.Status) {
	if s.activePreset != nil && s.activePreset.PresetNum() == status.ActivePreset() {
		return
	}
	needsUpdate, err := s.updatePresets()
	if err != nil {
		s.disallowOperations = true
		s.logger.Printf("session: update presets: %v", err)
		needsUpdate = true
	}
	if !needsUpdate && s.hasSelectedOperation {
		presetNum := s.presetMap[s.selectedOperation]
		candidate := s.presets[presetNum]
		if err := s.link.CommandSetActivePreset(candidate.PresetNum(), defaultRetries); err != nil {
			s.disallowOperations = true
			s.logger.Printf("session: set active preset: %v", err)
		} else {
			s.activePreset = candidate
			s.disallowOperations = s.battery == nil || s.forcedErrorCode != nil
		}
	} else {
		s.disallowOperations = true
	}
}

func (s *Session) emitStatus(status *charger.Status, forceIdle bool) {
	var opFlags appproto.ChargerOperationFlag
	isIdle := true
	switch s.state {
	case fsm.Idle:
		opFlags = appproto.OpFlagNone
	case fsm.HaltForSafety:
		opFlags = appproto.OpFlagNone
		isIdle = false
	case fsm.Completed:
		opFlags = appproto.OpFlagComplete
		isIdle = false
	case fsm.Stopped:
		opFlags = appproto.OpFlagStopped
		isIdle = false
	default:
		opFlags = appproto.OpFlagNone
		isIdle = false
	}
	isIdle = (isIdle || forceIdle) && s.forcedErrorCode == nil

	var (
		id      appproto.MessageID
		payload []byte
	)
	if isIdle {
		id = appproto.StatusIdleUpdateNot2
		idle := &appproto.ChargerIdle{
			ModelID:         appproto.ChargerModelPL8,
			CommState:       appproto.CommConnected,
			SupplyVolts:     uint32(roundInt(status.SupplyVolts() * 1000)),
			SupplyAmps:      int32(roundInt(status.SupplyAmps() * 1000)),
			CPUTemp:         uint16(roundInt(status.CPUTemp())),
			OperationFlags:  byte(opFlags),
			FirmwareVersion: status.FirmwareVersion(),
		}
		payload = idle.Serialize()
	} else {
		id = appproto.StatusUpdateNot2
		cs := appproto.NewChargerStatus()
		cs.ModeRunning = chargerModeFromRaw(status.Mode())
		cs.ErrorCode = status.ErrorCode()
		cs.Chemistry = appproto.Chemistry(status.Chem8())
		cs.SetCellCount(byte(status.Ch1Cells()))
		cs.EstimatedFuelLevel = byte(roundInt(float64(status.FuelLevel()) / 10.0))
		cs.Amps = int32(roundInt(status.AvgAmps() * 1000))

		bv := status.BVolts()
		var sumVolts float64
		for _, v := range bv {
			sumVolts += v
		}
		cs.PackVolts = uint32(roundInt(sumVolts * 1000))
		cs.CapacityAdded = uint32(roundInt(status.MahIn()))
		cs.CapacityRemoved = uint32(roundInt(status.MahOut()))
		cs.CycleTimer = uint32(status.ChargeSeconds())
		cs.StatusFlags = appproto.ChargerStatusFlag(status.StatusFlags())
		cs.RxStatusFlags = appproto.ChargerRxStatusFlag(status.RxStatusFlags())

		if s.state == fsm.Charging || s.state == fsm.Discharging {
			if status.LowerPwmReason() == 0 && status.CvStarted() {
				cs.PowerReducedReason = appproto.ReasonOutputCV
			} else {
				cs.PowerReducedReason = appproto.ChargerPowerReducedReason(status.LowerPwmReason())
			}
		} else {
			cs.PowerReducedReason = appproto.ReasonNone
		}

		if cs.CellCount() > 0 {
			mohm := status.Mohm()
			bp := status.BypassPercent()
			for i := 0; i < int(cs.CellCount()); i++ {
				cs.CellVolts[i] = uint16(roundInt(bv[i] * 1000))
				cs.CellIR[i] = uint16(roundInt(mohm[i] * 100))
				cs.CellBypass[i] = byte(roundInt(bp[i]))
			}
		}

		cs.ModelID = appproto.ChargerModelPL8
		cs.CommState = appproto.CommConnected
		cs.SupplyVolts = uint32(roundInt(status.SupplyVolts() * 1000))
		cs.SupplyAmps = int32(roundInt(status.SupplyAmps() * 1000))
		cs.CPUTemp = uint16(roundInt(status.CPUTemp()))
		cs.OperationFlags = byte(opFlags)
		payload = cs.Serialize()
	}

	if err := s.write(id, payload); err != nil {
		s.logger.Printf("session: notify status: %v", err)
	}
}

func chargerModeFromRaw(raw byte) appproto.ChargerMode {
	switch {
	case raw == 0:
		return appproto.ModeReadyToStart
	case raw == 1:
		return appproto.ModeDetectingPack
	case raw >= 2 && raw <= 6:
		return appproto.ModeCharging
	case raw == 7:
		return appproto.ModeTrickleCharging
	case raw == 8:
		return appproto.ModeDischarging
	case raw == 9:
		return appproto.ModeMonitoring
	case raw == 10:
		return appproto.ModeHaltForSafety
	case raw == 11:
		return appproto.ModePackCoolDown
	default:
		return appproto.ModeError
	}
}

func (s *Session) selectChargerNotify() {
	if err := s.write(appproto.SelectChargerCmd, []byte{0}); err != nil {
		s.logger.Printf("session: select charger: %v", err)
	}
}

func (s *Session) bumpSettingsNotify() {
	if s.options == nil {
		return
	}
	settings := appproto.NewBumpSettings()
	settings.DeviceName = "Bump Bridge"
	settings.PresetsEnabled = true

	kind := "DC Supply"
	var typ byte
	if s.options.IsBatteryEnabled() {
		kind = "Battery"
		typ = 1
	}
	name := fmt.Sprintf("%s @%.1fA", kind, s.options.SupplyAmpsLimit())
	settings.EnableChargerPort(0, name, typ, s.options.SupplyCutoffVolts(), s.options.SupplyAmpsLimit())

	if err := s.write(appproto.BumpSettingsMsg, settings.Serialize()); err != nil {
		s.logger.Printf("session: bump settings: %v", err)
	}
}

func (s *Session) chargerSettingsNotify() {
	if !s.hasSelectedOperation || s.battery == nil || s.options == nil {
		return
	}
	settings := appproto.NewChargerSettings()
	settings.RequestedOperation = s.selectedOperation
	settings.RequestedChemistry = s.battery.Chemistry
	settings.RequestedCellCount = s.battery.CellCount
	settings.RequestedIR = s.battery.InternalResistance
	settings.RequestedCapacity = s.battery.Capacity * uint16(s.battery.PackCount)
	settings.RequestedChargeC = s.battery.chargeCFor(s.selectedOperation)
	settings.RequestedDischargeC = 0
	switch s.selectedOperation {
	case appproto.OperationStorage, appproto.OperationDischarge, appproto.OperationAnalyze:
		settings.RequestedDischargeC = s.battery.DischargeC
	}
	settings.RequestedChargeRate = uint16(roundInt(settings.RequestedChargeC * float64(settings.RequestedCapacity)))
	settings.RequestedDischargeRate = uint16(roundInt(settings.RequestedDischargeC * float64(settings.RequestedCapacity)))
	settings.RequestedChargeCutoffCellVolts = s.battery.MaxCellVolts
	settings.RequestedDischargeCutoffCellVolts = s.battery.MinCellVolts
	for i, v := range s.battery.MeasuredFuelTable {
		if i >= len(settings.RequestedFuelCurve) {
			break
		}
		settings.RequestedFuelCurve[i] = float64(v) * 0.001111111
	}
	settings.MultiChargerMode = 0
	if s.options.IsBatteryEnabled() {
		settings.PowerSupplyMode = appproto.PowerSupplyBattery
	} else {
		settings.PowerSupplyMode = appproto.PowerSupplyDC
	}
	settings.UseBalanceLeads = true

	if err := s.write(appproto.ChargerSettingsMsg, settings.Serialize()); err != nil {
		s.logger.Printf("session: charger settings: %v", err)
	}
}

func (s *Session) batteryGroupNotify() {
	if s.battery == nil {
		return
	}
	appBattery := buildAppBattery(s.battery)
	group := appproto.NewBatteryGroup(appBattery, s.battery.PackCount)
	notify := &appproto.BatteryGroupNotify{Group: group}
	if err := s.write(appproto.BatteryGroupNot, notify.Serialize()); err != nil {
		s.logger.Printf("session: battery group: %v", err)
	}
}

func buildAppBattery(cfg *BatteryConfig) *appproto.Battery {
	b := appproto.NewBattery()
	b.PrefOperation = cfg.PrefOperation
	b.PrefChargeCNormal = cfg.ChargeC[appproto.OperationNormal]
	b.PrefChargeCFastest = cfg.ChargeC[appproto.OperationFastest]
	b.PrefChargeCAccurate = cfg.ChargeC[appproto.OperationAccurate]
	b.PrefDischargeC = cfg.DischargeC
	b.MeasuredFuelTable = cfg.MeasuredFuelTable
	b.CycleCount = cfg.CycleCount
	b.InternalResistance = cfg.InternalResistance
	b.DischargeCMax = cfg.DischargeCMax
	b.ChargeCMax = cfg.ChargeCMax
	b.Capacity = cfg.Capacity
	b.Chemistry = cfg.Chemistry
	b.CellCount = cfg.CellCount
	b.BrandName = cfg.BrandName
	b.MaxCellVolts = cfg.MaxCellVolts
	b.MinCellVolts = cfg.MinCellVolts
	b.PackCount = cfg.PackCount
	return b
}

// OperationStart issues OPERATION_START_CMD: begin the selected
// operation's charge or discharge on the charger.
func (s *Session) OperationStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.disallowOperations:
		s.setForcedError(errNotAllowed)
	case s.state != fsm.Idle:
		s.setForcedError(errNotIdle)
	case !s.hasSelectedOperation:
		s.setForcedError(errOpNotSet)
	default:
		var err error
		if s.selectedOperation == appproto.OperationDischarge {
			err = s.link.CommandDischarge(int(s.batteryPackCount()), true, defaultRetries)
		} else {
			err = s.link.CommandCharge(int(s.batteryPackCount()), true, defaultRetries)
		}
		if err != nil {
			s.logger.Printf("session: operation start: %v", err)
		}
	}
}

// OperationStop issues OPERATION_STOP_CMD.
func (s *Session) OperationStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.link.CommandEnter(1, defaultRetries); err != nil {
		s.logger.Printf("session: operation stop: %v", err)
		return
	}
	s.setEvent(fsm.EventStop)
}

// Dismiss issues DISMISS_CMD.
func (s *Session) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.link.CommandEnter(1, defaultRetries); err != nil {
		s.logger.Printf("session: dismiss: %v", err)
		return
	}
	s.setEvent(fsm.EventDismiss)
}

// ClearError issues OPERATION_CLEAR_ERROR_CMD.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forcedErrorCode == nil {
		if err := s.link.CommandEnter(1, defaultRetries); err != nil {
			s.logger.Printf("session: clear error: %v", err)
			return
		}
	}
	if s.forcedErrorCode == nil || !notClearableErrors[*s.forcedErrorCode] {
		s.forcedErrorCode = nil
	}
	s.setEvent(fsm.EventDismiss)
}

// SetBatteryGroupCount issues SET_BATTERY_GROUP_COUNT_CMD.
func (s *Session) SetBatteryGroupCount(count byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != fsm.Idle {
		s.setForcedError(errNotIdle)
		return
	}
	if s.battery != nil && count != s.battery.PackCount {
		updateCounts := func(cnt byte) {
			for _, presetNum := range s.presetMap {
				_ = s.presets[presetNum].SetNumParallel(int(cnt))
			}
		}
		old := s.battery.PackCount
		updateCounts(count)
		if err := s.link.WritePresets(s.presets, defaultRetries); err != nil {
			updateCounts(old)
			s.logger.Printf("session: set battery group count: %v", err)
		} else {
			s.battery.PackCount = count
		}
	}
	s.batteryGroupNotify()
	s.chargerSettingsNotify()
}

// Monitor issues MONITOR_CMD.
func (s *Session) Monitor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.disallowOperations:
		s.setForcedError(errNotAllowed)
	case s.state != fsm.Idle:
		s.setForcedError(errNotIdle)
	case s.activePreset == nil:
		s.setForcedError(errNotAllowed)
	default:
		if err := s.link.CommandMonitor(int(s.batteryPackCount()), true, defaultRetries); err != nil {
			s.logger.Printf("session: monitor: %v", err)
		}
	}
}

// SelectedOperation issues SELECTED_OPERATION_NOT's request counterpart:
// the app chooses which configured operation becomes active.
func (s *Session) SelectedOperation(op appproto.ChargerOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.disallowOperations:
		s.setForcedError(errNotAllowed)
	case s.state != fsm.Idle:
		s.setForcedError(errNotIdle)
	case op == appproto.OperationAnalyze:
		s.setForcedError(errNotAllowed)
	default:
		presetNum, ok := s.presetMap[op]
		if !ok {
			s.setForcedError(errOpNotSet)
		} else if err := s.link.CommandSetActivePreset(s.presets[presetNum].PresetNum(), defaultRetries); err != nil {
			s.logger.Printf("session: selected operation: %v", err)
		} else {
			s.selectedOperation = op
			s.hasSelectedOperation = true
			s.activePreset = s.presets[presetNum]
		}
	}
	s.chargerSettingsNotify()
}

// CycleGraphComplete answers CYCLE_GRAPH_GET with an empty-graph
// completion: cycle-graph history is not implemented, so the app's
// request is acknowledged as "zero points" rather than left hanging.
func (s *Session) CycleGraphComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(appproto.CycleGraphGetComplete, []byte{0}); err != nil {
		s.logger.Printf("session: cycle graph complete: %v", err)
	}
}

// ManualOperation rejects MANUAL_OPERATION_CMD: typed-in operations are
// not supported by this bridge.
func (s *Session) ManualOperation(_ *appproto.ManualStart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Println("session: ignoring manual operation: not supported")
	s.setForcedError(errNotAllowed)
}

// HandleAppFrame feeds raw bytes arriving from the app over the notify
// sink's receive path into the frame decoder and dispatches every
// complete frame to the matching command handler. It mirrors the
// reference message handler's dispatch table: most commands carry the
// charger port number as their first payload byte, which this bridge
// (a single charger port) ignores.
func (s *Session) HandleAppFrame(chunk []byte) {
	s.decoder.Feed(chunk)
	for {
		msg, ok := s.decoder.Next()
		if !ok {
			return
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg appproto.Message) {
	switch msg.ID {
	case appproto.ConnectRequest:
		s.ConnectRequest()
	case appproto.GetDeviceInfoCmd:
		s.DeviceInfo()
	case appproto.OperationStartCmd:
		s.OperationStart()
	case appproto.OperationStopCmd:
		s.OperationStop()
	case appproto.MonitorCmd:
		s.Monitor()
	case appproto.OperationClearErrorCmd:
		s.ClearError()
	case appproto.DismissCmd:
		s.Dismiss()
	case appproto.CycleGraphGet:
		s.CycleGraphComplete()
	case appproto.SetBatteryGroupCountCmd:
		if len(msg.Payload) < 3 {
			s.logger.Printf("session: set battery group count: short payload")
			return
		}
		s.SetBatteryGroupCount(msg.Payload[2])
	case appproto.SelectedOperationNot:
		if len(msg.Payload) < 2 {
			s.logger.Printf("session: selected operation: short payload")
			return
		}
		s.SelectedOperation(appproto.ChargerOperation(msg.Payload[1]))
	case appproto.ManualOperationCmd:
		manual, err := appproto.DeserializeManualStart(msg.Payload)
		if err != nil {
			s.logger.Printf("session: manual operation: %v", err)
			return
		}
		s.ManualOperation(manual)
	default:
		s.logger.Printf("session: unhandled app message id %v", msg.ID)
	}
}

// Close tears down the session's charger link.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link.Close()
}

type debugSnapshot struct {
	State              string
	DisallowOperations bool
	NoStatusCount      int
	ForcedErrorCode    *byte
	ActivePresetNum    int
	SelectedOperation  *appproto.ChargerOperation
}

// DebugSnapshot CBOR-encodes the session's current cached state for an
// operator-triggered diagnostic dump.
func (s *Session) DebugSnapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := debugSnapshot{
		State:              s.state.String(),
		DisallowOperations: s.disallowOperations,
		NoStatusCount:      s.noStatusCount,
		ForcedErrorCode:    s.forcedErrorCode,
		ActivePresetNum:    -1,
	}
	if s.activePreset != nil {
		snap.ActivePresetNum = s.activePreset.PresetNum()
	}
	if s.hasSelectedOperation {
		op := s.selectedOperation
		snap.SelectedOperation = &op
	}
	return cbor.Marshal(snap)
}

func roundInt(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}
