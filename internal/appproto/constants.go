// Package appproto implements the framed binary protocol the mobile
// companion app speaks over its BLE UART-style characteristics: frame
// header and CRC, the fixed-layout notification messages the bridge
// sends, and deserialization of ManualStart, the one app command body
// this package decodes (the few payload bytes other commands carry are
// read directly by the session engine).
package appproto

// Frame layout: PREAMBLE(1) MODEL_ID(1) MESSAGE_ID(1) PAYLOAD_LEN(2 LE)
// payload... CRC16(2 LE), CRC seeded with CrcSeed and computed over
// everything before it.
const (
	PreambleByte   = 0x17
	HeaderBytes    = 5
	CrcBytes       = 2
	FrameOverhead  = HeaderBytes + CrcBytes
	MessageIDOffset = 2
	PayloadLenOffset = 3
	CrcSeed        = 0x5ada

	// NotifyChunkSize is the largest slice of an encoded frame sent in a
	// single BLE notification.
	NotifyChunkSize = 40
)

// MessageID identifies the payload carried by a frame.
type MessageID byte

const (
	BatteryGroupNot          MessageID = 0x6
	SelectedOperationNot     MessageID = 0x8
	OperationStartCmd        MessageID = 0x9
	OperationStopCmd         MessageID = 0xa
	MonitorCmd               MessageID = 0xb
	ChargerSettingsMsg       MessageID = 0xc
	OperationClearErrorCmd   MessageID = 0xd
	ConnectRequest           MessageID = 0xe
	CycleGraphGet            MessageID = 0x15
	ConnectAck               MessageID = 0x16
	GetDeviceInfoCmd         MessageID = 0x19
	DeviceInfo               MessageID = 0x1a
	SelectChargerCmd         MessageID = 0x1d
	DismissCmd               MessageID = 0x1e
	ManualOperationCmd       MessageID = 0x20
	SetBatteryGroupCountCmd  MessageID = 0x21
	CycleGraphGetComplete    MessageID = 0x23
	StatusUpdateNot2         MessageID = 0x2d
	StatusIdleUpdateNot2     MessageID = 0x2e
	BumpSettingsMsg          MessageID = 0x2f
)

// ChargerModel identifies the Powerlab model behind a port.
type ChargerModel byte

const (
	ChargerModelNone ChargerModel = 0x0
	ChargerModelPL6  ChargerModel = 0x36
	ChargerModelPL8  ChargerModel = 0x38
)

// ChargerMode mirrors the charger's run mode as reported to the app.
type ChargerMode byte

const (
	ModeReadyToStart    ChargerMode = 0
	ModeDetectingPack   ChargerMode = 1
	ModeCharging        ChargerMode = 6
	ModeTrickleCharging ChargerMode = 7
	ModeDischarging     ChargerMode = 8
	ModeMonitoring      ChargerMode = 9
	ModeHaltForSafety   ChargerMode = 10
	ModePackCoolDown    ChargerMode = 11
	ModeError           ChargerMode = 99
)

// ChargerOperation is the operation a preset or a manual-start request
// selects.
type ChargerOperation byte

const (
	OperationAccurate ChargerOperation = 0
	OperationNormal   ChargerOperation = 1
	OperationFastest  ChargerOperation = 2
	OperationStorage  ChargerOperation = 3
	OperationDischarge ChargerOperation = 4
	OperationAnalyze  ChargerOperation = 5
	OperationMonitor  ChargerOperation = 6
	OperationTrickle  ChargerOperation = 7
	OperationNone     ChargerOperation = 8
)

// ChargerOperationFlag is a bitmask of the app-visible outcome of an
// operation.
type ChargerOperationFlag byte

const (
	OpFlagNone           ChargerOperationFlag = 0
	OpFlagCellIRWarning  ChargerOperationFlag = 15
	OpFlagCapacityWarning ChargerOperationFlag = 16
	OpFlagComplete       ChargerOperationFlag = 32
	OpFlagStopped        ChargerOperationFlag = 64
	OpFlagDismissed      ChargerOperationFlag = 128
)

// ChargerStatusFlag is a bitmask mirroring the charger's own status_flags.
type ChargerStatusFlag uint16

const (
	StatusFlagNone         ChargerStatusFlag = 0
	StatusFlagSafetyCharge ChargerStatusFlag = 1
	StatusFlagGenerateFuel ChargerStatusFlag = 32
	StatusFlagComplete     ChargerStatusFlag = 256
	StatusFlagReduceAmps   ChargerStatusFlag = 2048
	StatusFlagShowVr       ChargerStatusFlag = 4096
	StatusFlagNodesOnly    ChargerStatusFlag = 16384
	StatusFlagColdWeather  ChargerStatusFlag = 32768
)

// ChargerRxStatusFlag is a bitmask mirroring the charger's rx_status_flags.
type ChargerRxStatusFlag uint16

const (
	RxStatusFlagNone            ChargerRxStatusFlag = 0
	RxStatusFlagDischarge       ChargerRxStatusFlag = 2
	RxStatusFlagRegenDischarge  ChargerRxStatusFlag = 16
	RxStatusFlagCharge          ChargerRxStatusFlag = 64
	RxStatusFlagBalancers       ChargerRxStatusFlag = 128
)

// ChargerPowerReducedReason explains why the charger is delivering less
// power than requested.
type ChargerPowerReducedReason byte

const (
	ReasonNone                     ChargerPowerReducedReason = 0
	ReasonInputCurrentLimit        ChargerPowerReducedReason = 1
	ReasonInputCurrentMax          ChargerPowerReducedReason = 2
	ReasonCellSumError             ChargerPowerReducedReason = 3
	ReasonSupplyNoise              ChargerPowerReducedReason = 4
	ReasonHighTemp                 ChargerPowerReducedReason = 5
	ReasonInputVoltageLow          ChargerPowerReducedReason = 6
	ReasonOutputCV                 ChargerPowerReducedReason = 7
	ReasonInternalDischargeMaxWatts ChargerPowerReducedReason = 8
	ReasonHighTempDischarge        ChargerPowerReducedReason = 9
	ReasonRegenMaxAmps             ChargerPowerReducedReason = 10
	ReasonHighTempDischarge2       ChargerPowerReducedReason = 11
	ReasonCellSumErrorDischarge    ChargerPowerReducedReason = 12
	ReasonRegenVoltLimit           ChargerPowerReducedReason = 13
	ReasonBelowAveCharger          ChargerPowerReducedReason = 14
	ReasonAboveAveCharger          ChargerPowerReducedReason = 15
	ReasonSupplyLowForHighPower    ChargerPowerReducedReason = 16
)

// CommState is the link-level connection state reported to the app,
// independent of the charger's own run mode.
type CommState byte

const (
	CommDisconnected              CommState = 0x0
	CommOptionsWrong               CommState = 0x1
	CommOptionsBadChecksum         CommState = 0x2
	CommOptionsVerified            CommState = 0x3
	CommOptionsWaitForDisconnect   CommState = 0x4
	CommOptionsErased              CommState = 0x5
	CommOptionsUpdated             CommState = 0x6
	CommConnected                  CommState = 0x7
	CommDisabled                   CommState = 0x8
	CommFirmwareUpdateCmdSent      CommState = 0xa
	CommFirmwareUpdating           CommState = 0xb
	CommFirmwareSuccess            CommState = 0xc
	CommFirmwareFailed             CommState = 0xd
	CommFirmwareReadyForDownload   CommState = 0xe
	CommInternalDisconnected       CommState = 0xf
	CommFirmwareWaitForDisconnect  CommState = 0x10
)

// Chemistry is the battery chemistry code shared by presets and the app
// protocol.
type Chemistry byte

const (
	ChemistryNone Chemistry = 0
	ChemistryLiPo Chemistry = 1
	ChemistryLiIon Chemistry = 2
	ChemistryA123 Chemistry = 3
	ChemistryLiMn Chemistry = 4
	ChemistryLiCo Chemistry = 5
	ChemistryNiCd Chemistry = 6
	ChemistryNiMH Chemistry = 7
	ChemistryPb   Chemistry = 8
	ChemistryLiFe Chemistry = 9
	ChemistryPrim Chemistry = 10
	ChemistrySply Chemistry = 11
	ChemistryNiZn Chemistry = 12
	ChemistryLiHV Chemistry = 13
)

// PowerSupplyMode selects between a DC supply and a battery as the
// charger's input source.
type PowerSupplyMode byte

const (
	PowerSupplyDC      PowerSupplyMode = 0
	PowerSupplyBattery PowerSupplyMode = 1
)
