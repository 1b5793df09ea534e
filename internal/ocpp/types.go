// Package ocpp holds the OCPP 1.6-J wire vocabulary: message types, action
// names, status enums and the small shared value types every payload
// builds on.
package ocpp

import "time"

// MessageType is the first element of every OCPP array frame.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

// Action names supported by this central system (core profile, per
// spec.md §6 — FirmwareStatusNotification is accepted, but there are no
// firmware-update/reservation/smart-charging/trigger actions).
type Action string

const (
	ActionAuthorize                     Action = "Authorize"
	ActionBootNotification              Action = "BootNotification"
	ActionDataTransfer                  Action = "DataTransfer"
	ActionHeartbeat                     Action = "Heartbeat"
	ActionMeterValues                   Action = "MeterValues"
	ActionStartTransaction              Action = "StartTransaction"
	ActionStatusNotification            Action = "StatusNotification"
	ActionStopTransaction               Action = "StopTransaction"
	ActionDiagnosticsStatusNotification Action = "DiagnosticsStatusNotification"
	ActionFirmwareStatusNotification    Action = "FirmwareStatusNotification"

	// Central-initiated.
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
)

// ErrorCode is the CallError error_code vocabulary (spec.md §6).
type ErrorCode string

const (
	ErrorNotImplemented                ErrorCode = "NotImplemented"
	ErrorNotSupported                  ErrorCode = "NotSupported"
	ErrorInternalError                 ErrorCode = "InternalError"
	ErrorProtocolError                 ErrorCode = "ProtocolError"
	ErrorSecurityError                 ErrorCode = "SecurityError"
	ErrorFormationViolation            ErrorCode = "FormationViolation"
	ErrorPropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ErrorOccurenceConstraintViolation  ErrorCode = "OccurenceConstraintViolation"
	ErrorTypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	ErrorGenericError                  ErrorCode = "GenericError"
)

// ChargePointStatus is the connector/charge-point status vocabulary.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
	StatusUnknown       ChargePointStatus = "Unknown"
)

type ChargePointErrorCode string

const (
	CPErrorConnectorLockFailure ChargePointErrorCode = "ConnectorLockFailure"
	CPErrorEVCommunicationError ChargePointErrorCode = "EVCommunicationError"
	CPErrorGroundFailure        ChargePointErrorCode = "GroundFailure"
	CPErrorHighTemperature      ChargePointErrorCode = "HighTemperature"
	CPErrorInternalError        ChargePointErrorCode = "InternalError"
	CPErrorLocalListConflict    ChargePointErrorCode = "LocalListConflict"
	CPErrorNoError              ChargePointErrorCode = "NoError"
	CPErrorOtherError           ChargePointErrorCode = "OtherError"
	CPErrorOverCurrentFailure   ChargePointErrorCode = "OverCurrentFailure"
	CPErrorOverVoltage          ChargePointErrorCode = "OverVoltage"
	CPErrorPowerMeterFailure    ChargePointErrorCode = "PowerMeterFailure"
	CPErrorPowerSwitchFailure   ChargePointErrorCode = "PowerSwitchFailure"
	CPErrorReaderFailure        ChargePointErrorCode = "ReaderFailure"
	CPErrorResetFailure         ChargePointErrorCode = "ResetFailure"
	CPErrorUnderVoltage         ChargePointErrorCode = "UnderVoltage"
	CPErrorWeakSignal           ChargePointErrorCode = "WeakSignal"
)

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type AuthorizationStatus string

const (
	AuthAccepted     AuthorizationStatus = "Accepted"
	AuthBlocked      AuthorizationStatus = "Blocked"
	AuthExpired      AuthorizationStatus = "Expired"
	AuthInvalid      AuthorizationStatus = "Invalid"
	AuthConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// Reason is the transaction stop-reason vocabulary.
type Reason string

const (
	ReasonEmergencyStop  Reason = "EmergencyStop"
	ReasonEVDisconnected Reason = "EVDisconnected"
	ReasonHardReset      Reason = "HardReset"
	ReasonLocal          Reason = "Local"
	ReasonOther          Reason = "Other"
	ReasonPowerLoss      Reason = "PowerLoss"
	ReasonReboot         Reason = "Reboot"
	ReasonRemote         Reason = "Remote"
	ReasonSoftReset      Reason = "SoftReset"
	ReasonUnlockCommand  Reason = "UnlockCommand"
	ReasonDeAuthorized   Reason = "DeAuthorized"
)

type RemoteStartStopStatus string

const (
	RemoteAccepted RemoteStartStopStatus = "Accepted"
	RemoteRejected RemoteStartStopStatus = "Rejected"
)

type DataTransferStatus string

const (
	DataTransferAccepted         DataTransferStatus = "Accepted"
	DataTransferRejected         DataTransferStatus = "Rejected"
	DataTransferUnknownMessageId DataTransferStatus = "UnknownMessageId"
	DataTransferUnknownVendorId  DataTransferStatus = "UnknownVendorId"
)

// DateTime marshals as RFC3339 with a trailing Z for UTC, per spec.md §4.1.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime { return DateTime{Time: t} }

func (dt DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.Time.UTC().Format(time.RFC3339) + `"`), nil
}

func (dt *DateTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		return nil
	}
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	dt.Time = t
	return nil
}

type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag *string             `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Status      AuthorizationStatus `json:"status" validate:"required"`
}

type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1"`
}

type SampledValue struct {
	Value     string          `json:"value" validate:"required"`
	Context   *ReadingContext `json:"context,omitempty"`
	Format    *ValueFormat    `json:"format,omitempty"`
	Measurand *Measurand      `json:"measurand,omitempty"`
	Phase     *Phase          `json:"phase,omitempty"`
	Location  *Location       `json:"location,omitempty"`
	Unit      *UnitOfMeasure  `json:"unit,omitempty"`
}

type ReadingContext string

const (
	ContextInterruptionBegin ReadingContext = "Interruption.Begin"
	ContextInterruptionEnd   ReadingContext = "Interruption.End"
	ContextSampleClock       ReadingContext = "Sample.Clock"
	ContextSamplePeriodic    ReadingContext = "Sample.Periodic"
	ContextTransactionBegin  ReadingContext = "Transaction.Begin"
	ContextTransactionEnd    ReadingContext = "Transaction.End"
	ContextTrigger           ReadingContext = "Trigger"
	ContextOther             ReadingContext = "Other"
)

type ValueFormat string

const (
	FormatRaw        ValueFormat = "Raw"
	FormatSignedData ValueFormat = "SignedData"
)

// Measurand covers the subset spec.md's MeterValues handling cares about;
// the canonical default is Energy.Active.Import.Register.
type Measurand string

const (
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandEnergyActiveExportRegister Measurand = "Energy.Active.Export.Register"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandVoltage                    Measurand = "Voltage"
	MeasurandSoC                        Measurand = "SoC"
	MeasurandTemperature                Measurand = "Temperature"
)

type Phase string

const (
	PhaseL1  Phase = "L1"
	PhaseL2  Phase = "L2"
	PhaseL3  Phase = "L3"
	PhaseN   Phase = "N"
	PhaseL1N Phase = "L1-N"
	PhaseL2N Phase = "L2-N"
	PhaseL3N Phase = "L3-N"
)

type Location string

const (
	LocationBody   Location = "Body"
	LocationCable  Location = "Cable"
	LocationEV     Location = "EV"
	LocationInlet  Location = "Inlet"
	LocationOutlet Location = "Outlet"
)

type UnitOfMeasure string

const (
	UnitWh  UnitOfMeasure = "Wh"
	UnitKWh UnitOfMeasure = "kWh"
	UnitW   UnitOfMeasure = "W"
	UnitKW  UnitOfMeasure = "kW"
	UnitA   UnitOfMeasure = "A"
	UnitV   UnitOfMeasure = "V"
)

// Default field values applied by MeterValues when a station omits them
// (spec.md §4.5).
const (
	DefaultMeasurand = MeasurandEnergyActiveImportRegister
	DefaultUnit      = UnitWh
	DefaultContext   = ContextSamplePeriodic
	DefaultFormat    = FormatRaw
	DefaultLocation  = LocationOutlet
)
