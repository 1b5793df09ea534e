package ocpp

// Payload structs for the actions spec.md §6 lists. Field names follow
// OCPP 1.6-J's lowerCamelCase wire convention via the json tags;
// validator tags enforce the constraints the protocol places on each
// field before a handler ever sees the payload.

type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	ChargeBoxSerialNumber   *string `json:"chargeBoxSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Iccid                   *string `json:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi                    *string `json:"imsi,omitempty" validate:"omitempty,max=20"`
	MeterType               *string `json:"meterType,omitempty" validate:"omitempty,max=25"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty" validate:"omitempty,max=25"`
}

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" validate:"required"`
	CurrentTime DateTime           `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval" validate:"required,min=0"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" validate:"required"`
}

type StatusNotificationRequest struct {
	ConnectorId     int                  `json:"connectorId" validate:"min=0"`
	ErrorCode       ChargePointErrorCode `json:"errorCode" validate:"required"`
	Info            *string              `json:"info,omitempty" validate:"omitempty,max=50"`
	Status          ChargePointStatus    `json:"status" validate:"required"`
	Timestamp       *DateTime            `json:"timestamp,omitempty"`
	VendorId        *string              `json:"vendorId,omitempty" validate:"omitempty,max=255"`
	VendorErrorCode *string              `json:"vendorErrorCode,omitempty" validate:"omitempty,max=50"`
}

type StatusNotificationResponse struct{}

type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" validate:"required"`
}

type StartTransactionRequest struct {
	ConnectorId   int      `json:"connectorId" validate:"required,min=1"`
	IdTag         string   `json:"idTag" validate:"required,max=20"`
	MeterStart    int      `json:"meterStart" validate:"min=0"`
	ReservationId *int     `json:"reservationId,omitempty"`
	Timestamp     DateTime `json:"timestamp" validate:"required"`
}

type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" validate:"required"`
	TransactionId int       `json:"transactionId" validate:"required"`
}

type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty" validate:"omitempty,max=20"`
	MeterStop       int          `json:"meterStop" validate:"min=0"`
	Timestamp       DateTime     `json:"timestamp" validate:"required"`
	TransactionId   int          `json:"transactionId" validate:"required"`
	Reason          *Reason      `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" validate:"min=0"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1"`
}

type MeterValuesResponse struct{}

type DataTransferRequest struct {
	VendorId  string      `json:"vendorId" validate:"required,max=255"`
	MessageId *string     `json:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      interface{} `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status DataTransferStatus `json:"status" validate:"required"`
	Data   interface{}        `json:"data,omitempty"`
}

type DiagnosticsStatusNotificationRequest struct {
	Status string `json:"status" validate:"required"`
}

type DiagnosticsStatusNotificationResponse struct{}

type FirmwareStatusNotificationRequest struct {
	Status string `json:"status" validate:"required"`
}

type FirmwareStatusNotificationResponse struct{}

// RemoteStartTransactionRequest is the one central-initiated Call this
// system sends (spec.md §6): AutoRemoteStart, and any custom middleware.
type RemoteStartTransactionRequest struct {
	ConnectorId *int   `json:"connectorId,omitempty" validate:"omitempty,min=1"`
	IdTag       string `json:"idTag" validate:"required,max=20"`
}

type RemoteStartTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId" validate:"required"`
}

type RemoteStopTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

// NewPayload returns a pointer to a zero-value request struct for the
// given station-initiated action, used by Session to decode an inbound
// Call's payload before validation. For the two central-initiated actions
// (RemoteStartTransaction, RemoteStopTransaction) it returns a pointer to
// the matching response struct instead. Returns nil for any other action.
func NewPayload(action Action) interface{} {
	switch action {
	case ActionBootNotification:
		return &BootNotificationRequest{}
	case ActionHeartbeat:
		return &HeartbeatRequest{}
	case ActionStatusNotification:
		return &StatusNotificationRequest{}
	case ActionAuthorize:
		return &AuthorizeRequest{}
	case ActionStartTransaction:
		return &StartTransactionRequest{}
	case ActionStopTransaction:
		return &StopTransactionRequest{}
	case ActionMeterValues:
		return &MeterValuesRequest{}
	case ActionDataTransfer:
		return &DataTransferRequest{}
	case ActionDiagnosticsStatusNotification:
		return &DiagnosticsStatusNotificationRequest{}
	case ActionFirmwareStatusNotification:
		return &FirmwareStatusNotificationRequest{}
	case ActionRemoteStartTransaction:
		return &RemoteStartTransactionResponse{}
	case ActionRemoteStopTransaction:
		return &RemoteStopTransactionResponse{}
	default:
		return nil
	}
}
