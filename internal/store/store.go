// Package store owns every persistent entity named in spec.md §3
// (ChargePoint, Connector, Transaction, MeterValue, Message) behind a
// repository interface. Persistent storage engine choice is explicitly
// out of scope (spec.md §1); this package's contract is the deliverable,
// and the in-memory implementation in memory.go is a complete,
// sufficient backend for it — see DESIGN.md.
package store

import (
	"context"
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
)

// ChargePoint is the spec.md §3 ChargePoint entity.
type ChargePoint struct {
	ID                string
	Vendor            string
	Model             string
	Serial            string
	Firmware          string
	Iccid             string
	Imsi              string
	Status            ocpp.ChargePointStatus
	ErrorCode         ocpp.ChargePointErrorCode
	VendorErrorCode   string
	VendorStatusInfo  string
	VendorStatusID    string
	IsConnected       bool
	RoutingHint       string
	LastHeartbeatAt   *time.Time
	LastBootAt        *time.Time
	LastConnectAt     *time.Time
	LastTxStartAt     *time.Time
	LastTxStopAt      *time.Time
}

// ChargePointFields carries optional partial-update values: a nil pointer
// means "leave the existing value alone" (spec.md §4.2's upsert rule).
type ChargePointFields struct {
	Vendor           *string
	Model            *string
	Serial           *string
	Firmware         *string
	Iccid            *string
	Imsi             *string
	Status           *ocpp.ChargePointStatus
	ErrorCode        *ocpp.ChargePointErrorCode
	VendorErrorCode  *string
	VendorStatusInfo *string
	VendorStatusID   *string
	IsConnected      *bool
	RoutingHint      *string
	LastBootAt       *time.Time
	LastTxStartAt    *time.Time
	LastTxStopAt     *time.Time
}

// Connector is the spec.md §3 Connector entity, keyed by (cp_id, conn_id).
type Connector struct {
	ChargePointID string
	ConnectorID   int
	Status        ocpp.ChargePointStatus
	ErrorCode     ocpp.ChargePointErrorCode
	VendorErrorCode string
}

// TransactionStatus is Active or Completed per spec.md §3.
type TransactionStatus string

const (
	TransactionActive    TransactionStatus = "Active"
	TransactionCompleted TransactionStatus = "Completed"
)

// Transaction is the spec.md §3 Transaction entity.
type Transaction struct {
	ID              int
	ChargePointID   string
	ConnectorID     int
	IDTag           string
	StartTime       time.Time
	StopTime        *time.Time
	MeterStart      int
	MeterStop       *int
	EnergyDelivered *int
	StopReason      *ocpp.Reason
	Status          TransactionStatus
}

// MeterValue is the spec.md §3 MeterValue entity.
type MeterValue struct {
	ID            int64
	TransactionID int
	Timestamp     time.Time
	Measurand     ocpp.Measurand
	Unit          ocpp.UnitOfMeasure
	Value         string
	Context       ocpp.ReadingContext
	Location      ocpp.Location
	Phase         ocpp.Phase
	Format        ocpp.ValueFormat
	IsFinal       bool
}

type Actor string

const (
	ActorChargePoint   Actor = "charge_point"
	ActorCentralSystem Actor = "central_system"
)

// Message is the spec.md §3 Message entity: every inbound/outbound frame.
type Message struct {
	ID               int64
	ChargePointID    string
	TransactionID    *int
	Actor            Actor
	MessageType      ocpp.MessageType
	UniqueID         string
	Action           *ocpp.Action
	ErrorCode        *ocpp.ErrorCode
	ErrorDescription *string
	Body             []byte
	ReplyID          *int64
	CreatedAt        time.Time
}

// MessageFields are the fields callers provide to Store.InsertMessage; ID and
// CreatedAt are assigned by the Store.
type MessageFields struct {
	ChargePointID    string
	TransactionID    *int
	Actor            Actor
	MessageType      ocpp.MessageType
	UniqueID         string
	Action           *ocpp.Action
	ErrorCode        *ocpp.ErrorCode
	ErrorDescription *string
	Body             []byte
}

// Store groups the repository operations spec.md §4.2 names, by entity.
type Store interface {
	UpsertChargePoint(ctx context.Context, id string, fields ChargePointFields) (*ChargePoint, error)
	UpdateConnection(ctx context.Context, id string, connected bool, at time.Time) error
	UpdateHeartbeat(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status ocpp.ChargePointStatus) error
	GetChargePoint(ctx context.Context, id string) (*ChargePoint, bool, error)

	UpsertConnector(ctx context.Context, cpID string, connID int, status ocpp.ChargePointStatus, errCode ocpp.ChargePointErrorCode, vendorError string) (*Connector, error)
	GetConnector(ctx context.Context, cpID string, connID int) (*Connector, bool, error)

	CreateTransaction(ctx context.Context, cpID string, connID int, idTag string, start time.Time, meterStart int) (*Transaction, error)
	StopTransaction(ctx context.Context, id int, stop time.Time, meterStop int, reason ocpp.Reason) (*Transaction, error)
	ActiveForChargePoint(ctx context.Context, cpID string) ([]*Transaction, error)
	AllActiveTransactions(ctx context.Context) ([]*Transaction, error)
	GetTransaction(ctx context.Context, id int) (*Transaction, bool, error)

	CreateMeterValues(ctx context.Context, values []MeterValue) error
	LastForTransaction(ctx context.Context, txID int, measurand ocpp.Measurand) (*MeterValue, bool, error)

	InsertMessage(ctx context.Context, fields MessageFields) (*Message, error)
	LinkReply(ctx context.Context, callID, replyID int64) error
	LinkTransaction(ctx context.Context, messageID int64, txID int) error
	FindCall(ctx context.Context, actor Actor, uniqueID string) (*Message, bool, error)
}

// ErrDuplicateMessage is returned by InsertMessage when (actor, unique_id)
// already exists — spec.md §4.2/§7 treats this as an idempotent no-op for
// the caller to detect and drop, not a hard failure.
var ErrDuplicateMessage = &storeError{"duplicate (actor, unique_id)"}

// ErrNotFound is returned by lookups on a missing row, where the caller
// needs to distinguish "not found" from other failures.
var ErrNotFound = &storeError{"not found"}

type storeError struct{ msg string }

func (e *storeError) Error() string { return e.msg }
