package store

import (
	"context"
	"sync"
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
)

// Memory is the in-memory Store implementation: one mutex-guarded map per
// entity, grounded on the teacher's in-process manager maps (business/
// chargepoint/manager.go, business/transaction/manager.go) but rebuilt
// around this package's entity/interface shapes rather than the teacher's
// richer domain objects. Transaction IDs are assigned sequentially,
// resolving spec.md §9's Open Question in favor of server-generated IDs
// (grounded on business/transaction/manager.go's generateTransactionID).
type Memory struct {
	mu sync.Mutex

	chargePoints map[string]*ChargePoint
	connectors   map[connectorKey]*Connector
	transactions map[int]*Transaction
	nextTxID     int

	meterValues map[int][]MeterValue // by transaction id
	nextMeterID int64

	messages      map[int64]*Message
	messagesByKey map[messageKey]int64
	nextMessageID int64
}

type connectorKey struct {
	cpID string
	connID int
}

type messageKey struct {
	actor    Actor
	uniqueID string
}

func NewMemory() *Memory {
	return &Memory{
		chargePoints:  make(map[string]*ChargePoint),
		connectors:    make(map[connectorKey]*Connector),
		transactions:  make(map[int]*Transaction),
		meterValues:   make(map[int][]MeterValue),
		messages:      make(map[int64]*Message),
		messagesByKey: make(map[messageKey]int64),
		nextTxID:      1,
		nextMeterID:   1,
		nextMessageID: 1,
	}
}

func (m *Memory) UpsertChargePoint(ctx context.Context, id string, f ChargePointFields) (*ChargePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.chargePoints[id]
	if !ok {
		cp = &ChargePoint{ID: id}
		m.chargePoints[id] = cp
	}
	applyChargePointFields(cp, f)
	cpCopy := *cp
	return &cpCopy, nil
}

func applyChargePointFields(cp *ChargePoint, f ChargePointFields) {
	if f.Vendor != nil {
		cp.Vendor = *f.Vendor
	}
	if f.Model != nil {
		cp.Model = *f.Model
	}
	if f.Serial != nil {
		cp.Serial = *f.Serial
	}
	if f.Firmware != nil {
		cp.Firmware = *f.Firmware
	}
	if f.Iccid != nil {
		cp.Iccid = *f.Iccid
	}
	if f.Imsi != nil {
		cp.Imsi = *f.Imsi
	}
	if f.Status != nil {
		cp.Status = *f.Status
	}
	if f.ErrorCode != nil {
		cp.ErrorCode = *f.ErrorCode
	}
	if f.VendorErrorCode != nil {
		cp.VendorErrorCode = *f.VendorErrorCode
	}
	if f.VendorStatusInfo != nil {
		cp.VendorStatusInfo = *f.VendorStatusInfo
	}
	if f.VendorStatusID != nil {
		cp.VendorStatusID = *f.VendorStatusID
	}
	if f.IsConnected != nil {
		cp.IsConnected = *f.IsConnected
	}
	if f.RoutingHint != nil {
		cp.RoutingHint = *f.RoutingHint
	}
	if f.LastBootAt != nil {
		cp.LastBootAt = f.LastBootAt
	}
	if f.LastTxStartAt != nil {
		cp.LastTxStartAt = f.LastTxStartAt
	}
	if f.LastTxStopAt != nil {
		cp.LastTxStopAt = f.LastTxStopAt
	}
}

func (m *Memory) UpdateConnection(ctx context.Context, id string, connected bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.chargePoints[id]
	if !ok {
		cp = &ChargePoint{ID: id}
		m.chargePoints[id] = cp
	}
	cp.IsConnected = connected
	if connected {
		cp.LastConnectAt = &at
	}
	return nil
}

func (m *Memory) UpdateHeartbeat(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.chargePoints[id]
	if !ok {
		cp = &ChargePoint{ID: id}
		m.chargePoints[id] = cp
	}
	cp.LastHeartbeatAt = &at
	return nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, status ocpp.ChargePointStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.chargePoints[id]
	if !ok {
		cp = &ChargePoint{ID: id}
		m.chargePoints[id] = cp
	}
	cp.Status = status
	return nil
}

func (m *Memory) GetChargePoint(ctx context.Context, id string) (*ChargePoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.chargePoints[id]
	if !ok {
		return nil, false, nil
	}
	cpCopy := *cp
	return &cpCopy, true, nil
}

func (m *Memory) UpsertConnector(ctx context.Context, cpID string, connID int, status ocpp.ChargePointStatus, errCode ocpp.ChargePointErrorCode, vendorError string) (*Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := connectorKey{cpID, connID}
	c, ok := m.connectors[key]
	if !ok {
		c = &Connector{ChargePointID: cpID, ConnectorID: connID}
		m.connectors[key] = c
	}
	c.Status = status
	c.ErrorCode = errCode
	c.VendorErrorCode = vendorError
	cCopy := *c
	return &cCopy, nil
}

func (m *Memory) GetConnector(ctx context.Context, cpID string, connID int) (*Connector, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connectors[connectorKey{cpID, connID}]
	if !ok {
		return nil, false, nil
	}
	cCopy := *c
	return &cCopy, true, nil
}

// CreateTransaction assigns the next sequential transaction id and marks
// it Active. spec.md §8's "StartTransaction while a prior transaction is
// still Active on the same connector" scenario is the caller's (handler's)
// responsibility to resolve via StopTransaction first; the store itself
// does not reject concurrent Active transactions on one connector, since a
// station is free to report a new start before the old one's StopTransaction
// arrives (the orphan-closure path, spec.md §8 S2/S3).
func (m *Memory) CreateTransaction(ctx context.Context, cpID string, connID int, idTag string, start time.Time, meterStart int) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Transaction{
		ID:            m.nextTxID,
		ChargePointID: cpID,
		ConnectorID:   connID,
		IDTag:         idTag,
		StartTime:     start,
		MeterStart:    meterStart,
		Status:        TransactionActive,
	}
	m.nextTxID++
	m.transactions[tx.ID] = tx
	txCopy := *tx
	return &txCopy, nil
}

func (m *Memory) StopTransaction(ctx context.Context, id int, stop time.Time, meterStop int, reason ocpp.Reason) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	tx.StopTime = &stop
	tx.MeterStop = &meterStop
	delivered := meterStop - tx.MeterStart
	tx.EnergyDelivered = &delivered
	tx.StopReason = &reason
	tx.Status = TransactionCompleted
	txCopy := *tx
	return &txCopy, nil
}

func (m *Memory) ActiveForChargePoint(ctx context.Context, cpID string) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Transaction
	for _, tx := range m.transactions {
		if tx.ChargePointID == cpID && tx.Status == TransactionActive {
			txCopy := *tx
			out = append(out, &txCopy)
		}
	}
	return out, nil
}

// AllActiveTransactions returns every Active transaction across every
// station, for the periodic orphan sweep.
func (m *Memory) AllActiveTransactions(ctx context.Context) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Transaction
	for _, tx := range m.transactions {
		if tx.Status == TransactionActive {
			txCopy := *tx
			out = append(out, &txCopy)
		}
	}
	return out, nil
}

func (m *Memory) GetTransaction(ctx context.Context, id int) (*Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, false, nil
	}
	txCopy := *tx
	return &txCopy, true, nil
}

func (m *Memory) CreateMeterValues(ctx context.Context, values []MeterValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range values {
		values[i].ID = m.nextMeterID
		m.nextMeterID++
		m.meterValues[values[i].TransactionID] = append(m.meterValues[values[i].TransactionID], values[i])
	}
	return nil
}

// LastForTransaction returns the most recent reading for measurand on a
// transaction, scanning back-to-front since values are appended in
// arrival order. Used by orphan closure (spec.md §8 S2) to recover an
// energy register reading when no StopTransaction ever arrives.
func (m *Memory) LastForTransaction(ctx context.Context, txID int, measurand ocpp.Measurand) (*MeterValue, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := m.meterValues[txID]
	for i := len(values) - 1; i >= 0; i-- {
		if values[i].Measurand == measurand {
			v := values[i]
			return &v, true, nil
		}
	}
	return nil, false, nil
}

func (m *Memory) InsertMessage(ctx context.Context, f MessageFields) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := messageKey{f.Actor, f.UniqueID}
	if _, exists := m.messagesByKey[key]; exists {
		return nil, ErrDuplicateMessage
	}

	msg := &Message{
		ID:               m.nextMessageID,
		ChargePointID:    f.ChargePointID,
		TransactionID:    f.TransactionID,
		Actor:            f.Actor,
		MessageType:      f.MessageType,
		UniqueID:         f.UniqueID,
		Action:           f.Action,
		ErrorCode:        f.ErrorCode,
		ErrorDescription: f.ErrorDescription,
		Body:             f.Body,
		CreatedAt:        time.Now(),
	}
	m.nextMessageID++
	m.messages[msg.ID] = msg
	m.messagesByKey[key] = msg.ID
	msgCopy := *msg
	return &msgCopy, nil
}

func (m *Memory) LinkReply(ctx context.Context, callID, replyID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.messages[callID]
	if !ok {
		return ErrNotFound
	}
	call.ReplyID = &replyID
	return nil
}

// LinkTransaction retroactively attaches the new transaction id to the
// inbound StartTransaction Call that created it (spec.md §4.5 step 4),
// since the transaction does not exist yet when the Call is inserted.
func (m *Memory) LinkTransaction(ctx context.Context, messageID int64, txID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	msg.TransactionID = &txID
	return nil
}

func (m *Memory) FindCall(ctx context.Context, actor Actor, uniqueID string) (*Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.messagesByKey[messageKey{actor, uniqueID}]
	if !ok {
		return nil, false, nil
	}
	msg := m.messages[id]
	msgCopy := *msg
	return &msgCopy, true, nil
}

var _ Store = (*Memory)(nil)
