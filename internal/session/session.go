// Package session implements the per-station actor spec.md §4.3
// describes: one Session owns one transport for the duration of a
// station's connection, serializing inbound dispatch and outbound
// command delivery. Grounded on the teacher's ConnectionWrapper
// (internal/transport/websocket/manager.go — sendChan/receiveRoutine/
// pingRoutine/per-connection context idiom), generalized from the
// teacher's fire-and-forget SendMessage to the stricter single-in-flight,
// await-reply-or-timeout outbound discipline spec.md §4.3/§5 requires.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chargenet/central-system/internal/logger"
	"github.com/chargenet/central-system/internal/observer"
	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/registry"
	"github.com/chargenet/central-system/internal/routing"
	"github.com/chargenet/central-system/internal/store"
)

// Config holds the timing knobs spec.md §4.3/§5 names, each with the
// spec's stated default.
type Config struct {
	HeartbeatInterval time.Duration
	WatchdogGrace     time.Duration
	OutboundDelay     time.Duration
	ReplyTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 60 * time.Second,
		WatchdogGrace:     60 * time.Second,
		OutboundDelay:     time.Second,
		ReplyTimeout:      30 * time.Second,
	}
}

type outboundCall struct {
	action  ocpp.Action
	payload interface{}
	delay   time.Duration // 0 means "use cfg.OutboundDelay"
}

// Session owns one station's transport. All handler invocations for this
// station are serialized on the inbound goroutine (spec.md §5); the
// outbound goroutine drains the command channel independently.
type Session struct {
	stationID  string
	transport  Transport
	remoteAddr string

	store     store.Store
	catalog   *pipeline.Catalog
	bus       *observer.Bus
	reg       *registry.Registry
	validator *ocpp.Validator
	log       *logger.Logger
	cfg       Config

	// routingStore and podID back the multi-pod routing-hint (spec.md
	// §3's ChargePoint.outbound-routing-hint attribute): nil routingStore
	// means single-pod deployment, no ownership tracking needed.
	routingStore routing.RoutingStore
	podID        string

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan outboundCall

	waitersMu sync.Mutex
	waiters   map[string]chan *ocpp.Frame

	watchdogMu sync.Mutex
	watchdog   *time.Timer

	closeOnce sync.Once
}

// routingStore may be nil: single-pod deployments pass nil and skip
// ownership tracking entirely. podID identifies this process when it is
// not nil, used as the value stored against the station's key.
func New(stationID string, transport Transport, remoteAddr string, st store.Store, catalog *pipeline.Catalog, bus *observer.Bus, reg *registry.Registry, validator *ocpp.Validator, log *logger.Logger, cfg Config, routingStore routing.RoutingStore, podID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		stationID:    stationID,
		transport:    transport,
		remoteAddr:   remoteAddr,
		store:        st,
		catalog:      catalog,
		bus:          bus,
		reg:          reg,
		validator:    validator,
		log:          log,
		cfg:          cfg,
		routingStore: routingStore,
		podID:        podID,
		ctx:          ctx,
		cancel:       cancel,
		outbound:     make(chan outboundCall, 32),
		waiters:      make(map[string]chan *ocpp.Frame),
	}
}

func (s *Session) StationID() string { return s.stationID }

// SendCommand enqueues a central-initiated Call for delivery through the
// outbound loop's existing delay/single-flight/reply-timeout discipline.
// Exported so internal/server can drive it from the command inlet without
// depending on Session internals; auto-remote-start does not use it, but
// enqueues through the catalog's after-hook callback instead.
func (s *Session) SendCommand(action ocpp.Action, payload interface{}) {
	s.enqueueOutbound(action, payload)
}

// Run establishes the lazy ChargePoint row (spec.md §4.3's "Lazy
// creation"), registers with the Registry, and blocks running the inbound
// loop until the connection ends; the outbound loop runs concurrently.
// Callers (the Acceptor) invoke this on its own goroutine per connection.
func (s *Session) Run() {
	unknown := ocpp.StatusUnknown
	connected := true
	if _, err := s.store.UpsertChargePoint(s.ctx, s.stationID, store.ChargePointFields{
		Status:      &unknown,
		IsConnected: &connected,
	}); err != nil {
		s.log.Errorf("session %s: lazy chargepoint upsert failed: %v", s.stationID, err)
	}
	if err := s.store.UpdateConnection(s.ctx, s.stationID, true, time.Now()); err != nil {
		s.log.Errorf("session %s: update connection failed: %v", s.stationID, err)
	}

	s.reg.Register(s.stationID, s)
	s.bus.ConnectionUp(s.stationID)
	s.bus.Connect(s.stationID, s.remoteAddr)

	s.refreshRoutingOwnership()
	s.armWatchdogAfterGrace()

	go s.outboundLoop()
	s.inboundLoop()
	s.cleanup()
}

func (s *Session) inboundLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, raw, err := s.transport.ReadMessage()
		if err != nil {
			return
		}

		s.bus.Frame(s.stationID, observer.DirectionRecv, raw, s.remoteAddr)
		s.handleInbound(raw)
	}
}

func (s *Session) handleInbound(raw []byte) {
	frame, err := ocpp.Decode(raw)
	if err != nil {
		s.handleFrameError(err)
		return
	}

	switch frame.Type {
	case ocpp.Call:
		s.handleCall(frame)
	case ocpp.CallResult, ocpp.CallError:
		s.handleReply(frame)
	}
}

// handleFrameError implements spec.md §7's malformed-frame row: a
// CallError if the unique_id survived parsing, otherwise a protocol-error
// close.
func (s *Session) handleFrameError(err error) {
	fe, ok := err.(*ocpp.FrameError)
	if !ok || !fe.Recoverable() {
		s.closeWith(websocket.CloseProtocolError, "protocol error")
		return
	}
	s.writeReply(ocpp.EncodeCallError(fe.UniqueID, ocpp.ErrorFormationViolation, fe.Reason, nil))
}

// handleCall implements spec.md §4.3 step 4 and §4.5: persist, validate,
// dispatch through the Pipeline, write the reply, then enqueue side
// effects and run after-hooks.
func (s *Session) handleCall(frame *ocpp.Frame) {
	action := frame.Action
	msg, err := s.store.InsertMessage(s.ctx, store.MessageFields{
		ChargePointID: s.stationID,
		Actor:         store.ActorChargePoint,
		MessageType:   ocpp.Call,
		UniqueID:      frame.UniqueID,
		Action:        &action,
		Body:          frame.Payload,
	})
	if err != nil {
		if err == store.ErrDuplicateMessage {
			return
		}
		s.log.Errorf("session %s: insert call message failed: %v", s.stationID, err)
		return
	}

	if !ocpp.IsSupportedAction(frame.Action) {
		s.writeReply(ocpp.EncodeCallError(frame.UniqueID, ocpp.ErrorNotImplemented, "unsupported action: "+string(frame.Action), nil))
		return
	}

	payload := ocpp.NewPayload(frame.Action)
	if payload == nil {
		s.writeReply(ocpp.EncodeCallError(frame.UniqueID, ocpp.ErrorNotImplemented, "unsupported action: "+string(frame.Action), nil))
		return
	}
	if err := json.Unmarshal(frame.Payload, payload); err != nil {
		s.writeReply(ocpp.EncodeCallError(frame.UniqueID, ocpp.ErrorFormationViolation, err.Error(), nil))
		return
	}
	if err := s.validator.ValidateStruct(payload); err != nil {
		s.writeReply(ocpp.EncodeCallError(frame.UniqueID, ocpp.ErrorPropertyConstraintViolation, err.Error(), nil))
		return
	}

	req := &pipeline.Request{
		StationID: s.stationID,
		UniqueID:  frame.UniqueID,
		MessageID: msg.ID,
		Action:    frame.Action,
		Payload:   payload,
		Extra:     map[string]interface{}{},
	}

	start := time.Now()
	resp, err := s.catalog.Dispatch(s.ctx, req)
	s.bus.HandlerLatency(s.stationID, frame.Action, time.Since(start))
	s.bus.MessageReceived(s.stationID, frame.Action)

	if err != nil {
		if pipeline.IsUnknownAction(err) {
			s.writeReply(ocpp.EncodeCallError(frame.UniqueID, ocpp.ErrorNotImplemented, err.Error(), nil))
		} else {
			s.writeReply(ocpp.EncodeCallError(frame.UniqueID, ocpp.ErrorInternalError, err.Error(), nil))
		}
		return
	}

	if frame.Action == ocpp.ActionHeartbeat {
		s.resetWatchdog()
	}

	if resp.TransactionID != nil {
		if lerr := s.store.LinkTransaction(s.ctx, msg.ID, *resp.TransactionID); lerr != nil {
			s.log.Errorf("session %s: link transaction failed: %v", s.stationID, lerr)
		}
	}

	if resp.ReplyErr != nil {
		s.writeReply(ocpp.EncodeCallError(frame.UniqueID, resp.ReplyErr.Code, resp.ReplyErr.Description, nil))
	} else {
		s.writeReply(ocpp.EncodeCallResult(frame.UniqueID, resp.ReplyPayload))
	}

	for _, se := range resp.SideEffects {
		s.enqueueOutbound(se.Action, se.Payload)
	}

	s.runAfterSafely(req, resp)
}

// runAfterSafely invokes the catalog's after-hooks with a panic guard, so
// a misbehaving hook (e.g. the auto-remote-start supplement) cannot take
// down this station's inbound loop.
func (s *Session) runAfterSafely(req *pipeline.Request, resp *pipeline.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("session %s: after-hook panic: %v", s.stationID, r)
		}
	}()
	s.catalog.RunAfter(s.ctx, req, resp, func(action ocpp.Action, payload interface{}, delay time.Duration) {
		s.enqueueOutboundWithDelay(action, payload, delay)
	})
}

// handleReply implements spec.md §4.3 step 3: correlate to the local
// waiter, persist the reply row with the originating action copied over,
// link it in Store, and warn-and-drop when no waiter is found.
func (s *Session) handleReply(frame *ocpp.Frame) {
	s.waitersMu.Lock()
	ch, waiting := s.waiters[frame.UniqueID]
	if waiting {
		delete(s.waiters, frame.UniqueID)
	}
	s.waitersMu.Unlock()

	call, found, err := s.store.FindCall(s.ctx, store.ActorCentralSystem, frame.UniqueID)
	if err != nil {
		s.log.Errorf("session %s: find call failed: %v", s.stationID, err)
	}
	var action *ocpp.Action
	if found {
		action = call.Action
	}

	msgType := ocpp.CallResult
	var body []byte
	var errCode *ocpp.ErrorCode
	var errDesc *string
	if frame.Type == ocpp.CallError {
		msgType = ocpp.CallError
		c, d := frame.ErrorCode, frame.ErrorDescription
		errCode, errDesc = &c, &d
		body = frame.ErrorDetails
	} else {
		body = frame.Payload
	}

	reply, err := s.store.InsertMessage(s.ctx, store.MessageFields{
		ChargePointID:    s.stationID,
		Actor:            store.ActorChargePoint,
		MessageType:      msgType,
		UniqueID:         frame.UniqueID,
		Action:           action,
		ErrorCode:        errCode,
		ErrorDescription: errDesc,
		Body:             body,
	})
	if err != nil {
		if err != store.ErrDuplicateMessage {
			s.log.Errorf("session %s: insert reply message failed: %v", s.stationID, err)
		}
	} else if found {
		if lerr := s.store.LinkReply(s.ctx, call.ID, reply.ID); lerr != nil {
			s.log.Errorf("session %s: link reply failed: %v", s.stationID, lerr)
		}
	}

	if !waiting {
		s.log.Warnf("session %s: unknown reply unique_id %s", s.stationID, frame.UniqueID)
		return
	}
	select {
	case ch <- frame:
	default:
	}
}

func (s *Session) writeReply(raw []byte, err error) {
	if err != nil {
		s.log.Errorf("session %s: encode reply failed: %v", s.stationID, err)
		return
	}
	if werr := s.transport.WriteMessage(websocket.TextMessage, raw); werr != nil {
		s.log.Errorf("session %s: write reply failed: %v", s.stationID, werr)
		return
	}
	s.bus.Frame(s.stationID, observer.DirectionSend, raw, s.remoteAddr)
}

func (s *Session) enqueueOutbound(action ocpp.Action, payload interface{}) {
	s.enqueueOutboundWithDelay(action, payload, 0)
}

func (s *Session) enqueueOutboundWithDelay(action ocpp.Action, payload interface{}, delay time.Duration) {
	select {
	case s.outbound <- outboundCall{action: action, payload: payload, delay: delay}:
	case <-s.ctx.Done():
	}
}

// outboundLoop implements spec.md §4.3's outbound-channel discipline:
// one call at a time, each held for the configured delay, each awaiting
// its reply or a timeout before the next is sent.
func (s *Session) outboundLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case oc := <-s.outbound:
			s.sendOutbound(oc)
		}
	}
}

func (s *Session) sendOutbound(oc outboundCall) {
	delay := s.cfg.OutboundDelay
	if oc.delay > 0 {
		delay = oc.delay
	}
	select {
	case <-time.After(delay):
	case <-s.ctx.Done():
		return
	}

	uniqueID := uuid.NewString()
	raw, err := ocpp.EncodeCall(uniqueID, oc.action, oc.payload)
	if err != nil {
		s.log.Errorf("session %s: encode outbound call failed: %v", s.stationID, err)
		return
	}

	action := oc.action
	if _, err := s.store.InsertMessage(s.ctx, store.MessageFields{
		ChargePointID: s.stationID,
		Actor:         store.ActorCentralSystem,
		MessageType:   ocpp.Call,
		UniqueID:      uniqueID,
		Action:        &action,
		Body:          raw,
	}); err != nil && err != store.ErrDuplicateMessage {
		s.log.Errorf("session %s: insert outbound message failed: %v", s.stationID, err)
	}

	waitCh := make(chan *ocpp.Frame, 1)
	s.waitersMu.Lock()
	s.waiters[uniqueID] = waitCh
	s.waitersMu.Unlock()

	if werr := s.transport.WriteMessage(websocket.TextMessage, raw); werr != nil {
		s.log.Errorf("session %s: write outbound call failed: %v", s.stationID, werr)
		s.waitersMu.Lock()
		delete(s.waiters, uniqueID)
		s.waitersMu.Unlock()
		return
	}
	s.bus.Frame(s.stationID, observer.DirectionSend, raw, s.remoteAddr)
	s.bus.MessageSent(s.stationID, oc.action)

	select {
	case reply := <-waitCh:
		rejected := reply.Type == ocpp.CallError
		if !rejected {
			var body struct {
				Status string `json:"status"`
			}
			rejected = json.Unmarshal(reply.Payload, &body) == nil && body.Status == string(ocpp.RemoteRejected)
		}
		if rejected {
			s.bus.CallRejected(s.stationID, oc.action)
		}
	case <-time.After(s.cfg.ReplyTimeout):
		s.waitersMu.Lock()
		delete(s.waiters, uniqueID)
		s.waitersMu.Unlock()
		s.bus.CallTimeout(s.stationID, oc.action)
	case <-s.ctx.Done():
		s.waitersMu.Lock()
		delete(s.waiters, uniqueID)
		s.waitersMu.Unlock()
	}
}

// armWatchdogAfterGrace starts the heartbeat watchdog only after one
// grace period past connect (spec.md §4.3), so a station that is slow to
// send its first Heartbeat isn't disconnected immediately.
func (s *Session) armWatchdogAfterGrace() {
	s.watchdogMu.Lock()
	s.watchdog = time.AfterFunc(s.cfg.WatchdogGrace, s.resetWatchdog)
	s.watchdogMu.Unlock()
}

// resetWatchdog re-arms the deadline at now + 3×interval, per spec.md
// §4.3/§5. Called both by the grace-period timer and on every inbound
// Heartbeat.
func (s *Session) resetWatchdog() {
	s.watchdogMu.Lock()
	defer s.watchdogMu.Unlock()
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.watchdog = time.AfterFunc(3*s.cfg.HeartbeatInterval, s.onHeartbeatTimeout)
	s.refreshRoutingOwnership()
}

// refreshRoutingOwnership records this pod as the station's owner with a
// TTL matching the heartbeat watchdog window, so a crashed pod's entries
// expire on their own instead of requiring an explicit delete from
// somewhere else. No-op when routingStore is nil (single-pod deployment).
func (s *Session) refreshRoutingOwnership() {
	if s.routingStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.routingStore.SetOwner(ctx, s.stationID, s.podID, 3*s.cfg.HeartbeatInterval); err != nil {
		s.log.Errorf("session %s: set routing owner failed: %v", s.stationID, err)
	}
}

func (s *Session) onHeartbeatTimeout() {
	s.closeWith(websocket.CloseNormalClosure, "heartbeat timeout")
}

// Close implements registry.Session: invoked by the Registry when a
// newer connection for this station wins the reconnect race.
func (s *Session) Close(reason string) {
	s.closeWith(websocket.CloseNormalClosure, reason)
}

func (s *Session) closeWith(code int, reason string) {
	s.closeOnce.Do(func() {
		_ = s.transport.CloseWithReason(code, reason)
		s.cancel()
	})
}

// cleanup runs once the inbound loop exits for any reason: transport
// error, local close, or context cancellation. It is idempotent from the
// Registry's perspective (spec.md §4.3's reconnect-collision rule).
func (s *Session) cleanup() {
	s.watchdogMu.Lock()
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.watchdogMu.Unlock()

	s.reg.Unregister(s.stationID, s)
	s.releaseRoutingOwnership()

	ctx := context.Background()
	if err := s.store.UpdateConnection(ctx, s.stationID, false, time.Now()); err != nil {
		s.log.Errorf("session %s: update connection failed: %v", s.stationID, err)
	}

	if active, err := s.store.ActiveForChargePoint(ctx, s.stationID); err == nil {
		for range active {
			s.bus.DisconnectDuringActiveTx(s.stationID)
		}
	}

	s.bus.ConnectionDown(s.stationID)
	s.bus.Disconnect(s.stationID, s.remoteAddr)
}

// releaseRoutingOwnership deletes this station's routing key, but only if
// it still names this pod as owner — mirrors registry.Unregister's
// compare-before-remove idiom, so a disconnecting session never evicts
// the entry a newer session on another pod has already written (the
// reconnect-collision race, just across pods instead of within one).
func (s *Session) releaseRoutingOwnership() {
	if s.routingStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	owner, ok, err := s.routingStore.GetOwner(ctx, s.stationID)
	if err != nil {
		s.log.Errorf("session %s: get routing owner failed: %v", s.stationID, err)
		return
	}
	if !ok || owner != s.podID {
		return
	}
	if err := s.routingStore.DeleteOwner(ctx, s.stationID); err != nil {
		s.log.Errorf("session %s: delete routing owner failed: %v", s.stationID, err)
	}
}

var _ registry.Session = (*Session)(nil)
