// Package pipeline is the onion-shaped middleware composition spec.md
// §4.4 describes. It is new code: the teacher's internal/protocol/ocpp16
// dispatches by a flat switch statement, not composable middleware, so
// this package is grounded on spec.md §4.4/§9's explicit design notes
// ("model as a function-composition over Request → Response... build the
// chain once per action and reuse") and on the Python original_source's
// middleware-list-per-action shape, rewritten as Go func composition.
package pipeline

import (
	"context"
	"time"

	"github.com/chargenet/central-system/internal/ocpp"
)

// Key identifies one (action, message_type) pair in the catalog. Only
// Call is ever dispatched through the catalog — CallResult/CallError
// correlation is handled directly by Session (spec.md §4.3 step 3).
type Key struct {
	Action      ocpp.Action
	MessageType ocpp.MessageType
}

// Request is the pipeline's input: one decoded inbound Call plus a
// scratch space middlewares can use to pass data to each other and to
// after-hooks.
type Request struct {
	StationID string
	UniqueID  string
	MessageID int64 // the inbound Call's Message row, for LinkTransaction
	Action    ocpp.Action
	Payload   interface{} // the decoded, validated request struct
	Extra     map[string]interface{}
}

// ReplyError, when set on a Response, means the terminal responder must
// produce a CallError instead of a CallResult.
type ReplyError struct {
	Code        ocpp.ErrorCode
	Description string
}

// SideEffect is one central-initiated Call a middleware wants sent to the
// station after this Request's reply, e.g. RemoteStartTransaction.
type SideEffect struct {
	Action  ocpp.Action
	Payload interface{}
}

// Response is the pipeline's output: a reply payload (or error) plus any
// side-effect calls appended by middlewares along the chain.
type Response struct {
	ReplyPayload interface{}
	ReplyErr     *ReplyError
	TransactionID *int
	SideEffects  []SideEffect
	Extra        map[string]interface{}
}

// newTerminalResponse builds the empty CallResult shell spec.md §4.4
// describes: handlers fill ReplyPayload, nothing else is pre-populated.
func newTerminalResponse() *Response {
	return &Response{Extra: map[string]interface{}{}}
}

// Handler processes a Request and produces a Response. A chain's
// terminal handler is the actual domain action; middlewares wrap it.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps a Handler, returning a new Handler that runs before-
// and on-phase logic around it, per spec.md §4.4's onion composition.
type Middleware func(next Handler) Handler

// Chain composes middlewares around a terminal handler, outermost first:
// Chain(terminal, m1, m2) runs m1's before-logic, then m2's, then
// terminal, then m2's on-logic, then m1's on-logic.
func Chain(terminal Handler, mws ...Middleware) Handler {
	h := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// AfterHook runs once the reply has already been written to the
// transport (spec.md §4.4's after phase). It may append further
// side-effect calls via enqueue; errors are swallowed by the caller
// (Session), never surfacing to the station. delay of 0 means "use the
// session's default outbound delay"; a hook that needs its own pacing
// (e.g. auto-remote-start's configurable delay) passes a positive value.
type AfterHook func(ctx context.Context, req *Request, resp *Response, enqueue func(action ocpp.Action, payload interface{}, delay time.Duration))

// Catalog is the closed (action, message_type) → chain mapping spec.md
// §9 calls for: built once at boot by internal/handlers.BuildCatalog,
// read-only thereafter.
type Catalog struct {
	chains map[Key]Handler
	after  map[Key][]AfterHook
}

func NewCatalog() *Catalog {
	return &Catalog{
		chains: make(map[Key]Handler),
		after:  make(map[Key][]AfterHook),
	}
}

// Register installs the chain for (action, Call). Called only during
// catalog construction at boot.
func (c *Catalog) Register(action ocpp.Action, terminal Handler, mws ...Middleware) {
	c.chains[Key{Action: action, MessageType: ocpp.Call}] = Chain(terminal, mws...)
}

// RegisterAfter appends an after-phase hook for (action, Call).
func (c *Catalog) RegisterAfter(action ocpp.Action, hook AfterHook) {
	key := Key{Action: action, MessageType: ocpp.Call}
	c.after[key] = append(c.after[key], hook)
}

// unknownActionError is returned by Dispatch when no chain is registered
// for the request's action; callers detect it with IsUnknownAction, and
// the Session turns it into a NotImplemented CallError (spec.md §7).
type unknownActionError struct{ action ocpp.Action }

func (e *unknownActionError) Error() string { return "unknown action: " + string(e.action) }

func IsUnknownAction(err error) bool {
	_, ok := err.(*unknownActionError)
	return ok
}

// Dispatch runs the chain registered for req.Action, or returns an
// unknown-action error if none exists.
func (c *Catalog) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	h, ok := c.chains[Key{Action: req.Action, MessageType: ocpp.Call}]
	if !ok {
		return nil, &unknownActionError{action: req.Action}
	}
	return h(ctx, req)
}

// RunAfter invokes every after-hook registered for req.Action, in
// registration order. Hook panics are not recovered here; Session wraps
// the call so a misbehaving hook cannot take down the station's inbound
// loop, per spec.md §7's "observer sink failure: log and swallow".
func (c *Catalog) RunAfter(ctx context.Context, req *Request, resp *Response, enqueue func(action ocpp.Action, payload interface{}, delay time.Duration)) {
	for _, hook := range c.after[Key{Action: req.Action, MessageType: ocpp.Call}] {
		hook(ctx, req, resp, enqueue)
	}
}

// NewResponse exposes the terminal shell constructor to internal/handlers
// so every terminal handler starts from the same empty Response.
func NewResponse() *Response { return newTerminalResponse() }
