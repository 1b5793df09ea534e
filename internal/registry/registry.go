// Package registry is the single source of truth for which Session owns
// a station's live connection (spec.md §4.6). It is new code — the
// teacher dispatches by scanning connection maps per request instead of
// keeping one authoritative registry — grounded instead on spec.md §4.6
// and §5's copy-on-write requirement; the atomic.Value swap is a
// ten-line stdlib mechanism with no third-party equivalent in the
// examples, so it stays stdlib-only (see DESIGN.md).
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/chargenet/central-system/internal/ocpp"
)

// Session is the subset of internal/session.Session the registry needs:
// enough to identify and evict an entry, and to drive a central-initiated
// call, without importing the session package (which itself depends on
// registry to announce reconnects).
type Session interface {
	StationID() string
	Close(reason string)
	SendCommand(action ocpp.Action, payload interface{})
}

// Registry maps station_id to its current Session. Reads take a snapshot
// of an immutable map via atomic.Value, so lookups never block on a
// writer; writes are serialized by mu and always replace the whole map
// (copy-on-write), per spec.md §4.6/§5.
type Registry struct {
	mu        sync.Mutex
	snapshot  atomic.Value // map[string]Session
	evictions func(stationID string, old Session)
}

func New() *Registry {
	r := &Registry{}
	r.snapshot.Store(map[string]Session{})
	return r
}

func (r *Registry) current() map[string]Session {
	return r.snapshot.Load().(map[string]Session)
}

// Get returns the Session currently registered for a station, if any.
func (r *Registry) Get(stationID string) (Session, bool) {
	s, ok := r.current()[stationID]
	return s, ok
}

// Register installs sess as the owner of stationID. If a different
// Session already owns that station_id, the old one is closed with
// reason "replaced" after the swap (spec.md §4.6's reconnect-collision
// rule: the newer connection wins, the older one is evicted, never
// rejected).
func (r *Registry) Register(stationID string, sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current()
	var previous Session
	if existing, ok := old[stationID]; ok && existing != sess {
		previous = existing
	}

	next := make(map[string]Session, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[stationID] = sess
	r.snapshot.Store(next)

	if previous != nil {
		previous.Close("replaced")
	}
}

// Unregister removes stationID from the registry, but only if sess is
// still the current owner — a stale Session closing after it already
// lost a reconnect race must not evict its replacement.
func (r *Registry) Unregister(stationID string, sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current()
	current, ok := old[stationID]
	if !ok || current != sess {
		return
	}

	next := make(map[string]Session, len(old))
	for k, v := range old {
		if k != stationID {
			next[k] = v
		}
	}
	r.snapshot.Store(next)
}

// Len reports the number of stations currently registered.
func (r *Registry) Len() int {
	return len(r.current())
}

// All returns a snapshot slice of every currently registered Session.
func (r *Registry) All() []Session {
	m := r.current()
	out := make([]Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}
