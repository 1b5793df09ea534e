// Package acceptor is the WebSocket front door spec.md §4.7 describes:
// one HTTP handler that upgrades a station's connection and hands it off
// to a new internal/session.Session. Grounded on the teacher's
// internal/transport/websocket/manager.go (handleWebSocketUpgrade,
// extractChargePointID, createConnectionWrapper's subprotocol
// negotiation), with two deliberate divergences spec.md requires:
//   - path parsing always yields station_id or a close 1002, never a
//     pre-upgrade 400 (spec.md §4.7: "yields a close with code 1002",
//     which only makes sense after the handshake completes);
//   - subprotocol negotiation always selects ocpp1.6, even with no
//     offer or a mismatched one, instead of the teacher's multi-version
//     protocol.NormalizeVersion/GetDefaultVersion negotiation — this
//     system speaks exactly one OCPP version.
package acceptor

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chargenet/central-system/internal/logger"
	"github.com/chargenet/central-system/internal/observer"
	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/pipeline"
	"github.com/chargenet/central-system/internal/registry"
	"github.com/chargenet/central-system/internal/routing"
	"github.com/chargenet/central-system/internal/session"
	"github.com/chargenet/central-system/internal/store"
)

const subprotocol = "ocpp1.6"

// Config tunes the gorilla/websocket upgrader, grounded on the teacher's
// websocket.Config fields of the same names.
type Config struct {
	PathPrefix        string
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	MaxMessageSize    int64
	ReadTimeout       time.Duration
	EnableCompression bool
	CheckOrigin       bool
	AllowedOrigins    []string
	MaxConnections    int
}

func DefaultConfig() Config {
	return Config{
		PathPrefix:        "/ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    1024 * 1024,
		ReadTimeout:       60 * time.Second,
		MaxConnections:    100000,
		EnableCompression: false,
		CheckOrigin:       false,
	}
}

// Acceptor upgrades station connections and runs one internal/session.Session
// per accepted connection.
type Acceptor struct {
	cfg       Config
	upgrader  websocket.Upgrader
	store     store.Store
	catalog   *pipeline.Catalog
	bus       *observer.Bus
	reg       *registry.Registry
	validator *ocpp.Validator
	log       *logger.Logger
	sessionCfg session.Config

	routingMu    sync.RWMutex
	routingStore routing.RoutingStore
	podID        string
}

func New(cfg Config, st store.Store, catalog *pipeline.Catalog, bus *observer.Bus, reg *registry.Registry, validator *ocpp.Validator, log *logger.Logger, sessionCfg session.Config) *Acceptor {
	a := &Acceptor{
		cfg:        cfg,
		store:      st,
		catalog:    catalog,
		bus:        bus,
		reg:        reg,
		validator:  validator,
		log:        log,
		sessionCfg: sessionCfg,
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin: func(r *http.Request) bool {
			if !cfg.CheckOrigin {
				return true
			}
			origin := r.Header.Get("Origin")
			if len(cfg.AllowedOrigins) == 0 {
				return true
			}
			for _, allowed := range cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return a
}

// SetRouting attaches the optional multi-pod routing-hint store after
// construction, mirroring internal/server's Set*-after-New pattern for
// optional Kafka components. Safe to call before ServeHTTP starts
// accepting connections; a nil store (the default) means every Session
// this Acceptor creates skips ownership tracking.
func (a *Acceptor) SetRouting(rs routing.RoutingStore, podID string) {
	a.routingMu.Lock()
	defer a.routingMu.Unlock()
	a.routingStore = rs
	a.podID = podID
}

// ServeHTTP implements http.Handler: the single WebSocket entry point
// mounted at {PathPrefix}/.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.cfg.MaxConnections > 0 && a.reg.Len() >= a.cfg.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	stationID, ok := extractStationID(r.URL.Path, a.cfg.PathPrefix)

	// Force the subprotocol header ourselves rather than negotiating via
	// Upgrader.Subprotocols: this system speaks exactly one OCPP version,
	// so there is nothing to negotiate — a station offering no
	// Sec-WebSocket-Protocol, or the wrong one, still gets ocpp1.6 back.
	offered := r.Header.Get("Sec-WebSocket-Protocol")
	if offered != "" && offered != subprotocol {
		a.log.Warnf("acceptor: client offered subprotocol %q, responding with %s anyway", offered, subprotocol)
	}
	responseHeader := http.Header{"Sec-WebSocket-Protocol": []string{subprotocol}}

	conn, err := a.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		a.log.Errorf("acceptor: upgrade failed: %v", err)
		return
	}

	if !ok {
		a.log.Warnf("acceptor: malformed path %q, closing", r.URL.Path)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "missing or malformed station id"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	conn.SetReadLimit(a.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	})

	a.routingMu.RLock()
	rs, podID := a.routingStore, a.podID
	a.routingMu.RUnlock()

	transport := session.NewTransport(conn)
	sess := session.New(stationID, transport, r.RemoteAddr, a.store, a.catalog, a.bus, a.reg, a.validator, a.log, a.sessionCfg, rs, podID)

	go sess.Run()
}

// extractStationID implements spec.md §4.7's path rule: {prefix}/{station_id},
// a non-empty, validator-acceptable station id, or ok=false.
func extractStationID(path, prefix string) (string, bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path || !strings.HasPrefix(trimmed, "/") {
		return "", false
	}
	stationID := strings.TrimPrefix(trimmed, "/")
	if stationID == "" || strings.Contains(stationID, "/") {
		return "", false
	}
	if err := ocpp.ValidateStationID(stationID); err != nil {
		return "", false
	}
	return stationID, true
}
