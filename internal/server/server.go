// Package server is the explicit Server handle spec.md §9 prescribes in
// place of a process-global client map and middleware table: one struct
// owning the Registry, Store, Pipeline catalog, ObserverBus, config and
// logger, wired together once at boot. No single teacher file matches
// this 1:1 — the teacher spreads equivalent ownership across Manager,
// MessageDispatcher and the OCPP processor — but the wiring order this
// package's New/Start/Shutdown methods follow is grounded on
// cmd/gateway/main.go's sequencing (config -> logger -> storage ->
// business components -> transport -> http server -> signal-based
// graceful shutdown).
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chargenet/central-system/internal/acceptor"
	"github.com/chargenet/central-system/internal/handlers"
	"github.com/chargenet/central-system/internal/logger"
	"github.com/chargenet/central-system/internal/observer"
	"github.com/chargenet/central-system/internal/ocpp"
	"github.com/chargenet/central-system/internal/registry"
	"github.com/chargenet/central-system/internal/routing"
	"github.com/chargenet/central-system/internal/session"
	"github.com/chargenet/central-system/internal/store"
	"github.com/chargenet/central-system/internal/sweep"
)

// Server owns every long-lived component the process needs, beyond
// config/logger construction which happens before Server exists.
type Server struct {
	Store    store.Store
	Registry *registry.Registry
	Deps     *handlers.Deps
	Bus      *observer.Bus
	Log      *logger.Logger

	acceptor *acceptor.Acceptor
	sweeper  *sweep.Sweeper

	httpSrv        *http.Server
	metricsSrv     *http.Server
	commandInlet   *observer.CommandInlet
	auditKafkaSink *observer.KafkaAuditSink
	routingStore   routing.RoutingStore
}

// Config is everything New needs to assemble a Server, already resolved
// from internal/config.Config by the caller (cmd/centralsystem/main.go).
type Config struct {
	ListenAddr    string
	MetricsAddr   string
	AcceptorCfg   acceptor.Config
	SessionCfg    session.Config
	SweepInterval time.Duration

	AutoRemoteStart handlers.AutoRemoteStartConfig
	JumpThresholdWh int

	EnableMetrics bool
}

// New wires Store, Registry, ObserverBus, Pipeline catalog, Acceptor and
// Sweeper together. Sinks are registered by the caller before Start via
// AddAuditSink/AddMetricsSink so optional Kafka/Prometheus wiring stays
// out of this constructor.
func New(cfg Config, st store.Store, log *logger.Logger) *Server {
	reg := registry.New()
	bus := observer.NewBus()
	validator := ocpp.NewValidator()

	deps := handlers.Deps{
		Store:                    st,
		Validator:                validator,
		Bus:                      bus,
		HeartbeatIntervalSeconds: int(cfg.SessionCfg.HeartbeatInterval.Seconds()),
		AutoRemoteStart:          cfg.AutoRemoteStart,
		JumpThresholdWh:          cfg.JumpThresholdWh,
	}
	catalog := handlers.BuildCatalog(deps)

	acc := acceptor.New(cfg.AcceptorCfg, st, catalog, bus, reg, validator, log, cfg.SessionCfg)
	sweeper := sweep.New(st, reg, deps, log, cfg.SweepInterval)

	mux := http.NewServeMux()
	mux.Handle(cfg.AcceptorCfg.PathPrefix+"/", acc)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s := &Server{
		Store:    st,
		Registry: reg,
		Bus:      bus,
		Log:      log,
		acceptor: acc,
		sweeper:  sweeper,
		httpSrv:  &http.Server{Addr: cfg.ListenAddr, Handler: mux},
	}
	deps2 := deps
	s.Deps = &deps2

	if cfg.EnableMetrics {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	}

	return s
}

// Start begins serving station connections, the metrics endpoint (if
// configured), and the background orphan sweep. Returns once the
// listeners are up; failures after that point are logged, not returned,
// matching the teacher's fire-and-forget goroutine-per-listener style.
func (s *Server) Start() error {
	go s.sweeper.Start()

	if s.metricsSrv != nil {
		go func() {
			s.Log.Infof("metrics server listening on %s", s.metricsSrv.Addr)
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Log.Errorf("metrics server failed: %v", err)
			}
		}()
	}

	go func() {
		s.Log.Infof("station server listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Errorf("station server failed: %v", err)
		}
	}()

	return nil
}

// Shutdown drains in-flight sessions with a bounded grace period, per
// spec.md §5's "global shutdown: broadcast + bounded grace".
func (s *Server) Shutdown(ctx context.Context) error {
	s.sweeper.Stop()

	for _, sess := range s.Registry.All() {
		sess.Close("server shutdown")
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown station server: %w", err)
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
	}
	if s.commandInlet != nil {
		if err := s.commandInlet.Close(); err != nil {
			s.Log.Errorf("close command inlet: %v", err)
		}
	}
	if s.auditKafkaSink != nil {
		if err := s.auditKafkaSink.Close(); err != nil {
			s.Log.Errorf("close audit kafka sink: %v", err)
		}
	}
	if s.routingStore != nil {
		if err := s.routingStore.Close(); err != nil {
			s.Log.Errorf("close routing store: %v", err)
		}
	}
	return nil
}

// SetCommandInlet and SetAuditKafkaSink let main.go attach the optional
// Kafka-backed components so Server.Shutdown can close them in order.
func (s *Server) SetCommandInlet(c *observer.CommandInlet)     { s.commandInlet = c }
func (s *Server) SetAuditKafkaSink(k *observer.KafkaAuditSink) { s.auditKafkaSink = k }

// SetRoutingStore attaches the optional multi-pod routing-hint store
// (internal/routing), forwarding it to the Acceptor so every Session it
// creates from this point on tracks ownership, and recording it here so
// Shutdown can close the underlying Redis client.
func (s *Server) SetRoutingStore(rs routing.RoutingStore, podID string) {
	s.routingStore = rs
	s.acceptor.SetRouting(rs, podID)
}

// SendCommand implements observer.Dispatcher: look up the station's live
// Session in the Registry and enqueue a central-initiated Call on it.
func (s *Server) SendCommand(ctx context.Context, stationID string, action ocpp.Action, payload interface{}) error {
	sess, ok := s.Registry.Get(stationID)
	if !ok {
		return fmt.Errorf("station %s is not connected", stationID)
	}
	sess.SendCommand(action, payload)
	return nil
}

var _ observer.Dispatcher = (*Server)(nil)
