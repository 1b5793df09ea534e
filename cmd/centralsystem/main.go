package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chargenet/central-system/internal/acceptor"
	"github.com/chargenet/central-system/internal/config"
	"github.com/chargenet/central-system/internal/handlers"
	"github.com/chargenet/central-system/internal/logger"
	"github.com/chargenet/central-system/internal/observer"
	"github.com/chargenet/central-system/internal/routing"
	"github.com/chargenet/central-system/internal/server"
	"github.com/chargenet/central-system/internal/session"
	"github.com/chargenet/central-system/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("logger initialized")

	st := store.NewMemory()
	log.Info("store initialized")

	srvCfg := server.Config{
		ListenAddr:  cfg.GetServerAddr(),
		MetricsAddr: cfg.GetMetricsAddr(),
		AcceptorCfg: acceptor.Config{
			PathPrefix:        cfg.Server.WebSocketPath,
			ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
			HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
			MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
			ReadTimeout:       cfg.Server.ReadTimeout,
			EnableCompression: cfg.WebSocket.EnableCompression,
			CheckOrigin:       cfg.WebSocket.CheckOrigin,
			AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
			MaxConnections:    cfg.Server.MaxConnections,
		},
		SessionCfg: session.Config{
			HeartbeatInterval: time.Duration(cfg.Session.HeartbeatIntervalSeconds) * time.Second,
			WatchdogGrace:     cfg.Session.WatchdogGrace,
			OutboundDelay:     cfg.Session.OutboundDelay,
			ReplyTimeout:      cfg.Session.OutboundReplyTimeout,
		},
		SweepInterval: cfg.OCPP.OrphanSweepInterval,
		AutoRemoteStart: handlers.AutoRemoteStartConfig{
			Enabled: cfg.OCPP.AutoRemoteStartEnabled,
			IDTag:   cfg.OCPP.AutoRemoteStartIDTag,
			Delay:   cfg.OCPP.AutoRemoteStartDelay,
		},
		JumpThresholdWh: cfg.OCPP.JumpThresholdWh,
		EnableMetrics:   cfg.Monitoring.MetricsAddr != "",
	}

	srv := server.New(srvCfg, st, log)

	srv.Bus.AddAuditSink(observer.NewLogAuditSink(log))
	srv.Bus.AddMetricsSink(observer.NewPrometheusMetricsSink())

	if cfg.Kafka.AuditEnabled {
		kafkaSink, err := observer.NewKafkaAuditSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
		if err != nil {
			log.Errorf("failed to initialize kafka audit sink: %v", err)
		} else {
			srv.Bus.AddAuditSink(kafkaSink)
			srv.SetAuditKafkaSink(kafkaSink)
			log.Info("kafka audit sink initialized")
		}
	}

	if cfg.Redis.RoutingEnabled {
		podID := cfg.PodID
		if podID == "" {
			if hostname, herr := os.Hostname(); herr == nil {
				podID = hostname
			}
		}
		rs, err := routing.NewRedisRoutingStore(routing.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Errorf("failed to initialize routing store: %v", err)
		} else {
			srv.SetRoutingStore(rs, podID)
			log.Info("redis routing store initialized")
		}
	}

	if cfg.Kafka.InletEnabled {
		inlet, err := observer.NewCommandInlet(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.CommandTopic, srv, log)
		if err != nil {
			log.Errorf("failed to initialize kafka command inlet: %v", err)
		} else {
			if err := inlet.Start(); err != nil {
				log.Errorf("failed to start kafka command inlet: %v", err)
			} else {
				srv.SetCommandInlet(inlet)
				log.Info("kafka command inlet started")
			}
		}
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
	log.Info("central system started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("error during shutdown: %v", err)
	}
	log.Info("central system stopped")
}
