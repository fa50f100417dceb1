/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/camrotator/internal/api"
	"github.com/friendsincode/camrotator/internal/audit"
	"github.com/friendsincode/camrotator/internal/config"
	"github.com/friendsincode/camrotator/internal/db"
	"github.com/friendsincode/camrotator/internal/eventbus"
	"github.com/friendsincode/camrotator/internal/events"
	"github.com/friendsincode/camrotator/internal/leadership"
	"github.com/friendsincode/camrotator/internal/rotation"
	"github.com/friendsincode/camrotator/internal/store"
	"github.com/friendsincode/camrotator/internal/telemetry"
	"github.com/friendsincode/camrotator/internal/webhooks"
)

const bootTimeout = 10 * time.Second

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db          *gorm.DB
	store       *store.Store
	bus         events.Broker
	sched       *rotation.Scheduler
	engine      *rotation.Engine
	leaderAware *rotation.LeaderAwareEngine
	relay       *rotation.Relay
	dispatcher  rotation.Dispatcher
	audit       *audit.Service
	webhooks    *webhooks.Service
	api         *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server, wires dependencies and starts the rotation engine.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("camrotator-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for the event stream
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		// release whatever was opened before the failure
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the event stream; the middleware timeout covers the rest
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.store = store.New(database, s.logger)

	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = eventbus.NodeID()
	}
	bus, err := s.newBroker(nodeID)
	if err != nil {
		return err
	}
	s.bus = bus

	ctx, cancel := context.WithTimeout(context.Background(), bootTimeout)
	defer cancel()

	sources, err := LoadCatalog(ctx, s.cfg, s.store, s.logger)
	if err != nil {
		return err
	}

	s.sched = rotation.New(RotationConfig(s.cfg), sources, s.logger)
	s.engine = rotation.NewEngine(s.sched, s.bus, s.store, rotation.EngineConfig{
		TickInterval:       s.cfg.TickInterval,
		CheckpointInterval: s.cfg.CheckpointInterval,
		StartPaused:        s.cfg.StartPaused,
	}, s.logger)
	s.dispatcher = s.engine

	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.DefaultConfig()
		electionConfig.RedisAddr = s.cfg.RedisAddr
		electionConfig.RedisPassword = s.cfg.RedisPassword
		electionConfig.RedisDB = s.cfg.RedisDB
		electionConfig.InstanceID = nodeID

		election, err := leadership.NewElection(electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}

		s.relay = rotation.NewRelay(s.bus, s.logger)
		s.leaderAware = rotation.NewLeaderAware(s.engine, election, s.bus, s.relay, s.restore, s.logger)
		s.dispatcher = s.leaderAware

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", nodeID).
			Msg("leader election enabled for rotation engine")
	} else {
		s.restore(ctx)
	}

	s.audit = audit.NewService(s.db, s.bus, s.logger)
	s.webhooks = webhooks.NewService(webhookConfig(s.cfg), s.bus, s.logger)
	s.api = api.New(s.dispatcher, s.bus, []byte(s.cfg.JWTSigningKey), s.cfg.BallotRateLimit, s.logger)
	s.api.SetAuditor(s.audit)
	if s.leaderAware != nil {
		s.api.SetLeaderFunc(s.leaderAware.IsLeader)
		s.audit.SetLeaderFunc(s.leaderAware.IsLeader)
		s.webhooks.SetLeaderFunc(s.leaderAware.IsLeader)
	}
	return nil
}

// newBroker builds the event bus selected by CAMROTATOR_EVENTBUS.
func (s *Server) newBroker(nodeID string) (events.Broker, error) {
	switch s.cfg.EventBus {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		bus, err := eventbus.NewRedisBus(redisCfg, nodeID, s.logger)
		if err != nil {
			return nil, fmt.Errorf("create redis event bus: %w", err)
		}
		s.DeferClose(bus.Close)
		return bus, nil

	case config.EventBusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Token = s.cfg.NATSToken
		bus, err := eventbus.NewNATSBus(natsCfg, nodeID, s.logger)
		if err != nil {
			return nil, fmt.Errorf("create nats event bus: %w", err)
		}
		s.DeferClose(bus.Close)
		return bus, nil

	default:
		return events.NewBus(), nil
	}
}

// restore resumes the rotation from the stored checkpoint and cooldown cache. A
// store error leaves the scheduler to start fresh.
func (s *Server) restore(ctx context.Context) {
	cp, found, err := s.store.LoadCheckpoint(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load rotation checkpoint, starting fresh")
		return
	}
	if !found {
		s.logger.Info().Msg("no rotation checkpoint stored")
		return
	}
	cooldowns, err := s.store.LoadCooldowns(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load cooldowns, restoring without them")
	}
	s.sched.Restore(cp, cooldowns)
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Dispatcher returns what the API submits commands to.
func (s *Server) Dispatcher() rotation.Dispatcher {
	return s.dispatcher
}

// Close stops the engine, which writes a final checkpoint, then releases owned
// resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Start the engine (leader-aware if configured, otherwise direct)
	if s.leaderAware != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.relay.Run(ctx)
		}()
		if err := s.leaderAware.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware engine failed to start")
		}
	} else {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("rotation engine exited")
			}
		}()
	}

	// Start rotation history recorder
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.audit.Start(ctx)
	}()

	if s.webhooks.Enabled() {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.webhooks.Start(ctx)
		}()
	}

	if s.cfg.AuditRetention > 0 {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.pruneAuditLog(ctx)
		}()
	}

	// Start database metrics updater
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

// pruneAuditLog drops history older than the retention window once an hour.
func (s *Server) pruneAuditLog(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if _, err := s.audit.Prune(ctx, time.Now().Add(-s.cfg.AuditRetention)); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("failed to prune audit log")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	if s.leaderAware != nil {
		if err := s.leaderAware.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware engine stop failed")
		}
	}
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`

		// Add leader status if leader election is enabled
		if s.leaderAware != nil {
			if s.leaderAware.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}

		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
