// Package main is the entry point of the wellness hub dashboard API.
//
// The process serves the risk dashboard over HTTP:
//   - population reads (students, indicators, summary)
//   - intervention creation and lifecycle transitions with their audit trail
//   - stateful dashboard sessions with deferred list and profile recomputes
//
// PostgreSQL holds the data when DATABASE_URL is set; otherwise an in-memory
// store is used. Redis, when reachable, caches population reads and shares
// dashboard events between instances.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/wellness-hub/config"
	"github.com/alem-hub/wellness-hub/internal/application/command"
	"github.com/alem-hub/wellness-hub/internal/application/eventhandler"
	"github.com/alem-hub/wellness-hub/internal/application/query"
	"github.com/alem-hub/wellness-hub/internal/application/view"
	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/guard"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/redis"
	httpapi "github.com/alem-hub/wellness-hub/internal/interface/http"
	"github.com/alem-hub/wellness-hub/internal/interface/http/handlers"
	"github.com/alem-hub/wellness-hub/pkg/logger"
	"github.com/alem-hub/wellness-hub/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// sourceWriter is the population store behind the query handlers.
type sourceWriter interface {
	risk.Source
	risk.Writer
}

// eventBus is the bus the dispatcher subscribes to.
type eventBus interface {
	shared.EventPublisher
	messaging.Subscriber
	Close() error
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: cfg.App.Debug,
	})
	defer log.Sync()

	log.Info("starting wellness hub dashboard",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	checker := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE (PostgreSQL or in-memory)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		source sourceWriter
		repo   intervention.Repository
	)
	if cfg.UsesPostgres() {
		conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection")
			conn.Close()
		}()
		checker.AddCheck("database", handlers.NewPingCheck(conn))

		if cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			log.Info("migrations applied", logger.Int("count", applied))
		}

		guarded := guard.NewSource(postgres.NewRiskRepository(conn), nil, log)
		checker.AddCheck("database_breaker", handlers.NewPingCheck(guarded))
		source = guarded
		repo = postgres.NewInterventionRepository(conn)
		log.Info("using postgres store")
	} else {
		store := memory.NewStore()
		source, repo = store, store
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (population cache & distributed events)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		cache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, continuing without it", logger.Err(err))
		} else {
			defer func() {
				log.Info("closing redis connection")
				_ = cache.Close()
			}()
			checker.AddCheck("redis", handlers.NewPingCheck(cache))
		}
	}

	if cache != nil && cfg.Features.IsEnabled(config.FeaturePopulationCache) {
		source = redis.NewCachedSource(source, cache, cfg.Redis.CacheTTL, log)
		log.Info("population cache enabled", logger.Duration("ttl", cfg.Redis.CacheTTL))
	}

	bus, err := newEventBus(cfg, cache, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	feed := eventhandler.NewOnInterventionChangedHandler(log, eventhandler.InterventionFeedConfig{
		Capacity: cfg.Dashboard.FeedCapacity,
	})
	monitor := eventhandler.NewOnSourceDegradedHandler(log, eventhandler.DefaultSourceMonitorConfig())

	dcfg := messaging.DefaultDispatcherConfig(bus)
	dcfg.Logger = log
	dispatcher := messaging.NewDispatcher(dcfg)
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))
	if err := eventhandler.Register(dispatcher, feed, monitor); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer dispatcher.Stop()
	checker.AddCheck("source", handlers.NewSourceCheck(monitor))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	transitions := command.NewTransitionInterventionHandler(repo, bus, log)
	loadPolicy := retry.Source()
	loadPolicy.MaxAttempts = cfg.Dashboard.LoadRetries
	loadPolicy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Debug("retrying snapshot read",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
	loader := view.NewLoader(source, repo, bus, log).WithRetrier(retry.New(loadPolicy))

	sessions := view.NewSessions(view.SessionsConfig{
		IdleTimeout: cfg.Dashboard.SessionIdleTimeout,
		MaxSessions: cfg.Dashboard.MaxSessions,
	}, func(id string, actor intervention.Actor) *view.Controller {
		return view.NewController(view.Config{SessionID: id, Actor: actor}, loader, transitions, bus, log)
	}, log)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.Run(sweepCtx, cfg.Dashboard.SessionSweepInterval)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(httpapi.ConfigFrom(cfg), httpapi.Dependencies{
		ListStudentsHandler:           query.NewListStudentsHandler(source, log),
		GetStudentProfileHandler:      query.NewGetStudentProfileHandler(source, repo, log),
		GetSummaryHandler:             query.NewGetSummaryHandler(source, repo, log),
		ListIndicatorsHandler:         query.NewListIndicatorsHandler(source, log),
		GetAuditTrailHandler:          query.NewGetAuditTrailHandler(repo),
		CreateInterventionHandler:     command.NewCreateInterventionHandler(source, repo, bus, log),
		TransitionInterventionHandler: transitions,
		Sessions:                      sessions,
		Feed:                          feed,
		SourceMonitor:                 monitor,
		Features:                      cfg.Features,
		HealthChecker:                 checker,
		Logger:                        log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}
	stopSweep()
	sessions.CloseAll()

	log.Info("dashboard stopped", logger.Duration("uptime", server.Uptime()))
	return nil
}

// newEventBus shares events over Redis when it is available and the feature is
// on, and keeps them in-process otherwise.
func newEventBus(cfg *config.Config, cache *redis.Cache, log *logger.Logger) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log

	if cache == nil || !cfg.Features.IsEnabled(config.FeatureDistributedEvents) {
		return messaging.NewInMemoryEventBus(local), nil
	}

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         cache.Client(),
		ChannelName:    redis.PubSubChannel(cfg.Redis.EventsChannel),
		InstanceID:     uuid.NewString(),
		LocalBusConfig: local,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start redis event bus: %w", err)
	}
	log.Info("distributed events enabled", logger.String("channel", cfg.Redis.EventsChannel))
	return bus, nil
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.ConnMaxLifetime
	pc.MaxConnIdleTime = c.ConnMaxIdleTime
	return pc
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}
