// Package app wires configuration into running servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"behavior-backend/internal/alerts"
	"behavior-backend/internal/auth"
	"behavior-backend/internal/config"
	"behavior-backend/internal/database"
	"behavior-backend/internal/detector"
	"behavior-backend/internal/dispatcher"
	"behavior-backend/internal/handlers"
	"behavior-backend/internal/metrics"
	"behavior-backend/internal/notify"
	"behavior-backend/internal/stats"
	"behavior-backend/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	busBufferSize   = 64
	shutdownTimeout = 15 * time.Second
)

// App owns every long-lived component of the service.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *gorm.DB
	metrics    *metrics.Metrics
	bus        *notify.Bus
	dispatcher *dispatcher.Dispatcher
	router     http.Handler

	redis *redis.Client
	mqtt  *notify.MQTTSink
}

// New opens the database, applies migrations, seeds the bootstrap admin and
// builds the components. Optional bridges are connected here so a bad broker
// address fails startup.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: log}

	db, err := database.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := database.Migrate(db); err != nil {
		a.Close()
		return nil, err
	}
	if created, err := database.SeedAdmin(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	} else if created {
		log.Info("bootstrap admin created", zap.String("username", cfg.AdminUsername))
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	a.metrics = m

	a.bus = notify.NewBus(busBufferSize, log, m)
	if cfg.Redis.Addr != "" {
		a.redis = notify.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		relay := notify.NewRedisRelay(a.redis, notify.DefaultRelayChannel, log)
		if err := relay.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.bus.SetRelay(relay)
	}
	if cfg.MQTT.Broker != "" {
		sink, err := notify.NewMQTTSink(notify.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mqtt = sink
		a.bus.AddSink(sink)
	}

	records := store.NewRecordStore(db)
	alertStore := store.NewAlertStore(db)
	det := detector.NewClient(cfg.DetectorURL, cfg.DetectorTimeout, log)

	a.dispatcher = dispatcher.New(records, det, dispatcher.Options{
		Workers:    cfg.DispatchWorkers,
		QueueSize:  cfg.DispatchQueueSize,
		FFmpegPath: cfg.FFmpegPath,
	}, log, m)

	gate := auth.NewGate(cfg.JWTSecret, cfg.APIBasePath, log)
	a.router = handlers.NewRouter(handlers.Deps{
		DB:             db,
		Users:          store.NewUserStore(db),
		Records:        records,
		Zones:          store.NewZoneStore(db),
		Dispatcher:     a.dispatcher,
		Alerts:         alerts.New(alertStore, a.bus, cfg.DetectorAssetDir, log, m),
		Stats:          stats.NewAggregator(records, alertStore),
		Detector:       det,
		Issuer:         auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry),
		Gate:           gate,
		WS:             notify.NewWSHandler(a.bus, gate, cfg.AllowedOrigins, log),
		APIBasePath:    cfg.APIBasePath,
		UploadDir:      cfg.UploadDir,
		AssetDir:       cfg.DetectorAssetDir,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
	})
	return a, nil
}

// Handler is the API router.
func (a *App) Handler() http.Handler { return a.router }

// Run serves until ctx ends or a server fails, then shuts down gracefully:
// listeners stop accepting, queued detection jobs drain, bridges close.
func (a *App) Run(ctx context.Context) error {
	if err := a.bus.Start(ctx); err != nil {
		a.Close()
		return err
	}
	a.dispatcher.Start()

	servers := []*http.Server{{
		Addr:              ":" + a.cfg.ListenPort,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if a.cfg.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              ":" + a.cfg.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			a.logger.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shut down %s: %w", srv.Addr, err))
			}
		}
		if err := a.dispatcher.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher did not drain: %w", err))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases bridges and the database. It is safe after a failed New.
func (a *App) Close() {
	if a.mqtt != nil {
		a.mqtt.Close()
		a.mqtt = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
		a.db = nil
	}
}
