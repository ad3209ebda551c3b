// Package app assembles the deprecation subsystem from configuration:
// database connections, stores, the safety battery, monitoring,
// telemetry, and alerting, with a single Start/Stop lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/schemaguard/schemaguard/internal/alerts"
	"github.com/schemaguard/schemaguard/internal/backup"
	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/internal/interceptor"
	"github.com/schemaguard/schemaguard/internal/metrics"
	"github.com/schemaguard/schemaguard/internal/monitor"
	"github.com/schemaguard/schemaguard/internal/rollback"
	"github.com/schemaguard/schemaguard/internal/safety"
	"github.com/schemaguard/schemaguard/internal/schema"
	"github.com/schemaguard/schemaguard/internal/telemetry"
	"github.com/schemaguard/schemaguard/pkg/config"
	"github.com/schemaguard/schemaguard/pkg/database"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// App wires the subsystem together. Build it with New, then Start to
// launch the background tasks and Stop to drain and release everything.
type App struct {
	cfg    *config.Config
	logger *logger.Logger

	pg    *database.PostgreSQL
	redis *database.Redis

	Deprecation *deprecation.System
	Monitor     *monitor.Monitor
	Telemetry   *telemetry.Collector
	Alerts      *alerts.System
	Backup      *backup.Validator
	Interceptor *interceptor.Interceptor
	Registry    *prometheus.Registry

	mu      sync.Mutex
	started bool
}

// New builds the full component graph. A database DSN is optional:
// without one the migration store is in-memory and schema facts are
// unavailable, which is enough for offline inspection commands.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	counters := metrics.New(a.Registry)

	var repo schema.Repository
	var store deprecation.Store
	if cfg.Database.DSN != "" {
		pg, err := database.NewFromDSN(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.pg = pg
		repo = schema.NewPostgresRepository(pg.Pool())
		pgStore := deprecation.NewPostgresStore(pg.Pool())
		if err := pgStore.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to ensure migration schema: %w", err)
		}
		store = pgStore
	} else {
		log.Warn("no database DSN configured, using in-memory migration store")
		store = deprecation.NewMemoryStore()
	}

	var eventStore telemetry.EventStore
	if cfg.Telemetry.Redis.Enabled {
		rcfg := database.DefaultRedisConfig()
		rcfg.Host = cfg.Telemetry.Redis.Host
		rcfg.Port = cfg.Telemetry.Redis.Port
		rcfg.Password = cfg.Telemetry.Redis.Password
		rcfg.DB = cfg.Telemetry.Redis.DB
		r, err := database.NewRedis(ctx, rcfg)
		if err != nil {
			a.closeConnections()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = r
		eventStore = telemetry.NewRedisEventStore(r, cfg.Telemetry.RetentionDays)
	}

	a.Telemetry = telemetry.NewCollector(telemetry.Config{
		BufferSize:                 cfg.Telemetry.BufferSize,
		AggregationIntervalMinutes: cfg.Telemetry.AggregationIntervalMinutes,
		RetentionDays:              cfg.Telemetry.RetentionDays,
		ReplayDays:                 cfg.Monitor.StatsWindowDays,
	}, eventStore, counters, log.Named("telemetry"))

	a.Alerts = alerts.NewSystem(alerts.Config{
		ThrottleWindowMinutes: cfg.Alerts.ThrottleWindowMinutes,
		SweepIntervalMinutes:  cfg.Alerts.SweepIntervalMinutes,
		HistoryLimit:          cfg.Alerts.HistoryLimit,
		EscalationRules:       escalationRules(cfg.Alerts.Escalation),
	}, buildChannels(cfg, log), counters, log.Named("alerts"))

	var sink monitor.AlertSink
	if cfg.Monitor.AlertOnAccess {
		sink = a.Alerts
	}
	a.Monitor = monitor.New(monitor.Config{
		BatchSize:            cfg.Monitor.BatchSize,
		FlushIntervalSeconds: cfg.Monitor.FlushIntervalSeconds,
		StatsWindowDays:      cfg.Monitor.StatsWindowDays,
		AlertOnAccess:        cfg.Monitor.AlertOnAccess,
	}, a.Telemetry, sink, counters, log.Named("monitor"))

	if cfg.Backup.Enabled {
		a.Backup = backup.NewValidator(backup.Config{Dir: cfg.Backup.Dir}, repo, log.Named("backup"))
	}

	var validator rollback.BackupValidator
	if a.Backup != nil {
		validator = a.Backup
	}
	rollbacker := rollback.NewManager(repo, validator, rollback.Config{
		ValidateBeforeRollback: cfg.Safety.ValidateBeforeRollback,
		RequireBackup:          cfg.Safety.RequireBackup,
	}, log.Named("rollback"))

	a.Deprecation = deprecation.NewSystem(store, repo, safety.DefaultChecks(), a.Monitor, rollbacker, log.Named("deprecation"))

	// The migration store is the durable record; registries are not.
	// Re-register completed migrations so a fresh process monitors the
	// same elements as the one that executed them.
	if err := a.restoreMonitoredElements(ctx, store); err != nil {
		a.closeConnections()
		return nil, fmt.Errorf("failed to restore monitoring state: %w", err)
	}

	a.Interceptor = interceptor.New(interceptor.Config{
		StrictMode: cfg.Safety.StrictMode,
	}, a.Monitor, log.Named("interceptor"))

	return a, nil
}

// Start launches the background tasks: telemetry aggregation, alert
// throttle sweeping, and the periodic monitor flush.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("app already started")
	}

	if err := a.Telemetry.Start(); err != nil {
		return fmt.Errorf("failed to start telemetry collector: %w", err)
	}
	if err := a.Alerts.Start(); err != nil {
		a.Telemetry.Stop()
		return fmt.Errorf("failed to start alert system: %w", err)
	}
	if a.cfg.Monitor.Enabled {
		if err := a.Monitor.Start(); err != nil {
			a.Alerts.Stop()
			a.Telemetry.Stop()
			return fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	a.started = true
	a.logger.Info("deprecation subsystem started")
	return nil
}

// Stop drains buffers, stops background tasks, and closes connections.
// Safe to call without a prior Start.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		a.Monitor.Stop()
		a.Alerts.Stop()
		a.Telemetry.Stop()
		a.started = false
	}
	a.closeConnections()
	a.logger.Info("deprecation subsystem stopped")
}

// restoreMonitoredElements replays completed, non-rolled-back
// migrations from the store into the monitor registry. Runs before the
// interceptor is built, so its match pattern covers restored elements.
func (a *App) restoreMonitoredElements(ctx context.Context, store deprecation.Store) error {
	migrations, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	restored := 0
	for _, m := range migrations {
		if m.Phase != deprecation.PhaseCompleted {
			continue
		}
		for _, el := range m.Elements {
			if err := a.Monitor.StartMonitoring(el); err != nil {
				return fmt.Errorf("failed to monitor %s: %w", el.Key(), err)
			}
			restored++
		}
	}
	if restored > 0 {
		a.logger.Infof("restored monitoring for %d deprecated elements", restored)
	}
	return nil
}

func (a *App) closeConnections() {
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
	if a.pg != nil {
		a.pg.Close()
		a.pg = nil
	}
}

func escalationRules(rules []config.EscalationRule) []alerts.EscalationRule {
	out := make([]alerts.EscalationRule, 0, len(rules))
	for _, r := range rules {
		sev := alerts.Severity(r.EscalateTo)
		if !sev.Valid() {
			sev = alerts.SeverityError
		}
		out = append(out, alerts.EscalationRule{
			TriggerCount:      r.TriggerCount,
			TimeWindowMinutes: r.TimeWindowMinutes,
			EscalateTo:        sev,
		})
	}
	return out
}

func buildChannels(cfg *config.Config, log *logger.Logger) []alerts.Channel {
	channels := []alerts.Channel{
		alerts.NewConsoleChannel(alerts.SeverityInfo, log.Named("alerts")),
	}
	if cfg.Alerts.WebhookURL != "" {
		channels = append(channels, alerts.NewWebhookChannel("webhook", cfg.Alerts.WebhookURL, alerts.SeverityWarning))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		channels = append(channels, alerts.NewSlackChannel(cfg.Alerts.SlackWebhookURL, alerts.SeverityWarning))
	}
	if cfg.Alerts.StoreFile != "" {
		channels = append(channels, alerts.NewFileChannel(cfg.Alerts.StoreFile, alerts.SeverityInfo))
	}
	return channels
}
