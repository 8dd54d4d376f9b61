package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/63Paulo/lan-party/internal/api"
	"github.com/63Paulo/lan-party/internal/catalog"
	"github.com/63Paulo/lan-party/internal/config"
	"github.com/63Paulo/lan-party/internal/engine"
	"github.com/63Paulo/lan-party/internal/events"
	"github.com/63Paulo/lan-party/internal/metrics"
	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/mq"
	"github.com/63Paulo/lan-party/internal/reminders"
	"github.com/63Paulo/lan-party/internal/storage"
	"github.com/63Paulo/lan-party/internal/storage/postgres"
	"github.com/63Paulo/lan-party/internal/storage/sqlite"
)

// store is what both database backends provide.
type store interface {
	storage.ReservationStore
	storage.CatalogStore
	SyncStations(ctx context.Context, stations []model.Station) error
	PingContext(ctx context.Context) error
	Close() error
}

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("LAN_PARTY_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	var db store
	var sqliteDB *sqlite.DB
	switch cfg.Database.Driver {
	case "postgres":
		pgDB, err := postgres.NewDB(cfg.Database.DSN, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open postgres error")
		}
		db = pgDB
	case "sqlite":
		sqliteDB, err = sqlite.NewDB(cfg.Database.Path, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open sqlite error")
		}
		db = sqliteDB
	default:
		logger.Fatal().Str("driver", cfg.Database.Driver).Msg("unknown database driver")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Stations) > 0 {
		stations := make([]model.Station, 0, len(cfg.Stations))
		for _, sc := range cfg.Stations {
			stations = append(stations, model.Station{
				Name:        sc.Name,
				Description: sc.Description,
				IsActive:    true,
			})
		}
		if err := db.SyncStations(ctx, stations); err != nil {
			logger.Error().Err(err).Msg("failed to sync stations from config")
		}
	}

	catalogSvc := catalog.NewService(db, &logger)
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.Redis.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		catalogSvc.UseRedisCache(rdb, time.Duration(cfg.Redis.CacheTTLSeconds)*time.Second)
	}

	bus := events.NewBus()

	var publisher *mq.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to rabbitmq error")
		}
		defer publisher.Close()
		publisher.BridgeFrom(bus, reminders.EventReminderDue)
	}

	rules := engine.Rules{
		MinAdvance:       cfg.BookingMinAdvance(),
		MaxAdvance:       cfg.BookingMaxAdvance(),
		MaxActivePerUser: cfg.Booking.MaxActivePerUser,
	}
	eng := engine.New(db, catalogSvc, bus, rules, &logger)

	if cfg.Reminders.Enabled {
		var notifier reminders.Notifier = reminders.NewLogNotifier(&logger)
		if publisher != nil {
			notifier = reminders.NewBusNotifier(bus.PublishJSON)
		}
		reminderSvc := reminders.NewService(reminders.Config{
			CheckInterval: cfg.ReminderCheckInterval(),
			LookAhead:     cfg.ReminderLookAhead(),
			NotifyRate:    cfg.Reminders.NotifyRatePerSec,
			NotifyBurst:   cfg.Reminders.NotifyBurst,
		}, db, notifier, &logger)
		reminderSvc.Start()
		defer reminderSvc.Stop()
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled && sqliteDB != nil {
		go startBackupLoop(ctx, sqliteDB, cfg, &logger)
	}

	server := api.NewHTTPServer(cfg.Server.Port, cfg.Server.APIKey, eng, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxShutdown)
	}()

	logger.Info().Msg("lan-party reservation service started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("API server error")
	}
}

func startBackupLoop(ctx context.Context, database *sqlite.DB, cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "backups"
	}
	if cfg.Backup.IntervalHours <= 0 {
		cfg.Backup.IntervalHours = 24
	}
	if cfg.Backup.RetentionDays <= 0 {
		cfg.Backup.RetentionDays = 14
	}

	if err := os.MkdirAll(cfg.Backup.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create backup directory")
		return
	}

	interval := time.Duration(cfg.Backup.IntervalHours) * time.Hour
	retention := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour

	// Run first backup after a short delay
	select {
	case <-time.After(1 * time.Minute):
		runBackupTask(database, cfg, retention, logger)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runBackupTask(database, cfg, retention, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackupTask(database *sqlite.DB, cfg *config.Config, retention time.Duration, logger *zerolog.Logger) {
	timestamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(cfg.Backup.Path, fmt.Sprintf("lan_party_%s.db", timestamp))

	logger.Info().Str("path", dest).Msg("starting database backup")
	if err := database.Backup(dest); err != nil {
		logger.Error().Err(err).Msg("backup failed")
	} else {
		logger.Info().Msg("backup completed successfully")
	}

	deleted, err := database.CleanupBackups(cfg.Backup.Path, retention)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func startHealthServer(ctx context.Context, port int, database store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
