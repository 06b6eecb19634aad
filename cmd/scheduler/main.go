package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"practicespace/internal/access"
	"practicespace/internal/api"
	"practicespace/internal/booking"
	"practicespace/internal/cache"
	"practicespace/internal/closures"
	"practicespace/internal/config"
	"practicespace/internal/conflict"
	"practicespace/internal/db"
	"practicespace/internal/events"
	"practicespace/internal/eventsync"
	"practicespace/internal/export"
	"practicespace/internal/metrics"
	"practicespace/internal/pricing"
	"practicespace/internal/queue"
	"practicespace/internal/recurring"
	"practicespace/internal/slots"
	"practicespace/internal/worker"
)

func main() {
	var (
		configPath  string
		exportPath  string
		exportTable []string
		debug       bool
	)
	flags := pflag.NewFlagSet("scheduler", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: $CONFIG_PATH or configs/config.yaml)")
	flags.StringVar(&exportPath, "export", "", "write the database tables to this .xlsx file and exit")
	flags.StringSliceVar(&exportTable, "tables", db.ExportTableNames, "tables included by --export")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// .env is optional outside development.
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	venue, err := cfg.LoadVenue()
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.VenueConfigPath).Msg("failed to load venue config")
	}
	holder := config.NewVenueHolder(venue)

	database, err := db.Open(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exporter := export.NewExporter(database, holder.Location, &logger)
	if exportPath != "" {
		if err := exportTables(ctx, exporter, exportPath, exportTable); err != nil {
			logger.Fatal().Err(err).Msg("export failed")
		}
		logger.Info().Str("path", exportPath).Strs("tables", exportTable).Msg("Tables exported")
		return
	}

	bus := events.NewEventBus(&logger)
	scanner := conflict.NewScanner(database, &logger)
	auth := access.NewService(access.NewStaticManagers(cfg.Admins), logger)

	ledger := pricing.NewLedger(
		pricing.StaticTiers{Default: cfg.Pricing.DefaultTier, Members: cfg.Pricing.Members},
		database,
		cfg.FreeHoursByTier(),
		holder.Location,
	)
	engine := pricing.NewEngine(ledger, pricing.Config{HourlyRateCents: cfg.HourlyRateCents()})

	calculator := slots.NewCalculator(holder, scanner, slots.Config{
		Step:        cfg.SlotStep(),
		Buffer:      cfg.Buffer(),
		MinDuration: cfg.MinDuration(),
		MaxDuration: cfg.MaxDuration(),
	}, &logger)

	bookings := booking.NewService(database, scanner, engine, auth, holder, bus, booking.Config{
		Buffer:            cfg.Buffer(),
		MinDuration:       cfg.MinDuration(),
		MaxDuration:       cfg.MaxDuration(),
		AutoConfirmWithin: cfg.AutoConfirmWithin(),
		MaxAdvance:        cfg.BookingMaxAdvance(),
		AllowMultiDay:     cfg.Scheduling.AllowMultiDay,
	}, &logger)

	generator := recurring.NewGenerator(database, scanner, engine, bus, recurring.Config{
		Buffer:                cfg.Buffer(),
		DefaultMaxAdvanceDays: cfg.SeriesMaxAdvanceDays(),
		Location:              holder.Location,
	}, &logger)

	syncer := eventsync.NewSyncer(database, scanner, auth, bus, eventsync.Config{
		DefaultSetup:         cfg.DefaultSetup(),
		DefaultTeardown:      cfg.DefaultTeardown(),
		DefaultEventDuration: cfg.DefaultEventDuration(),
		Buffer:               cfg.Buffer(),
		Location:             holder.Location,
	}, &logger)

	closureService := closures.NewService(database, scanner, auth, bus, &logger)

	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		startTimes := cache.NewStartTimes(rdb, cfg.CacheTTL(), holder.Location, &logger)
		startTimes.Subscribe(bus)
		calculator.WithCache(startTimes)
		if err := startTimes.Flush(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush start time cache")
		}
	}

	if cfg.AMQP.URL != "" {
		publisher, err := queue.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to AMQP, schedule events stay local")
		} else {
			defer publisher.Close()
			publisher.Forward(bus)
		}
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		metrics.Subscribe(bus)
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	backupLogger := logger.With().Str("component", "backup").Logger()
	backups := db.NewBackupService(database, db.BackupConfig{
		Enabled:   cfg.Backup.Enabled,
		Interval:  time.Duration(cfg.Backup.IntervalHours) * time.Hour,
		Dir:       cfg.Backup.Path,
		Retention: time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour,
	}, &backupLogger)
	go backups.Start(ctx)

	// The first apply syncs holidays from the config loaded above.
	err = config.WatchVenue(ctx, cfg.VenueConfigPath, 0, &logger, func(v *config.VenueConfig) {
		if err := closureService.ApplyVenue(ctx, holder, v); err != nil {
			logger.Error().Err(err).Msg("failed to sync holiday closures")
		}
	})
	if err != nil {
		logger.Error().Err(err).Msg("venue watcher not started")
	}

	generation := worker.NewGenerationWorker(generator, cfg.GenerationInterval(), &logger)
	go generation.Start(ctx)

	if cfg.API.Enabled {
		server := api.NewHTTPServer(api.Config{
			Port:          cfg.API.Port,
			Keys:          cfg.API.Keys,
			RatePerSecond: cfg.API.RatePerSecond,
			Burst:         cfg.API.Burst,
		}, api.Services{
			Slots:     calculator,
			Pricing:   engine,
			Conflicts: scanner,
			Bookings:  bookings,
			Series:    generator,
			Events:    syncer,
			Closures:  closureService,
			Export:    exporter,
			Location:  holder.Location,
		}, &logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("API server error")
				stop()
			}
		}()
	}

	logger.Info().Str("venue", venue.Name).Msg("Scheduler started")
	<-ctx.Done()
	generation.Stop()
	logger.Info().Msg("Scheduler stopped")
}

func exportTables(ctx context.Context, exporter *export.Exporter, path string, tables []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := exporter.WriteTables(ctx, tables, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
