package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"campusroomz/internal/access"
	"campusroomz/internal/api"
	"campusroomz/internal/audit"
	"campusroomz/internal/auth"
	"campusroomz/internal/booking"
	"campusroomz/internal/cache"
	"campusroomz/internal/config"
	"campusroomz/internal/db"
	"campusroomz/internal/events"
	"campusroomz/internal/metrics"
	"campusroomz/internal/reminders"
	"campusroomz/internal/slots"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func serve(cctx *cli.Context) error {
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}
	ctx := cctx.Context

	database, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	rooms := cache.NewRoomCache(database, rdb, cfg.CacheTTL(), logger)

	syncCatalog := func(ctx context.Context, catalog *config.RoomsConfig) error {
		if err := database.SyncRoomsFromConfig(ctx, catalog); err != nil {
			return err
		}
		return rooms.Invalidate(ctx)
	}
	watcher := config.NewRoomsWatcher(cfg.Rooms.CatalogPath, cfg.RoomsWatchInterval(),
		func(ctx context.Context, catalog *config.RoomsConfig) error {
			if err := syncCatalog(ctx, catalog); err != nil {
				return err
			}
			logger.Info().Int("rooms", len(catalog.Rooms)).Msg("room catalog synced")
			return nil
		},
		func(err error) {
			logger.Error().Err(err).Msg("room catalog reload failed; keeping previous catalog")
		},
	)
	if _, err := watcher.Load(ctx); err != nil {
		return fmt.Errorf("load room catalog: %w", err)
	}

	clock := cfg.Clock()
	bus := events.NewEventBus()
	events.NewRecorder(database, logger).Register(bus)
	acl := access.NewService(cfg.Admins, logger)
	rules := booking.Rules{
		WorkStartHour:      cfg.Booking.WorkStartHour,
		WorkEndHour:        cfg.Booking.WorkEndHour,
		StrictWorkingHours: cfg.Booking.StrictWorkingHours,
		MaxAttendees:       cfg.Booking.MaxAttendees,
	}
	bookings := booking.NewService(database, rooms, bus, acl, rules, clock, logger)

	server := api.NewHTTPServer(api.Deps{
		Bookings: bookings,
		Profiles: database,
		Rooms:    rooms,
		Catalog:  database,
		Feed:     database,
		Schedule: database,
		Slots: slots.NewGenerator(database, slots.Schedule{
			StartHour:    cfg.Booking.WorkStartHour,
			EndHour:      cfg.Booking.WorkEndHour,
			SlotDuration: cfg.SlotDuration(),
		}, clock),
		Access:   acl,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		Events:   bus,
		SyncRooms: func(ctx context.Context) error {
			catalog, err := config.LoadRoomsConfig(cfg.Rooms.CatalogPath)
			if err != nil {
				return err
			}
			return syncCatalog(ctx, catalog)
		},
	}, api.Options{
		Address:        cfg.HTTP.Address,
		ReadTimeout:    time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RatePerSecond:  cfg.HTTP.RateLimitPerSecond,
		RateBurst:      cfg.HTTP.RateLimitBurst,
	}, logger)

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(watcher.Run)

	checks := map[string]api.ReadinessCheck{"db": database.Ping}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	run(func(ctx context.Context) { startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, checks, logger) })

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		run(func(ctx context.Context) { startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger) })
	}

	if cfg.Backup.Enabled {
		backups := db.NewBackupService(database, cfg.Backup.Path, cfg.BackupInterval(), cfg.BackupRetention(), logger)
		run(backups.Start)
	}

	if cfg.Reminders.Enabled {
		var reminderMetrics *reminders.Metrics
		if cfg.Monitoring.PrometheusEnabled {
			reminderMetrics = reminders.NewMetrics(prometheus.DefaultRegisterer, "campusroomz")
		}
		rc := reminders.DefaultConfig()
		rc.Interval = cfg.ReminderInterval()
		rc.PerSecond = cfg.Reminders.PerSecond
		run(reminders.NewScheduler(database, rc, reminderMetrics, clock, logger).Start)
	}

	if cfg.Audit.Enabled {
		auditor := audit.NewService(audit.Config{
			ExportDir: cfg.Audit.ExportDir,
			Retention: cfg.AuditRetention(),
		}, database, database, nil, clock, logger)
		run(auditor.Start)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info().Str("app", cfg.App.Name).Str("timezone", cfg.App.Timezone).Msg("campusroomz started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		logger.Error().Err(serr).Msg("api shutdown failed")
	}
	wg.Wait()
	logger.Info().Msg("campusroomz stopped")
	return err
}

func startHealthServer(ctx context.Context, port int, checks map[string]api.ReadinessCheck, logger *zerolog.Logger) {
	if port == 0 {
		port = 8081
	}
	router := mux.NewRouter()
	api.NewHealthController(checks).Register(router)
	listen(ctx, "health", fmt.Sprintf(":%d", port), router, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	listen(ctx, "metrics", fmt.Sprintf(":%d", port), router, logger)
}

func listen(ctx context.Context, name, addr string, h http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Str("addr", addr).Msgf("%s server listening", name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}
