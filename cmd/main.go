package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/config"
	"github.com/Dosada05/padel-system/db"
	"github.com/Dosada05/padel-system/handlers"
	"github.com/Dosada05/padel-system/metrics"
	"github.com/Dosada05/padel-system/middleware"
	"github.com/Dosada05/padel-system/repositories"
	api "github.com/Dosada05/padel-system/routes"
	"github.com/Dosada05/padel-system/services"
	"github.com/Dosada05/padel-system/standings"
	"github.com/Dosada05/padel-system/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger) error {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	rules, err := standings.ParseRules(cfg.Engine.Standings.TieBreakRules)
	if err != nil {
		return fmt.Errorf("invalid tie-break rules: %w", err)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Bool("export_enabled", cfg.ExportEnabled()),
		slog.Duration("sweep_interval", cfg.SweepInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.Migrate(ctx, dbConn); err != nil {
		return err
	}
	logger.Info("database connection established")

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	// Экспорт снимков в Cloudflare R2, если настроен
	exporter := storage.NopExporter()
	if cfg.ExportEnabled() {
		store, err := storage.NewCloudflareR2Store(ctx, storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 store: %w", err)
		}
		exporter = storage.NewExporter(store, "snapshots")
		logger.Info("Cloudflare R2 export enabled", slog.String("bucket", cfg.R2BucketName))
	}

	// WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run(ctx)

	// Репозитории
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	pairingRepo := repositories.NewPostgresPairingRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	courtRepo := repositories.NewPostgresCourtRepository(dbConn)
	availabilityRepo := repositories.NewPostgresAvailabilityRepository(dbConn)
	standingRepo := repositories.NewPostgresStandingRepository(dbConn)

	// Сервисы
	pairingService := services.NewPairingService(dbConn, pairingRepo, tournamentRepo, wsHub, m, logger)
	bracketService := services.NewBracketService(dbConn, tournamentRepo, pairingRepo, matchRepo, wsHub, exporter, logger)
	scheduleService := services.NewScheduleService(dbConn, tournamentRepo, matchRepo, pairingRepo, courtRepo, availabilityRepo,
		cfg.Engine.Scheduler, wsHub, exporter, m, logger)
	agendaService := services.NewAgendaService(courtRepo, matchRepo, m, logger)
	matchService := services.NewMatchService(dbConn, tournamentRepo, matchRepo, courtRepo, standingRepo, rules,
		cfg.Engine.Scheduler.DurationMinutes, wsHub, m, logger)
	standingsService := services.NewStandingsService(dbConn, tournamentRepo, matchRepo, standingRepo, rules, logger)
	matchmakingService := services.NewMatchmakingService(logger)

	// Фоновая отмена просроченных пар
	sweeper, err := services.NewSweeper(pairingService, cfg.SweepInterval, logger)
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Pairing:     handlers.NewPairingHandler(pairingService, logger),
		Bracket:     handlers.NewBracketHandler(bracketService, logger),
		Schedule:    handlers.NewScheduleHandler(scheduleService, agendaService, logger),
		Match:       handlers.NewMatchHandler(matchService, logger),
		Standings:   handlers.NewStandingsHandler(standingsService, logger),
		Matchmaking: handlers.NewMatchmakingHandler(matchmakingService, logger),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger),
		Health:      handlers.NewHealthHandler(dbConn, logger),
		Metrics:     metrics.Handler(registry),
	}, api.Options{
		JWTSecret:       []byte(cfg.JWTSecretKey),
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		ScheduleLimiter: middleware.NewOrgRateLimiter(cfg.ScheduleRatePerMinute),
		Logger:          logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err := sweeper.Shutdown(); err != nil {
			logger.Error("sweeper shutdown failed", slog.Any("error", err))
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := sweeper.Shutdown(); err != nil {
		logger.Error("sweeper shutdown failed", slog.Any("error", err))
	}

	logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
