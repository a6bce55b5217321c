package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/devfolio/profile-api/internal/adapter/auth"
	"github.com/devfolio/profile-api/internal/adapter/queue"
	"github.com/devfolio/profile-api/internal/adapter/status"
	"github.com/devfolio/profile-api/internal/adapter/store"
	"github.com/devfolio/profile-api/internal/handler"
	"github.com/devfolio/profile-api/internal/middleware"
	"github.com/devfolio/profile-api/internal/port"
	"github.com/devfolio/profile-api/internal/service"
	"github.com/devfolio/profile-api/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting DevFolio API",
		"port", cfg.Port,
		"analysis_stream", cfg.AnalysisStream,
		"max_analyses", cfg.MaxAnalyses,
	)

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	// ── Redis (Status Store + Job Queue) ─────────────────────────────────
	rdb, err := queue.NewRedisClient(context.Background(), cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	statusStore := status.NewStore(rdb)
	jobQueue := queue.NewQueue(rdb, cfg.AnalysisStream)

	// ── Adapters ─────────────────────────────────────────────────────────
	githubAuth := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL)

	providers := port.AuthProviderRegistry{
		"github": githubAuth,
	}

	// ── Services ─────────────────────────────────────────────────────────
	authService := service.NewAuthService(providers, pgStore, statusStore, cfg)
	analysisService := service.NewAnalysisService(
		pgStore, statusStore, jobQueue, pgStore,
		cfg.MaxAnalyses, cfg.MaxSelectedRepos,
		time.Duration(cfg.StaleAfterMin)*time.Minute,
	)
	ingestService := service.NewIngestService(pgStore, statusStore, pgStore)

	// ── Stale-status sweep ───────────────────────────────────────────────
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 10m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := analysisService.SweepStale(ctx); err != nil {
			slog.Error("stale status sweep failed", "error", err)
		}
	}); err != nil {
		slog.Error("failed to schedule stale sweep", "error", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// ── Public Routes ────────────────────────────────────────────────────
	authHandler := handler.NewAuthHandler(authService, cfg.FrontendURL)
	authHandler.Register(app)

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	jwtMiddleware := middleware.JWTMiddleware(middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	})

	api := app.Group("/api/v1", jwtMiddleware)

	analysisHandler := handler.NewAnalysisHandler(analysisService)
	analysisHandler.Register(api)

	profileHandler := handler.NewProfileHandler(pgStore, pgStore)
	profileHandler.Register(api)

	// ── Worker Routes (shared secret) ────────────────────────────────────
	workerAuth := middleware.WorkerAuth(middleware.WorkerAuthConfig{
		Username:     cfg.WorkerAuthUser,
		PasswordHash: cfg.WorkerAuthPasswordHash,
	})

	internal := app.Group("/internal/v1", workerAuth)

	ingestHandler := handler.NewIngestHandler(ingestService)
	ingestHandler.Register(internal)

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
