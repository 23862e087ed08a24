package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mcloones/rewards/docs"
	"github.com/mcloones/rewards/internal/audit"
	"github.com/mcloones/rewards/internal/config"
	"github.com/mcloones/rewards/internal/database"
	"github.com/mcloones/rewards/internal/events"
	"github.com/mcloones/rewards/internal/handlers"
	"github.com/mcloones/rewards/internal/logging"
	"github.com/mcloones/rewards/internal/metrics"
	mW "github.com/mcloones/rewards/internal/middleware"
	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/services"
	"github.com/mcloones/rewards/internal/store"
	"github.com/mcloones/rewards/internal/store/memory"
	"github.com/mcloones/rewards/internal/store/postgres"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title McLoone's Bucks Rewards API
// @version 1.0
// @description Rewards ledger and leaderboard for restaurant staff
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	log := logging.For("SERVER")

	if err := config.Init(".env"); err != nil {
		log.WithError(err).Warn("Config file not loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	var ledger store.Ledger
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("Using in-memory ledger, balances are lost on restart")
		var staff []models.Employee
		if cfg.SeedFile != "" {
			staff, err = config.LoadSeed(cfg.SeedFile)
			if err != nil {
				log.WithError(err).Fatal("Failed to load staff seed file")
			}
		} else {
			log.Warn("No ledger.seed_file set, every award will fail with employee not found")
		}
		log.WithField("employees", len(staff)).Info("Staff directory seeded")
		ledger = memory.New(memory.WithEmployees(staff...))
	default:
		ledger = postgres.New(database.InitDatabase())
		defer database.CloseDB()
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	awardService := services.NewAwardService(ledger, events.NewPublisher(redisClient), audit.NewAuditLogger(logrus.StandardLogger()))
	queryService := services.NewQueryService(ledger)
	rewardsHandler := handlers.NewRewardsHandler(awardService, queryService)
	awardLimiter := mW.NewRateLimiter(cfg.AwardRateLimit, cfg.AwardRateBurst)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	awardLimiter.StartCleanup(sweepCtx, time.Minute)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", metrics.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.With(awardLimiter.Handler).Post("/employees/{employeeId}/awards", rewardsHandler.Award)
		r.Get("/employees/{employeeId}/balance", rewardsHandler.GetBalance)
		r.Get("/employees/{employeeId}/transactions", rewardsHandler.GetHistory)
		r.Get("/transactions/recent", rewardsHandler.GetGlobalFeed)
		r.Get("/leaderboard", rewardsHandler.GetLeaderboard)
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// In-flight awards finish their unit of work before the listener closes.
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		return
	}

	log.Info("Server stopped")
}
