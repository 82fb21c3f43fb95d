package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warband/internal/auth"
	"github.com/freeeve/warband/internal/config"
	"github.com/freeeve/warband/internal/handler"
	"github.com/freeeve/warband/internal/logger"
	"github.com/freeeve/warband/internal/middleware"
	"github.com/freeeve/warband/internal/repository/postgres"
	redisrepo "github.com/freeeve/warband/internal/repository/redis"
	"github.com/freeeve/warband/internal/ruleset"
	"github.com/freeeve/warband/internal/service"
)

func main() {
	logger.Init(logger.OptionsFromEnv())
	cfg := config.Load()

	catalog, err := ruleset.LoadOrDefault(cfg.RulesetPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RulesetPath).Msg("Ruleset load failed")
	}
	log.Info().
		Str("ruleset", cfg.RulesetPath).
		Int("unitTypes", len(catalog.Names())).
		Bool("intense", cfg.Intense).
		Bool("dev", cfg.DevMode).
		Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	battleRepo := postgres.NewBattleRepo(db)
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	wsHub := handler.NewHub()

	// Services
	turnSvc := service.NewTurnLogService(redisClient, wsHub)
	battleSvc := service.NewBattleService(battleRepo, turnSvc, catalog, wsHub, service.BattleOptions{
		Intense: cfg.Intense,
		Seed:    cfg.BattleSeed(),
	})

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr, cfg.DevMode)
	battleHandler := handler.NewBattleHandler(battleSvc)
	turnHandler := handler.NewTurnHandler(turnSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"postgres": db.PingContext,
		"redis":    redisClient.Ping,
	})

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	mux.HandleFunc("GET /healthz", healthHandler.Health)

	// Auth (public)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("POST /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /units", battleHandler.Units)
	api.HandleFunc("POST /simulations", battleHandler.Simulate)
	api.HandleFunc("POST /games/{id}/battles", battleHandler.Resolve)
	api.HandleFunc("GET /games/{id}/battles", battleHandler.List)
	api.HandleFunc("GET /battles/{battleId}", battleHandler.Get)
	api.HandleFunc("POST /battles/{battleId}/replay", battleHandler.Replay)
	api.HandleFunc("GET /games/{id}/turns/{turn}/actions", turnHandler.List)
	api.HandleFunc("POST /games/{id}/turns/{turn}/actions", turnHandler.Append)
	api.HandleFunc("GET /games/{id}/peers", wsHandler.Peers)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	root := middleware.Chain(mux, middleware.Logger, middleware.Recover, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
