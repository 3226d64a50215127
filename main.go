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

	"github.com/isdelr/burn-detector-be/internal/api"
	"github.com/isdelr/burn-detector-be/internal/auth"
	"github.com/isdelr/burn-detector-be/internal/config"
	"github.com/isdelr/burn-detector-be/internal/database"
	"github.com/isdelr/burn-detector-be/internal/logger"
	"github.com/isdelr/burn-detector-be/internal/monitoring"
	"github.com/isdelr/burn-detector-be/internal/predictor"
	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/isdelr/burn-detector-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.IsProduction())

	// Ensure the upload directory exists
	uploadService, err := services.NewUploadService(cfg.StaticDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare upload directory")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db, eventService)
	historyService := services.NewHistoryService(db, hub, eventService)
	predictorClient := predictor.New(cfg.PredictorURL, cfg.PredictorTimeout)
	diagnosisService := services.NewDiagnosisService(uploadService, historyService, predictorClient, cfg.PublicBaseURL)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	if cfg.JWTSecret == "change-me" && cfg.IsProduction() {
		log.Warn().Msg("JWT_SECRET is using the default value")
	}

	// Set up and run the upload janitor
	var janitor *monitoring.UploadJanitor
	if cfg.UploadRetention > 0 {
		janitor = monitoring.NewUploadJanitor(uploadService, historyService, eventService, cfg.UploadRetention, cfg.UploadCleanupCron)
		if err := janitor.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start upload janitor")
		}
	}

	// Set up router
	router := api.NewRouter(cfg, db, hub, tokens, userService, historyService, uploadService, diagnosisService, eventService)

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("predictor", cfg.PredictorURL).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	if janitor != nil {
		janitor.Stop()
	}
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
