package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/burn-detector-be/internal/api/handlers"
	"github.com/isdelr/burn-detector-be/internal/auth"
	"github.com/isdelr/burn-detector-be/internal/config"
	"github.com/isdelr/burn-detector-be/internal/logger"
	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/isdelr/burn-detector-be/internal/websocket"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(
	cfg *config.Config,
	db *sql.DB,
	hub *websocket.Hub,
	tokens *auth.TokenManager,
	userService services.UserServiceProvider,
	historyService services.HistoryServiceProvider,
	uploadService services.UploadServiceProvider,
	diagnosisService services.DiagnosisServiceProvider,
	eventService services.EventServiceProvider,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService, tokens, cfg.TokenTTL, cfg.IsProduction())
	uploadHandler := handlers.NewUploadHandler(uploadService, cfg.MaxUploadBytes)
	historyHandler := handlers.NewHistoryHandler(historyService)
	diagnosisHandler := handlers.NewDiagnosisHandler(diagnosisService, cfg.MaxUploadBytes)
	wsHandler := handlers.NewWebSocketHandler(hub, diagnosisService, cfg.AllowedOrigins)
	eventHandler := handlers.NewEventHandler(eventService)
	healthHandler := handlers.NewHealthHandler(db, uploadService.Dir())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)
		r.Group(func(r chi.Router) {
			if cfg.RequireAuth {
				r.Use(tokens.Middleware)
			}
			r.Get("/events", eventHandler.GetRecent)
		})
		r.Post("/upload", uploadHandler.Upload)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
			r.With(tokens.Middleware).Get("/me", userHandler.GetMe)
		})

		r.Route("/chat", func(r chi.Router) {
			if cfg.RequireAuth {
				r.Use(tokens.Middleware)
			}
			r.Post("/save", historyHandler.Save)
			r.Get("/history/{userId}", historyHandler.List)
			r.Post("/diagnose", diagnosisHandler.Diagnose)
			r.Get("/ws", wsHandler.Serve)
			r.Delete("/{id}", historyHandler.Delete)
		})
	})

	// Uploaded images, served as stored.
	fs := http.StripPrefix(services.StaticPrefix, http.FileServer(http.Dir(uploadService.Dir())))
	r.Handle(services.StaticPrefix+"*", fs)

	return r
}
