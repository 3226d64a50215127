package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/isdelr/burn-detector-be/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// HealthHandler reports whether the database and upload storage are usable.
type HealthHandler struct {
	db        *sql.DB
	uploadDir string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sql.DB, uploadDir string) *HealthHandler {
	return &HealthHandler{db: db, uploadDir: uploadDir}
}

// Check handles GET /api/health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, dbStatus, code := "ok", "ok", http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Health check: database ping failed")
		status, dbStatus, code = "degraded", "error", http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":   status,
		"database": dbStatus,
	}
	if usage, err := monitoring.UploadDiskUsage(h.uploadDir); err != nil {
		log.Warn().Err(err).Str("path", h.uploadDir).Msg("Health check: disk usage unavailable")
	} else {
		body["uploads"] = usage
	}
	respondJSON(w, code, body)
}
