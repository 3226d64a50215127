package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/burn-detector-be/internal/auth"
	"github.com/isdelr/burn-detector-be/internal/models"
	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/rs/zerolog/log"
)

// HistoryHandler serves the saved diagnoses of each user.
type HistoryHandler struct {
	service services.HistoryServiceProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(service services.HistoryServiceProvider) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// SavePayload is the body of POST /api/chat/save.
type SavePayload struct {
	UserID          flexNumber `json:"userId"`
	ImageURL        string     `json:"imageUrl"`
	Grade           string     `json:"grado"`
	Confidence      flexNumber `json:"confianza"`
	Recommendations string     `json:"recomendaciones"`
}

// Save stores one diagnosis.
func (h *HistoryHandler) Save(w http.ResponseWriter, r *http.Request) {
	var payload SavePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	userID := payload.UserID.ID()
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && userID != 0 && userID != claims.UserID {
		respondError(w, http.StatusForbidden, msgForbidden)
		return
	}

	input := services.SaveDiagnosisInput{
		UserID:          userID,
		ImageURL:        payload.ImageURL,
		Grade:           payload.Grade,
		Recommendations: payload.Recommendations,
	}
	if payload.Confidence.Set {
		input.Confidence = &payload.Confidence.Value
	}

	record, err := h.service.SaveDiagnosis(input)
	if errors.Is(err, services.ErrMissingFields) {
		respondError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to save diagnosis")
		respondError(w, http.StatusInternalServerError, "Error al guardar en base de datos")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Guardado exitosamente",
		"id":      record.ID,
	})
}

// List returns a user's diagnoses, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, valid := parseID(chi.URLParam(r, "userId"))
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && userID != claims.UserID {
		respondError(w, http.StatusForbidden, msgForbidden)
		return
	}
	if !valid {
		// No row can belong to a non-numeric id.
		respondJSON(w, http.StatusOK, []models.DiagnosisRecord{})
		return
	}

	records, err := h.service.GetHistoryForUser(userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load history")
		respondError(w, http.StatusInternalServerError, "Error al obtener historial")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Delete removes one diagnosis. Authenticated callers can only delete their own.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, valid := parseID(chi.URLParam(r, "id"))
	if !valid {
		respondError(w, http.StatusNotFound, msgRecordNotFound)
		return
	}

	var owner *int64
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		owner = &claims.UserID
	}

	err := h.service.DeleteDiagnosis(id, owner)
	if errors.Is(err, services.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, msgRecordNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("record_id", id).Msg("Failed to delete diagnosis")
		respondError(w, http.StatusInternalServerError, "Error al eliminar")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Registro eliminado"})
}
