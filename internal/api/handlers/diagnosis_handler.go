package handlers

import (
	"errors"
	"net/http"

	"github.com/isdelr/burn-detector-be/internal/auth"
	"github.com/isdelr/burn-detector-be/internal/predictor"
	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/rs/zerolog/log"
)

// DiagnosisHandler runs the diagnosis conversation over plain HTTP.
type DiagnosisHandler struct {
	service  services.DiagnosisServiceProvider
	maxBytes int64
}

// NewDiagnosisHandler creates a new DiagnosisHandler.
func NewDiagnosisHandler(service services.DiagnosisServiceProvider, maxBytes int64) *DiagnosisHandler {
	return &DiagnosisHandler{service: service, maxBytes: maxBytes}
}

// Diagnose classifies the multipart "image" field. An optional "userId"
// form value saves the result to that user's history.
func (h *DiagnosisHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	file, header, ok := readImage(w, r, h.maxBytes)
	if !ok {
		return
	}
	defer file.Close()

	req := services.DiagnoseRequest{Upload: file, Filename: header.Filename}
	if id, valid := parseID(r.FormValue("userId")); valid {
		req.UserID = &id
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		if req.UserID != nil && *req.UserID != claims.UserID {
			respondError(w, http.StatusForbidden, msgForbidden)
			return
		}
		req.UserID = &claims.UserID
	}

	result, err := h.service.Diagnose(r.Context(), req, nil)
	if err != nil {
		status, message := diagnosisFailure(err)
		log.Error().Err(err).Str("filename", header.Filename).Msg("Diagnosis failed")
		respondJSON(w, status, map[string]any{
			"error":    message,
			"messages": result.Messages,
		})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// diagnosisFailure maps a Diagnose error to a status and client message.
func diagnosisFailure(err error) (int, string) {
	var remote *predictor.RemoteError
	switch {
	case errors.As(err, &remote):
		return http.StatusBadGateway, remote.Message
	case errors.Is(err, predictor.ErrUnavailable):
		return http.StatusBadGateway, "Error al conectar con el servidor de predicción"
	case errors.Is(err, predictor.ErrUnparseable):
		return http.StatusBadGateway, "Respuesta del servidor de predicción no válida"
	case errors.Is(err, services.ErrNoImage):
		return http.StatusBadRequest, msgNoImage
	}
	return http.StatusInternalServerError, "Error al procesar la imagen"
}
