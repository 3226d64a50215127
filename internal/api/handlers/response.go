package handlers

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Client-facing error messages.
const (
	msgMissingFields  = "Faltan campos requeridos"
	msgInvalidBody    = "Cuerpo de la solicitud inválido"
	msgNoImage        = "No se subió ninguna imagen"
	msgImageTooLarge  = "La imagen excede el tamaño permitido"
	msgForbidden      = "No tiene permiso para acceder a este recurso"
	msgRecordNotFound = "Registro no encontrado"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// flexNumber decodes a JSON number, a numeric string or null. Clients keep
// the user id in local storage and send it back as a string.
type flexNumber struct {
	Value float64
	Set   bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*n = flexNumber{}
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*n = flexNumber{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*n = flexNumber{Value: v, Set: true}
	return nil
}

// ID returns the value as a positive integer id, or 0 when it is not one.
func (n flexNumber) ID() int64 {
	if !n.Set || n.Value <= 0 || n.Value != float64(int64(n.Value)) {
		return 0
	}
	return int64(n.Value)
}

// parseID parses a path or form value as a positive integer id.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// readImage pulls the "image" part out of a multipart request, enforcing
// maxBytes when it is positive. On failure the error response is already
// written and ok is false.
func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64) (file multipart.File, header *multipart.FileHeader, ok bool) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, http.StatusRequestEntityTooLarge, msgImageTooLarge)
			return nil, nil, false
		}
		log.Warn().Err(err).Msg("Could not parse multipart form")
		respondError(w, http.StatusBadRequest, msgNoImage)
		return nil, nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, msgNoImage)
		return nil, nil, false
	}
	return file, header, true
}
