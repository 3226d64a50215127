package handlers

import (
	"net/http"

	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/rs/zerolog/log"
)

// UploadHandler stores images sent by the chat client.
type UploadHandler struct {
	service  services.UploadServiceProvider
	maxBytes int64
}

// NewUploadHandler creates a new UploadHandler. maxBytes <= 0 disables the size limit.
func NewUploadHandler(service services.UploadServiceProvider, maxBytes int64) *UploadHandler {
	return &UploadHandler{service: service, maxBytes: maxBytes}
}

// Upload saves the multipart "image" field and returns its public URL.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := readImage(w, r, h.maxBytes)
	if !ok {
		return
	}
	defer file.Close()

	stored, err := h.service.Store(header.Filename, file)
	if err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to store upload")
		respondError(w, http.StatusInternalServerError, "Error al guardar la imagen")
		return
	}

	log.Info().Str("file", stored.Name).Int64("size", stored.Size).Msg("Image uploaded")
	respondJSON(w, http.StatusOK, map[string]string{"imageUrl": stored.URL})
}
