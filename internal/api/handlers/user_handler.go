package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/isdelr/burn-detector-be/internal/auth"
	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/rs/zerolog/log"
)

// UserHandler handles registration and login.
type UserHandler struct {
	service services.UserServiceProvider
	tokens  *auth.TokenManager
	ttl     time.Duration
	secure  bool
}

// NewUserHandler creates a new UserHandler. secure marks the session cookie
// as HTTPS-only.
func NewUserHandler(service services.UserServiceProvider, tokens *auth.TokenManager, ttl time.Duration, secure bool) *UserHandler {
	return &UserHandler{service: service, tokens: tokens, ttl: ttl, secure: secure}
}

// AuthPayload defines the structure for register and login requests.
type AuthPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user, err := h.service.CreateUser(payload.Email, payload.Password)
	switch {
	case errors.Is(err, services.ErrMissingFields):
		respondError(w, http.StatusBadRequest, msgMissingFields)
		return
	case errors.Is(err, services.ErrEmailTaken):
		respondError(w, http.StatusBadRequest, "Correo ya registrado")
		return
	case err != nil:
		log.Error().Err(err).Str("email", payload.Email).Msg("Failed to register user")
		respondError(w, http.StatusInternalServerError, "Error al registrar usuario")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Usuario creado correctamente",
		"userId":  user.ID,
	})
}

// Login handles user authentication and JWT generation.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user, err := h.service.AuthenticateUser(payload.Email, payload.Password)
	switch {
	case errors.Is(err, services.ErrMissingFields):
		respondError(w, http.StatusBadRequest, msgMissingFields)
		return
	case errors.Is(err, services.ErrUserNotFound):
		log.Warn().Str("email", payload.Email).Msg("Login for unknown email")
		respondError(w, http.StatusNotFound, "Usuario no encontrado")
		return
	case errors.Is(err, services.ErrInvalidPassword):
		log.Warn().Str("email", payload.Email).Msg("Failed authentication attempt")
		respondError(w, http.StatusUnauthorized, "Contraseña incorrecta")
		return
	case err != nil:
		log.Error().Err(err).Str("email", payload.Email).Msg("Login failed")
		respondError(w, http.StatusInternalServerError, "Error al iniciar sesión")
		return
	}

	token, err := h.tokens.GenerateJWT(user)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to generate JWT")
		respondError(w, http.StatusInternalServerError, "Error al generar el token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Expires:  time.Now().Add(h.ttl),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Login correcto",
		"userId":  user.ID,
		"token":   token,
	})
}

// GetMe returns the user identified by the request's token.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		log.Error().Msg("Could not retrieve user claims from context")
		respondError(w, http.StatusUnauthorized, "Token de autenticación requerido")
		return
	}

	user, err := h.service.GetUserByID(claims.UserID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("User from token not found in DB")
		respondError(w, http.StatusNotFound, "Usuario no encontrado")
		return
	}
	respondJSON(w, http.StatusOK, user)
}
