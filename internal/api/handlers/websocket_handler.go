package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/isdelr/burn-detector-be/internal/auth"
	"github.com/isdelr/burn-detector-be/internal/models"
	"github.com/isdelr/burn-detector-be/internal/services"
	ws "github.com/isdelr/burn-detector-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

const diagnoseTimeout = 2 * time.Minute

// WebSocketHandler upgrades chat connections and runs diagnoses requested
// over the socket.
type WebSocketHandler struct {
	hub       *ws.Hub
	diagnosis services.DiagnosisServiceProvider
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. allowedOrigins follows
// the CORS configuration; "*" accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, diagnosis services.DiagnosisServiceProvider, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}
	return &WebSocketHandler{
		hub:       hub,
		diagnosis: diagnosis,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// diagnosePayload is the payload of a "diagnose" action.
type diagnosePayload struct {
	ImageURL string     `json:"imageUrl"`
	UserID   flexNumber `json:"userId"`
}

// Serve handles the WebSocket connection request. The connection follows
// history changes of the user named by ?userId=.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("userId")
	claims, authenticated := auth.ClaimsFromContext(r.Context())
	if authenticated {
		if topic != "" && topic != strconv.FormatInt(claims.UserID, 10) {
			respondError(w, http.StatusForbidden, msgForbidden)
			return
		}
		topic = strconv.FormatInt(claims.UserID, 10)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, topic)
	if !h.hub.Join(client) {
		log.Warn().Msg("Rejecting websocket connection during shutdown")
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		client.WritePump()
	}()
	go func() {
		defer wg.Done()
		client.ReadPump(func(c *ws.Client, message []byte) {
			h.handleIncomingWSMessage(ctx, c, message, claims)
		})
	}()

	// Cleanup on disconnect.
	go func() {
		wg.Wait()
		cancel()
		h.hub.Leave(client)
	}()
}

// handleIncomingWSMessage processes messages received from a websocket client.
func (h *WebSocketHandler) handleIncomingWSMessage(ctx context.Context, client *ws.Client, message []byte, claims *auth.Claims) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Bytes("message", message).Msg("Error decoding websocket message")
		client.Deliver(ws.NewErrorMessage(msgInvalidBody))
		return
	}

	switch msg.Action {
	case ws.ActionDiagnose:
		var payload diagnosePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ImageURL == "" {
			client.Deliver(ws.NewErrorMessage(msgNoImage))
			return
		}

		req := services.DiagnoseRequest{ImageURL: payload.ImageURL}
		if id := payload.UserID.ID(); id != 0 {
			req.UserID = &id
		}
		if claims != nil {
			if req.UserID != nil && *req.UserID != claims.UserID {
				client.Deliver(ws.NewErrorMessage(msgForbidden))
				return
			}
			req.UserID = &claims.UserID
		}
		go h.diagnose(ctx, client, req)

	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		client.Deliver(ws.NewErrorMessage("Acción desconocida: " + msg.Action))
	}
}

// diagnose streams the conversation lines to the client, then the result.
func (h *WebSocketHandler) diagnose(ctx context.Context, client *ws.Client, req services.DiagnoseRequest) {
	ctx, cancel := context.WithTimeout(ctx, diagnoseTimeout)
	defer cancel()

	result, err := h.diagnosis.Diagnose(ctx, req, func(line models.ChatMessage) {
		client.Deliver(ws.Encode(ws.ActionBotMessage, line))
	})
	if err != nil {
		_, message := diagnosisFailure(err)
		log.Error().Err(err).Str("client_id", client.ID).Msg("Websocket diagnosis failed")
		client.Deliver(ws.NewErrorMessage(message))
		return
	}
	client.Deliver(ws.Encode(ws.ActionDiagnosisResult, result))
}
