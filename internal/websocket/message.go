package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Actions exchanged over the chat socket.
const (
	ActionDiagnose        = "diagnose"
	ActionBotMessage      = "bot_message"
	ActionDiagnosisResult = "diagnosis_result"
	ActionHistoryUpdated  = "history_updated"
	ActionError           = "error"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an action and payload into a wire message.
func Encode(action string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket payload")
		raw = []byte("null")
	}
	out, _ := json.Marshal(Message{Action: action, Payload: raw})
	return out
}

// NewErrorMessage builds an error frame.
func NewErrorMessage(message string) []byte {
	return Encode(ActionError, map[string]string{"message": message})
}
