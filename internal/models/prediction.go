package models

// Prediction is what the external classifier returns for one image.
type Prediction struct {
	Grade           string  `json:"grado"`
	Confidence      float64 `json:"confianza"`
	Recommendations string  `json:"recomendaciones"`
	ProcessedImage  string  `json:"processedImage,omitempty"`
}

// ChatMessage is one line of the diagnosis conversation.
type ChatMessage struct {
	Sender string `json:"sender"` // "bot" or "user"
	Text   string `json:"text"`
}

// BotMessage builds a ChatMessage sent by the assistant.
func BotMessage(text string) ChatMessage {
	return ChatMessage{Sender: "bot", Text: text}
}
