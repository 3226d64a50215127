package models

import (
	"encoding/json"
	"time"
)

// DiagnosisRecord is one saved burn classification tied to a user.
// JSON names follow the client contract of the history endpoint.
type DiagnosisRecord struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"-"`
	ImageURL        string    `json:"imageUrl"`
	Grade           string    `json:"grado"`
	Confidence      float64   `json:"confianza"`
	Recommendations string    `json:"recomendaciones"`
	CreatedAt       time.Time `json:"fecha"`
}

// DateLayout is how sqlite's CURRENT_TIMESTAMP renders; clients show
// "fecha" as-is.
const DateLayout = "2006-01-02 15:04:05"

// MarshalJSON writes CreatedAt in DateLayout, in UTC.
func (d DiagnosisRecord) MarshalJSON() ([]byte, error) {
	type record DiagnosisRecord
	return json.Marshal(struct {
		record
		CreatedAt string `json:"fecha"`
	}{
		record:    record(d),
		CreatedAt: d.CreatedAt.UTC().Format(DateLayout),
	})
}

// Percent reports the confidence on a 0-100 scale. Stored values arrive as
// either a fraction or a percentage, so anything up to 1 is scaled.
func (d DiagnosisRecord) Percent() float64 {
	return ConfidencePercent(d.Confidence)
}

// ConfidencePercent normalises a confidence score for display.
func ConfidencePercent(confidence float64) float64 {
	if confidence > 0 && confidence <= 1 {
		return confidence * 100
	}
	return confidence
}
