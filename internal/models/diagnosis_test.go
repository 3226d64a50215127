package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidencePercent(t *testing.T) {
	assert.InDelta(t, 87.0, ConfidencePercent(0.87), 1e-9)
	assert.Equal(t, 87.0, ConfidencePercent(87))
	assert.Equal(t, 100.0, ConfidencePercent(1))
	assert.Equal(t, 0.0, ConfidencePercent(0))
	assert.Equal(t, 87.0, DiagnosisRecord{Confidence: 87}.Percent())
}

func TestDiagnosisRecordJSON(t *testing.T) {
	record := DiagnosisRecord{
		ID:              3,
		UserID:          9,
		ImageURL:        "/static/a.jpg",
		Grade:           "Primer Grado",
		Confidence:      87,
		Recommendations: "Reposo",
		CreatedAt:       time.Date(2025, 6, 1, 10, 20, 30, 0, time.UTC),
	}

	raw, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 3,
		"imageUrl": "/static/a.jpg",
		"grado": "Primer Grado",
		"confianza": 87,
		"recomendaciones": "Reposo",
		"fecha": "2025-06-01 10:20:30"
	}`, string(raw))
}
