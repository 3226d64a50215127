package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/isdelr/burn-detector-be/internal/models"
	"github.com/isdelr/burn-detector-be/internal/predictor"
	"github.com/rs/zerolog/log"
)

// Bot lines of the diagnosis conversation.
const (
	MsgGreeting       = "Hola, soy la IA médica para detección de quemaduras."
	MsgAnalyzing      = "Imagen recibida. Analizando..."
	MsgConnectionFail = "❌ Error al conectar con el servidor."
	msgServerError    = "❌ Error del servidor: "
)

// Predictor classifies one image.
type Predictor interface {
	Predict(ctx context.Context, filename string, image io.Reader) (models.Prediction, error)
}

// DiagnoseRequest names the image to classify: either a fresh upload or the
// URL of one already stored. UserID is optional; without it nothing is saved.
type DiagnoseRequest struct {
	UserID   *int64
	Upload   io.Reader
	Filename string
	ImageURL string
}

// DiagnosisResult is the outcome of one diagnosis conversation.
type DiagnosisResult struct {
	models.Prediction
	ImageURL string               `json:"imageUrl"`
	Saved    bool                 `json:"saved"`
	RecordID *int64               `json:"recordId,omitempty"`
	Messages []models.ChatMessage `json:"messages"`
}

// DiagnosisServiceProvider defines the interface for the diagnosis flow.
type DiagnosisServiceProvider interface {
	Diagnose(ctx context.Context, req DiagnoseRequest, notify func(models.ChatMessage)) (DiagnosisResult, error)
}

// DiagnosisService stores the image, asks the predictor for a grade and
// records the result in the user's history.
type DiagnosisService struct {
	uploads       UploadServiceProvider
	history       HistoryServiceProvider
	predictor     Predictor
	publicBaseURL string
}

// NewDiagnosisService creates a new DiagnosisService.
func NewDiagnosisService(uploads UploadServiceProvider, history HistoryServiceProvider, predictor Predictor, publicBaseURL string) *DiagnosisService {
	return &DiagnosisService{
		uploads:       uploads,
		history:       history,
		predictor:     predictor,
		publicBaseURL: publicBaseURL,
	}
}

// Diagnose runs the conversation. notify receives every bot line as it is
// produced and may be nil; the lines are also returned in the result.
func (s *DiagnosisService) Diagnose(ctx context.Context, req DiagnoseRequest, notify func(models.ChatMessage)) (DiagnosisResult, error) {
	var result DiagnosisResult
	say := func(text string) {
		msg := models.BotMessage(text)
		result.Messages = append(result.Messages, msg)
		if notify != nil {
			notify(msg)
		}
	}

	say(MsgGreeting)

	stored, err := s.resolveImage(req)
	if err != nil {
		say(MsgConnectionFail)
		return result, err
	}
	result.ImageURL = s.publicBaseURL + stored.URL

	say(MsgAnalyzing)

	image, _, err := s.uploads.Open(stored.URL)
	if err != nil {
		say(MsgConnectionFail)
		return result, err
	}
	defer image.Close()

	prediction, err := s.predictor.Predict(ctx, stored.Name, image)
	if err != nil {
		var remote *predictor.RemoteError
		if errors.As(err, &remote) {
			say(msgServerError + remote.Message)
		} else {
			say(MsgConnectionFail)
		}
		return result, fmt.Errorf("prediction failed: %w", err)
	}
	result.Prediction = prediction

	say(fmt.Sprintf("Diagnóstico: %s (%s%%)", prediction.Grade,
		strconv.FormatFloat(models.ConfidencePercent(prediction.Confidence), 'f', -1, 64)))

	if req.UserID == nil || *req.UserID == 0 {
		log.Debug().Str("image", stored.Name).Msg("No user id on diagnosis, result not saved")
		return result, nil
	}

	confidence := prediction.Confidence
	record, err := s.history.SaveDiagnosis(SaveDiagnosisInput{
		UserID:          *req.UserID,
		ImageURL:        result.ImageURL,
		Grade:           prediction.Grade,
		Confidence:      &confidence,
		Recommendations: prediction.Recommendations,
	})
	if err != nil {
		// The diagnosis itself succeeded; a failed save only costs the history entry.
		log.Error().Err(err).Int64("user_id", *req.UserID).Msg("Failed to save diagnosis")
		return result, nil
	}
	result.Saved = true
	result.RecordID = &record.ID
	return result, nil
}

func (s *DiagnosisService) resolveImage(req DiagnoseRequest) (StoredImage, error) {
	if req.Upload != nil {
		return s.uploads.Store(req.Filename, req.Upload)
	}
	if req.ImageURL == "" {
		return StoredImage{}, ErrNoImage
	}
	file, stored, err := s.uploads.Open(req.ImageURL)
	if err != nil {
		return StoredImage{}, err
	}
	file.Close()
	return stored, nil
}
