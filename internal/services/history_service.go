package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/isdelr/burn-detector-be/internal/database"
	"github.com/isdelr/burn-detector-be/internal/models"
	"github.com/isdelr/burn-detector-be/internal/websocket"
)

// SaveDiagnosisInput carries the fields of a new history record.
// Confidence is a pointer so that an explicit 0 can be told apart from a
// missing value.
type SaveDiagnosisInput struct {
	UserID          int64
	ImageURL        string
	Grade           string
	Confidence      *float64
	Recommendations string
}

// HistoryServiceProvider defines the interface for diagnosis history.
type HistoryServiceProvider interface {
	SaveDiagnosis(input SaveDiagnosisInput) (models.DiagnosisRecord, error)
	GetHistoryForUser(userID int64) ([]models.DiagnosisRecord, error)
	GetDiagnosisByID(id int64) (models.DiagnosisRecord, error)
	DeleteDiagnosis(id int64, ownerID *int64) error
	ReferencedImageURLs() ([]string, error)
}

// HistoryService persists diagnosis records in chat_history.
type HistoryService struct {
	db           *sql.DB
	hub          *websocket.Hub
	eventService EventServiceProvider
}

// NewHistoryService creates a new HistoryService. hub may be nil.
func NewHistoryService(db *sql.DB, hub *websocket.Hub, eventService EventServiceProvider) *HistoryService {
	return &HistoryService{db: db, hub: hub, eventService: eventService}
}

const historyColumns = "id, user_id, image_url, grado, confianza, recomendaciones, timestamp"

// SaveDiagnosis validates and inserts a record; the timestamp is assigned by the database.
func (s *HistoryService) SaveDiagnosis(input SaveDiagnosisInput) (models.DiagnosisRecord, error) {
	if input.UserID == 0 || input.Grade == "" || input.Confidence == nil || input.Recommendations == "" {
		return models.DiagnosisRecord{}, ErrMissingFields
	}

	var imageURL sql.NullString
	if input.ImageURL != "" {
		imageURL = sql.NullString{String: input.ImageURL, Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO chat_history (user_id, image_url, grado, confianza, recomendaciones)
		VALUES (?, ?, ?, ?, ?)`,
		input.UserID, imageURL, input.Grade, *input.Confidence, input.Recommendations)
	if err != nil {
		return models.DiagnosisRecord{}, fmt.Errorf("failed to insert diagnosis: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.DiagnosisRecord{}, err
	}

	record, err := s.GetDiagnosisByID(id)
	if err != nil {
		return models.DiagnosisRecord{}, err
	}

	s.eventService.CreateEvent("diagnosis.save", "info",
		fmt.Sprintf("Diagnosis %d (%s) saved.", record.ID, record.Grade), &record.UserID)
	s.notify(record.UserID, record.ID, "saved")
	return record, nil
}

// GetHistoryForUser returns every record of a user, newest first.
func (s *HistoryService) GetHistoryForUser(userID int64) ([]models.DiagnosisRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+historyColumns+`
		FROM chat_history
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.DiagnosisRecord{}
	for rows.Next() {
		record, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetDiagnosisByID retrieves a single record.
func (s *HistoryService) GetDiagnosisByID(id int64) (models.DiagnosisRecord, error) {
	row := s.db.QueryRow("SELECT "+historyColumns+" FROM chat_history WHERE id = ?", id)
	record, err := scanDiagnosis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DiagnosisRecord{}, fmt.Errorf("diagnosis %d: %w", id, ErrRecordNotFound)
	}
	return record, err
}

// DeleteDiagnosis removes a record by id. With a nil ownerID any record can
// be deleted; otherwise only one belonging to that user matches.
func (s *HistoryService) DeleteDiagnosis(id int64, ownerID *int64) error {
	var userID sql.NullInt64
	var err error
	if ownerID == nil {
		err = s.db.QueryRow("DELETE FROM chat_history WHERE id = ? RETURNING user_id", id).Scan(&userID)
	} else {
		err = s.db.QueryRow("DELETE FROM chat_history WHERE id = ? AND user_id = ? RETURNING user_id", id, *ownerID).Scan(&userID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("diagnosis %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete diagnosis: %w", err)
	}

	var owner *int64
	if userID.Valid {
		owner = &userID.Int64
		s.notify(userID.Int64, id, "deleted")
	}
	s.eventService.CreateEvent("diagnosis.delete", "warn", fmt.Sprintf("Diagnosis %d was deleted.", id), owner)
	return nil
}

// ReferencedImageURLs lists every image_url still stored in the history.
func (s *HistoryService) ReferencedImageURLs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT image_url FROM chat_history WHERE image_url IS NOT NULL AND image_url <> ''")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

func (s *HistoryService) notify(userID, recordID int64, change string) {
	s.hub.BroadcastTo(strconv.FormatInt(userID, 10), websocket.Encode(websocket.ActionHistoryUpdated, map[string]any{
		"recordId": recordID,
		"change":   change,
	}))
}

// scanDiagnosis scans one chat_history row selected with historyColumns.
func scanDiagnosis(scanner interface{ Scan(...any) error }) (models.DiagnosisRecord, error) {
	var record models.DiagnosisRecord
	var userID sql.NullInt64
	var imageURL, grade, recommendations sql.NullString
	var confidence sql.NullFloat64
	var createdAt database.Time

	if err := scanner.Scan(&record.ID, &userID, &imageURL, &grade, &confidence, &recommendations, &createdAt); err != nil {
		return models.DiagnosisRecord{}, err
	}

	record.UserID = userID.Int64
	record.ImageURL = imageURL.String
	record.Grade = grade.String
	record.Confidence = confidence.Float64
	record.Recommendations = recommendations.String
	record.CreatedAt = createdAt.Time
	return record, nil
}
