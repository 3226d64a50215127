package services

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/isdelr/burn-detector-be/internal/database"
	"github.com/isdelr/burn-detector-be/internal/models"
	"github.com/rs/zerolog/log"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(eventType, level, message string, userID *int64) error
	GetRecentEvents(limit int) ([]models.Event, error)
}

// EventService records an audit trail of account and history changes.
type EventService struct {
	db *sql.DB
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db}
}

// CreateEvent logs a new event to the database. Failures are logged and
// returned, but callers treat events as best effort.
func (s *EventService) CreateEvent(eventType, level, message string, userID *int64) error {
	event := models.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Level:   level,
		Message: message,
		UserID:  userID,
	}

	_, err := s.db.Exec("INSERT INTO events (id, type, level, message, user_id) VALUES (?, ?, ?, ?, ?)",
		event.ID, event.Type, event.Level, event.Message, event.UserID)
	if err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
	return err
}

// GetRecentEvents retrieves the most recent events from the database.
func (s *EventService) GetRecentEvents(limit int) ([]models.Event, error) {
	rows, err := s.db.Query("SELECT id, type, level, message, user_id, created_at FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		var message sql.NullString
		var userID sql.NullInt64
		var createdAt database.Time
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &message, &userID, &createdAt); err != nil {
			return nil, err
		}
		event.Message = message.String
		if userID.Valid {
			id := userID.Int64
			event.UserID = &id
		}
		event.CreatedAt = createdAt.Time
		events = append(events, event)
	}
	return events, rows.Err()
}
