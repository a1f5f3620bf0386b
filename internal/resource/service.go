package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
	"github.com/tapgate-io/tapgate/internal/infrastructure/mqtt"
)

// Publisher is the slice of the MQTT client the service needs.
// Nil disables announcements.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// Telemetry is the slice of the InfluxDB client the service needs.
// Nil disables telemetry.
type Telemetry interface {
	WriteSessionStart(sessionID, resourceID, readerID string)
	WriteSessionEnd(sessionID, resourceID, readerID string, duration time.Duration)
}

// Service is the resource-attachment collaborator consumed by the reader
// state machine: it answers which resources a reader gates, and records
// session starts and ends.
type Service struct {
	repo      Repository
	publisher Publisher
	telemetry Telemetry
	logger    *logging.Logger
}

// NewService creates a Service. publisher and telemetry may be nil, in
// which case those legs are skipped.
func NewService(repo Repository, publisher Publisher, telemetry Telemetry, logger *logging.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		telemetry: telemetry,
		logger:    logger.With("component", "resource_service"),
	}
}

// sessionEvent is the JSON payload announced over MQTT.
type sessionEvent struct {
	SessionID  string `json:"session_id"`
	ResourceID string `json:"resource_id"`
	ReaderID   string `json:"reader_id"`
	CardUID    string `json:"card_uid,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// GetAttachedResources returns the resources the given reader gates
// access to. An unattached reader gets an empty slice, not an error.
func (s *Service) GetAttachedResources(ctx context.Context, readerID string) ([]Resource, error) {
	return s.repo.GetAttachedResources(ctx, readerID)
}

// NotifySessionStart records the start of a usage session on a resource.
//
// The SQLite row is authoritative; MQTT and telemetry failures are logged
// and swallowed so a broker outage never refuses a tap. A dangling active
// session on the same resource (left by an unclean reader shutdown) is
// closed first so at most one session per resource is ever running.
func (s *Service) NotifySessionStart(ctx context.Context, resourceID, readerID, cardUID string) (*UsageSession, error) {
	stale, err := s.repo.EndActiveSession(ctx, resourceID, time.Now().UTC())
	switch {
	case err == nil:
		s.logger.Warn("closed stale session before new start",
			"session_id", stale.ID, "resource_id", resourceID)
	case errors.Is(err, ErrNoActiveSession):
		// Normal case: the resource was idle.
	default:
		// Starting anyway could leave two active sessions on the resource.
		return nil, fmt.Errorf("failed to check for stale session: %w", err)
	}

	session := &UsageSession{
		ResourceID: resourceID,
		ReaderID:   readerID,
		CardUID:    cardUID,
	}
	if err := s.repo.StartSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to record session start: %w", err)
	}

	s.logger.Info("usage session started",
		"session_id", session.ID, "resource_id", resourceID, "reader_id", readerID)

	s.announce(mqtt.Topics{}.SessionStarted(resourceID), sessionEvent{
		SessionID:  session.ID,
		ResourceID: resourceID,
		ReaderID:   readerID,
		CardUID:    cardUID,
		Timestamp:  session.StartedAt.Format(time.RFC3339),
	})
	s.announceRetained(mqtt.Topics{}.ResourceInUse(resourceID), map[string]any{
		"in_use":     true,
		"session_id": session.ID,
	})

	if s.telemetry != nil {
		s.telemetry.WriteSessionStart(session.ID, resourceID, readerID)
	}

	return session, nil
}

// NotifySessionEnd closes the active usage session on a resource.
// Returns ErrNoActiveSession when the resource is already idle.
func (s *Service) NotifySessionEnd(ctx context.Context, resourceID string) (*UsageSession, error) {
	session, err := s.repo.EndActiveSession(ctx, resourceID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info("usage session ended",
		"session_id", session.ID, "resource_id", resourceID,
		"duration", session.Duration().Round(time.Second).String())

	s.announce(mqtt.Topics{}.SessionEnded(resourceID), sessionEvent{
		SessionID:  session.ID,
		ResourceID: resourceID,
		ReaderID:   session.ReaderID,
		Timestamp:  session.EndedAt.Format(time.RFC3339),
	})
	s.announceRetained(mqtt.Topics{}.ResourceInUse(resourceID), map[string]any{
		"in_use": false,
	})

	if s.telemetry != nil {
		s.telemetry.WriteSessionEnd(session.ID, resourceID, session.ReaderID, session.Duration())
	}

	return session, nil
}

func (s *Service) announce(topic string, event sessionEvent) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal session event", "error", err)
		return
	}
	if err := s.publisher.Publish(topic, payload, 1, false); err != nil {
		s.logger.Warn("failed to announce session event", "topic", topic, "error", err)
	}
}

func (s *Service) announceRetained(topic string, state map[string]any) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("failed to marshal resource state", "error", err)
		return
	}
	if err := s.publisher.PublishRetained(topic, payload); err != nil {
		s.logger.Warn("failed to publish resource state", "topic", topic, "error", err)
	}
}
