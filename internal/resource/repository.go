package resource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for resources, reader attachments and
// usage sessions. The SQLite implementation is the only one in
// production; tests may substitute their own.
type Repository interface {
	// GetResource retrieves a resource by ID.
	// Returns ErrResourceNotFound if it does not exist.
	GetResource(ctx context.Context, id string) (*Resource, error)

	// ListResources retrieves all resources.
	ListResources(ctx context.Context) ([]Resource, error)

	// CreateResource inserts a new resource.
	CreateResource(ctx context.Context, r *Resource) error

	// Attach associates a reader with a resource. Attaching an already
	// attached pair is a no-op.
	Attach(ctx context.Context, readerID, resourceID string) error

	// Detach removes a reader→resource association.
	// Returns ErrNotAttached if the pair was not attached.
	Detach(ctx context.Context, readerID, resourceID string) error

	// GetAttachedResources returns the resources a reader gates access
	// to, in attachment order. An unattached reader yields an empty slice.
	GetAttachedResources(ctx context.Context, readerID string) ([]Resource, error)

	// StartSession inserts an active usage session.
	StartSession(ctx context.Context, s *UsageSession) error

	// GetActiveSession returns the running session for a resource.
	// Returns ErrNoActiveSession if the resource is idle.
	GetActiveSession(ctx context.Context, resourceID string) (*UsageSession, error)

	// EndActiveSession closes the running session for a resource and
	// returns it with EndedAt set.
	// Returns ErrNoActiveSession if the resource is idle.
	EndActiveSession(ctx context.Context, resourceID string, endedAt time.Time) (*UsageSession, error)

	// ListSessions returns all sessions for a resource, newest first.
	ListSessions(ctx context.Context, resourceID string) ([]UsageSession, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetResource retrieves a resource by ID.
func (r *SQLiteRepository) GetResource(ctx context.Context, id string) (*Resource, error) {
	query := `SELECT id, name, created_at FROM resources WHERE id = ?`

	res, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to get resource %s: %w", id, err)
	}

	return res, nil
}

// ListResources retrieves all resources ordered by creation time.
func (r *SQLiteRepository) ListResources(ctx context.Context) ([]Resource, error) {
	query := `SELECT id, name, created_at FROM resources ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	return collectResources(rows)
}

// CreateResource inserts a new resource, assigning ID and timestamp if unset.
func (r *SQLiteRepository) CreateResource(ctx context.Context, res *Resource) error {
	if res.ID == "" {
		res.ID = "res-" + uuid.NewString()[:8]
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO resources (id, name, created_at) VALUES (?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		res.ID, res.Name, res.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrResourceExists
		}
		return fmt.Errorf("failed to create resource: %w", err)
	}

	return nil
}

// Attach associates a reader with a resource.
func (r *SQLiteRepository) Attach(ctx context.Context, readerID, resourceID string) error {
	query := `
		INSERT INTO reader_resources (reader_id, resource_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (reader_id, resource_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		readerID, resourceID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to attach reader %s to resource %s: %w", readerID, resourceID, err)
	}

	return nil
}

// Detach removes a reader→resource association.
func (r *SQLiteRepository) Detach(ctx context.Context, readerID, resourceID string) error {
	query := `DELETE FROM reader_resources WHERE reader_id = ? AND resource_id = ?`

	result, err := r.db.ExecContext(ctx, query, readerID, resourceID)
	if err != nil {
		return fmt.Errorf("failed to detach reader %s from resource %s: %w", readerID, resourceID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check detach result: %w", err)
	}
	if rows == 0 {
		return ErrNotAttached
	}

	return nil
}

// GetAttachedResources returns the resources a reader gates access to.
func (r *SQLiteRepository) GetAttachedResources(ctx context.Context, readerID string) ([]Resource, error) {
	query := `
		SELECT r.id, r.name, r.created_at
		FROM resources r
		JOIN reader_resources rr ON rr.resource_id = r.id
		WHERE rr.reader_id = ?
		ORDER BY rr.created_at`

	rows, err := r.db.QueryContext(ctx, query, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments for reader %s: %w", readerID, err)
	}
	defer rows.Close()

	return collectResources(rows)
}

// StartSession inserts an active usage session.
func (r *SQLiteRepository) StartSession(ctx context.Context, s *UsageSession) error {
	if s.ID == "" {
		s.ID = "ses-" + uuid.NewString()[:8]
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO usage_sessions (id, resource_id, reader_id, card_uid, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, NULL)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ResourceID, s.ReaderID, s.CardUID, s.StartedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	return nil
}

// GetActiveSession returns the running session for a resource.
func (r *SQLiteRepository) GetActiveSession(ctx context.Context, resourceID string) (*UsageSession, error) {
	query := `
		SELECT id, resource_id, reader_id, card_uid, started_at, ended_at
		FROM usage_sessions
		WHERE resource_id = ? AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, resourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("failed to get active session for %s: %w", resourceID, err)
	}

	return s, nil
}

// EndActiveSession closes the running session for a resource.
func (r *SQLiteRepository) EndActiveSession(ctx context.Context, resourceID string, endedAt time.Time) (*UsageSession, error) {
	s, err := r.GetActiveSession(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	query := `UPDATE usage_sessions SET ended_at = ? WHERE id = ?`

	ended := endedAt.UTC()
	if _, err := r.db.ExecContext(ctx, query, ended.Format(time.RFC3339), s.ID); err != nil {
		return nil, fmt.Errorf("failed to end session %s: %w", s.ID, err)
	}

	s.EndedAt = &ended
	return s, nil
}

// ListSessions returns all sessions for a resource, newest first.
func (r *SQLiteRepository) ListSessions(ctx context.Context, resourceID string) ([]UsageSession, error) {
	query := `
		SELECT id, resource_id, reader_id, card_uid, started_at, ended_at
		FROM usage_sessions
		WHERE resource_id = ?
		ORDER BY started_at DESC`

	rows, err := r.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for %s: %w", resourceID, err)
	}
	defer rows.Close()

	var sessions []UsageSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (*Resource, error) {
	var (
		res       Resource
		createdAt string
	)

	if err := s.Scan(&res.ID, &res.Name, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if res.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}

	return &res, nil
}

func scanSession(sc scanner) (*UsageSession, error) {
	var (
		s         UsageSession
		startedAt string
		endedAt   sql.NullString
	)

	if err := sc.Scan(&s.ID, &s.ResourceID, &s.ReaderID, &s.CardUID, &startedAt, &endedAt); err != nil {
		return nil, err
	}

	var err error
	if s.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at: %w", err)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid ended_at: %w", err)
		}
		s.EndedAt = &t
	}

	return &s, nil
}

func collectResources(rows *sql.Rows) ([]Resource, error) {
	var resources []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}

	return resources, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
