package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for reader persistence operations.
type Repository interface {
	// GetByID retrieves a reader by its identifier.
	// Returns ErrReaderNotFound if the reader does not exist.
	GetByID(ctx context.Context, id string) (*Reader, error)

	// List retrieves all readers.
	List(ctx context.Context) ([]Reader, error)

	// Create inserts a new reader.
	// Returns ErrReaderExists if the ID is already taken.
	Create(ctx context.Context, r *Reader) error

	// SetActive enables or disables a reader.
	// Returns ErrReaderNotFound if the reader does not exist.
	SetActive(ctx context.Context, id string, active bool) error

	// TouchSeen records a successful connect: sets first_seen_at if this
	// is the reader's first connection, updates last_seen_at and the
	// reported firmware version.
	TouchSeen(ctx context.Context, id, firmwareVersion string, seenAt time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a reader by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Reader, error) {
	query := `
		SELECT id, name, token_hash, firmware_version, is_active,
			first_seen_at, last_seen_at, created_at, updated_at
		FROM readers
		WHERE id = ?`

	rd, err := scanReader(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReaderNotFound
		}
		return nil, fmt.Errorf("failed to get reader %s: %w", id, err)
	}

	return rd, nil
}

// List retrieves all readers ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Reader, error) {
	query := `
		SELECT id, name, token_hash, firmware_version, is_active,
			first_seen_at, last_seen_at, created_at, updated_at
		FROM readers
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query readers: %w", err)
	}
	defer rows.Close()

	var readers []Reader
	for rows.Next() {
		rd, err := scanReader(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reader: %w", err)
		}
		readers = append(readers, *rd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readers: %w", err)
	}

	return readers, nil
}

// Create inserts a new reader, assigning ID and timestamps if unset.
func (r *SQLiteRepository) Create(ctx context.Context, rd *Reader) error {
	if rd.ID == "" {
		rd.ID = "rdr-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = now
	}
	rd.UpdatedAt = now

	query := `
		INSERT INTO readers (id, name, token_hash, firmware_version, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rd.ID, rd.Name, rd.TokenHash, rd.FirmwareVersion, boolToInt(rd.IsActive),
		rd.CreatedAt.Format(time.RFC3339), rd.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrReaderExists
		}
		return fmt.Errorf("failed to create reader: %w", err)
	}

	return nil
}

// SetActive enables or disables a reader.
func (r *SQLiteRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE readers SET is_active = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(active), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to set active on reader %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrReaderNotFound
	}

	return nil
}

// TouchSeen records a successful connect.
func (r *SQLiteRepository) TouchSeen(ctx context.Context, id, firmwareVersion string, seenAt time.Time) error {
	ts := seenAt.UTC().Format(time.RFC3339)

	query := `
		UPDATE readers
		SET first_seen_at = COALESCE(first_seen_at, ?),
			last_seen_at = ?,
			firmware_version = CASE WHEN ? != '' THEN ? ELSE firmware_version END,
			updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, ts, ts, firmwareVersion, firmwareVersion, ts, id)
	if err != nil {
		return fmt.Errorf("failed to touch reader %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrReaderNotFound
	}

	return nil
}

// Authenticate resolves a reader by ID and verifies its provisioning
// token. Used by the gateway before upgrading a connection.
func Authenticate(ctx context.Context, repo Repository, id, token string) (*Reader, error) {
	rd, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rd.IsActive {
		return nil, ErrReaderInactive
	}
	if !rd.VerifyToken(token) {
		return nil, ErrInvalidToken
	}
	return rd, nil
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReader(s scanner) (*Reader, error) {
	var (
		rd        Reader
		isActive  int
		firstSeen sql.NullString
		lastSeen  sql.NullString
		createdAt string
		updatedAt string
	)

	err := s.Scan(&rd.ID, &rd.Name, &rd.TokenHash, &rd.FirmwareVersion, &isActive,
		&firstSeen, &lastSeen, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rd.IsActive = isActive != 0
	if rd.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if rd.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}
	if firstSeen.Valid {
		t, err := time.Parse(time.RFC3339, firstSeen.String)
		if err != nil {
			return nil, fmt.Errorf("invalid first_seen_at: %w", err)
		}
		rd.FirstSeenAt = &t
	}
	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_seen_at: %w", err)
		}
		rd.LastSeenAt = &t
	}

	return &rd, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
