package card

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for card persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a card by its internal identifier.
	// Returns ErrCardNotFound if the card does not exist.
	GetByID(ctx context.Context, id string) (*Card, error)

	// GetByUID retrieves a card by its hardware UID (canonical form).
	// Returns ErrCardNotFound if the card does not exist.
	GetByUID(ctx context.Context, uid string) (*Card, error)

	// List retrieves all cards.
	List(ctx context.Context) ([]Card, error)

	// ListByOwner retrieves all cards owned by a specific user.
	ListByOwner(ctx context.Context, ownerUserID string) ([]Card, error)

	// Create inserts a new card.
	// Returns ErrCardExists if a card with the same UID already exists.
	Create(ctx context.Context, c *Card) error

	// Update modifies a card's label and owner.
	// Returns ErrCardNotFound if the card does not exist.
	Update(ctx context.Context, c *Card) error

	// SetDisabled flips the disabled flag.
	// Returns ErrCardNotFound if the card does not exist.
	SetDisabled(ctx context.Context, id string, disabled bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a card by its internal identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Card, error) {
	query := `
		SELECT id, uid, owner_user_id, label, is_disabled, created_at, updated_at
		FROM cards
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}

	return c, nil
}

// GetByUID retrieves a card by its hardware UID.
func (r *SQLiteRepository) GetByUID(ctx context.Context, uid string) (*Card, error) {
	query := `
		SELECT id, uid, owner_user_id, label, is_disabled, created_at, updated_at
		FROM cards
		WHERE uid = ?`

	row := r.db.QueryRowContext(ctx, query, uid)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card by uid: %w", err)
	}

	return c, nil
}

// List retrieves all cards ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Card, error) {
	query := `
		SELECT id, uid, owner_user_id, label, is_disabled, created_at, updated_at
		FROM cards
		ORDER BY created_at`

	return r.queryCards(ctx, query)
}

// ListByOwner retrieves all cards owned by a specific user.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]Card, error) {
	query := `
		SELECT id, uid, owner_user_id, label, is_disabled, created_at, updated_at
		FROM cards
		WHERE owner_user_id = ?
		ORDER BY created_at`

	return r.queryCards(ctx, query, ownerUserID)
}

// Create inserts a new card. The ID and timestamps are assigned here if
// not already set.
func (r *SQLiteRepository) Create(ctx context.Context, c *Card) error {
	if c.ID == "" {
		c.ID = "card-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO cards (id, uid, owner_user_id, label, is_disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UID, c.OwnerUserID, c.Label, boolToInt(c.IsDisabled),
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCardExists
		}
		return fmt.Errorf("failed to create card: %w", err)
	}

	return nil
}

// Update modifies a card's label and owner.
func (r *SQLiteRepository) Update(ctx context.Context, c *Card) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE cards
		SET owner_user_id = ?, label = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		c.OwnerUserID, c.Label, c.UpdatedAt.Format(time.RFC3339), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrCardNotFound
	}

	return nil
}

// SetDisabled flips the disabled flag on a card.
func (r *SQLiteRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	query := `
		UPDATE cards
		SET is_disabled = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(disabled), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to set disabled on card %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrCardNotFound
	}

	return nil
}

func (r *SQLiteRepository) queryCards(ctx context.Context, query string, args ...any) ([]Card, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}

	return cards, nil
}

// scanner abstracts over *sql.Row and *sql.Rows so scanCard works for both.
type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (*Card, error) {
	var (
		c          Card
		isDisabled int
		createdAt  string
		updatedAt  string
	)

	err := s.Scan(&c.ID, &c.UID, &c.OwnerUserID, &c.Label, &isDisabled,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.IsDisabled = isDisabled != 0
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}

	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure. String matching avoids importing the driver package here.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
