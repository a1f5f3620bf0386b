package card

import (
	"context"
	"errors"
	"fmt"

	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
)

// Directory wraps the card repository with the access rules the rest of
// the system relies on. Reader validation, enrollment and the HTTP layer
// all go through the Directory, never the repository directly.
type Directory struct {
	repo   Repository
	logger *logging.Logger
}

// NewDirectory creates a Directory backed by the given repository.
func NewDirectory(repo Repository, logger *logging.Logger) *Directory {
	return &Directory{
		repo:   repo,
		logger: logger.With("component", "card_directory"),
	}
}

// IsEnabled reports whether the card with the given hardware UID exists
// and is enabled. A disabled or unknown card must never start a session;
// this is the single check the reader state machine uses during card
// validation.
func (d *Directory) IsEnabled(ctx context.Context, uid string) (bool, error) {
	canonical, err := NormalizeUID(uid)
	if err != nil {
		return false, err
	}

	c, err := d.repo.GetByUID(ctx, canonical)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check card: %w", err)
	}

	return c.Enabled(), nil
}

// GetByUID retrieves a card by hardware UID.
func (d *Directory) GetByUID(ctx context.Context, uid string) (*Card, error) {
	canonical, err := NormalizeUID(uid)
	if err != nil {
		return nil, err
	}
	return d.repo.GetByUID(ctx, canonical)
}

// Upsert registers a card on first-seen enrollment. If the UID is already
// known the existing card is returned unchanged: enrollment never
// reassigns ownership or re-enables a disabled card.
func (d *Directory) Upsert(ctx context.Context, uid, ownerUserID, label string) (*Card, error) {
	canonical, err := NormalizeUID(uid)
	if err != nil {
		return nil, err
	}

	existing, err := d.repo.GetByUID(ctx, canonical)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrCardNotFound) {
		return nil, fmt.Errorf("failed to check existing card: %w", err)
	}

	c := &Card{
		UID:         canonical,
		OwnerUserID: ownerUserID,
		Label:       label,
	}
	if err := d.repo.Create(ctx, c); err != nil {
		// Lost a race with a concurrent enrollment of the same UID.
		if errors.Is(err, ErrCardExists) {
			return d.repo.GetByUID(ctx, canonical)
		}
		return nil, err
	}

	d.logger.Info("card enrolled", "card_id", c.ID, "owner", ownerUserID)
	return c, nil
}

// SetDisabled enables or disables a card. Only the card's owner or a
// caller with the system-configuration privilege may do this; anyone else
// gets ErrForbidden regardless of whether the card exists.
func (d *Directory) SetDisabled(ctx context.Context, cardID, requestingUserID string, privileged, disabled bool) (*Card, error) {
	c, err := d.repo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if !privileged && c.OwnerUserID != requestingUserID {
		return nil, ErrForbidden
	}

	if c.IsDisabled == disabled {
		return c, nil
	}

	if err := d.repo.SetDisabled(ctx, cardID, disabled); err != nil {
		return nil, err
	}
	c.IsDisabled = disabled

	d.logger.Info("card disabled flag changed",
		"card_id", cardID, "disabled", disabled, "by", requestingUserID)
	return c, nil
}

// ListCards returns the cards visible to the requesting user: all cards
// for a privileged caller, only the caller's own cards otherwise. The
// filtering happens here so no caller can bypass it.
func (d *Directory) ListCards(ctx context.Context, requestingUserID string, privileged bool) ([]Card, error) {
	if privileged {
		return d.repo.List(ctx)
	}
	return d.repo.ListByOwner(ctx, requestingUserID)
}
