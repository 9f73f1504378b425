package shop

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Status enumerates the moderation lifecycle states of a shop.
type Status string

const (
	// StatusPending marks a freshly registered shop awaiting moderation.
	StatusPending Status = "pending"
	// StatusActive marks a shop approved by an administrator. Only active
	// shops may accept new or edited products.
	StatusActive Status = "active"
	// StatusSuspended marks a shop temporarily blocked by an administrator.
	StatusSuspended Status = "suspended"
	// StatusRejected marks a shop whose registration was declined.
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRejected:
		return true
	}
	return false
}

// ErrNotFound is returned when a requested shop does not exist or is
// soft-deleted.
var ErrNotFound = errors.New("shop not found")

// NotOwnerError indicates the acting user does not own the shop.
type NotOwnerError struct {
	ShopID int64
	UserID int64
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("user %d is not the owner of shop %d", e.UserID, e.ShopID)
}

// NotActiveError indicates the shop is not in the active state. It carries
// the actual status for diagnostics.
type NotActiveError struct {
	ShopID int64
	Status Status
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("shop %d is not active (status %q)", e.ShopID, e.Status)
}

// Shop represents a seller's storefront. Shops are created by registration
// and moderated by administrators; the catalog core only reads them.
type Shop struct {
	ID          int64
	OwnerUserID int64
	Name        string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository provides lookup of shops. Soft-deleted shops are treated as
// absent.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Shop, error)
}

// AuthorizeOwner checks that the acting user may mutate the shop's catalog.
// It returns nil only when the user owns the shop and the shop is active.
// Callers must run this check fresh on every mutation: shop status can
// change between an edit session starting and submitting.
func AuthorizeOwner(s *Shop, actingUserID int64) error {
	if s.OwnerUserID != actingUserID {
		return &NotOwnerError{ShopID: s.ID, UserID: actingUserID}
	}
	if s.Status != StatusActive {
		return &NotActiveError{ShopID: s.ID, Status: s.Status}
	}
	return nil
}
