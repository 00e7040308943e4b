package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/account-management/internal/domain/entity"
)

// ErrNotFound is returned by DeleteByID when no account has the given id.
var ErrNotFound = errors.New("not found")

// AccountRepository defines the persistence contract for accounts.
// Implementations must not enforce username/email uniqueness.
type AccountRepository interface {
	GetAll(ctx context.Context) ([]entity.Account, error)
	FindByID(ctx context.Context, id int64) (entity.Account, bool, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	// Save inserts when a.ID is zero and assigns the id, otherwise inserts or
	// updates the row with that id.
	Save(ctx context.Context, a entity.Account) (entity.Account, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error

	// Atomic runs fn against a transactional view of the store. Units run
	// through Atomic are serialized against each other; fn's error aborts
	// the unit and is returned unchanged.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx AccountRepository) error) error
}
