package event

import (
	"time"

	"github.com/google/uuid"
)

// Account lifecycle event types.
const (
	AccountRegistered    = "account.registered"
	AccountAuthenticated = "account.authenticated"
	AccountUpdated       = "account.updated"
	AccountDeleted       = "account.deleted"
	AccountsPurged       = "account.purged"
)

// Account is the message published after an account write commits.
// AccountID is zero for AccountsPurged. Changes names the fields an update
// replaced.
type Account struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	AccountID  int64     `json:"account_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	Email      string    `json:"email,omitempty"`
	Changes    []string  `json:"changes,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(eventType string, accountID int64, username, email string, at time.Time) Account {
	return Account{
		ID:         uuid.NewString(),
		Type:       eventType,
		AccountID:  accountID,
		Username:   username,
		Email:      email,
		OccurredAt: at.UTC(),
	}
}
