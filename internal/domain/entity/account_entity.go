package entity

import (
	"strings"
	"time"
)

// Account is the aggregate root for the account domain.
// Passwords are opaque strings; no hashing contract applies here.
type Account struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Password            string     `json:"password"`
	Email               string     `json:"email"`
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Validate reports the names of required fields that are blank.
func (a Account) Validate() []string {
	var missing []string
	if strings.TrimSpace(a.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(a.Password) == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(a.Email) == "" {
		missing = append(missing, "email")
	}
	return missing
}

// Collides reports whether a and b share a username or an email.
// Blank values never match: in a patch they mean "leave unchanged".
func Collides(a, b Account) bool {
	if a.Username != "" && a.Username == b.Username {
		return true
	}
	return a.Email != "" && a.Email == b.Email
}

// Merge applies the non-blank, changed fields of patch onto stored and
// returns the result. Identity and timestamps always come from stored.
func Merge(stored, patch Account) Account {
	merged := stored
	if patch.Username != "" && patch.Username != stored.Username {
		merged.Username = patch.Username
	}
	if patch.Email != "" && patch.Email != stored.Email {
		merged.Email = patch.Email
	}
	if patch.Password != "" && patch.Password != stored.Password {
		merged.Password = patch.Password
	}
	return merged
}

// ChangedFields names the fields Merge(stored, patch) would replace, in
// username, email, password order.
func ChangedFields(stored, patch Account) []string {
	var changed []string
	if patch.Username != "" && patch.Username != stored.Username {
		changed = append(changed, "username")
	}
	if patch.Email != "" && patch.Email != stored.Email {
		changed = append(changed, "email")
	}
	if patch.Password != "" && patch.Password != stored.Password {
		changed = append(changed, "password")
	}
	return changed
}

// AccountMatch is a search result over the account projection.
type AccountMatch struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Score    float64 `json:"score"`
}
