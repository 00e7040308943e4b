package templates

import (
	"strings"
	"time"
)

// Brand carries the sender-side fields shared by every email.
type Brand struct {
	CompanyName string
	AppName     string
	LogoURL     string
	SupportURL  string
}

type Option func(*EmailData)

func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format("02 January 2006, 15:04 MST")
	}
}

func WithChanges(fields ...string) Option {
	return func(d *EmailData) {
		for _, f := range fields {
			if s := strings.TrimSpace(f); s != "" {
				d.Changes = append(d.Changes, s)
			}
		}
	}
}

// NewEmailData fills the brand fields, then applies opts.
func NewEmailData(b Brand, username, email string, opts ...Option) EmailData {
	d := EmailData{
		Username:    username,
		Email:       email,
		CompanyName: b.CompanyName,
		AppName:     b.AppName,
		LogoURL:     b.LogoURL,
		SupportURL:  b.SupportURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}
