// Package monarch defines the ports for the Monarch Money data source and
// the session persistence used to survive restarts without re-login.
package monarch

import (
	"context"
	"errors"
	"time"

	"monarch/internal/core"
)

// Ports for the outbound Monarch adapter.
type (
	AccountReader interface {
		Accounts(ctx context.Context) ([]core.Account, error)
	}

	TaxonomyReader interface {
		Categories(ctx context.Context) ([]core.Category, error)
	}

	CashflowReader interface {
		Cashflow(ctx context.Context) (core.Cashflow, error)
	}

	// Source bundles everything a poll needs.
	Source interface {
		AccountReader
		TaxonomyReader
		CashflowReader
	}

	// Authenticator is implemented by sources that can re-establish a
	// session with stored credentials.
	Authenticator interface {
		Login(ctx context.Context, email, password, totp string) error
	}
)

// Session is a persisted Monarch API token.
type Session struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// SessionStore persists sessions between runs.
type SessionStore interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

var (
	// ErrAuthFailed means the API rejected the token or credentials.
	// The coordinator reacts by attempting one re-login.
	ErrAuthFailed = errors.New("monarch: authentication failed")

	// ErrMFARequired means login needs a one-time multi-factor code.
	ErrMFARequired = errors.New("monarch: multi-factor code required")

	// ErrRateLimited means the API returned 429.
	ErrRateLimited = errors.New("monarch: rate limited")

	// ErrNoSession means no stored session exists yet.
	ErrNoSession = errors.New("monarch: no saved session")
)
