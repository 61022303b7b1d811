// Package identity describes the identity provider the application delegates
// credential checks and session issuance to.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("an account with this email already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Session is the provider-issued proof that a principal is authenticated.
type Session struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// EventKind is the kind of a session change notification.
type EventKind string

const (
	EventInitialRestore EventKind = "INITIAL_RESTORE"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventSignedOut      EventKind = "SIGNED_OUT"
)

// Event notifies a session change. Session is nil for SIGNED_OUT and for an empty INITIAL_RESTORE.
type Event struct {
	Kind    EventKind
	Session *Session
}

type Listener func(Event)

type (
	// Client is the per-principal handle on the provider.
	Client interface {
		// SignIn returns ErrInvalidCredentials for any unknown email or wrong password.
		SignIn(ctx context.Context, email, password string) (*Session, error)
		// SignOut is a no-op without a current session.
		SignOut(ctx context.Context) error
		CurrentSession() *Session
		// OnChange registers fn and immediately delivers INITIAL_RESTORE with the current session.
		OnChange(fn Listener) (unsubscribe func())
	}

	// Verifier turns a bearer token into the session it proves.
	Verifier interface {
		VerifyToken(ctx context.Context, token string) (*Session, error)
	}

	// Admin is the privileged account management surface.
	Admin interface {
		// CreateAccount returns ErrAccountExists when the email is taken.
		CreateAccount(ctx context.Context, email, password string) (uid string, err error)
		// SetPassword returns ErrAccountNotFound when no account has uid.
		SetPassword(ctx context.Context, uid, password string) error
		// DeleteAccount returns ErrAccountNotFound when no account has uid.
		DeleteAccount(ctx context.Context, uid string) error
	}
)

// Account is a credential record of the self-hosted provider.
type Account struct {
	UID          string
	Email        string
	PasswordHash []byte
	// TokensValidAfter invalidates every session issued before it.
	TokensValidAfter time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountRepository stores the accounts of the self-hosted provider.
// Lookups return ErrAccountNotFound; InsertAccount returns ErrAccountExists on a taken email.
type AccountRepository interface {
	InsertAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, uid string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, uid string) error
}
