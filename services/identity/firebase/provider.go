// Package firebaseidp adapts Firebase Authentication to the identity ports.
package firebaseidp

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core/identity"
)

// AuthClient is the subset of *auth.Client in use.
type AuthClient interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
}

type Provider struct {
	client AuthClient
}

var (
	_ identity.Admin    = (*Provider)(nil)
	_ identity.Verifier = (*Provider)(nil)
	_ AuthClient        = (*auth.Client)(nil)
)

func NewProvider(client AuthClient) *Provider {
	return &Provider{client: client}
}

func (p *Provider) CreateAccount(ctx context.Context, email, pwd string) (string, error) {
	u, err := p.client.CreateUser(ctx, (&auth.UserToCreate{}).Email(email).Password(pwd))
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", identity.ErrAccountExists
		}
		return "", errors.Wrap(err, "creating firebase user")
	}
	return u.UID, nil
}

// SetPassword also revokes the refresh tokens of uid on Firebase's side.
func (p *Provider) SetPassword(ctx context.Context, uid, pwd string) error {
	if _, err := p.client.UpdateUser(ctx, uid, (&auth.UserToUpdate{}).Password(pwd)); err != nil {
		if auth.IsUserNotFound(err) {
			return identity.ErrAccountNotFound
		}
		return errors.Wrap(err, "updating firebase user")
	}
	return nil
}

func (p *Provider) DeleteAccount(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return identity.ErrAccountNotFound
		}
		return errors.Wrap(err, "deleting firebase user")
	}
	return nil
}

func (p *Provider) VerifyToken(ctx context.Context, token string) (*identity.Session, error) {
	if token == "" {
		return nil, identity.ErrInvalidToken
	}
	tok, err := p.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		if auth.IsIDTokenInvalid(err) || auth.IsIDTokenExpired(err) || auth.IsIDTokenRevoked(err) || auth.IsUserDisabled(err) {
			return nil, identity.ErrInvalidToken
		}
		return nil, errors.Wrap(err, "verifying firebase ID token")
	}
	return sessionOf(tok, token), nil
}

func sessionOf(tok *auth.Token, raw string) *identity.Session {
	email, _ := tok.Claims["email"].(string)
	return &identity.Session{
		UID:       tok.UID,
		Email:     email,
		Token:     raw,
		IssuedAt:  time.Unix(tok.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(tok.Expires, 0).UTC(),
	}
}
