// Package localidp is the self-hosted identity provider of standalone deployments:
// bcrypt password accounts and HS256 session tokens.
package localidp

import (
	"context"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/identity"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"` // start of the refresh window
	Email        string `json:"email,omitempty"`
}

type Options struct {
	SecretKey  string
	Issuer     string
	TokenTTL   time.Duration
	RefreshTTL time.Duration
	HashCost   int // bcrypt.DefaultCost when zero
	// Revocations holds the IDs of signed-out tokens until they expire. In-process when nil.
	Revocations RevocationStore
}

type Provider struct {
	accounts   identity.AccountRepository
	revoked    RevocationStore
	secret     []byte
	issuer     string
	ttl        time.Duration
	refreshTTL time.Duration
	cost       int

	dummyOnce sync.Once
	dummyHash []byte
}

var (
	_ identity.Admin    = (*Provider)(nil)
	_ identity.Verifier = (*Provider)(nil)
)

func NewProvider(accounts identity.AccountRepository, opts Options) *Provider {
	p := &Provider{
		accounts:   accounts,
		revoked:    opts.Revocations,
		secret:     []byte(opts.SecretKey),
		issuer:     opts.Issuer,
		ttl:        opts.TokenTTL,
		refreshTTL: opts.RefreshTTL,
		cost:       opts.HashCost,
	}
	if p.revoked == nil {
		p.revoked = NewMemoryRevocationStore()
	}
	if p.ttl <= 0 {
		p.ttl = time.Hour
	}
	if p.refreshTTL < p.ttl {
		p.refreshTTL = p.ttl
	}
	if p.cost == 0 {
		p.cost = bcrypt.DefaultCost
	}
	return p
}

func (p *Provider) hash(pwd string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), p.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hashing password")
	}
	return hash, nil
}

func (p *Provider) CreateAccount(ctx context.Context, email, pwd string) (string, error) {
	hash, err := p.hash(pwd)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	a := identity.Account{
		UID:          uuid.NewString(),
		Email:        core.CleanString(email, true /* lower */),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.accounts.InsertAccount(ctx, a); err != nil {
		return "", err
	}
	return a.UID, nil
}

// SetPassword also ends every session issued before the change.
func (p *Provider) SetPassword(ctx context.Context, uid, pwd string) error {
	a, err := p.accounts.GetAccount(ctx, uid)
	if err != nil {
		return err
	}
	if a.PasswordHash, err = p.hash(pwd); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.TokensValidAfter = now.Truncate(time.Second)
	a.UpdatedAt = now
	return p.accounts.UpdateAccount(ctx, a)
}

func (p *Provider) DeleteAccount(ctx context.Context, uid string) error {
	return p.accounts.DeleteAccount(ctx, uid)
}

// Authenticate checks the credentials and issues a new session.
// Unknown emails and wrong passwords are indistinguishable.
func (p *Provider) Authenticate(ctx context.Context, email, pwd string) (*identity.Session, error) {
	a, err := p.accounts.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(p.timingHash(), []byte(pwd))
			return nil, identity.ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "finding account")
	}
	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	return p.issue(a.UID, a.Email, time.Now().Unix())
}

// timingHash keeps unknown emails as slow as wrong passwords.
func (p *Provider) timingHash() []byte {
	p.dummyOnce.Do(func() {
		p.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), p.cost)
	})
	return p.dummyHash
}

func (p *Provider) issue(uid, email string, origIat int64) (*identity.Session, error) {
	now := time.Now()
	exp := now.Add(p.ttl)
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    p.issuer,
			Subject:   uid,
			IssuedAt:  now.Unix(),
			ExpiresAt: exp.Unix(),
		},
		OrigIssuedAt: origIat,
		Email:        email,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, errors.Wrap(err, "signing token")
	}
	return &identity.Session{
		UID:       uid,
		Email:     email,
		Token:     ss,
		IssuedAt:  time.Unix(claims.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

func (p *Provider) parse(token string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || claims.Subject == "" || claims.Id == "" {
		return nil, identity.ErrInvalidToken
	}
	return claims, nil
}

func (p *Provider) verify(ctx context.Context, token string) (*Claims, identity.Account, error) {
	claims, err := p.parse(token)
	if err != nil {
		return nil, identity.Account{}, err
	}
	revoked, err := p.revoked.IsRevoked(ctx, claims.Id)
	if err != nil {
		return nil, identity.Account{}, errors.Wrap(err, "checking token revocation")
	}
	if revoked {
		return nil, identity.Account{}, identity.ErrInvalidToken
	}

	a, err := p.accounts.GetAccount(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			return nil, identity.Account{}, identity.ErrInvalidToken
		}
		return nil, identity.Account{}, errors.Wrap(err, "finding account")
	}
	if claims.IssuedAt < a.TokensValidAfter.Unix() {
		return nil, identity.Account{}, identity.ErrInvalidToken
	}
	return claims, a, nil
}

// VerifyToken returns ErrInvalidToken for malformed, expired, revoked or orphaned tokens.
func (p *Provider) VerifyToken(ctx context.Context, token string) (*identity.Session, error) {
	claims, a, err := p.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return &identity.Session{
		UID:       a.UID,
		Email:     a.Email,
		Token:     token,
		IssuedAt:  time.Unix(claims.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

// Refresh exchanges a valid token for a new one, within RefreshTTL of the original sign-in.
func (p *Provider) Refresh(ctx context.Context, token string) (*identity.Session, error) {
	claims, a, err := p.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	origIat := claims.OrigIssuedAt
	if origIat == 0 {
		origIat = claims.IssuedAt
	}
	if time.Now().After(time.Unix(origIat, 0).Add(p.refreshTTL)) {
		return nil, identity.ErrInvalidToken
	}

	sess, err := p.issue(a.UID, a.Email, origIat)
	if err != nil {
		return nil, err
	}
	if err := p.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return sess, nil
}

// Revoke ends the session of token. Invalid tokens are ignored.
func (p *Provider) Revoke(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return nil
	}
	return p.revoke(ctx, claims)
}

func (p *Provider) revoke(ctx context.Context, claims *Claims) error {
	if err := p.revoked.Revoke(ctx, claims.Id, time.Unix(claims.ExpiresAt, 0)); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	return nil
}
