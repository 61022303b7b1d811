package localidp

import (
	"context"
	"sync"

	"github.com/trezcool/sapp/core/identity"
)

// Client holds the session of one principal, typically the bearer of one request.
type Client struct {
	p *Provider

	mu        sync.Mutex
	sess      *identity.Session
	listeners map[int]identity.Listener
	next      int
}

var _ identity.Client = (*Client)(nil)

// NewClient returns a client without a session.
func (p *Provider) NewClient() *Client {
	return &Client{p: p, listeners: make(map[int]identity.Listener)}
}

// Restore returns a client holding the session proven by token.
// For an invalid token, the client has no session and the error is identity.ErrInvalidToken.
func (p *Provider) Restore(ctx context.Context, token string) (*Client, error) {
	c := p.NewClient()
	if token == "" {
		return c, nil
	}
	sess, err := p.VerifyToken(ctx, token)
	if err != nil {
		return c, err
	}
	c.sess = sess
	return c, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	sess, err := c.p.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.set(sess)
	c.emit(identity.Event{Kind: identity.EventSignedIn, Session: sess})
	return sess, nil
}

// SignOut clears the session even when the token could not be revoked.
func (c *Client) SignOut(ctx context.Context) error {
	sess := c.CurrentSession()
	if sess == nil {
		return nil
	}
	err := c.p.Revoke(ctx, sess.Token)
	c.set(nil)
	c.emit(identity.Event{Kind: identity.EventSignedOut})
	return err
}

// Refresh replaces the current token with a fresh one.
func (c *Client) Refresh(ctx context.Context) (*identity.Session, error) {
	cur := c.CurrentSession()
	if cur == nil {
		return nil, identity.ErrInvalidToken
	}
	sess, err := c.p.Refresh(ctx, cur.Token)
	if err != nil {
		return nil, err
	}
	c.set(sess)
	c.emit(identity.Event{Kind: identity.EventTokenRefreshed, Session: sess})
	return sess, nil
}

func (c *Client) CurrentSession() *identity.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) OnChange(fn identity.Listener) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	sess := c.sess
	c.mu.Unlock()

	fn(identity.Event{Kind: identity.EventInitialRestore, Session: sess})

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) set(sess *identity.Session) {
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
}

// listeners are called outside the lock: they may call back into the client
func (c *Client) emit(ev identity.Event) {
	c.mu.Lock()
	fns := make([]identity.Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
