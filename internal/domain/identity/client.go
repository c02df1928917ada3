package identity

import (
	"context"
	"sync"

	"github.com/woundcare/woundcare/internal/domain/session"
)

// Client is the identity provider as seen by one client scope: it holds the
// signed in principal and reports every change of it to its listeners. It
// implements session.Provider.
type Client struct {
	svc *Service

	mu        sync.Mutex
	current   *SignIn
	listeners map[int]func(*session.Identity)
	nextID    int
}

var _ session.Provider = (*Client)(nil)

// NewClient creates a signed out Client.
func NewClient(svc *Service) *Client {
	return &Client{svc: svc, listeners: make(map[int]func(*session.Identity))}
}

// Restore signs the client in with an existing session token.
func (c *Client) Restore(ctx context.Context, token string) (*session.Identity, error) {
	si, err := c.svc.Restore(ctx, token)
	if err != nil {
		return nil, err
	}
	c.set(si)
	return si.Identity(), nil
}

// OnAuthStateChanged implements session.Provider.
func (c *Client) OnAuthStateChanged(fn func(*session.Identity)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	cur := c.identityLocked()
	c.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Identity, error) {
	return c.signIn(c.svc.SignInWithPassword(ctx, email, password))
}

func (c *Client) CreateUserWithPassword(ctx context.Context, email, password string) (*session.Identity, error) {
	return c.signIn(c.svc.CreateUser(ctx, email, password))
}

func (c *Client) SignInWithIDToken(ctx context.Context, providerID, idToken string) (*session.Identity, error) {
	return c.signIn(c.svc.SignInWithIDToken(ctx, providerID, idToken))
}

func (c *Client) SignInAnonymously(ctx context.Context) (*session.Identity, error) {
	return c.signIn(c.svc.SignInAnonymously(ctx))
}

// UpdateProfile changes the display name of the current principal. It is
// not reported as an auth state change.
func (c *Client) UpdateProfile(ctx context.Context, displayName string) error {
	cur := c.signedIn()
	if cur == nil {
		return session.ErrNotSignedIn
	}
	acct, err := c.svc.UpdateProfile(ctx, cur.Account.ID.String(), displayName)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.current != nil && c.current.Account.ID == acct.ID {
		c.current = &SignIn{Account: acct, Provider: c.current.Provider, Token: c.current.Token, ExpiresAt: c.current.ExpiresAt}
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) SendEmailVerification(ctx context.Context) error {
	cur := c.signedIn()
	if cur == nil {
		return session.ErrNotSignedIn
	}
	return c.svc.SendEmailVerification(ctx, cur.Account.ID.String())
}

// SignOut revokes the current token and reports the signed out state.
func (c *Client) SignOut(_ context.Context) error {
	cur := c.signedIn()
	var err error
	if cur != nil {
		err = c.svc.SignOut(cur.Token)
	}
	c.set(nil)
	return err
}

// Reload reissues the token of the current principal from its stored
// account and reports the result.
func (c *Client) Reload(ctx context.Context) (*session.Identity, error) {
	cur := c.signedIn()
	if cur == nil {
		return nil, session.ErrNotSignedIn
	}
	return c.signIn(c.svc.Refresh(ctx, cur.Account.ID.String(), cur.Provider))
}

func (c *Client) CurrentUser() *session.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identityLocked()
}

// Token returns the current session token.
func (c *Client) Token() (string, bool) {
	cur := c.signedIn()
	if cur == nil {
		return "", false
	}
	return cur.Token, true
}

// Current returns the current sign in, or nil.
func (c *Client) Current() *SignIn {
	return c.signedIn()
}

func (c *Client) signIn(si *SignIn, err error) (*session.Identity, error) {
	if err != nil {
		return nil, err
	}
	c.set(si)
	return si.Identity(), nil
}

func (c *Client) signedIn() *SignIn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) identityLocked() *session.Identity {
	if c.current == nil {
		return nil
	}
	return c.current.Identity()
}

// set replaces the current principal and notifies listeners before
// returning.
func (c *Client) set(si *SignIn) {
	c.mu.Lock()
	c.current = si
	fns := make([]func(*session.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		var id *session.Identity
		if si != nil {
			id = si.Identity()
		}
		fn(id)
	}
}
