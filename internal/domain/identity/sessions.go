package identity

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/apperr"
)

// Sessions opens sessions whose provider is an identity Client.
type Sessions struct {
	svc    *Service
	roles  session.RoleStore
	errs   *apperr.Emitter
	logger zerolog.Logger
}

func NewSessions(svc *Service, roles session.RoleStore, errs *apperr.Emitter, logger zerolog.Logger) *Sessions {
	return &Sessions{svc: svc, roles: roles, errs: errs, logger: logger}
}

// New returns a started, signed out session and its client. Callers must
// Close the session.
func (f *Sessions) New(ctx context.Context) (*session.Session, *Client) {
	client := NewClient(f.svc)
	sess := session.New(client, f.roles, f.errs, f.logger)
	sess.Start(ctx)
	return sess, client
}

// Open returns a session signed in with token whose role lookup has
// settled. Callers must Close the session.
func (f *Sessions) Open(ctx context.Context, token string) (*session.Session, *Client, error) {
	client := NewClient(f.svc)
	if _, err := client.Restore(ctx, token); err != nil {
		return nil, nil, err
	}
	sess := session.New(client, f.roles, f.errs, f.logger)
	sess.Start(ctx)
	if _, err := sess.Await(ctx); err != nil {
		sess.Close()
		return nil, nil, err
	}
	return sess, client, nil
}
