package records

import (
	"context"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/internal/platform/docstore"
)

// RoleStore keeps role records in the document store, acting as the
// principal whose role is read or written.
type RoleStore struct {
	client *docstore.Client
}

var (
	_ session.RoleStore = (*RoleStore)(nil)
	_ auth.RoleResolver = (*RoleStore)(nil)
)

func NewRoleStore(client *docstore.Client) *RoleStore {
	return &RoleStore{client: client}
}

// GetRole reads users/{uid}. A missing document or a document without a
// valid role reports ok=false.
func (s *RoleStore) GetRole(ctx context.Context, uid string) (session.Role, bool, error) {
	snap, err := s.client.As(docstore.Actor{UID: uid}).Get(ctx, docstore.Join(CollectionUsers, uid))
	if err != nil {
		return "", false, err
	}
	if !snap.Exists {
		return "", false, nil
	}
	rec, err := DecodeRole(snap)
	if err != nil {
		return "", false, nil
	}
	return rec.Role, true, nil
}

// SetRole merges the role into users/{uid}.
func (s *RoleStore) SetRole(ctx context.Context, uid string, role session.Role) error {
	if !role.Valid() {
		return session.ErrInvalidRole
	}
	return s.client.As(docstore.Actor{UID: uid}).Set(ctx, docstore.Join(CollectionUsers, uid),
		map[string]any{"role": string(role)}, docstore.SetOptions{Merge: true})
}

// ResolveRole implements auth.RoleResolver.
func (s *RoleStore) ResolveRole(ctx context.Context, uid string) (string, error) {
	role, ok, err := s.GetRole(ctx, uid)
	if err != nil || !ok {
		return "", err
	}
	return string(role), nil
}
