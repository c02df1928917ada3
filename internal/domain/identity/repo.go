package identity

import (
	"context"

	"github.com/google/uuid"
)

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error

	// Social links
	LinkSocial(ctx context.Context, l *SocialLink) error
	GetBySocial(ctx context.Context, provider, subject string) (*Account, error)

	// Email verification
	CreateVerification(ctx context.Context, v *VerificationToken) error
	// ConsumeVerification deletes and returns the token. It returns
	// ErrVerificationInvalid when the token does not exist.
	ConsumeVerification(ctx context.Context, token string) (*VerificationToken, error)
}
