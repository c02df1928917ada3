package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/auth"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailInUse          = errors.New("email address is already in use")
	ErrAccountNotFound     = errors.New("account not found")
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	ErrVerificationInvalid = errors.New("verification link is invalid or has expired")
)

// Account is a principal known to the identity provider. Anonymous accounts
// have no email and no password.
type Account struct {
	ID            uuid.UUID `json:"uid"`
	Email         string    `json:"email,omitempty"`
	PasswordHash  string    `json:"-"`
	DisplayName   string    `json:"displayName,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	Anonymous     bool      `json:"isAnonymous"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SocialLink binds the subject of an external identity provider to an
// account.
type SocialLink struct {
	AccountID uuid.UUID `json:"accountId"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"createdAt"`
}

// VerificationToken is a single use email verification token.
type VerificationToken struct {
	Token     string    `json:"-"`
	AccountID uuid.UUID `json:"accountId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// SignIn is the result of a successful sign in: the account and a session
// token for it.
type SignIn struct {
	Account   *Account
	Provider  string
	Token     string
	ExpiresAt time.Time
}

// Identity converts the sign in to the identity reported to sessions.
func (s *SignIn) Identity() *session.Identity {
	return &session.Identity{
		UID:           s.Account.ID.String(),
		Email:         s.Account.Email,
		DisplayName:   s.Account.DisplayName,
		Anonymous:     s.Account.Anonymous,
		EmailVerified: s.Account.EmailVerified,
		ProviderID:    s.Provider,
		Token:         s.Token,
	}
}

func (a *Account) subject(provider string) auth.Subject {
	return auth.Subject{
		UID:           a.ID.String(),
		Email:         a.Email,
		Name:          a.DisplayName,
		Anonymous:     a.Anonymous,
		EmailVerified: a.EmailVerified,
		Provider:      provider,
	}
}

// ProviderPassword identifies email/password sign in.
const ProviderPassword = "password"

// ProviderAnonymous identifies anonymous sign in.
const ProviderAnonymous = "anonymous"
