package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/internal/platform/notification"
)

const defaultVerificationTTL = 24 * time.Hour

var validate = validator.New()

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// IDTokenVerifier verifies an ID token issued by an external identity
// provider. *auth.IDTokenVerifier satisfies it.
type IDTokenVerifier interface {
	Verify(raw string) (*auth.IDTokenClaims, error)
}

// Notifier delivers templated emails. *notification.Notifier satisfies it.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) error
}

// TxFunc runs fn in a transaction. db.WithTx bound to a pool satisfies it.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Options configures a Service.
type Options struct {
	// Tx groups multi step account writes. Nil runs them without one.
	Tx TxFunc
	// Verifiers maps provider IDs ("google.com") to their ID token verifier.
	Verifiers map[string]IDTokenVerifier
	Notifier  Notifier
	// VerifyURL is the link base sent in verification emails; the token is
	// appended as the "token" query parameter.
	VerifyURL       string
	VerificationTTL time.Duration
	BcryptCost      int
}

// Service is the identity provider: it authenticates principals and issues
// session tokens for them.
type Service struct {
	accounts  AccountRepository
	tokens    *auth.TokenIssuer
	verifiers map[string]IDTokenVerifier
	notifier  Notifier
	tx        TxFunc
	verifyURL string
	verifyTTL time.Duration
	cost      int
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(accounts AccountRepository, tokens *auth.TokenIssuer, opts Options, logger zerolog.Logger) *Service {
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = defaultVerificationTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Tx == nil {
		opts.Tx = noTx
	}
	if opts.Verifiers == nil {
		opts.Verifiers = map[string]IDTokenVerifier{}
	}
	return &Service{
		accounts:  accounts,
		tokens:    tokens,
		verifiers: opts.Verifiers,
		notifier:  opts.Notifier,
		tx:        opts.Tx,
		verifyURL: opts.VerifyURL,
		verifyTTL: opts.VerificationTTL,
		cost:      opts.BcryptCost,
		logger:    logger.With().Str("component", "identity").Logger(),
		now:       time.Now,
	}
}

// SignInWithPassword authenticates an email/password account.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*SignIn, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		// Hash anyway so unknown emails take as long as wrong passwords.
		_, _ = bcrypt.GenerateFromPassword([]byte(password), s.cost)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if acct.PasswordHash == "" {
		_, _ = bcrypt.GenerateFromPassword([]byte(password), s.cost)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(acct, ProviderPassword)
}

// CreateUser creates an email/password account and signs it in.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*SignIn, error) {
	email = normalizeEmail(email)
	if err := validate.Struct(credentials{Email: email, Password: password}); err != nil {
		return nil, fmt.Errorf("invalid account: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct := &Account{Email: email, PasswordHash: string(hash)}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	s.logger.Info().Str("uid", acct.ID.String()).Msg("account created")
	return s.issue(acct, ProviderPassword)
}

// UpdateProfile sets the display name of uid.
func (s *Service) UpdateProfile(ctx context.Context, uid, displayName string) (*Account, error) {
	acct, err := s.Lookup(ctx, uid)
	if err != nil {
		return nil, err
	}
	acct.DisplayName = strings.TrimSpace(displayName)
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// SendEmailVerification records a verification token for uid and emails the
// verification link. Accounts already verified are left alone.
func (s *Service) SendEmailVerification(ctx context.Context, uid string) error {
	acct, err := s.Lookup(ctx, uid)
	if err != nil {
		return err
	}
	if acct.Email == "" || acct.EmailVerified {
		return nil
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	v := &VerificationToken{
		Token:     token,
		AccountID: acct.ID,
		Email:     acct.Email,
		ExpiresAt: s.now().Add(s.verifyTTL),
	}
	if err := s.accounts.CreateVerification(ctx, v); err != nil {
		return err
	}
	if s.notifier == nil {
		return nil
	}
	return s.notifier.SendFromTemplate(ctx, notification.TemplateEmailVerification, map[string]string{
		"name":        displayNameOr(acct),
		"verify_link": s.verificationLink(token),
		"expires_in":  s.verifyTTL.String(),
	}, acct.Email)
}

// VerifyEmail consumes a verification token and marks the account's email
// as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	var acct *Account
	err := s.tx(ctx, func(ctx context.Context) error {
		v, err := s.accounts.ConsumeVerification(ctx, token)
		if err != nil {
			return err
		}
		if s.now().After(v.ExpiresAt) {
			return ErrVerificationInvalid
		}
		acct, err = s.accounts.GetByID(ctx, v.AccountID)
		if err != nil {
			return err
		}
		if acct.Email != v.Email {
			return ErrVerificationInvalid
		}
		acct.EmailVerified = true
		return s.accounts.Update(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// SignInWithIDToken verifies an ID token from provider and signs in the
// linked account, creating it on first use. A verified email that matches
// an existing account links the provider to that account.
func (s *Service) SignInWithIDToken(ctx context.Context, provider, idToken string) (*SignIn, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	claims, err := verifier.Verify(idToken)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetBySocial(ctx, provider, claims.Subject)
	if err == nil {
		return s.issue(acct, provider)
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		var linkErr error
		acct, linkErr = s.linkSocial(ctx, provider, claims)
		return linkErr
	})
	if err != nil {
		return nil, err
	}
	return s.issue(acct, provider)
}

// linkSocial links the provider subject of claims to the account with the
// same verified email, or to a new account.
func (s *Service) linkSocial(ctx context.Context, provider string, claims *auth.IDTokenClaims) (*Account, error) {
	var acct *Account
	email := normalizeEmail(claims.Email)
	if email != "" {
		existing, err := s.accounts.GetByEmail(ctx, email)
		switch {
		case err == nil && claims.Verified():
			acct = existing
			if !acct.EmailVerified {
				acct.EmailVerified = true
				if err := s.accounts.Update(ctx, acct); err != nil {
					return nil, err
				}
			}
		case err == nil:
			return nil, ErrEmailInUse
		case !errors.Is(err, ErrAccountNotFound):
			return nil, err
		}
	}
	if acct == nil {
		acct = &Account{Email: email, DisplayName: claims.Name, EmailVerified: email != "" && claims.Verified()}
		if err := s.accounts.Create(ctx, acct); err != nil {
			return nil, err
		}
		s.logger.Info().Str("uid", acct.ID.String()).Str("provider", provider).Msg("account created")
	}
	if err := s.accounts.LinkSocial(ctx, &SocialLink{AccountID: acct.ID, Provider: provider, Subject: claims.Subject}); err != nil {
		return nil, err
	}
	return acct, nil
}

// SignInAnonymously creates an anonymous account and signs it in.
func (s *Service) SignInAnonymously(ctx context.Context) (*SignIn, error) {
	acct := &Account{Anonymous: true}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	return s.issue(acct, ProviderAnonymous)
}

// Lookup returns the account with the given uid.
func (s *Service) Lookup(ctx context.Context, uid string) (*Account, error) {
	id, err := uuid.Parse(uid)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	return s.accounts.GetByID(ctx, id)
}

// Restore verifies a session token and returns the sign in it represents
// with the account reloaded from storage.
func (s *Service) Restore(ctx context.Context, token string) (*SignIn, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	acct, err := s.Lookup(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &SignIn{Account: acct, Provider: claims.Provider, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Refresh issues a new token carrying the current state of uid's account.
func (s *Service) Refresh(ctx context.Context, uid, provider string) (*SignIn, error) {
	acct, err := s.Lookup(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.issue(acct, provider)
}

// SignOut revokes a session token.
func (s *Service) SignOut(token string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}
	s.tokens.Revoke(claims)
	return nil
}

func (s *Service) issue(acct *Account, provider string) (*SignIn, error) {
	token, exp, err := s.tokens.Issue(acct.subject(provider))
	if err != nil {
		return nil, err
	}
	return &SignIn{Account: acct, Provider: provider, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) verificationLink(token string) string {
	if s.verifyURL == "" {
		return token
	}
	sep := "?"
	if strings.Contains(s.verifyURL, "?") {
		sep = "&"
	}
	return s.verifyURL + sep + "token=" + url.QueryEscape(token)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func displayNameOr(a *Account) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}
