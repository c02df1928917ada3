package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woundcare/woundcare/internal/platform/db"
)

const uniqueViolation = "23505"

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const (
	accountCols       = `id, COALESCE(email, ''), password_hash, display_name, email_verified, anonymous, created_at, updated_at`
	linkedAccountCols = `a.id, COALESCE(a.email, ''), a.password_hash, a.display_name, a.email_verified, a.anonymous, a.created_at, a.updated_at`
)

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name, email_verified, anonymous, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)`,
		a.ID, normalizeEmail(a.Email), a.PasswordHash, a.DisplayName, a.EmailVerified, a.Anonymous, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailInUse
	}
	if err != nil {
		return fmt.Errorf("account create: %w", err)
	}
	return nil
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE email = $1`, normalizeEmail(email)))
}

func (r *accountRepoPG) Update(ctx context.Context, a *Account) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE accounts SET
			email = NULLIF($2, ''), password_hash = $3, display_name = $4,
			email_verified = $5, anonymous = $6, updated_at = $7
		WHERE id = $1`,
		a.ID, normalizeEmail(a.Email), a.PasswordHash, a.DisplayName, a.EmailVerified, a.Anonymous, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailInUse
	}
	if err != nil {
		return fmt.Errorf("account update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *accountRepoPG) LinkSocial(ctx context.Context, l *SocialLink) error {
	l.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO social_links (account_id, provider, subject, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, subject) DO NOTHING`,
		l.AccountID, l.Provider, l.Subject, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("link social account: %w", err)
	}
	return nil
}

func (r *accountRepoPG) GetBySocial(ctx context.Context, provider, subject string) (*Account, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx, `
		SELECT `+linkedAccountCols+`
		FROM accounts a
		JOIN social_links s ON s.account_id = a.id
		WHERE s.provider = $1 AND s.subject = $2`, provider, subject))
}

func (r *accountRepoPG) CreateVerification(ctx context.Context, v *VerificationToken) error {
	v.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO email_verifications (token, account_id, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		v.Token, v.AccountID, normalizeEmail(v.Email), v.ExpiresAt, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create verification: %w", err)
	}
	return nil
}

func (r *accountRepoPG) ConsumeVerification(ctx context.Context, token string) (*VerificationToken, error) {
	var v VerificationToken
	err := r.conn(ctx).QueryRow(ctx, `
		DELETE FROM email_verifications WHERE token = $1
		RETURNING token, account_id, email, expires_at, created_at`, token,
	).Scan(&v.Token, &v.AccountID, &v.Email, &v.ExpiresAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVerificationInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("consume verification: %w", err)
	}
	return &v, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.EmailVerified, &a.Anonymous, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
