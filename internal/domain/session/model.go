package session

import (
	"context"
	"errors"
)

// Role is the application level authorization tag of a principal. It is
// stored in the document store, never in the identity token.
type Role string

const (
	RoleProfessional Role = "professional"
	RolePatient      Role = "patient"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleProfessional || r == RolePatient
}

// State is the lifecycle state of a Session.
type State string

const (
	StateUnknown        State = "unknown"
	StateAuthenticating State = "authenticating"
	StateNoRole         State = "authenticated-no-role"
	StateWithRole       State = "authenticated-with-role"
	// StateAnonymous means no principal is signed in.
	StateAnonymous State = "anonymous"
)

// Settled reports whether the state is final for the current auth event.
func (s State) Settled() bool {
	return s == StateNoRole || s == StateWithRole || s == StateAnonymous
}

// Identity providers accepted by SignInWithIDToken.
const (
	ProviderGoogle    = "google.com"
	ProviderMicrosoft = "microsoft.com"
	ProviderApple     = "apple.com"
)

var (
	// ErrRoleAssignment is the user facing error returned when a role could
	// not be saved. The underlying cause is reported on the error emitter.
	ErrRoleAssignment = errors.New("could not save your role, please try again")
	ErrNotSignedIn    = errors.New("no user is signed in")
	ErrInvalidRole    = errors.New("role must be professional or patient")
)

// Identity is an authenticated principal as reported by the identity
// provider.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	Anonymous     bool   `json:"isAnonymous"`
	EmailVerified bool   `json:"emailVerified"`
	ProviderID    string `json:"providerId,omitempty"`
	Token         string `json:"-"`
}

// Principal is the signed in identity augmented with its role. Role is empty
// until one is assigned.
type Principal struct {
	Identity
	Role Role `json:"role,omitempty"`
}

// Snapshot is a consistent view of a Session.
type Snapshot struct {
	State     State      `json:"state"`
	Principal *Principal `json:"user"`
}

// Provider is the identity provider behind a Session.
type Provider interface {
	// OnAuthStateChanged registers fn for principal changes. fn is called
	// once with the current principal (nil when signed out) and again after
	// every sign in, sign out and reload, before the call that caused the
	// change returns.
	OnAuthStateChanged(fn func(*Identity)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	CreateUserWithPassword(ctx context.Context, email, password string) (*Identity, error)
	UpdateProfile(ctx context.Context, displayName string) error
	SendEmailVerification(ctx context.Context) error
	SignInWithIDToken(ctx context.Context, providerID, idToken string) (*Identity, error)
	SignInAnonymously(ctx context.Context) (*Identity, error)
	SignOut(ctx context.Context) error
	// Reload refreshes the current principal from the provider and reports
	// it as an auth state change.
	Reload(ctx context.Context) (*Identity, error)
	CurrentUser() *Identity
}

// RoleStore reads and writes role records.
type RoleStore interface {
	// GetRole returns the stored role of uid. ok is false when no role
	// record exists, which is not an error.
	GetRole(ctx context.Context, uid string) (role Role, ok bool, err error)
	// SetRole writes the role record of uid with merge semantics.
	SetRole(ctx context.Context, uid string, role Role) error
}

// LoginInput holds email/password credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// SignupInput holds the fields of a new account.
type SignupInput struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}
