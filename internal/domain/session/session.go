// Package session tracks the signed in principal of one client scope and the
// application role attached to it.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/emitter"
)

const eventChange = "change"

var validate = validator.New()

// Session wraps a Provider's auth state stream and resolves the role of
// every principal it reports. Every auth state change triggers exactly one
// role lookup; a lookup that completes after a newer auth event is
// discarded.
type Session struct {
	provider Provider
	roles    RoleStore
	errors   *apperr.Emitter
	logger   zerolog.Logger
	changes  *emitter.Emitter[Snapshot]

	mu          sync.RWMutex
	state       State
	principal   *Principal
	gen         uint64
	settled     chan struct{}
	closedCh    bool
	unsubscribe func()
	cancel      context.CancelFunc
	ctx         context.Context
}

// New creates a Session in the unknown state.
func New(provider Provider, roles RoleStore, errs *apperr.Emitter, logger zerolog.Logger) *Session {
	if errs == nil {
		errs = apperr.NewEmitter()
	}
	return &Session{
		provider: provider,
		roles:    roles,
		errors:   errs,
		logger:   logger.With().Str("component", "session").Logger(),
		changes:  emitter.New[Snapshot](),
		state:    StateUnknown,
		settled:  make(chan struct{}),
	}
}

// Start moves the session to authenticating and begins following the
// provider. Role lookups run under ctx.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateAuthenticating
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.Emit(eventChange, snap)

	unsub := s.provider.OnAuthStateChanged(s.handleAuthState)
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()
}

// Close stops following the provider and cancels pending role lookups.
func (s *Session) Close() {
	s.mu.Lock()
	unsub, cancel := s.unsubscribe, s.cancel
	s.unsubscribe = func() {}
	s.gen++
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
}

// Errors returns the emitter that receives permission errors.
func (s *Session) Errors() *apperr.Emitter { return s.errors }

// OnChange registers fn for every state change.
func (s *Session) OnChange(fn func(Snapshot)) (off func()) {
	return s.changes.On(eventChange, fn)
}

// Snapshot returns the current state and principal.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state}
	if s.principal != nil {
		p := *s.principal
		snap.Principal = &p
	}
	return snap
}

// ViewerID returns the uid of the signed in principal, if any.
func (s *Session) ViewerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return ""
	}
	return s.principal.UID
}

// ViewerRole returns the role of the signed in principal, if assigned.
func (s *Session) ViewerRole() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return ""
	}
	return string(s.principal.Role)
}

// Await blocks until the current auth event has settled and returns the
// resulting snapshot.
func (s *Session) Await(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.RLock()
		if s.state.Settled() {
			snap := s.snapshotLocked()
			s.mu.RUnlock()
			return snap, nil
		}
		ch := s.settled
		s.mu.RUnlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-ch:
		}
	}
}

func (s *Session) handleAuthState(id *Identity) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	lookupCtx := s.ctx
	if lookupCtx == nil {
		lookupCtx = context.Background()
	}

	if id == nil {
		s.principal = nil
		s.setStateLocked(StateAnonymous)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.changes.Emit(eventChange, snap)
		return
	}

	s.principal = &Principal{Identity: *id}
	s.setStateLocked(StateAuthenticating)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.Emit(eventChange, snap)

	go s.lookupRole(lookupCtx, gen, id.UID)
}

func (s *Session) lookupRole(ctx context.Context, gen uint64, uid string) {
	role, ok, err := s.roles.GetRole(ctx, uid)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug().Str("uid", uid).Msg("discarding stale role lookup")
		return
	}
	var pe *apperr.PermissionError
	switch {
	case err != nil:
		pe = apperr.NewPermissionError(apperr.OpGet, "users/"+uid, nil)
		s.principal.Role = ""
		s.setStateLocked(StateNoRole)
	case !ok || !role.Valid():
		s.principal.Role = ""
		s.setStateLocked(StateNoRole)
	default:
		s.principal.Role = role
		s.setStateLocked(StateWithRole)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if pe != nil {
		s.errors.Emit(apperr.EventPermissionError, pe)
	}
	s.changes.Emit(eventChange, snap)
}

// setStateLocked updates the state and wakes Await callers once the state
// settles. s.mu must be held.
func (s *Session) setStateLocked(st State) {
	s.state = st
	if st.Settled() {
		if !s.closedCh {
			close(s.settled)
			s.closedCh = true
		}
		return
	}
	if s.closedCh {
		s.settled = make(chan struct{})
		s.closedCh = false
	}
}

// Login signs in with email and password.
func (s *Session) Login(ctx context.Context, in LoginInput) (*Identity, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	return s.provider.SignInWithPassword(ctx, in.Email, in.Password)
}

// Signup creates an account, sets its display name and sends the email
// verification in the background.
func (s *Session) Signup(ctx context.Context, in SignupInput) (*Identity, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid signup: %w", err)
	}

	id, err := s.provider.CreateUserWithPassword(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	if err := s.provider.UpdateProfile(ctx, in.Name); err != nil {
		return nil, fmt.Errorf("set display name: %w", err)
	}
	id.DisplayName = in.Name

	s.mu.Lock()
	if s.principal != nil && s.principal.UID == id.UID {
		s.principal.DisplayName = in.Name
	}
	s.mu.Unlock()

	go func() {
		if err := s.provider.SendEmailVerification(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("uid", id.UID).Msg("failed to send verification email")
		}
	}()
	return id, nil
}

// Logout signs the current principal out.
func (s *Session) Logout(ctx context.Context) error {
	return s.provider.SignOut(ctx)
}

// LoginWithGoogle signs in with a Google ID token.
func (s *Session) LoginWithGoogle(ctx context.Context, idToken string) (*Identity, error) {
	return s.provider.SignInWithIDToken(ctx, ProviderGoogle, idToken)
}

// LoginWithMicrosoft signs in with a Microsoft ID token.
func (s *Session) LoginWithMicrosoft(ctx context.Context, idToken string) (*Identity, error) {
	return s.provider.SignInWithIDToken(ctx, ProviderMicrosoft, idToken)
}

// LoginWithApple signs in with an Apple ID token.
func (s *Session) LoginWithApple(ctx context.Context, idToken string) (*Identity, error) {
	return s.provider.SignInWithIDToken(ctx, ProviderApple, idToken)
}

// LoginAnonymously creates and signs in an anonymous principal.
func (s *Session) LoginAnonymously(ctx context.Context) (*Identity, error) {
	return s.provider.SignInAnonymously(ctx)
}

// SetUserRoleAndRefresh stores role for uid and then refreshes the session.
// A failed write is reported on the error emitter with the attempted payload
// and returned to the caller as ErrRoleAssignment.
func (s *Session) SetUserRoleAndRefresh(ctx context.Context, uid string, role Role) (Snapshot, error) {
	if !role.Valid() {
		return Snapshot{}, ErrInvalidRole
	}
	if uid == "" {
		return Snapshot{}, ErrNotSignedIn
	}

	if err := s.roles.SetRole(ctx, uid, role); err != nil {
		pe := apperr.NewPermissionError(apperr.OpWrite, "users/"+uid, map[string]any{"role": string(role)})
		s.errors.Emit(apperr.EventPermissionError, pe)
		return Snapshot{}, ErrRoleAssignment
	}
	return s.RefreshUser(ctx)
}

// RefreshUser reloads the principal from the provider, looks its role up
// again and waits for the result.
func (s *Session) RefreshUser(ctx context.Context) (Snapshot, error) {
	if s.provider.CurrentUser() == nil {
		return Snapshot{}, ErrNotSignedIn
	}
	if _, err := s.provider.Reload(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("reload user: %w", err)
	}
	return s.Await(ctx)
}
