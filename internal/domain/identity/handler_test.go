package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/auth"
)

type mockRoleStore struct {
	mu       sync.Mutex
	roles    map[string]session.Role
	setErr   error
	setCalls int
}

func newMockRoleStore() *mockRoleStore {
	return &mockRoleStore{roles: make(map[string]session.Role)}
}

func (m *mockRoleStore) GetRole(_ context.Context, uid string) (session.Role, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[uid]
	return r, ok, nil
}

func (m *mockRoleStore) SetRole(_ context.Context, uid string, role session.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.roles[uid] = role
	return nil
}

type handlerEnv struct {
	*testEnv
	h     *Handler
	roles *mockRoleStore
	errs  *apperr.Emitter
	e     *echo.Echo
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	env := newTestEnv(t, nil)
	roles := newMockRoleStore()
	errs := apperr.NewEmitter()
	h := NewHandler(env.svc, NewSessions(env.svc, roles, errs, zerolog.Nop()))
	return &handlerEnv{testEnv: env, h: h, roles: roles, errs: errs, e: echo.New()}
}

func (env *handlerEnv) request(method, body, token string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		claims, err := env.tokens.Verify(token)
		if err == nil {
			req = req.WithContext(auth.WithClaims(req.Context(), claims, token))
		}
	}
	rec := httptest.NewRecorder()
	return env.e.NewContext(req, rec), rec
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authResponse {
	t.Helper()
	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestHandler_SignupThenLogin(t *testing.T) {
	env := newHandlerEnv(t)

	c, rec := env.request(http.MethodPost, `{"name":"Ana Souza","email":"ana@example.com","password":"secret1"}`, "")
	if err := env.h.Signup(c); err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	resp := decodeAuth(t, rec)
	if resp.Token == "" || resp.ExpiresAt == nil {
		t.Fatal("expected token in signup response")
	}
	if resp.Session.State != session.StateNoRole || resp.Session.Principal.DisplayName != "Ana Souza" {
		t.Errorf("unexpected session %+v", resp.Session)
	}

	c, rec = env.request(http.MethodPost, `{"email":"ana@example.com","password":"secret1"}`, "")
	if err := env.h.Login(c); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeAuth(t, rec).Session.Principal.Email != "ana@example.com" {
		t.Error("expected principal email in login response")
	}
}

func TestHandler_LoginErrors(t *testing.T) {
	env := newHandlerEnv(t)
	env.svc.CreateUser(context.Background(), "ana@example.com", "secret1")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid email", `{"email":"nope","password":"secret1"}`, http.StatusBadRequest},
		{"short password", `{"email":"ana@example.com","password":"123"}`, http.StatusBadRequest},
		{"wrong password", `{"email":"ana@example.com","password":"wrong-pass"}`, http.StatusUnauthorized},
		{"malformed body", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := env.request(http.MethodPost, tt.body, "")
			if got := statusOf(env.h.Login(c)); got != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, got)
			}
		})
	}
}

func TestHandler_SetRoleAndMe(t *testing.T) {
	env := newHandlerEnv(t)
	si, _ := env.svc.CreateUser(context.Background(), "ana@example.com", "secret1")

	var notified []string
	env.h.OnRoleChanged(func(uid string, role session.Role) {
		notified = append(notified, uid+":"+string(role))
	})

	c, rec := env.request(http.MethodPut, `{"role":"professional"}`, si.Token)
	if err := env.h.SetRole(c); err != nil {
		t.Fatalf("SetRole() error: %v", err)
	}
	resp := decodeAuth(t, rec)
	if resp.Session.State != session.StateWithRole || resp.Session.Principal.Role != session.RoleProfessional {
		t.Fatalf("unexpected session %+v", resp.Session)
	}
	if len(notified) != 1 || notified[0] != si.Account.ID.String()+":professional" {
		t.Errorf("unexpected role notifications %v", notified)
	}

	c, rec = env.request(http.MethodGet, "", si.Token)
	if err := env.h.Me(c); err != nil {
		t.Fatalf("Me() error: %v", err)
	}
	if decodeAuth(t, rec).Session.Principal.Role != session.RoleProfessional {
		t.Error("expected stored role on /me")
	}
}

func TestHandler_SetRoleFailure(t *testing.T) {
	env := newHandlerEnv(t)
	si, _ := env.svc.CreateUser(context.Background(), "ana@example.com", "secret1")
	env.roles.setErr = errors.New("denied")

	var emitted []*apperr.PermissionError
	env.errs.On(apperr.EventPermissionError, func(pe *apperr.PermissionError) { emitted = append(emitted, pe) })

	c, _ := env.request(http.MethodPut, `{"role":"patient"}`, si.Token)
	err := env.h.SetRole(c)
	if statusOf(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	if len(emitted) != 1 || emitted[0].Operation != apperr.OpWrite {
		t.Fatalf("expected one write permission error, got %v", emitted)
	}

	c, _ = env.request(http.MethodPut, `{"role":"admin"}`, si.Token)
	if statusOf(env.h.SetRole(c)) != http.StatusBadRequest {
		t.Error("expected 400 for unknown role")
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	env := newHandlerEnv(t)
	for name, fn := range map[string]echo.HandlerFunc{
		"me":      env.h.Me,
		"logout":  env.h.Logout,
		"refresh": env.h.Refresh,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := env.request(http.MethodPost, "", "")
			if got := statusOf(fn(c)); got != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", got)
			}
		})
	}
}

func TestHandler_LogoutRevokes(t *testing.T) {
	env := newHandlerEnv(t)
	si, _ := env.svc.SignInAnonymously(context.Background())

	c, rec := env.request(http.MethodPost, "", si.Token)
	if err := env.h.Logout(c); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := env.tokens.Verify(si.Token); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("expected revoked token, got %v", err)
	}
}

func TestHandler_SocialUnknownProvider(t *testing.T) {
	env := newHandlerEnv(t)
	c, _ := env.request(http.MethodPost, `{"idToken":"abc"}`, "")
	c.SetParamNames("provider")
	c.SetParamValues("github")
	if got := statusOf(env.h.Social(c)); got != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", got)
	}
}

func TestHandler_Anonymous(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := env.request(http.MethodPost, "", "")
	if err := env.h.Anonymous(c); err != nil {
		t.Fatalf("Anonymous() error: %v", err)
	}
	resp := decodeAuth(t, rec)
	if resp.Session.Principal == nil || !resp.Session.Principal.Anonymous {
		t.Fatalf("expected anonymous principal, got %+v", resp.Session)
	}
}
