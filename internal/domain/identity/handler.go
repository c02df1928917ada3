package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/auth"
)

// RoleListener is told about every role assigned through the API.
type RoleListener func(uid string, role session.Role)

type Handler struct {
	svc      *Service
	sessions *Sessions
	onRole   []RoleListener
}

func NewHandler(svc *Service, sessions *Sessions) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

// OnRoleChanged registers fn for role assignments.
func (h *Handler) OnRoleChanged(fn RoleListener) {
	h.onRole = append(h.onRole, fn)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/signup", h.Signup)
	g.POST("/anonymous", h.Anonymous)
	g.POST("/social/:provider", h.Social)
	g.POST("/verify-email", h.VerifyEmail)

	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me)
	g.PUT("/role", h.SetRole)
	g.POST("/refresh", h.Refresh)
	g.POST("/send-verification", h.SendVerification)
}

type authResponse struct {
	Token     string           `json:"token,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	Session   session.Snapshot `json:"session"`
}

type socialRequest struct {
	IDToken string `json:"idToken"`
}

type roleRequest struct {
	Role session.Role `json:"role"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (h *Handler) Login(c echo.Context) error {
	var in session.LoginInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.signIn(c, http.StatusOK, func(s *session.Session) error {
		_, err := s.Login(c.Request().Context(), in)
		return err
	})
}

func (h *Handler) Signup(c echo.Context) error {
	var in session.SignupInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.signIn(c, http.StatusCreated, func(s *session.Session) error {
		_, err := s.Signup(c.Request().Context(), in)
		return err
	})
}

func (h *Handler) Anonymous(c echo.Context) error {
	return h.signIn(c, http.StatusCreated, func(s *session.Session) error {
		_, err := s.LoginAnonymously(c.Request().Context())
		return err
	})
}

func (h *Handler) Social(c echo.Context) error {
	var req socialRequest
	if err := c.Bind(&req); err != nil || req.IDToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "idToken is required")
	}
	ctx := c.Request().Context()
	var login func(*session.Session) error
	switch c.Param("provider") {
	case "google":
		login = func(s *session.Session) error { _, err := s.LoginWithGoogle(ctx, req.IDToken); return err }
	case "microsoft":
		login = func(s *session.Session) error { _, err := s.LoginWithMicrosoft(ctx, req.IDToken); return err }
	case "apple":
		login = func(s *session.Session) error { _, err := s.LoginWithApple(ctx, req.IDToken); return err }
	default:
		return echo.NewHTTPError(http.StatusBadRequest, ErrUnsupportedProvider.Error())
	}
	return h.signIn(c, http.StatusOK, login)
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	acct, err := h.svc.VerifyEmail(c.Request().Context(), req.Token)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) Logout(c echo.Context) error {
	sess, _, err := h.open(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Logout(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	sess, _, err := h.open(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	return c.JSON(http.StatusOK, authResponse{Session: sess.Snapshot()})
}

func (h *Handler) SetRole(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, client, err := h.open(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := sess.SetUserRoleAndRefresh(c.Request().Context(), sess.ViewerID(), req.Role)
	if err != nil {
		return httpError(err)
	}
	for _, fn := range h.onRole {
		fn(sess.ViewerID(), req.Role)
	}
	return c.JSON(http.StatusOK, responseFor(client, snap))
}

func (h *Handler) Refresh(c echo.Context) error {
	sess, client, err := h.open(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := sess.RefreshUser(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, responseFor(client, snap))
}

func (h *Handler) SendVerification(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if err := h.svc.SendEmailVerification(c.Request().Context(), uid); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// signIn runs login on a fresh session and responds with the settled
// snapshot and the new token.
func (h *Handler) signIn(c echo.Context, status int, login func(*session.Session) error) error {
	ctx := c.Request().Context()
	sess, client := h.sessions.New(ctx)
	defer sess.Close()

	if err := login(sess); err != nil {
		return httpError(err)
	}
	snap, err := sess.Await(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sign in did not complete")
	}
	return c.JSON(status, responseFor(client, snap))
}

// open restores the session of the request's bearer token.
func (h *Handler) open(c echo.Context) (*session.Session, *Client, error) {
	token := auth.TokenFromContext(c.Request().Context())
	if token == "" {
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	sess, client, err := h.sessions.Open(c.Request().Context(), token)
	if err != nil {
		return nil, nil, httpError(err)
	}
	return sess, client, nil
}

func responseFor(client *Client, snap session.Snapshot) authResponse {
	resp := authResponse{Session: snap}
	if si := client.Current(); si != nil {
		resp.Token = si.Token
		exp := si.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

func httpError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrEmailInUse):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnsupportedProvider), errors.Is(err, ErrVerificationInvalid), errors.Is(err, session.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, ErrAccountNotFound), errors.Is(err, session.ErrNotSignedIn):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired session")
	case errors.Is(err, session.ErrRoleAssignment):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
