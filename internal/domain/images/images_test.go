package images

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai"
)

const pngURI = "data:image/png;base64,iVBORw0KGgo="

func newStore() *Store {
	return NewStore(docstore.NewClient(docstore.NewMemoryBackend(), nil, nil, zerolog.Nop()))
}

func TestStore_SaveAndGet(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	img, err := s.Save(ctx, "u1", "", pngURI, "avatar.png")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if img.ID == "" || img.Folder != DefaultFolder || img.Metadata.MimeType != "image/png" || img.Metadata.CreatedAt == "" {
		t.Errorf("unexpected image %+v", img)
	}

	got, err := s.Get(ctx, "u1", DefaultFolder, img.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.DataURI != pngURI || got.Metadata.FileName != "avatar.png" {
		t.Errorf("unexpected stored image %+v", got)
	}

	if _, err := s.Get(ctx, "u1", DefaultFolder, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "u2", DefaultFolder, img.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("another user's folder must not contain the image, got %v", err)
	}

	list, err := s.List(ctx, "u1", DefaultFolder)
	if err != nil || len(list) != 1 || list[0].DataURI != "" {
		t.Fatalf("expected one listed image without payload, got %+v (%v)", list, err)
	}

	if err := s.Delete(ctx, "u1", DefaultFolder, img.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, "u1", DefaultFolder, img.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_SaveRejects(t *testing.T) {
	tests := []struct {
		name     string
		folder   string
		uri      string
		fileName string
		want     error
	}{
		{"no file name", "", pngURI, "", ErrMissingFileName},
		{"not a data uri", "", "https://example.com/a.png", "a.png", genai.ErrInvalidDataURI},
		{"not an image", "", "data:text/plain;base64,aGVsbG8=", "a.txt", ErrUnsupportedImage},
		{"nested folder", "a/b", pngURI, "a.png", ErrInvalidFolder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newStore().Save(context.Background(), "u1", tt.folder, tt.uri, tt.fileName); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func newServer(s *Store, errs *apperr.Emitter) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-Test-User"); uid != "" {
				claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}}
				c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims, "t")))
			}
			return next(c)
		}
	})
	NewHandler(s, errs).RegisterRoutes(api)
	return e
}

func TestHandler_UploadAndDownload(t *testing.T) {
	e := newServer(newStore(), apperr.NewEmitter())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "wound.png")
	fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/wound-images/upload", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set("X-Test-User", "u1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var img Image
	json.Unmarshal(rec.Body.Bytes(), &img)
	if img.Metadata.MimeType != "image/png" || img.Folder != "wound-images" {
		t.Fatalf("unexpected image %+v", img)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/images/wound-images/"+img.ID+"/raw", nil)
	req.Header.Set("X-Test-User", "u1")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("unexpected download %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if rec.Body.String() != "\x89PNG\r\n\x1a\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_UnauthenticatedEmitsPermissionError(t *testing.T) {
	errs := apperr.NewEmitter()
	var got []*apperr.PermissionError
	errs.On(apperr.EventPermissionError, func(pe *apperr.PermissionError) { got = append(got, pe) })
	e := newServer(newStore(), errs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/profile-pictures",
		strings.NewReader(`{"dataUri":"`+pngURI+`","fileName":"a.png"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(got) != 1 || got[0].Operation != apperr.OpWrite {
		t.Fatalf("expected one write PermissionError, got %+v", got)
	}
}
