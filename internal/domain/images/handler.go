package images

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai"
)

type Handler struct {
	store *Store
	errs  *apperr.Emitter
}

func NewHandler(store *Store, errs *apperr.Emitter) *Handler {
	return &Handler{store: store, errs: errs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/images", h.requireUser)
	g.POST("/:folder", h.Save)
	g.POST("/:folder/upload", h.Upload)
	g.GET("/:folder", h.List)
	g.GET("/:folder/:id", h.Get)
	g.GET("/:folder/:id/raw", h.Download)
	g.DELETE("/:folder/:id", h.Delete)
}

// requireUser rejects unauthenticated callers the way the store would,
// reporting the denied operation on the error emitter.
func (h *Handler) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if auth.UserIDFromContext(c.Request().Context()) != "" {
			return next(c)
		}
		op := apperr.OpWrite
		if c.Request().Method == http.MethodGet {
			op = apperr.OpGet
			if c.Param("id") == "" {
				op = apperr.OpList
			}
		}
		path := docstore.Join(Root, c.Param("folder"))
		if id := c.Param("id"); id != "" {
			path = docstore.Join(path, id)
		}
		return h.httpError(docstore.ErrPermissionDenied, op, path)
	}
}

type saveRequest struct {
	DataURI  string `json:"dataUri"`
	FileName string `json:"fileName"`
}

func (h *Handler) Save(c echo.Context) error {
	var req saveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.save(c, req.DataURI, req.FileName)
}

// Upload accepts a multipart file and stores it as a data URI.
func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if file.Size > MaxImageSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, ErrImageTooLarge.Error())
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	body, err := io.ReadAll(io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
	}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}
	uri := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body)
	return h.save(c, uri, file.Filename)
}

func (h *Handler) save(c echo.Context, uri, fileName string) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	folder := c.Param("folder")
	img, err := h.store.Save(c.Request().Context(), uid, folder, uri, fileName)
	if err != nil {
		return h.httpError(err, apperr.OpWrite, docstore.Join(Root, uid, folder))
	}
	return c.JSON(http.StatusCreated, img)
}

func (h *Handler) List(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	folder := c.Param("folder")
	imgs, err := h.store.List(c.Request().Context(), uid, folder)
	if err != nil {
		return h.httpError(err, apperr.OpList, docstore.Join(Root, uid, folder))
	}
	return c.JSON(http.StatusOK, imgs)
}

func (h *Handler) Get(c echo.Context) error {
	img, err := h.get(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, img)
}

// Download writes the decoded image bytes with their content type.
func (h *Handler) Download(c echo.Context) error {
	img, err := h.get(c)
	if err != nil {
		return err
	}
	media, err := genai.ParseDataURI(img.DataURI)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "stored image is corrupt")
	}
	body, err := media.Bytes()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "stored image is corrupt")
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, img.Metadata.FileName))
	return c.Blob(http.StatusOK, media.MimeType, body)
}

func (h *Handler) get(c echo.Context) (*Image, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	folder, id := c.Param("folder"), c.Param("id")
	img, err := h.store.Get(c.Request().Context(), uid, folder, id)
	if err != nil {
		return nil, h.httpError(err, apperr.OpGet, docstore.Join(Root, uid, folder, id))
	}
	return img, nil
}

func (h *Handler) Delete(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	folder, id := c.Param("folder"), c.Param("id")
	if err := h.store.Delete(c.Request().Context(), uid, folder, id); err != nil {
		return h.httpError(err, apperr.OpWrite, docstore.Join(Root, uid, folder, id))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) httpError(err error, op apperr.Operation, path string) error {
	switch {
	case errors.Is(err, docstore.ErrPermissionDenied):
		pe := apperr.NewPermissionError(op, path, nil)
		if h.errs != nil {
			h.errs.Emit(apperr.EventPermissionError, pe)
		}
		return echo.NewHTTPError(http.StatusForbidden, pe.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrImageTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrUnsupportedImage):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrMissingFileName), errors.Is(err, ErrInvalidFolder),
		errors.Is(err, genai.ErrInvalidDataURI), errors.Is(err, docstore.ErrInvalidPath):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
