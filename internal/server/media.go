package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maauso/firefly-jobs/internal/audiovideo"
	"github.com/maauso/firefly-jobs/internal/firefly"
	"github.com/maauso/firefly-jobs/internal/storage"
	"github.com/maauso/firefly-jobs/internal/substance"
)

// Upload size limits.
const (
	maxImageUpload  = 50 << 20
	maxSpaceUpload  = 200 << 20
	maxObjectUpload = 500 << 20
)

// ImageUploader stores images for Firefly generation requests.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, contentType string) ([]firefly.UploadedImage, error)
}

// Catalog lists Audio/Video voices and avatars.
type Catalog interface {
	Voices(ctx context.Context) ([]audiovideo.Voice, error)
	Avatars(ctx context.Context) ([]audiovideo.Avatar, error)
}

// SpaceCreator uploads Substance 3D spaces.
type SpaceCreator interface {
	CreateSpace(ctx context.Context, filename string, data []byte, name string) (*substance.Space, error)
}

// WithImageUploader enables POST /v1/firefly/uploads.
func WithImageUploader(u ImageUploader) HandlerOption {
	return func(h *Handlers) {
		h.uploader = u
	}
}

// WithCatalog enables the Audio/Video catalogue routes.
func WithCatalog(c Catalog) HandlerOption {
	return func(h *Handlers) {
		h.catalog = c
	}
}

// WithSpaceCreator enables POST /v1/substance/spaces.
func WithSpaceCreator(s SpaceCreator) HandlerOption {
	return func(h *Handlers) {
		h.spaces = s
	}
}

// WithStorage enables the storage routes. A nil store leaves them
// answering 404.
func WithStorage(s storage.Storage) HandlerOption {
	return func(h *Handlers) {
		if s != nil {
			h.storage = s
		}
	}
}

// UploadImage handles POST /v1/firefly/uploads requests. The body is the raw
// image and Content-Type must be image/jpeg, image/png or image/webp.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusNotFound, "image uploads are not configured", "UPLOADS_DISABLED")
		return
	}

	data, ok := readBody(w, r, maxImageUpload)
	if !ok {
		return
	}

	images, err := h.uploader.UploadImage(r.Context(), data, r.Header.Get("Content-Type"))
	switch {
	case err == nil:
	case errors.Is(err, firefly.ErrEmptyImage):
		writeError(w, http.StatusBadRequest, err.Error(), "EMPTY_BODY")
		return
	case errors.Is(err, firefly.ErrUnsupportedContentType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_MEDIA_TYPE")
		return
	default:
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"images": images})
}

// ListVoices handles GET /v1/audiovideo/voices requests.
func (h *Handlers) ListVoices(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusNotFound, "catalogue is not configured", "CATALOG_DISABLED")
		return
	}
	voices, err := h.catalog.Voices(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

// ListAvatars handles GET /v1/audiovideo/avatars requests.
func (h *Handlers) ListAvatars(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusNotFound, "catalogue is not configured", "CATALOG_DISABLED")
		return
	}
	avatars, err := h.catalog.Avatars(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatars": avatars})
}

// CreateSpace handles POST /v1/substance/spaces requests. The body is a
// multipart form with a "file" part and an optional "name" field.
func (h *Handlers) CreateSpace(w http.ResponseWriter, r *http.Request) {
	if h.spaces == nil {
		writeError(w, http.StatusNotFound, "spaces are not configured", "SPACES_DISABLED")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSpaceUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required", "MISSING_FILE")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file part", "INVALID_MULTIPART")
		return
	}

	space, err := h.spaces.CreateSpace(r.Context(), hdr.Filename, data, r.FormValue("name"))
	switch {
	case err == nil:
	case errors.Is(err, substance.ErrEmptyFile), errors.Is(err, substance.ErrFilenameRequired):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_FILE")
		return
	default:
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("substance space created",
		slog.String("space_id", space.ID),
		slog.Int("files", len(space.Files)),
	)
	writeJSON(w, http.StatusCreated, space)
}

// Presign handles POST /v1/storage/presign requests.
func (h *Handlers) Presign(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusNotFound, "storage is not configured", "STORAGE_DISABLED")
		return
	}

	var req PresignRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	ttl := time.Duration(req.ExpiresInSec) * time.Second

	var (
		signed *storage.PresignedURL
		err    error
	)
	if req.Method == http.MethodPut {
		signed, err = h.storage.PresignPut(r.Context(), req.Key, req.ContentType, ttl)
	} else {
		signed, err = h.storage.PresignGet(r.Context(), req.Key, ttl)
	}
	if err != nil {
		h.writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signed)
}

// PutObject handles PUT /v1/storage/objects/{key...} requests.
func (h *Handlers) PutObject(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusNotFound, "storage is not configured", "STORAGE_DISABLED")
		return
	}

	key := r.PathValue("key")
	data, ok := readBody(w, r, maxObjectUpload)
	if !ok {
		return
	}

	url, err := h.storage.Upload(r.Context(), key, data, r.Header.Get("Content-Type"))
	if err != nil {
		h.writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ObjectResponse{Key: key, URL: url})
}

func (h *Handlers) writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrKeyRequired),
		errors.Is(err, storage.ErrEmptyObject),
		errors.Is(err, storage.ErrInvalidTTL):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_OBJECT")
	default:
		h.logger.Error("storage request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "storage request failed", "STORAGE_ERROR")
	}
}

// readBody reads at most limit bytes. It writes the error response and
// returns false on failure.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large", "BODY_TOO_LARGE")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read body", "INVALID_BODY")
		return nil, false
	}
	return data, true
}
