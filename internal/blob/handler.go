package blob

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler serves objects of the public buckets.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler constructs the file handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// MountRoutes registers GET /{bucket}/*.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{bucket}/*", h.serve)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if !IsPublic(bucket) {
		http.NotFound(w, r)
		return
	}
	objectPath := chi.URLParam(r, "*")
	body, obj, err := h.store.Open(r.Context(), bucket, objectPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrUnknownBucket) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("open blob", slog.String("bucket", bucket), slog.String("path", objectPath), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer body.Close()
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if isInlineImage(obj.ContentType) {
		w.Header().Set("Content-Type", obj.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", "attachment")
	}
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream blob", slog.String("path", objectPath), slog.Any("error", err))
	}
}

// isInlineImage reports whether a stored type may render in the browser.
// SVG is excluded because it can carry script.
func isInlineImage(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "image/") && ct != "image/svg+xml"
}
