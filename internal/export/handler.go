package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/falco-investigation/falco/internal/investigation"
	"github.com/falco-investigation/falco/internal/platform/httpx"
	"github.com/falco-investigation/falco/internal/shared"
)

// DraftOpener returns the working copy of the user's report.
type DraftOpener interface {
	Open(ctx context.Context, userID int64) (*investigation.Store, bool, error)
}

// Handler exposes synchronous and queued PDF exports.
type Handler struct {
	service  *Service
	drafts   DraftOpener
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler builds the export handler.
func NewHandler(service *Service, drafts DraftOpener, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, drafts: drafts, validate: validator.New(), logger: logger}
}

// MountRoutes registers export endpoints. Callers gate them behind a session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/current/export.pdf", h.exportCurrent)
	r.Route("/exports", func(r chi.Router) {
		r.Post("/", h.request)
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/download", h.download)
	})
}

type listQuery struct {
	Limit int `validate:"gte=0,lte=100"`
}

func (h *Handler) exportCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	store, _, err := h.drafts.Open(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.service.Render(r.Context(), userID, store.Get())
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("X-Report-Pages", strconv.Itoa(res.Pages))
	writePDF(w, res.Filename, int64(len(res.PDF)), bytes.NewReader(res.PDF))
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	store, _, err := h.drafts.Open(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := store.Flush(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	rec, err := h.service.Request(r.Context(), userID, store.ReportID())
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Location", "/exports/"+rec.ID)
	httpx.JSON(w, http.StatusAccepted, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	var q listQuery
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a number")
			return
		}
		q.Limit = n
	}
	if err := h.validate.Struct(q); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	records, err := h.service.List(r.Context(), userID, q.Limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"exports": records})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	rc, rec, err := h.service.Open(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	defer rc.Close()
	size := int64(-1)
	if rec.FileSize != nil {
		size = *rec.FileSize
	}
	writePDF(w, rec.Filename, size, rc)
}

func writePDF(w http.ResponseWriter, filename string, size int64, body io.Reader) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrExportNotFound), errors.Is(err, investigation.ErrReportNotFound):
		httpx.RespondError(w, httpx.Kind(httpx.ErrNotFound, err))
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrReportUnsaved):
		httpx.RespondError(w, httpx.Kind(httpx.ErrConflict, err))
	case errors.Is(err, ErrExportFailed):
		h.logger.Error("export failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Export Failed", "la generazione del PDF non è riuscita")
	default:
		h.logger.Error("export request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
