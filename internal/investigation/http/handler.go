package investigationhttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/falco-investigation/falco/internal/agency"
	"github.com/falco-investigation/falco/internal/document"
	"github.com/falco-investigation/falco/internal/export"
	"github.com/falco-investigation/falco/internal/investigation"
	"github.com/falco-investigation/falco/internal/photos"
	"github.com/falco-investigation/falco/internal/platform/httpx"
	"github.com/falco-investigation/falco/internal/shared"
	"github.com/falco-investigation/falco/internal/view"
)

const (
	maxSectionBody   = 1 << 20
	dashboardExports = 5
)

// DraftOpener returns the working copy of the user's report.
type DraftOpener interface {
	Open(ctx context.Context, userID int64) (*investigation.Store, bool, error)
}

type photoManager interface {
	AddPhoto(store *investigation.Store) (investigation.Photo, error)
	UpdatePhoto(store *investigation.Store, photo investigation.Photo) (investigation.Photo, error)
	UploadFile(ctx context.Context, store *investigation.Store, photoID string, up photos.Upload) (investigation.Photo, error)
	RemovePhoto(ctx context.Context, store *investigation.Store, photoID string) error
}

// ProfileLoader resolves the agency profile printed on previews.
type ProfileLoader interface {
	Load(ctx context.Context, userID int64) (agency.Optional, error)
}

// ExportLister lists recent exports on the dashboard.
type ExportLister interface {
	List(ctx context.Context, userID int64, limit int) ([]export.Record, error)
}

// Config wires a Handler.
type Config struct {
	Drafts         DraftOpener
	Photos         photoManager
	Profiles       ProfileLoader
	Exports        ExportLister
	Document       *document.Template
	Templates      *view.Engine
	CSRF           *shared.CSRFManager
	City           string
	MaxUploadBytes int64
	Now            func() time.Time
	Logger         *slog.Logger
}

// Handler serves the section editors of the current report.
type Handler struct {
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler builds the report editor handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = photos.DefaultMaxUploadBytes
	}
	return &Handler{cfg: cfg, validate: validator.New(), logger: cfg.Logger}
}

// MountRoutes registers the editor endpoints. Callers gate them behind a session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.dashboard)
	r.Post("/reports/new", h.reset)
	r.Route("/reports/current", func(r chi.Router) {
		r.Get("/", h.show)
		r.Patch("/", h.patch)
		r.Post("/save", h.save)
		r.Get("/preview", h.preview)
		r.Post("/mandate/type", h.applyMandateType)
		r.Post("/observation-days", h.addDay)
		r.Delete("/observation-days/{id}", h.removeDay)
		r.Post("/photos", h.addPhoto)
		r.Put("/photos/{id}", h.updatePhoto)
		r.Post("/photos/{id}/upload", h.uploadPhoto)
		r.Delete("/photos/{id}", h.removePhoto)
		r.Put("/{section}", h.replaceSection)
	})
}

type snapshot struct {
	Report investigation.InvestigationData `json:"report"`
	Status investigation.Status            `json:"status"`
}

type dashboardData struct {
	Subject string
	Client  string
	Days    int
	Photos  int
	Status  investigation.Status
	Exports []export.Record
}

type mandateTypeRequest struct {
	InvestigationType string `json:"investigationType" validate:"required,max=100"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	userID, store, ok := h.open(w, r)
	if !ok {
		return
	}
	data := store.Get()
	page := dashboardData{
		Subject: data.SubjectName(),
		Client:  data.ClientInfo.FullName,
		Days:    len(data.ObservationDays),
		Photos:  len(data.Photos),
		Status:  store.Status(),
	}
	if h.cfg.Exports != nil {
		records, err := h.cfg.Exports.List(r.Context(), userID, dashboardExports)
		if err != nil {
			h.logger.Warn("list exports", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		page.Exports = records
	}
	h.render(w, r, "pages/dashboard.html", "Report", page)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot{Report: store.Get(), Status: store.Status()})
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSectionBody)
	var p investigation.Partial
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.apply(w, store, p)
}

func (h *Handler) replaceSection(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSectionBody))
	if err != nil {
		httpx.RespondError(w, httpx.Kind(httpx.ErrTooLarge, err))
		return
	}
	p, err := investigation.DecodeSection(chi.URLParam(r, "section"), raw)
	if err != nil {
		if !errors.Is(err, investigation.ErrUnknownSection) {
			err = httpx.Kind(httpx.ErrValidation, err)
		}
		h.respondError(w, err)
		return
	}
	h.apply(w, store, p)
}

func (h *Handler) apply(w http.ResponseWriter, store *investigation.Store, p investigation.Partial) {
	if err := h.validate.Struct(p); err != nil {
		httpx.RespondError(w, httpx.Kind(httpx.ErrValidation, err))
		return
	}
	data, err := store.Update(p)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot{Report: data, Status: store.Status()})
}

func (h *Handler) applyMandateType(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	var req mandateTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.Kind(httpx.ErrValidation, err))
		return
	}
	data, err := store.Apply(func(cur investigation.InvestigationData) (investigation.Partial, error) {
		m := investigation.ApplyInvestigationType(cur.MandateDetails, req.InvestigationType)
		return investigation.Partial{MandateDetails: &m}, nil
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data.MandateDetails)
}

func (h *Handler) addDay(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	day := investigation.ObservationDay{ID: store.NextID(), Locations: []investigation.Location{}}
	_, err := store.Apply(func(cur investigation.InvestigationData) (investigation.Partial, error) {
		days := append(cur.ObservationDays, day)
		return investigation.Partial{ObservationDays: &days}, nil
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, day)
}

func (h *Handler) removeDay(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	_, err := store.Apply(func(cur investigation.InvestigationData) (investigation.Partial, error) {
		idx := cur.FindObservationDay(id)
		if idx < 0 {
			return investigation.Partial{}, investigation.ErrDayNotFound
		}
		days := append(cur.ObservationDays[:idx:idx], cur.ObservationDays[idx+1:]...)
		return investigation.Partial{ObservationDays: &days}, nil
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addPhoto(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	photo, err := h.cfg.Photos.AddPhoto(store)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, photo)
}

func (h *Handler) updatePhoto(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	var photo investigation.Photo
	if err := httpx.DecodeJSON(r, &photo); err != nil {
		httpx.RespondError(w, err)
		return
	}
	photo.ID = chi.URLParam(r, "id")
	updated, err := h.cfg.Photos.UpdatePhoto(store, photo)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, httpx.Kind(httpx.ErrTooLarge, photos.ErrTooLarge))
			return
		}
		httpx.RespondError(w, httpx.Kind(httpx.ErrValidation, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, httpx.Kind(httpx.ErrValidation, photos.ErrEmptyUpload))
		return
	}
	defer file.Close()
	photo, err := h.cfg.Photos.UploadFile(r.Context(), store, chi.URLParam(r, "id"), photos.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, photo)
}

func (h *Handler) removePhoto(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := h.cfg.Photos.RemovePhoto(r.Context(), store, chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	data, err := store.Reset()
	if err != nil {
		h.respondError(w, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, snapshot{Report: data, Status: store.Status()})
		return
	}
	h.flash(r, shared.FlashInfo, "Nuovo report creato")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := store.Flush(r.Context()); err != nil {
		h.logger.Error("save report", slog.Any("error", err))
		if httpx.WantsJSON(r) {
			httpx.Problem(w, http.StatusBadGateway, "Save Failed", "salvataggio non riuscito")
			return
		}
		h.flash(r, shared.FlashError, "Salvataggio non riuscito")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, store.Status())
		return
	}
	h.flash(r, shared.FlashSuccess, "Report salvato")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	userID, store, ok := h.open(w, r)
	if !ok {
		return
	}
	if h.cfg.Document == nil {
		httpx.RespondError(w, errors.New("document template not configured"))
		return
	}
	profile := agency.None()
	if h.cfg.Profiles != nil {
		loaded, err := h.cfg.Profiles.Load(r.Context(), userID)
		if err != nil {
			h.logger.Warn("load agency profile", slog.Int64("user_id", userID), slog.Any("error", err))
		} else {
			profile = loaded
		}
	}
	doc := document.Build(store.Get(), profile, document.Options{Now: h.cfg.Now(), City: h.cfg.City})
	page, err := h.cfg.Document.Render(doc)
	if err != nil {
		h.logger.Error("render preview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// open resolves the user's live store. The first open of a persisted report
// queues a "loaded" notification.
func (h *Handler) open(w http.ResponseWriter, r *http.Request) (int64, *investigation.Store, bool) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return 0, nil, false
	}
	store, loaded, err := h.cfg.Drafts.Open(r.Context(), userID)
	if err != nil {
		h.logger.Error("open report", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return 0, nil, false
	}
	if loaded {
		h.flash(r, shared.FlashInfo, "Report caricato")
	}
	return userID, store, true
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	td := view.TemplateData{Title: title, CurrentPath: r.URL.Path, Data: data}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		td.Flashes = sess.PopFlashes()
		td.UserID, _ = sess.UserID()
		if h.cfg.CSRF != nil {
			if token, err := h.cfg.CSRF.EnsureToken(r.Context(), sess); err == nil {
				td.CSRFToken = token
			}
		}
	}
	if td.UserID == 0 {
		td.UserID, _ = shared.UserIDFromContext(r.Context())
	}
	if err := h.cfg.Templates.Render(w, name, td); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, investigation.ErrUnknownSection),
		errors.Is(err, investigation.ErrPhotoNotFound),
		errors.Is(err, investigation.ErrDayNotFound):
		httpx.RespondError(w, httpx.Kind(httpx.ErrNotFound, err))
	case errors.Is(err, investigation.ErrStoreClosed):
		httpx.RespondError(w, httpx.Kind(httpx.ErrConflict, err))
	case errors.Is(err, photos.ErrTooLarge):
		httpx.RespondError(w, httpx.Kind(httpx.ErrTooLarge, err))
	case errors.Is(err, photos.ErrEmptyUpload), errors.Is(err, photos.ErrNotImage):
		httpx.RespondError(w, httpx.Kind(httpx.ErrValidation, err))
	default:
		h.logger.Error("report request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
