package report

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SampleFunc returns the HTML of a blank report used to smoke-test the converter.
type SampleFunc func(ctx context.Context) ([]byte, error)

// Handler serves converter diagnostics.
type Handler struct {
	client *Client
	sample SampleFunc
	page   PageOptions
	logger *slog.Logger
}

// NewHandler wires the diagnostics routes. sample may be nil.
func NewHandler(client *Client, sample SampleFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, sample: sample, page: A4, logger: logger}
}

// MountRoutes registers the diagnostics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	if h.sample != nil {
		r.Post("/sample", h.convertSample)
	}
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("converter unreachable", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) convertSample(w http.ResponseWriter, r *http.Request) {
	html, err := h.sample(r.Context())
	if err != nil {
		h.logger.Error("render blank report", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.client.Convert(r.Context(), Bundle{HTML: html}, h.page)
	if err != nil {
		h.logger.Error("convert blank report", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="report-prova.pdf"`)
	_, _ = w.Write(pdf)
}
