// Package imageproxy relays remote images so the browser and the export
// pipeline can load them without cross-origin restrictions.
package imageproxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/falco-investigation/falco/internal/observability"
	"github.com/falco-investigation/falco/internal/platform/httpx"
)

const (
	allowHeaders  = "authorization, x-client-info, apikey, content-type"
	defaultRate   = 20
	defaultBurst  = 40
	fallbackCType = "application/octet-stream"
)

// Config wires the proxy.
type Config struct {
	Client *http.Client
	// RatePerSecond throttles upstream fetches across all callers.
	RatePerSecond float64
	Burst         int
	// AllowedHosts lists the upstream hosts the proxy may reach. Subdomains
	// match. Nothing is fetched while it is empty.
	AllowedHosts []string
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

// Handler serves GET /image-proxy?url=<address>.
type Handler struct {
	client  *http.Client
	limiter *rate.Limiter
	allowed AllowList
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler builds the proxy handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		client:  cfg.Client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		allowed: NewAllowList(cfg.AllowedHosts),
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// MountRoutes registers the proxy endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Options("/image-proxy", h.preflight)
	r.Get("/image-proxy", h.proxy)
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) proxy(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	raw := r.URL.Query().Get("url")
	if raw == "" {
		httpx.Error(w, http.StatusBadRequest, "Missing image URL parameter")
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		httpx.Error(w, http.StatusBadRequest, "Invalid image URL parameter")
		return
	}
	if !h.allowed.Allows(target) {
		h.metrics.ObserveProxyFetch("forbidden")
		httpx.Error(w, http.StatusForbidden, "Image host not allowed")
		return
	}

	resp, err := h.fetch(r.Context(), target.String())
	if err != nil {
		h.metrics.ObserveProxyFetch("error")
		h.logger.Error("image proxy fetch", slog.String("url", target.Redacted()), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.metrics.ObserveProxyFetch("upstream_status")
		h.logger.Warn("image proxy upstream status", slog.String("url", target.Redacted()), slog.Int("status", resp.StatusCode))
		httpx.Error(w, resp.StatusCode, "Failed to fetch image: "+statusText(resp))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = fallbackCType
	}
	w.Header().Set("Content-Type", contentType)
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", fmt.Sprint(resp.ContentLength))
	}
	w.WriteHeader(http.StatusOK)
	h.metrics.ObserveProxyFetch("ok")
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("image proxy stream", slog.String("url", target.Redacted()), slog.Any("error", err))
	}
}

func (h *Handler) fetch(ctx context.Context, target string) (*http.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	return h.client.Do(req)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
