package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/falco-investigation/falco/internal/auth"
	"github.com/falco-investigation/falco/internal/blob"
	"github.com/falco-investigation/falco/internal/export"
	"github.com/falco-investigation/falco/internal/imageproxy"
	investigationhttp "github.com/falco-investigation/falco/internal/investigation/http"
	"github.com/falco-investigation/falco/internal/observability"
	"github.com/falco-investigation/falco/internal/shared"
	"github.com/falco-investigation/falco/jobs"
	"github.com/falco-investigation/falco/report"
	"github.com/falco-investigation/falco/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	AuthHandler       *auth.Handler
	ReportHandler     *investigationhttp.Handler
	ExportHandler     *export.Handler
	BlobHandler       *blob.Handler
	ImageProxyHandler *imageproxy.Handler
	JobHandler        *jobs.Handler
	GotenbergHandler  *report.Handler
}

// NewRouter constructs the chi.Router with Falco defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.BlobHandler != nil {
		r.Route("/files", params.BlobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(shared.RequireUser)
		if params.ImageProxyHandler != nil {
			params.ImageProxyHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(r)
		}
		if params.ExportHandler != nil {
			params.ExportHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.GotenbergHandler != nil {
			r.Route("/gotenberg", params.GotenbergHandler.MountRoutes)
		}
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers cache embedded assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
