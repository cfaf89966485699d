package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/falco-investigation/falco/internal/observability"
	"github.com/falco-investigation/falco/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *shared.SessionManager, *shared.CSRFManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "falco_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMin: 1000},
		SessionManager: sessions,
		CSRFManager:    csrf,
		Metrics:        observability.NewMetrics(),
	})
	return router, sessions, csrf
}

func TestHealthzAndMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.NotEmpty(t, rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "falco_http_requests_total")
}

func TestStaticAssetsAreCached(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
}

func TestSessionCookieIssued(t *testing.T) {
	router, sessions, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	found := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessions.CookieName() {
			found = c.HttpOnly && c.Value != ""
		}
	}
	require.True(t, found)
}

func TestCSRFMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "falco_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	cfg := MiddlewareConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionManager: sessions,
		CSRFManager:    csrf,
	}

	var token string
	r := chi.NewRouter()
	r.Use(sessionMiddleware(cfg), csrfMiddleware(cfg))
	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		token, _ = csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/submit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/token", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	require.NotEmpty(t, token)

	post := func(header, form string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if header != "" {
			req.Header.Set(shared.CSRFHeader, header)
		}
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusForbidden, post("", ""))
	require.Equal(t, http.StatusForbidden, post("forged", ""))
	require.Equal(t, http.StatusAccepted, post(token, ""))
	require.Equal(t, http.StatusAccepted, post("", shared.CSRFFormField+"="+token))
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "falco_session", time.Hour, false)
	cfg := MiddlewareConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), SessionManager: sessions}

	r := chi.NewRouter()
	r.Use(sessionMiddleware(cfg))
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireUser)
		r.Get("/reports/current", func(w http.ResponseWriter, r *http.Request) {
			id, _ := shared.UserIDFromContext(r.Context())
			require.Equal(t, int64(5), id)
			w.WriteHeader(http.StatusOK)
		})
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/current", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, shared.LoginPath, rr.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/reports/current", nil)
	req.Header.Set("Accept", "application/json")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUserID(5)
	require.NoError(t, sessions.Commit(context.Background(), httptest.NewRecorder(), sess))
	req = httptest.NewRequest(http.MethodGet, "/reports/current", nil)
	req.AddCookie(&http.Cookie{Name: sessions.CookieName(), Value: sess.ID})
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
