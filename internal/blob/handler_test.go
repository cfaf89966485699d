package blob

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesPublicBucketsOnly(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Put(ctx, BucketAgencyLogos, "7-logo.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	_, err = store.Put(ctx, BucketReportExports, "r.pdf", strings.NewReader("%PDF"), "application/pdf")
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Route("/files", NewHandler(store, slog.Default()).MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/agency-logos/7-logo.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Empty(t, rec.Header().Get("Content-Disposition"))
	require.Equal(t, "png", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/report-exports/r.pdf", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/report-photos/missing.jpg", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerNeverServesMarkupInline(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Put(ctx, BucketReportPhotos, "p1-page.html", strings.NewReader("<script>alert(1)</script>"), "text/html")
	require.NoError(t, err)
	_, err = store.Put(ctx, BucketAgencyLogos, "7-logo.svg", strings.NewReader("<svg onload=alert(1)/>"), "image/svg+xml")
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Route("/files", NewHandler(store, slog.Default()).MountRoutes)

	for _, target := range []string{"/files/report-photos/p1-page.html", "/files/agency-logos/7-logo.svg"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code, target)
		require.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"), target)
		require.Equal(t, "attachment", rec.Header().Get("Content-Disposition"), target)
		require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), target)
	}
}
