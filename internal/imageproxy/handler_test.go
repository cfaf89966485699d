package imageproxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/falco-investigation/falco/internal/observability"
)

func newProxy(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(cfg).MountRoutes(r)
	return r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

func TestProxyStreamsUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg-bytes"))
		case "/untyped":
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte("raw"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()
	metrics := observability.NewMetrics()
	h := newProxy(t, Config{Client: upstream.Client(), Metrics: metrics, AllowedHosts: []string{hostOf(t, upstream.URL)}})

	rr := get(h, "/image-proxy?url="+url.QueryEscape(upstream.URL+"/photo.jpg"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "jpeg-bytes", rr.Body.String())

	rr = get(h, "/image-proxy?url="+url.QueryEscape(upstream.URL+"/untyped"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))

	rr = get(h, "/image-proxy?url="+url.QueryEscape(upstream.URL+"/missing.png"))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Equal(t, "Failed to fetch image: Not Found", errorBody(t, rr))
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestProxyRejectsBadRequests(t *testing.T) {
	h := newProxy(t, Config{})

	rr := get(h, "/image-proxy")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing image URL parameter", errorBody(t, rr))

	rr = get(h, "/image-proxy?url="+url.QueryEscape("file:///etc/passwd"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProxyFetchFailureIs500(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	rr := get(newProxy(t, Config{AllowedHosts: []string{hostOf(t, addr)}}), "/image-proxy?url="+url.QueryEscape(addr+"/a.png"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotEmpty(t, errorBody(t, rr))
}

func TestProxyAllowedHosts(t *testing.T) {
	h := newProxy(t, Config{AllowedHosts: []string{"images.example.com"}})
	rr := get(h, "/image-proxy?url="+url.QueryEscape("https://evil.test/a.png"))
	require.Equal(t, http.StatusForbidden, rr.Code)

	list := NewAllowList([]string{" Images.Example.com ", "", "localhost:8080"})
	allows := func(raw string) bool {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return list.Allows(u)
	}
	require.True(t, allows("https://images.example.com/a.png"))
	require.True(t, allows("https://cdn.images.example.com:8443/a.png"))
	require.False(t, allows("https://badimages.example.com/a.png"))
	require.True(t, allows("http://localhost:8080/files/report-photos/a.png"))
	require.False(t, allows("http://localhost:3000/forms/chromium"))
	require.False(t, allows("http://localhost/a.png"))
}

func TestProxyWithoutAllowedHostsFetchesNothing(t *testing.T) {
	hits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/png")
	}))
	defer upstream.Close()

	rr := get(newProxy(t, Config{Client: upstream.Client()}), "/image-proxy?url="+url.QueryEscape(upstream.URL+"/a.png"))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Zero(t, hits)
	require.Empty(t, NewAllowList(nil))
}

func TestProxyPreflight(t *testing.T) {
	rr := httptest.NewRecorder()
	newProxy(t, Config{}).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/image-proxy", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "content-type")
	require.Empty(t, rr.Body.String())
}
