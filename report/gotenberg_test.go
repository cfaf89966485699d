package report

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGotenberg(t *testing.T, received map[string]string, fields map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/forms/chromium/convert/html":
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for _, fh := range r.MultipartForm.File["files"] {
				f, err := fh.Open()
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				data, _ := io.ReadAll(f)
				_ = f.Close()
				received[fh.Filename] = string(data)
			}
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.7 fake"))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestConvertPostsIndexAndAssets(t *testing.T) {
	files := map[string]string{}
	fields := map[string]string{}
	srv := fakeGotenberg(t, files, fields)
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	pdf, err := client.Convert(context.Background(), Bundle{
		HTML:   []byte("<html><img src=\"asset-000.png\"></html>"),
		Assets: []Asset{{Name: "asset-000.png", Body: []byte("png")}},
	}, A4)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(pdf))
	assert.Contains(t, files["index.html"], "asset-000.png")
	assert.Equal(t, "png", files["asset-000.png"])
	assert.Equal(t, "8.27", fields["paperWidth"])
	assert.Equal(t, "11.7", fields["paperHeight"])
	assert.Equal(t, "true", fields["preferCssPageSize"])

	require.NoError(t, client.Ping(context.Background()))
}

func TestConvertRejectsReservedAssetName(t *testing.T) {
	client := NewClient("http://127.0.0.1:0")
	_, err := client.Convert(context.Background(), Bundle{HTML: []byte("x"), Assets: []Asset{{Name: "index.html"}}}, A4)
	require.Error(t, err)
	_, err = client.Convert(context.Background(), Bundle{}, A4)
	require.Error(t, err)
}

func TestConvertSurfacesGotenbergFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Convert(context.Background(), Bundle{HTML: []byte("<html></html>")}, A4)
	require.ErrorIs(t, err, ErrConversion)
	require.Contains(t, err.Error(), "chromium crashed")
}

func TestHandlerSampleRendersPDF(t *testing.T) {
	srv := fakeGotenberg(t, map[string]string{}, map[string]string{})
	defer srv.Close()

	h := NewHandler(NewClient(srv.URL), func(context.Context) ([]byte, error) {
		return []byte("<html>sample</html>"), nil
	}, slog.Default())
	r := chi.NewRouter()
	r.Route("/report", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/report/sample", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
