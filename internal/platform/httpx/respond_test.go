package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorClasses(t *testing.T) {
	domain := errors.New("export: export not found")
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{Kind(ErrNotFound, domain), http.StatusNotFound, "export: export not found"},
		{Kind(ErrConflict, errors.New("busy")), http.StatusConflict, "busy"},
		{Kind(ErrValidation, errors.New("bad")), http.StatusBadRequest, "bad"},
		{Kind(ErrTooLarge, errors.New("big")), http.StatusRequestEntityTooLarge, "big"},
		{errors.New("db down"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		if tc.detail != "" {
			require.Contains(t, rr.Body.String(), `"detail":"`+tc.detail+`"`)
		} else {
			require.NotContains(t, rr.Body.String(), "db down")
		}
	}
	require.True(t, errors.Is(Kind(ErrNotFound, domain), domain))
	require.Nil(t, Kind(ErrNotFound, nil))
}

func TestDecodeJSONStrict(t *testing.T) {
	var target struct {
		Text string `json:"text"`
	}
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"text":"ok"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "ok", target.Text)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"other":1}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"text":"a"} {}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, WantsJSON(req))
	req.Header.Set("Accept", "application/json")
	require.True(t, WantsJSON(req))
}

func TestErrorBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusBadRequest, "missing url")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"error":"missing url"}`, rr.Body.String())
}
