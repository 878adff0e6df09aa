package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protected(t *testing.T, key string) http.Handler {
	t.Helper()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return APIKeyAuth(key)(ok)
}

func TestAPIKeyAuth_AcceptedLocations(t *testing.T) {
	handler := protected(t, "sk-test")

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer sk-test") }},
		{"x-api-key", func(r *http.Request) { r.Header.Set("x-api-key", "sk-test") }},
		{"x-goog-api-key", func(r *http.Request) { r.Header.Set("x-goog-api-key", "sk-test") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusNoContent {
				t.Errorf("expected pass, got %d", rec.Code)
			}
		})
	}

	t.Run("query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?key=sk-test", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected pass, got %d", rec.Code)
		}
	})
}

func TestAPIKeyAuth_RejectsWrongOrMissingKey(t *testing.T) {
	handler := protected(t, "sk-test")

	for _, setup := range []func(r *http.Request){
		func(r *http.Request) {},
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") },
		func(r *http.Request) { r.Header.Set("Authorization", "sk-test") }, // no Bearer prefix
		func(r *http.Request) { r.Header.Set("x-api-key", "sk-tes") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		setup(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	}
}
