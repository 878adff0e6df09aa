package nexuserr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", &UpstreamTransient{Err: errors.New("dial tcp")}, true},
		{"status retry", &UpstreamStatus{Code: 429, Retry: true}, true},
		{"status no retry", &UpstreamStatus{Code: 400}, false},
		{"mapped retry", &UpstreamMapped{Code: 401, Retry: true}, true},
		{"no credential", NoAvailableCredential{}, false},
		{"rejected", &RequestRejected{Status: 400}, false},
		{"wrapped transient", fmt.Errorf("call: %w", &UpstreamTransient{Err: errors.New("eof")}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestWriteHTTP_RequestRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, &RequestRejected{
		Status: http.StatusBadRequest,
		Body:   ForStatus(http.StatusBadRequest, "INVALID_ARGUMENT", "unsupported model: x"),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if gjson.Get(body, "error.status").String() != "INVALID_ARGUMENT" {
		t.Errorf("unexpected body: %s", body)
	}
	if gjson.Get(body, "error.code").Int() != 400 {
		t.Errorf("unexpected code: %s", body)
	}
}

func TestWriteHTTP_UpstreamStatusPassesBodyThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, &UpstreamStatus{
		Code: http.StatusForbidden,
		Body: []byte(`{"error":{"code":403,"status":"PERMISSION_DENIED","message":"nope"}}`),
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "error.status").String() != "PERMISSION_DENIED" {
		t.Errorf("vendor body not passed through: %s", rec.Body.String())
	}
}

func TestWriteHTTP_NoAvailableCredentialIsGatewayError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, NoAvailableCredential{})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "error.status").String() != "UNAVAILABLE" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestWriteHTTP_OauthFlowCarriesMachineCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, &OauthFlow{Code: OauthCSRFMismatch, Message: "CSRF token mismatch"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "code").String() != "CSRF_MISMATCH" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
