package handlers

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Yoo1tic/gcli-nexus/internal/db/models"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
	"github.com/Yoo1tic/gcli-nexus/internal/thoughtsig"
)

func testService() *thoughtsig.Service {
	return thoughtsig.NewService(time.Hour, 1024, thoughtsig.DefaultPolicy())
}

func testLease(t *testing.T) *pool.Lease {
	t.Helper()
	actor := pool.Spawn(pool.Options{Name: "respond-test"}, []models.Credential{{
		ID: 1, ProjectID: "project-1", AccessToken: "access-1",
		Expiry: time.Now().Add(time.Hour), Status: true,
	}})
	t.Cleanup(actor.Stop)

	lease, err := actor.GetCredential(t.Context(), 1)
	if err != nil || lease == nil {
		t.Fatalf("lease: %v", err)
	}
	return lease
}

// mockSSEBody builds a mock SSE response body.
func mockSSEBody(chunks []string) io.ReadCloser {
	var buf bytes.Buffer
	for _, chunk := range chunks {
		buf.WriteString("data: ")
		buf.WriteString(chunk)
		buf.WriteString("\n\n")
	}
	buf.WriteString("data: [DONE]\n\n")
	return io.NopCloser(&buf)
}

func TestJSONResponse_UnwrapsEnvelopeAndRecords(t *testing.T) {
	svc := testService()
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body: io.NopCloser(strings.NewReader(
			`{"response":{"candidates":[{"content":{"role":"model","parts":[{"thought":true,"text":"hm","thoughtSignature":"sig_json"}]}}]}}`)),
	}

	rec := httptest.NewRecorder()
	JSONResponse(rec, svc, resp, testLease(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"response"`) {
		t.Error("CLI envelope must be unwrapped")
	}

	// The signature must have been recorded on the way through.
	patched, stats := svc.PatchRequest("gemini-2.5-pro",
		[]byte(`{"contents":[{"role":"model","parts":[{"thought":true,"text":"hm"}]}]}`))
	if stats.CacheHits != 1 {
		t.Errorf("signature not recorded, stats %+v, body %s", stats, patched)
	}
}

func TestStreamResponse_PumpsChunksAndStopsOnDone(t *testing.T) {
	svc := testService()
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body: mockSSEBody([]string{
			`{"response":{"candidates":[{"content":{"parts":[{"thought":true,"text":"alpha "}]}}]}}`,
			`{"response":{"candidates":[{"content":{"parts":[{"thought":true,"text":"beta","thoughtSignature":"stream_sig"}]},"finishReason":"STOP"}]}}`,
		}),
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	StreamResponse(rec, req, svc, resp, testLease(t), time.Second)

	out := rec.Body.String()
	if !strings.Contains(out, `"text":"alpha "`) || !strings.Contains(out, `"text":"beta"`) {
		t.Errorf("chunks not forwarded: %s", out)
	}
	if strings.Contains(out, "[DONE]") {
		t.Error("[DONE] marker must terminate, not be forwarded")
	}
	if strings.Contains(out, `"response"`) {
		t.Error("chunks must be unwrapped")
	}

	// The split signature was reassembled across chunks.
	_, stats := svc.PatchRequest("gemini-2.5-pro",
		[]byte(`{"contents":[{"role":"model","parts":[{"thought":true,"text":"alpha beta"}]}]}`))
	if stats.CacheHits != 1 {
		t.Errorf("streamed signature not learned, stats %+v", stats)
	}
}

func TestStreamResponse_DropsEmptyAndInvalidData(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("data:\n\n")
	buf.WriteString("data: {not json\n\n")
	buf.WriteString(`data: {"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}` + "\n\n")
	buf.WriteString("data: [DONE]\n\n")

	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(&buf)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	StreamResponse(rec, req, testService(), resp, testLease(t), time.Second)

	out := rec.Body.String()
	if !strings.Contains(out, `"text":"ok"`) {
		t.Errorf("valid chunk dropped: %s", out)
	}
	if strings.Contains(out, "not json") {
		t.Error("invalid chunk forwarded")
	}
}

func TestStreamResponse_DoneEventNameTerminates(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`data: {"candidates":[{"content":{"parts":[{"text":"one"}]}}]}` + "\n\n")
	buf.WriteString("event: done\n\n")
	buf.WriteString(`data: {"candidates":[{"content":{"parts":[{"text":"after"}]}}]}` + "\n\n")

	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(&buf)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	StreamResponse(rec, req, testService(), resp, testLease(t), time.Second)

	out := rec.Body.String()
	if !strings.Contains(out, `"text":"one"`) {
		t.Error("chunk before done missing")
	}
	if strings.Contains(out, `"text":"after"`) {
		t.Error("stream must terminate at the done event")
	}
}

func TestStreamResponse_IdleTimeoutEmitsErrorFrame(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	resp := &http.Response{StatusCode: http.StatusOK, Body: pr}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stream", nil)

	start := time.Now()
	StreamResponse(rec, req, testService(), resp, testLease(t), 50*time.Millisecond)

	if time.Since(start) > 2*time.Second {
		t.Fatal("idle timeout did not fire promptly")
	}
	out := rec.Body.String()
	if !strings.Contains(out, "event: error") || !strings.Contains(out, "Stream idle timeout") {
		t.Errorf("expected terminal error frame, got: %s", out)
	}
}
