package antigravity

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestRequestID_AgentTimestampUUIDShape(t *testing.T) {
	id := GenerateRequestID()
	pattern := regexp.MustCompile(`^agent/\d+/[0-9a-fA-F-]{36}$`)
	if !pattern.MatchString(id) {
		t.Errorf("request id %q does not match agent/{ms}/{uuid}", id)
	}
}

func TestSessionID_NegativeDecimalShape(t *testing.T) {
	pattern := regexp.MustCompile(`^-\d+$`)
	for i := 0; i < 100; i++ {
		id := GenerateSessionID()
		if !pattern.MatchString(id) {
			t.Fatalf("session id %q does not match -{decimal}", id)
		}
	}
	if sessionIDFromInt(42) != "-42" {
		t.Error("sessionIDFromInt(42) != -42")
	}
	if sessionIDFromInt(0) != "-0" {
		t.Error("-0 remains a valid session id")
	}
}

func TestEnsureSessionID_KeepsExisting(t *testing.T) {
	body := []byte(`{"contents":[],"sessionId":"-99"}`)
	out := EnsureSessionID(body)
	if gjson.GetBytes(out, "sessionId").String() != "-99" {
		t.Error("existing sessionId must be preserved")
	}
}

func TestEndpoints_ExpectedLiterals(t *testing.T) {
	client := NewClient(0, 1, "")
	if got := client.Endpoint(false); got != "https://daily-cloudcode-pa.googleapis.com/v1internal:generateContent" {
		t.Errorf("unary endpoint: %s", got)
	}
	if got := client.Endpoint(true); got != "https://daily-cloudcode-pa.googleapis.com/v1internal:streamGenerateContent?alt=sse" {
		t.Errorf("stream endpoint: %s", got)
	}
}

func TestEnvelope_RoundTripsAllFields(t *testing.T) {
	input := `{"project":"test-project","requestId":"agent/1770489747018/b9acb5be-0d95-407e-a9cf-94315ff8a43e","request":{"contents":[{"role":"user","parts":[{"text":"hello"}]}]},"model":"claude-sonnet-4-5-thinking","userAgent":"antigravity","requestType":"agent"}`

	var envelope RequestEnvelope
	if err := json.Unmarshal([]byte(input), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(&envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != input {
		t.Errorf("envelope did not round-trip:\n in: %s\nout: %s", input, out)
	}
}

func TestBuildEnvelope_FixedFieldsAndSession(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	payload, err := BuildEnvelope("project-1", "gemini-2.5-pro", body)
	if err != nil {
		t.Fatalf("BuildEnvelope: %v", err)
	}

	if gjson.GetBytes(payload, "userAgent").String() != "antigravity" {
		t.Error("userAgent must be the literal antigravity")
	}
	if gjson.GetBytes(payload, "requestType").String() != "agent" {
		t.Error("requestType must be the literal agent")
	}
	if gjson.GetBytes(payload, "project").String() != "project-1" {
		t.Error("project not carried through")
	}
	if gjson.GetBytes(payload, "model").String() != "gemini-2.5-pro" {
		t.Error("model not carried through")
	}
	if !regexp.MustCompile(`^-\d+$`).MatchString(gjson.GetBytes(payload, "request.sessionId").String()) {
		t.Error("sessionId missing or malformed inside request")
	}
	if gjson.GetBytes(payload, "request.contents.0.parts.0.text").String() != "hi" {
		t.Error("request contents not preserved")
	}
}

func TestEnsureClaudeSystemInstruction_Idempotent(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)

	once := EnsureClaudeSystemInstruction(body)
	twice := EnsureClaudeSystemInstruction(once)

	if string(once) != string(twice) {
		t.Error("applying the preamble twice changed the body")
	}
	text := gjson.GetBytes(once, "systemInstruction.parts.0.text").String()
	if !strings.Contains(strings.ToLower(text), "**proactiveness**") {
		t.Error("preamble marker missing after injection")
	}
	if strings.Count(strings.ToLower(string(twice)), "**proactiveness**") != 1 {
		t.Error("preamble stacked on retry")
	}
}

func TestEnsureClaudeSystemInstruction_PrependsToExisting(t *testing.T) {
	body := []byte(`{"systemInstruction":{"parts":[{"text":"be terse"}]},"contents":[]}`)
	out := EnsureClaudeSystemInstruction(body)

	text := gjson.GetBytes(out, "systemInstruction.parts.0.text").String()
	if !strings.HasSuffix(text, "\nbe terse") {
		t.Errorf("existing instruction should be appended after the preamble, got %q", text)
	}
}

func TestIsClaudeModel(t *testing.T) {
	if !IsClaudeModel("claude-sonnet-4-5-thinking") {
		t.Error("claude model not detected")
	}
	if IsClaudeModel("gemini-2.5-pro") {
		t.Error("gemini model misdetected as claude")
	}
}
