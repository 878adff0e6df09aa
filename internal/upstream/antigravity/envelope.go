package antigravity

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// Wire literals; the upstream validates these verbatim.
	EnvelopeUserAgent = "antigravity"
	RequestTypeAgent  = "agent"
	HeaderUserAgent   = "antigravity/1.16.5 linux/amd64"

	requestIDPrefix       = "agent"
	sessionIDMaxExclusive = int64(9_000_000_000_000_000_000)
)

// RequestEnvelope is the Antigravity upstream wrapper around a Gemini
// generate-content body. All six fields are required on the wire.
type RequestEnvelope struct {
	Project     string          `json:"project"`
	RequestID   string          `json:"requestId"`
	Request     json.RawMessage `json:"request"`
	Model       string          `json:"model"`
	UserAgent   string          `json:"userAgent"`
	RequestType string          `json:"requestType"`
}

func requestIDFromParts(timestampMillis int64, requestUUID uuid.UUID) string {
	return fmt.Sprintf("%s/%d/%s", requestIDPrefix, timestampMillis, requestUUID)
}

// GenerateRequestID returns "agent/{timestamp_ms}/{uuid_v4}".
func GenerateRequestID() string {
	return requestIDFromParts(time.Now().UnixMilli(), uuid.New())
}

func sessionIDFromInt(value int64) string {
	return fmt.Sprintf("-%d", value)
}

// GenerateSessionID returns "-{n}" with n drawn from [0, 9e18).
func GenerateSessionID() string {
	return sessionIDFromInt(rand.Int63n(sessionIDMaxExclusive))
}

// EnsureSessionID inserts a sessionId into the Gemini body if absent.
func EnsureSessionID(body []byte) []byte {
	if gjson.GetBytes(body, "sessionId").Exists() {
		return body
	}
	patched, err := sjson.SetBytes(body, "sessionId", GenerateSessionID())
	if err != nil {
		return body
	}
	return patched
}

// BuildEnvelope wraps a Gemini body into the upstream envelope, inserting a
// sessionId when the body has none.
func BuildEnvelope(project, model string, geminiBody []byte) ([]byte, error) {
	envelope := RequestEnvelope{
		Project:     project,
		RequestID:   GenerateRequestID(),
		Request:     EnsureSessionID(geminiBody),
		Model:       model,
		UserAgent:   EnvelopeUserAgent,
		RequestType: RequestTypeAgent,
	}
	return json.Marshal(&envelope)
}
