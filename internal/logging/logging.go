// Package logging configures the process logger and propagates request IDs
// through contexts so upstream call logs can be correlated per request.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const requestIDKey contextKey = "requestId"

// Setup initializes logrus from the NEXUS_LOG_LEVEL env (default info).
func Setup() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	level := strings.ToLower(strings.TrimSpace(os.Getenv("NEXUS_LOG_LEVEL")))
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// GenerateRequestID creates an 8-character hex request ID.
func GenerateRequestID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns a logrus entry tagged with the context's request ID.
func FromContext(ctx context.Context) *log.Entry {
	if id := GetRequestID(ctx); id != "" {
		return log.WithField("request_id", id)
	}
	return log.NewEntry(log.StandardLogger())
}
