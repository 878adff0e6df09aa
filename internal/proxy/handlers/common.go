// Package handlers serves the downstream proxy routes.
package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/Yoo1tic/gcli-nexus/internal/catalog"
	"github.com/Yoo1tic/gcli-nexus/internal/config"
	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
	"github.com/Yoo1tic/gcli-nexus/internal/thoughtsig"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream/antigravity"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream/codex"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream/geminicli"
)

// Deps carries the wired collaborators for all proxy handlers.
type Deps struct {
	Cfg *config.Config

	ThoughtSig *thoughtsig.Service

	AntigravityActor *pool.Actor
	GeminiCliActor   *pool.Actor
	CodexActor       *pool.Actor

	AntigravityClient *antigravity.Client
	GeminiCliClient   *geminicli.Client
	CodexClient       *codex.Client
}

// RequestIDMiddleware tags every request context with an id for log
// correlation, honoring an inbound X-Request-ID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// resolveCall validates the {model} path segment against the upstream's
// allow-list and the global catalog, and reads the request body.
func resolveCall(r *http.Request, modelList []string, stream bool) (upstream.Call, []byte, error) {
	model := chi.URLParam(r, "model")
	if model == "" {
		return upstream.Call{}, nil, rejected(http.StatusBadRequest, "INVALID_ARGUMENT", "model not found in path")
	}

	allowed := false
	for _, m := range modelList {
		if m == model {
			allowed = true
			break
		}
	}
	if !allowed {
		return upstream.Call{}, nil, rejected(http.StatusBadRequest, "INVALID_ARGUMENT",
			fmt.Sprintf("unsupported model: %s", model))
	}

	mask, ok := catalog.Mask(model)
	if !ok {
		return upstream.Call{}, nil, rejected(http.StatusBadRequest, "INVALID_ARGUMENT",
			fmt.Sprintf("unsupported model: %s", model))
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return upstream.Call{}, nil, rejected(http.StatusBadRequest, "INVALID_ARGUMENT", "unreadable request body")
	}
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "contents").Exists() {
		return upstream.Call{}, nil, rejected(http.StatusBadRequest, "INVALID_ARGUMENT", "malformed generate-content body")
	}

	return upstream.Call{Model: model, Mask: mask, Stream: stream}, body, nil
}

func rejected(status int, geminiStatus, message string) error {
	return &nexuserr.RequestRejected{
		Status: status,
		Body:   nexuserr.ForStatus(status, geminiStatus, message),
	}
}
