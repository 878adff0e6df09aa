// Package proxy assembles the downstream HTTP surface.
package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Yoo1tic/gcli-nexus/internal/auth/google"
	"github.com/Yoo1tic/gcli-nexus/internal/proxy/handlers"
	"github.com/Yoo1tic/gcli-nexus/internal/proxy/middleware"
)

// NewRouter wires all downstream routes.
func NewRouter(deps *handlers.Deps, flow *google.Flow) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(handlers.RequestIDMiddleware)

	// Health check endpoint (public)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// OAuth flow
	r.Get("/auth/callback", flow.HandleCallback)
	r.Get("/auth/{secret}", flow.HandleEntry)

	apiKey := middleware.APIKeyAuth(deps.Cfg.NexusKey)

	// Gemini CLI wire surface
	r.Route("/gemini/v1beta/models", func(r chi.Router) {
		r.Use(apiKey)
		r.Post("/{model}:generateContent", handlers.GeminiHandler(deps, false))
		r.Post("/{model}:streamGenerateContent", handlers.GeminiHandler(deps, true))
	})

	// Antigravity wire surface (same downstream shape, wrapped upstream)
	r.Route("/antigravity/v1beta/models", func(r chi.Router) {
		r.Use(apiKey)
		r.Post("/{model}:generateContent", handlers.AntigravityHandler(deps, false))
		r.Post("/{model}:streamGenerateContent", handlers.AntigravityHandler(deps, true))
	})

	// Codex (OpenAI responses) surface
	r.Route("/codex/v1", func(r chi.Router) {
		r.Use(apiKey)
		r.Post("/responses", handlers.CodexResponsesHandler(deps))
		r.Get("/models", handlers.CodexModelsHandler(deps))
	})

	return r
}
