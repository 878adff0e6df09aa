package handlers

import (
	"context"
	"net/http"

	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/thoughtsig"
)

// AntigravityHandler serves POST /antigravity/v1beta/models/{model}:
// generateContent and :streamGenerateContent. Same downstream shape as
// Gemini; the client wraps the body into the Antigravity envelope.
func AntigravityHandler(deps *Deps, stream bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call, body, err := resolveCall(r, deps.Cfg.Antigravity.ModelList, stream)
		if err != nil {
			nexuserr.WriteHTTP(w, err)
			return
		}

		patched, stats := deps.ThoughtSig.PatchRequest(call.Model, body)
		logStats(r.Context(), "antigravity", call.Model, stats)

		resp, lease, err := deps.AntigravityClient.Call(r.Context(), deps.AntigravityActor, call, patched)
		if err != nil {
			nexuserr.WriteHTTP(w, err)
			return
		}

		if stream {
			StreamResponse(w, r, deps.ThoughtSig, resp, lease, deps.Cfg.StreamIdleTimeout.Std())
			return
		}
		JSONResponse(w, deps.ThoughtSig, resp, lease)
	}
}

func logStats(ctx context.Context, channel, model string, stats thoughtsig.FillStats) {
	if stats.TotalConsidered == 0 {
		return
	}
	logging.FromContext(ctx).Debugf("[%s] thoughtsig fill for %s: considered=%d kept=%d hits=%d dummy=%d",
		channel, model, stats.TotalConsidered, stats.KeptExisting, stats.CacheHits, stats.DummyFilled)
}
