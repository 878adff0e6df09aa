package handlers

import (
	"net/http"

	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
)

// GeminiHandler serves POST /gemini/v1beta/models/{model}:generateContent
// and :streamGenerateContent.
func GeminiHandler(deps *Deps, stream bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call, body, err := resolveCall(r, deps.Cfg.GeminiCli.ModelList, stream)
		if err != nil {
			nexuserr.WriteHTTP(w, err)
			return
		}

		patched, stats := deps.ThoughtSig.PatchRequest(call.Model, body)
		logStats(r.Context(), "geminicli", call.Model, stats)

		resp, lease, err := deps.GeminiCliClient.Call(r.Context(), deps.GeminiCliActor, call, patched)
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
