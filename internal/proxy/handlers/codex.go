package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Yoo1tic/gcli-nexus/internal/catalog"
	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream/codex"
)

// CodexBodyLimit caps POST /codex/v1/responses bodies.
const CodexBodyLimit = 100 * 1024 * 1024

// CodexResponsesHandler serves POST /codex/v1/responses as a pass-through
// of the OpenAI-responses wire format.
func CodexResponsesHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, CodexBodyLimit))
		if err != nil {
			nexuserr.WriteHTTP(w, rejected(http.StatusRequestEntityTooLarge, "INVALID_ARGUMENT", "request body too large"))
			return
		}
		if !gjson.ValidBytes(body) {
			nexuserr.WriteHTTP(w, rejected(http.StatusBadRequest, "INVALID_ARGUMENT", "malformed responses body"))
			return
		}

		model := gjson.GetBytes(body, "model").String()
		if model == "" {
			nexuserr.WriteHTTP(w, rejected(http.StatusBadRequest, "INVALID_ARGUMENT", "missing model"))
			return
		}
		allowed := false
		for _, m := range deps.Cfg.Codex.ModelList {
			if m == model {
				allowed = true
				break
			}
		}
		mask, known := catalog.Mask(model)
		if !allowed || !known {
			nexuserr.WriteHTTP(w, rejected(http.StatusBadRequest, "INVALID_ARGUMENT",
				fmt.Sprintf("unsupported model: %s", model)))
			return
		}

		call := upstream.Call{Model: model, Mask: mask, Stream: true}
		resp, lease, err := deps.CodexClient.Call(r.Context(), deps.CodexActor, call, body)
		if err != nil {
			nexuserr.WriteHTTP(w, err)
			return
		}

		passthroughStream(w, r, resp, lease, deps.Cfg.StreamIdleTimeout.Std())
	}
}

// CodexModelsHandler serves GET /codex/v1/models.
func CodexModelsHandler(deps *Deps) http.HandlerFunc {
	list := codex.NewModelList(deps.Cfg.Codex.ModelList)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}
}

// passthroughStream forwards upstream SSE lines verbatim with the idle
// timeout applied; no unwrapping, no sniffing.
func passthroughStream(w http.ResponseWriter, r *http.Request, resp *http.Response, lease interface{ Release() }, idleTimeout time.Duration) {
	defer lease.Release()
	defer resp.Body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		nexuserr.WriteHTTP(w, &nexuserr.StreamProtocol{Msg: "response writer does not support streaming"})
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := logging.FromContext(r.Context())

	quit := make(chan struct{})
	defer close(quit)

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(nil, streamScannerBuffer)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-quit:
				return
			case <-r.Context().Done():
				return
			}
		}
	}()

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case line, open := <-lines:
			if !open {
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(idleTimeout)

			w.Write(line)
			w.Write([]byte("\n"))
			flusher.Flush()

		case <-idle.C:
			logger.Error("codex SSE stream timed out (idle > " + idleTimeout.String() + ")")
			writeStreamError(w, flusher, "Stream idle timeout")
			return

		case <-r.Context().Done():
			return
		}
	}
}
