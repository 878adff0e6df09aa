// Package codex passes OpenAI-responses bodies through to the ChatGPT
// backend Codex API.
package codex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream"
)

const defaultBaseURL = "https://chatgpt.com/backend-api/codex"

const (
	responsesPath = "/responses"

	headerUserAgent = "codex_cli_rs/0.94.0 (Mac OS 26.0.1; arm64)"
	headerVersion   = "0.94.0"
)

// droppedParams are sampling knobs the Codex backend rejects.
var droppedParams = []string{
	"temperature",
	"top_p",
	"max_output_tokens",
	"max_completion_tokens",
	"max_tokens",
	"service_tier",
	"presence_penalty",
	"frequency_penalty",
}

// Client posts responses requests with retry and health reporting.
type Client struct {
	httpClient *http.Client
	policy     upstream.RetryPolicy
	baseURL    string
}

// NewClient builds a client; empty baseURL means production.
func NewClient(timeout time.Duration, maxAttempts int, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		policy:     upstream.DefaultRetryPolicy(maxAttempts),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// SanitizeBody forces the parameters the backend requires (stream on,
// store off, instructions present) and strips the ones it rejects.
func SanitizeBody(body []byte) []byte {
	out := body
	out, _ = sjson.SetBytes(out, "stream", true)
	out, _ = sjson.SetBytes(out, "store", false)
	if !bytes.Contains(out, []byte(`"instructions"`)) {
		out, _ = sjson.SetBytes(out, "instructions", "")
	}
	for _, param := range droppedParams {
		out, _ = sjson.DeleteBytes(out, param)
	}
	return out
}

// Call runs the retry pipeline for one responses request.
func (c *Client) Call(ctx context.Context, actor *pool.Actor, call upstream.Call, body []byte) (*http.Response, *pool.Lease, error) {
	payload := SanitizeBody(body)

	return upstream.CallWithRetry(ctx, actor, call.Mask, c.policy, func(ctx context.Context, lease *pool.Lease) (*http.Response, error) {
		logging.FromContext(ctx).WithFields(log.Fields{
			"lease_id": lease.ID,
			"model":    call.Model,
		}).Info("[codex] post responses")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, bytes.NewReader(payload))
		if err != nil {
			lease.Release()
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+lease.AccessToken)
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("User-Agent", headerUserAgent)
		req.Header.Set("Version", headerVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lease.Release()
			return nil, &nexuserr.UpstreamTransient{Err: err}
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lease.Release()
			return nil, &nexuserr.UpstreamTransient{
				Err: fmt.Errorf("server error %d: %s", resp.StatusCode, snippet),
			}
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, upstream.HandleFailure(ctx, lease, call.Mask, resp, false)
		}
		return resp, nil
	})
}
