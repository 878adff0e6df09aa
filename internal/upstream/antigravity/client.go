// Package antigravity calls the Cloud Code v1internal endpoints with the
// Antigravity envelope.
package antigravity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream"
)

const defaultBaseURL = "https://daily-cloudcode-pa.googleapis.com"

const (
	generatePath = "/v1internal:generateContent"
	streamPath   = "/v1internal:streamGenerateContent?alt=sse"
)

// Client posts Antigravity envelopes with retry, classification, and health
// reporting.
type Client struct {
	httpClient *http.Client
	policy     upstream.RetryPolicy
	baseURL    string
}

// NewClient builds a client. baseURL overrides the fixed upstream host
// (tests point it at a capture server); empty means production.
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

// Endpoint returns the full URL for the stream or unary operation.
func (c *Client) Endpoint(stream bool) string {
	if stream {
		return c.baseURL + streamPath
	}
	return c.baseURL + generatePath
}

// Call runs the retry pipeline for one request. On success the returned
// lease is still held; the caller releases it once the response body is
// fully consumed.
func (c *Client) Call(ctx context.Context, actor *pool.Actor, call upstream.Call, body []byte) (*http.Response, *pool.Lease, error) {
	if IsClaudeModel(call.Model) {
		body = EnsureClaudeSystemInstruction(body)
	}

	return upstream.CallWithRetry(ctx, actor, call.Mask, c.policy, func(ctx context.Context, lease *pool.Lease) (*http.Response, error) {
		logging.FromContext(ctx).WithFields(log.Fields{
			"lease_id": lease.ID,
			"model":    call.Model,
			"stream":   call.Stream,
		}).Info("[antigravity] post upstream")

		payload, err := BuildEnvelope(lease.ProjectID, call.Model, body)
		if err != nil {
			lease.Release()
			return nil, fmt.Errorf("build antigravity envelope: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(call.Stream), bytes.NewReader(payload))
		if err != nil {
			lease.Release()
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+lease.AccessToken)
		req.Header.Set("User-Agent", HeaderUserAgent)
		if call.Stream {
			req.Header.Set("Accept", "text/event-stream")
		} else {
			req.Header.Set("Accept", "application/json")
		}

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
