// Package geminicli calls the Cloud Code v1internal endpoints with the
// Gemini CLI envelope ({model, project, request}).
package geminicli

import (
	"bytes"
	"context"
	"encoding/json"
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

const defaultBaseURL = "https://cloudcode-pa.googleapis.com"

const (
	generatePath = "/v1internal:generateContent"
	streamPath   = "/v1internal:streamGenerateContent?alt=sse"

	headerUserAgent = "GeminiCLI/0.1.5 (linux; amd64)"
)

// RequestEnvelope is the Gemini CLI upstream wrapper.
type RequestEnvelope struct {
	Model   string          `json:"model"`
	Project string          `json:"project"`
	Request json.RawMessage `json:"request"`
}

// Client posts CLI envelopes with retry, classification, and health
// reporting. Error bodies that parse as Gemini errors are forwarded
// structurally.
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

// Endpoint returns the full URL for the stream or unary operation.
func (c *Client) Endpoint(stream bool) string {
	if stream {
		return c.baseURL + streamPath
	}
	return c.baseURL + generatePath
}

// Call runs the retry pipeline for one request; see antigravity.Client.Call
// for the lease contract.
func (c *Client) Call(ctx context.Context, actor *pool.Actor, call upstream.Call, body []byte) (*http.Response, *pool.Lease, error) {
	return upstream.CallWithRetry(ctx, actor, call.Mask, c.policy, func(ctx context.Context, lease *pool.Lease) (*http.Response, error) {
		logging.FromContext(ctx).WithFields(log.Fields{
			"lease_id": lease.ID,
			"model":    call.Model,
			"stream":   call.Stream,
		}).Info("[geminicli] post upstream")

		payload, err := json.Marshal(&RequestEnvelope{
			Model:   call.Model,
			Project: lease.ProjectID,
			Request: body,
		})
		if err != nil {
			lease.Release()
			return nil, fmt.Errorf("build geminicli envelope: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(call.Stream), bytes.NewReader(payload))
		if err != nil {
			lease.Release()
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+lease.AccessToken)
		req.Header.Set("User-Agent", headerUserAgent)
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
			return nil, upstream.HandleFailure(ctx, lease, call.Mask, resp, true)
		}
		return resp, nil
	})
}
