package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
)

// AttemptFunc performs one upstream invocation with a leased credential.
// On failure it must have released the lease (directly or through a health
// report) before returning.
type AttemptFunc func(ctx context.Context, lease *pool.Lease) (*http.Response, error)

// CallWithRetry runs the single retry loop of the pipeline: lease, attempt,
// classify (inside the attempt), back off, re-lease. On success the caller
// receives the open response plus the still-held lease and must release it
// when the response is fully consumed.
func CallWithRetry(ctx context.Context, actor *pool.Actor, mask uint64, policy RetryPolicy, attempt AttemptFunc) (*http.Response, *pool.Lease, error) {
	var lastErr error

	for i := 0; i < policy.MaxAttempts; i++ {
		if i > 0 {
			if err := policy.Sleep(ctx, i-1); err != nil {
				return nil, nil, err
			}
		}

		lease, err := actor.GetCredential(ctx, mask)
		if err != nil {
			return nil, nil, err
		}
		if lease == nil {
			return nil, nil, nexuserr.NoAvailableCredential{}
		}

		resp, err := attempt(ctx, lease)
		if err == nil {
			return resp, lease, nil
		}

		lease.Release() // no-op when the attempt already reported

		if !nexuserr.Retryable(err) {
			return nil, nil, err
		}
		lastErr = err
		logging.FromContext(ctx).Warnf("upstream attempt %d/%d failed, retrying: %v",
			i+1, policy.MaxAttempts, err)
	}

	return nil, nil, lastErr
}

// HandleFailure drains a non-success response, classifies it, reports the
// action through the lease, and returns the downstream error. mapGemini
// selects whether a parseable Gemini error body becomes UpstreamMapped.
func HandleFailure(ctx context.Context, lease *pool.Lease, mask uint64, resp *http.Response, mapGemini bool) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	verdict := Classify(resp.StatusCode, resp.Header, body)
	switch verdict.Action {
	case ActionRateLimit:
		lease.ReportRateLimit(mask, verdict.Cooldown)
	case ActionBan:
		lease.ReportBanned()
	case ActionInvalid:
		lease.ReportInvalid()
	case ActionModelUnsupported:
		lease.ReportModelUnsupported(mask)
	case ActionNone:
		lease.Release()
	}

	logging.FromContext(ctx).WithFields(log.Fields{
		"lease_id": lease.ID,
		"status":   resp.StatusCode,
		"action":   verdict.Action.String(),
	}).Warn("upstream error")

	if mapGemini {
		var mapped nexuserr.GeminiErrorObject
		if err := json.Unmarshal(body, &mapped); err == nil && mapped.Error.Code != 0 {
			return &nexuserr.UpstreamMapped{Code: resp.StatusCode, Body: mapped, Retry: verdict.Retry}
		}
	}
	return &nexuserr.UpstreamStatus{Code: resp.StatusCode, Body: body, Retry: verdict.Retry}
}
