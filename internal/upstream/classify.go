// Package upstream implements the shared call pipeline: retrying,
// classifying HTTP invocations against a leased credential.
package upstream

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Action is the recovery action a failed upstream call asks of the pool.
type Action int

const (
	ActionNone Action = iota
	ActionRateLimit
	ActionBan
	ActionInvalid
	ActionModelUnsupported
)

func (a Action) String() string {
	switch a {
	case ActionRateLimit:
		return "rate_limit"
	case ActionBan:
		return "ban"
	case ActionInvalid:
		return "invalid"
	case ActionModelUnsupported:
		return "model_unsupported"
	default:
		return "none"
	}
}

// defaultRateLimitCooldown applies when upstream gives no Retry-After.
const defaultRateLimitCooldown = 30 * time.Second

// Classification is the classifier verdict for a non-success response.
type Classification struct {
	Action   Action
	Cooldown time.Duration // set for ActionRateLimit
	Retry    bool          // credential-scoped faults re-enter the lease loop
}

// Classify maps a non-success upstream response to a recovery action.
func Classify(status int, header http.Header, body []byte) Classification {
	lower := strings.ToLower(string(body))

	if status == http.StatusTooManyRequests || strings.Contains(lower, "resource_exhausted") {
		cooldown := parseRetryDelay(header, body)
		if cooldown <= 0 {
			cooldown = defaultRateLimitCooldown
		}
		return Classification{Action: ActionRateLimit, Cooldown: cooldown, Retry: true}
	}

	switch status {
	case http.StatusUnauthorized:
		return Classification{Action: ActionBan, Retry: true}
	case http.StatusForbidden:
		return Classification{Action: ActionBan, Retry: true}
	case http.StatusBadRequest:
		if strings.Contains(lower, "invalid_grant") || strings.Contains(lower, "invalid authentication") ||
			strings.Contains(lower, "unauthenticated") {
			return Classification{Action: ActionInvalid, Retry: true}
		}
		if strings.Contains(lower, "model") &&
			(strings.Contains(lower, "not found") || strings.Contains(lower, "not supported") ||
				strings.Contains(lower, "not available")) {
			return Classification{Action: ActionModelUnsupported, Retry: true}
		}
	case http.StatusNotFound:
		if strings.Contains(lower, "model") {
			return Classification{Action: ActionModelUnsupported, Retry: true}
		}
	}

	return Classification{Action: ActionNone}
}

// parseRetryDelay extracts a cooldown from the Retry-After header or from
// the Google RetryInfo detail in the error body ("retryDelay": "3.5s").
func parseRetryDelay(header http.Header, body []byte) time.Duration {
	if retryAfter := header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			return time.Until(t)
		}
	}

	var found time.Duration
	gjson.GetBytes(body, "error.details").ForEach(func(_, detail gjson.Result) bool {
		delay := detail.Get("retryDelay").String()
		if delay == "" {
			delay = detail.Get("metadata.retryDelay").String()
		}
		if delay == "" {
			return true
		}
		if d, err := time.ParseDuration(delay); err == nil {
			found = d
			return false
		}
		return true
	})
	return found
}
