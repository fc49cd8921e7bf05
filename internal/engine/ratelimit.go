package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultCooldown is used when the upstream gives no retry hint.
const DefaultCooldown = 30 * time.Second

const maxCooldown = 5 * time.Minute

var rateLimitPatterns = []string{
	"429",
	"resource_exhausted",
	"resource exhausted",
	"rate limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"quota exceeded",
	"exceeded your current quota",
}

// retryDelayRe matches hints like `"retryDelay": "37s"`, "retry in 12.5s" and "retry after 20 seconds".
var retryDelayRe = regexp.MustCompile(`(?i)retry(?:[ _]?delay)?["':\s]*(?:in|after)?\s*"?(\d+(?:\.\d+)?)\s*(?:s\b|sec|seconds)`)

// IsRateLimitText reports whether an error message looks like a quota or backoff response.
func IsRateLimitText(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ParseRetryDelay extracts a retry hint from free text, or returns 0.
func ParseRetryDelay(msg string) time.Duration {
	m := retryDelayRe.FindStringSubmatch(msg)
	if len(m) < 2 {
		return 0
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return clampCooldown(time.Duration(secs * float64(time.Second)))
}

// ClassifyRateLimit wraps err as a RateLimitError when its text indicates one.
func ClassifyRateLimit(err error) (*RateLimitError, bool) {
	if err == nil {
		return nil, false
	}
	if rl, ok := AsRateLimit(err); ok {
		return rl, true
	}
	msg := err.Error()
	if !IsRateLimitText(msg) {
		return nil, false
	}
	cooldown := ParseRetryDelay(msg)
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	return &RateLimitError{Cooldown: cooldown, Cause: err}, true
}

func clampCooldown(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	if d > maxCooldown {
		return maxCooldown
	}
	return d
}
