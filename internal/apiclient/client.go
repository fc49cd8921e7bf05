// Package apiclient calls the summarize REST endpoint.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidsum/internal/engine"
	"github.com/anatolykoptev/go_vidsum/internal/toolutil"
)

const defaultRetryAfter = 30 * time.Second

// RateLimitError is returned for 429 responses. It satisfies the cooldown
// controller's hint interface.
type RateLimitError struct {
	Message    string
	Transcript string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return e.Message }

func (e *RateLimitError) CooldownHint() time.Duration { return e.RetryAfter }

// APIError is any other non-200 response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// Summarize posts ref and decodes the result.
func (c *Client) Summarize(ctx context.Context, ref string) (*engine.Result, error) {
	body, err := json.Marshal(map[string]string{"videoReference": ref})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/summarize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summarize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		res, err := toolutil.DecodeJSON[engine.Result](resp.Body)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}

	eb, err := toolutil.DecodeJSON[toolutil.ErrorBody](resp.Body)
	if err != nil || eb.Error == "" {
		eb.Error = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			Message:    eb.Error,
			Transcript: eb.Transcript,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After"), eb.RetryAfter),
		}
	}
	return nil, &APIError{Status: resp.StatusCode, Message: eb.Error}
}

// retryAfter prefers the header, then the body field, then a default.
func retryAfter(header string, bodySecs int) time.Duration {
	if n, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if bodySecs > 0 {
		return time.Duration(bodySecs) * time.Second
	}
	return defaultRetryAfter
}
