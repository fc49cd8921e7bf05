package engine

import (
	"context"
	"net/http"

	stealth "github.com/anatolykoptev/go-stealth"
)

// Re-export stealth types and functions for sources.
type BrowserClient = stealth.BrowserClient

var DefaultRetryConfig = stealth.DefaultRetryConfig

func ChromeHeaders() map[string]string { return stealth.ChromeHeaders() }
func RandomUserAgent() string          { return stealth.RandomUserAgent() }
func IsRetryableStatus(code int) bool  { return stealth.IsRetryableStatus(code) }

func RetryHTTP(ctx context.Context, rc stealth.RetryConfig, fn func() (*http.Response, error)) (*http.Response, error) {
	return stealth.RetryHTTP(ctx, rc, fn)
}

// BrowserGet fetches url with a browser TLS fingerprint. It returns the body and status.
func BrowserGet(bc *BrowserClient, url string, headers map[string]string) ([]byte, int, error) {
	h := ChromeHeaders()
	for k, v := range headers {
		h[k] = v
	}
	data, _, status, err := bc.Do(http.MethodGet, url, h, nil)
	return data, status, err
}
