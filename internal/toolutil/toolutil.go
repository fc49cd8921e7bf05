// Package toolutil holds JSON helpers shared by the REST handler and its client.
package toolutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds request and response bodies read through DecodeJSON.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every non-200 response.
type ErrorBody struct {
	Error      string `json:"error"`
	Transcript string `json:"transcript,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json", slog.Any("error", err))
	}
}

// WriteError writes an ErrorBody with a single message.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// DecodeJSON decodes at most MaxBodyBytes of r into a value of type T.
func DecodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r, MaxBodyBytes))
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, errors.New("empty body")
		}
		return out, fmt.Errorf("decode json: %w", err)
	}
	return out, nil
}

// FirstNonEmpty returns the first argument that is not blank after trimming.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
