package engine

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Placeholders used when the model output cannot be used as-is.
const (
	FallbackSummary    = "Sorry, the summary could not be formatted properly. The raw model output is shown in the notes."
	PlaceholderSummary = "Sorry, a summary could not be generated for this video right now. The transcript is included below."
	PlaceholderNotes   = "Notes are unavailable because the model request failed. Try again later."
)

// llmSummaryOutput is the JSON structure expected from the model.
type llmSummaryOutput struct {
	Summary    string          `json:"summary"`
	Notes      json.RawMessage `json:"notes"`
	Transcript string          `json:"transcript"`
}

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the greedy span from the first '{' to the last '}'.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// Normalize turns raw model output into a Result. Output that does not parse
// yields the raw text as notes and FallbackSummary; Normalize never fails.
func Normalize(raw string) Result {
	cleaned := stripFences(raw)
	obj, ok := extractObject(cleaned)
	if !ok {
		return malformed(raw, "no JSON object")
	}
	var out llmSummaryOutput
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return malformed(raw, err.Error())
	}
	notes := decodeNotes(out.Notes)
	if strings.TrimSpace(out.Summary) == "" && notes == "" {
		return malformed(raw, "empty summary and notes")
	}
	return Result{
		Summary:    strings.TrimSpace(out.Summary),
		Notes:      notes,
		Transcript: strings.TrimSpace(out.Transcript),
	}
}

func malformed(raw, reason string) Result {
	metrics.MalformedOutputs.Add(1)
	slog.Warn("normalize: malformed model output", slog.String("reason", reason), slog.Int("len", len(raw)))
	return Result{
		Summary:  FallbackSummary,
		Notes:    raw,
		Degraded: true,
	}
}

// decodeNotes accepts notes as a markdown string or a list of bullet strings.
func decodeNotes(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return htmlToMarkdown(strings.TrimSpace(s))
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err == nil {
		var sb strings.Builder
		for _, it := range items {
			it = strings.TrimSpace(it)
			if it == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("- ")
			sb.WriteString(strings.TrimPrefix(strings.TrimPrefix(it, "- "), "* "))
		}
		return sb.String()
	}
	return strings.TrimSpace(string(raw))
}

var htmlBlockRe = regexp.MustCompile(`(?i)<(p|ul|ol|li|h[1-6]|br|strong|em|b|i|div)\b[^>]*>`)

// htmlToMarkdown converts notes the model wrote as HTML.
func htmlToMarkdown(s string) string {
	if !htmlBlockRe.MatchString(s) {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}
