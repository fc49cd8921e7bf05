package engine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// pathPrefixes are the path shapes whose next segment is the id.
var pathPrefixes = map[string]bool{
	"embed":  true,
	"shorts": true,
	"live":   true,
	"v":      true,
	"e":      true,
}

// ExtractVideoID parses a watch, short, embed or bare-id reference.
// The id is returned with its case untouched.
func ExtractVideoID(ref string) (VideoID, error) {
	ref = strings.TrimSpace(ref)
	if videoIDRe.MatchString(ref) {
		return VideoID(ref), nil
	}
	raw := ref
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	host := strings.ToLower(u.Hostname())
	for _, p := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, p)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	var candidate string
	switch host {
	case "youtu.be":
		candidate = segs[0]
	case "youtube.com", "youtube-nocookie.com":
		if segs[0] == "watch" {
			candidate = u.Query().Get("v")
		} else if len(segs) >= 2 && pathPrefixes[segs[0]] {
			candidate = segs[1]
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidReference, host)
	}

	if !videoIDRe.MatchString(candidate) {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidReference, ref)
	}
	return VideoID(candidate), nil
}
