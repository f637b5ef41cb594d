package validators

import (
	"net/url"
	"strings"
)

// SourceType identifies the platform a URL belongs to
type SourceType string

const (
	SourceYouTube  SourceType = "youtube"
	SourceTikTok   SourceType = "tiktok"
	SourceFacebook SourceType = "facebook"
	SourceUnknown  SourceType = "unknown"
)

// ValidationResult contains the result of URL validation
type ValidationResult struct {
	Valid      bool       `json:"valid"`
	SourceType SourceType `json:"source_type"`
	MediaID    string     `json:"media_id,omitempty"`
	MediaType  string     `json:"media_type,omitempty"` // e.g., "video", "short", "reel"
	URL        string     `json:"url"`
	Canonical  string     `json:"canonical_url,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Validator defines the interface for URL validators
type Validator interface {
	// SourceType returns the source type this validator handles
	SourceType() SourceType

	// CanHandle returns true if this validator can handle the given URL
	CanHandle(url string) bool

	// Validate validates the URL and extracts relevant information
	Validate(url string) ValidationResult
}

// parseSourceURL parses a user-typed URL, assuming https when the scheme is omitted.
func parseSourceURL(rawURL string) (*url.URL, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL != "" && !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, rawURL, err
	}
	return parsed, rawURL, nil
}

// hostOf returns the lowercased host with the www. and m. prefixes removed.
func hostOf(parsed *url.URL) string {
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return host
}

// matchesHost reports whether rawURL parses to one of hosts.
func matchesHost(rawURL string, hosts ...string) bool {
	parsed, _, err := parseSourceURL(rawURL)
	if err != nil {
		return false
	}
	host := hostOf(parsed)
	for _, h := range hosts {
		if host == h {
			return true
		}
	}
	return false
}

func invalid(source SourceType, rawURL, msg string) ValidationResult {
	return ValidationResult{
		Valid:      false,
		SourceType: source,
		URL:        rawURL,
		Error:      msg,
	}
}

// checkScheme returns a failed result unless parsed uses http or https.
func checkScheme(source SourceType, rawURL string, parsed *url.URL) (ValidationResult, bool) {
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return invalid(source, rawURL, "invalid URL scheme"), false
	}
	return ValidationResult{}, true
}

// splitPath splits a URL path into its non-empty segments.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
