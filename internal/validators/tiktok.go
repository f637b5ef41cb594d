package validators

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tiktokVideoIDPattern   = regexp.MustCompile(`^[0-9]{8,25}$`)
	tiktokShortCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]{5,16}$`)
	tiktokUserPattern      = regexp.MustCompile(`^@[a-zA-Z0-9_.]{2,24}$`)
)

// TikTokValidator validates TikTok video URLs
type TikTokValidator struct{}

// NewTikTokValidator creates a new TikTok URL validator
func NewTikTokValidator() *TikTokValidator {
	return &TikTokValidator{}
}

func (v *TikTokValidator) SourceType() SourceType {
	return SourceTikTok
}

func (v *TikTokValidator) CanHandle(rawURL string) bool {
	return matchesHost(rawURL, "tiktok.com", "vm.tiktok.com", "vt.tiktok.com")
}

// Validate accepts /@user/video/<id> pages and vm./vt. share links.
func (v *TikTokValidator) Validate(rawURL string) ValidationResult {
	parsed, rawURL, err := parseSourceURL(rawURL)
	if err != nil {
		return invalid(SourceTikTok, rawURL, "invalid URL format")
	}
	if res, ok := checkScheme(SourceTikTok, rawURL, parsed); !ok {
		return res
	}

	segments := splitPath(parsed.Path)

	switch hostOf(parsed) {
	case "vm.tiktok.com", "vt.tiktok.com":
		if len(segments) != 1 || !tiktokShortCodePattern.MatchString(segments[0]) {
			return invalid(SourceTikTok, rawURL, "invalid share link")
		}
		// Share links redirect; the downloader resolves them.
		return ValidationResult{
			Valid:      true,
			SourceType: SourceTikTok,
			MediaID:    segments[0],
			MediaType:  "video",
			URL:        rawURL,
			Canonical:  rawURL,
		}
	case "tiktok.com":
		if len(segments) < 3 || segments[1] != "video" {
			return invalid(SourceTikTok, rawURL, "URL does not point to a video")
		}
		user, id := segments[0], segments[2]
		if !tiktokUserPattern.MatchString(user) {
			return invalid(SourceTikTok, rawURL, "invalid TikTok username format")
		}
		if !tiktokVideoIDPattern.MatchString(id) {
			return invalid(SourceTikTok, rawURL, "invalid video ID format")
		}
		return ValidationResult{
			Valid:      true,
			SourceType: SourceTikTok,
			MediaID:    id,
			MediaType:  "video",
			URL:        rawURL,
			Canonical:  fmt.Sprintf("https://www.tiktok.com/%s/video/%s", strings.ToLower(user), id),
		}
	default:
		return invalid(SourceTikTok, rawURL, "not a TikTok URL")
	}
}
