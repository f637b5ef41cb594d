package validators

import "regexp"

var facebookIDPattern = regexp.MustCompile(`^[0-9]{5,25}$`)

// FacebookValidator validates Facebook video and reel URLs
type FacebookValidator struct{}

// NewFacebookValidator creates a new Facebook URL validator
func NewFacebookValidator() *FacebookValidator {
	return &FacebookValidator{}
}

func (v *FacebookValidator) SourceType() SourceType {
	return SourceFacebook
}

func (v *FacebookValidator) CanHandle(rawURL string) bool {
	return matchesHost(rawURL, "facebook.com", "fb.watch", "web.facebook.com")
}

// Validate recognises:
//
//	facebook.com/watch?v=<id>
//	facebook.com/reel/<id>
//	facebook.com/<page>/videos/<id>
//	fb.watch/<code>
func (v *FacebookValidator) Validate(rawURL string) ValidationResult {
	parsed, rawURL, err := parseSourceURL(rawURL)
	if err != nil {
		return invalid(SourceFacebook, rawURL, "invalid URL format")
	}
	if res, ok := checkScheme(SourceFacebook, rawURL, parsed); !ok {
		return res
	}

	segments := splitPath(parsed.Path)
	var id, mediaType string

	switch hostOf(parsed) {
	case "fb.watch":
		if len(segments) != 1 {
			return invalid(SourceFacebook, rawURL, "invalid share link")
		}
		return ValidationResult{
			Valid:      true,
			SourceType: SourceFacebook,
			MediaID:    segments[0],
			MediaType:  "video",
			URL:        rawURL,
			Canonical:  "https://fb.watch/" + segments[0] + "/",
		}
	case "facebook.com", "web.facebook.com":
		switch {
		case len(segments) >= 1 && segments[0] == "watch":
			id, mediaType = parsed.Query().Get("v"), "video"
		case len(segments) >= 2 && segments[0] == "reel":
			id, mediaType = segments[1], "reel"
		case len(segments) >= 3 && segments[1] == "videos":
			id, mediaType = segments[2], "video"
		default:
			return invalid(SourceFacebook, rawURL, "URL does not point to a video")
		}
	default:
		return invalid(SourceFacebook, rawURL, "not a Facebook URL")
	}

	if !facebookIDPattern.MatchString(id) {
		return invalid(SourceFacebook, rawURL, "invalid video ID format")
	}

	canonical := "https://www.facebook.com/watch/?v=" + id
	if mediaType == "reel" {
		canonical = "https://www.facebook.com/reel/" + id
	}
	return ValidationResult{
		Valid:      true,
		SourceType: SourceFacebook,
		MediaID:    id,
		MediaType:  mediaType,
		URL:        rawURL,
		Canonical:  canonical,
	}
}
