package validators

import "regexp"

var youtubeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// YouTubeValidator validates YouTube video URLs
type YouTubeValidator struct{}

// NewYouTubeValidator creates a new YouTube URL validator
func NewYouTubeValidator() *YouTubeValidator {
	return &YouTubeValidator{}
}

func (v *YouTubeValidator) SourceType() SourceType {
	return SourceYouTube
}

func (v *YouTubeValidator) CanHandle(rawURL string) bool {
	return matchesHost(rawURL, "youtube.com", "youtu.be", "music.youtube.com")
}

// Validate extracts the video ID from watch, short-link, shorts, embed and live URLs.
func (v *YouTubeValidator) Validate(rawURL string) ValidationResult {
	parsed, rawURL, err := parseSourceURL(rawURL)
	if err != nil {
		return invalid(SourceYouTube, rawURL, "invalid URL format")
	}
	if res, ok := checkScheme(SourceYouTube, rawURL, parsed); !ok {
		return res
	}

	var videoID, mediaType string
	segments := splitPath(parsed.Path)

	switch hostOf(parsed) {
	case "youtu.be":
		if len(segments) > 0 {
			videoID = segments[0]
		}
		mediaType = "video"
	case "youtube.com", "music.youtube.com":
		if len(segments) == 0 {
			break
		}
		switch segments[0] {
		case "watch":
			videoID = parsed.Query().Get("v")
			mediaType = "video"
		case "shorts":
			mediaType = "short"
		case "embed", "v":
			mediaType = "video"
		case "live":
			mediaType = "live"
		}
		if segments[0] != "watch" && mediaType != "" && len(segments) > 1 {
			videoID = segments[1]
		}
	default:
		return invalid(SourceYouTube, rawURL, "not a YouTube URL")
	}

	if videoID == "" {
		return invalid(SourceYouTube, rawURL, "could not extract video ID from URL")
	}
	if !youtubeIDPattern.MatchString(videoID) {
		res := invalid(SourceYouTube, rawURL, "invalid video ID format")
		res.MediaID = videoID
		return res
	}

	return ValidationResult{
		Valid:      true,
		SourceType: SourceYouTube,
		MediaID:    videoID,
		MediaType:  mediaType,
		URL:        rawURL,
		Canonical:  "https://www.youtube.com/watch?v=" + videoID,
	}
}
