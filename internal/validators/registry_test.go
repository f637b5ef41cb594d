package validators

import (
	"testing"

	apperrors "github.com/tubedash/tubedash/internal/errors"
)

func TestRegistry_Validate(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name           string
		url            string
		wantValid      bool
		wantSourceType SourceType
	}{
		{
			name:           "YouTube URL",
			url:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantValid:      true,
			wantSourceType: SourceYouTube,
		},
		{
			name:           "TikTok URL",
			url:            "https://www.tiktok.com/@scout2015/video/6718335390845095173",
			wantValid:      true,
			wantSourceType: SourceTikTok,
		},
		{
			name:           "Facebook URL",
			url:            "https://www.facebook.com/reel/555666777888",
			wantValid:      true,
			wantSourceType: SourceFacebook,
		},
		{
			name:           "malformed YouTube URL",
			url:            "https://www.youtube.com/watch?v=abc",
			wantValid:      false,
			wantSourceType: SourceYouTube,
		},
		{
			name:           "unsupported URL",
			url:            "https://soundcloud.com/artist/track",
			wantValid:      false,
			wantSourceType: SourceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Validate(tt.url)

			if result.Valid != tt.wantValid {
				t.Errorf("Validate(%q).Valid = %v, want %v", tt.url, result.Valid, tt.wantValid)
			}
			if result.SourceType != tt.wantSourceType {
				t.Errorf("Validate(%q).SourceType = %q, want %q", tt.url, result.SourceType, tt.wantSourceType)
			}
		})
	}
}

func TestRegistry_Check(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		url      string
		wantCode string
	}{
		{"valid", "https://youtu.be/dQw4w9WgXcQ", ""},
		{"unsupported", "https://vimeo.com/123456", apperrors.CodeUnsupportedSource},
		{"malformed", "https://www.tiktok.com/@scout2015", apperrors.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Check(tt.url)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Errorf("expected code %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestRegistry_GetSupportedSources(t *testing.T) {
	r := DefaultRegistry()
	sources := r.GetSupportedSources()

	want := []SourceType{SourceYouTube, SourceTikTok, SourceFacebook}
	if len(sources) != len(want) {
		t.Fatalf("GetSupportedSources() returned %d sources, want %d", len(sources), len(want))
	}
	for i, s := range want {
		if sources[i] != s {
			t.Errorf("sources[%d] = %q, want %q", i, sources[i], s)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	sources := r.GetSupportedSources()

	if len(sources) != 0 {
		t.Errorf("NewRegistry() should have 0 sources, got %d", len(sources))
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(NewTikTokValidator())

	sources := r.GetSupportedSources()
	if len(sources) != 1 {
		t.Errorf("After Register(), should have 1 source, got %d", len(sources))
	}
	if sources[0] != SourceTikTok {
		t.Errorf("Registered source should be TikTok, got %q", sources[0])
	}
}
