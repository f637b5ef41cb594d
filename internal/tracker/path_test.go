package tracker

import "testing"

func TestResolveTargetPath(t *testing.T) {
	tests := []struct {
		path, name, want string
	}{
		{"videos/a", "", "videos/a"},
		{"videos/", "", "videos"},
		{"videos//", "  ", "videos"},
		{"videos", "clip", "videos/clip.mp4"},
		{"videos/", " clip ", "videos/clip.mp4"},
		{"videos", "clip.mp4", "videos/clip.mp4"},
		{"videos", "clip.MP4", "videos/clip.mp4"},
		{"videos", "a/b", "videos/a-b.mp4"},
		{"videos", "tab\there", "videos/tabhere.mp4"},
		{"/", "clip", "/clip.mp4"},
		{"videos", "Cafe\u0301", "videos/Caf\u00e9.mp4"},
	}

	for _, tt := range tests {
		if got := ResolveTargetPath(tt.path, tt.name); got != tt.want {
			t.Errorf("ResolveTargetPath(%q, %q) = %q, want %q", tt.path, tt.name, got, tt.want)
		}
	}
}

func TestSplitTargetPath(t *testing.T) {
	tests := []struct {
		target, dir, label string
	}{
		{"videos/clip.mp4", "videos", "clip"},
		{"videos", "videos", OriginalFileName},
		{"clip.mp4", "", "clip"},
		{"videos/.mp4", "videos", OriginalFileName},
	}

	for _, tt := range tests {
		dir, label := SplitTargetPath(tt.target)
		if dir != tt.dir || label != tt.label {
			t.Errorf("SplitTargetPath(%q) = (%q, %q), want (%q, %q)", tt.target, dir, label, tt.dir, tt.label)
		}
	}
}
