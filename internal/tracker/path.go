package tracker

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// VideoExt is appended to every named target.
const VideoExt = ".mp4"

// ResolveTargetPath combines a destination directory and an optional file
// name into the single target path sent to the service:
//
//	"videos/", ""       -> "videos"
//	"videos", "clip"    -> "videos/clip.mp4"
//	"videos", "clip.mp4" -> "videos/clip.mp4"
func ResolveTargetPath(targetPath, fileName string) string {
	p := strings.TrimSpace(targetPath)
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}

	stem := FileStem(fileName)
	if stem == "" {
		return p
	}
	if p == "/" {
		return "/" + stem + VideoExt
	}
	return p + "/" + stem + VideoExt
}

// FileStem cleans a user supplied file name: NFC form, no path separators
// or control characters, no trailing .mp4.
func FileStem(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if strings.HasSuffix(strings.ToLower(name), VideoExt) {
		name = name[:len(name)-len(VideoExt)]
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '-'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)

	return strings.TrimSpace(name)
}

// SplitTargetPath reverses ResolveTargetPath for display. The label is
// OriginalFileName when the target carries no file stem.
func SplitTargetPath(target string) (dir, label string) {
	if !strings.HasSuffix(strings.ToLower(target), VideoExt) {
		return target, OriginalFileName
	}
	i := strings.LastIndexByte(target, '/')
	if i < 0 {
		return "", target[:len(target)-len(VideoExt)]
	}
	stem := target[i+1 : len(target)-len(VideoExt)]
	if stem == "" {
		return target[:i], OriginalFileName
	}
	return target[:i], stem
}
