// Package youtube recognizes YouTube links and looks up video metadata.
package youtube

import (
	"regexp"
	"strings"
)

// IDLength is the length of a YouTube video identifier
const IDLength = 11

// Recognized forms, tried in order. The first capture group is the identifier.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:m\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:m\.)?youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
}

var bareID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// ExtractVideoID finds a video identifier in free text.
// Links are matched anywhere in the text; a bare identifier must be the whole (trimmed) text.
func ExtractVideoID(text string) (string, bool) {
	for _, re := range linkPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	trimmed := strings.TrimSpace(text)
	if bareID.MatchString(trimmed) {
		return trimmed, true
	}
	return "", false
}

// IsValidID reports whether id is a well-formed video identifier
func IsValidID(id string) bool {
	return bareID.MatchString(id)
}

// IsShortsLink reports whether text points at a short
func IsShortsLink(text string) bool {
	return strings.Contains(strings.ToLower(text), "/shorts/")
}

// ThumbnailURL returns the static thumbnail location for a video
func ThumbnailURL(id string) string {
	return "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"
}
