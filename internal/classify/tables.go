// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package classify

import (
	"regexp"

	"github.com/ManuGH/xgrab/internal/media"
)

var contentTypes = map[string]media.Kind{
	"video/mp4":                     media.KindVideo,
	"video/webm":                    media.KindVideo,
	"video/ogg":                     media.KindVideo,
	"video/quicktime":               media.KindVideo,
	"video/x-msvideo":               media.KindVideo,
	"video/x-matroska":              media.KindVideo,
	"video/x-flv":                   media.KindVideo,
	"video/3gpp":                    media.KindVideo,
	"video/mp2t":                    media.KindVideo,
	"application/vnd.apple.mpegurl": media.KindVideo,
	"application/x-mpegurl":         media.KindVideo,
	"application/dash+xml":          media.KindVideo,

	"audio/mpeg":  media.KindAudio,
	"audio/mp3":   media.KindAudio,
	"audio/wav":   media.KindAudio,
	"audio/wave":  media.KindAudio,
	"audio/x-wav": media.KindAudio,
	"audio/ogg":   media.KindAudio,
	"audio/webm":  media.KindAudio,
	"audio/flac":  media.KindAudio,
	"audio/aac":   media.KindAudio,
	"audio/x-m4a": media.KindAudio,
	"audio/mp4":   media.KindAudio,
}

var ambiguousTypes = map[string]struct{}{
	"application/octet-stream": {},
}

var extensions = map[string]media.Kind{
	"mp4":  media.KindVideo,
	"avi":  media.KindVideo,
	"mkv":  media.KindVideo,
	"mov":  media.KindVideo,
	"wmv":  media.KindVideo,
	"flv":  media.KindVideo,
	"webm": media.KindVideo,
	"m4v":  media.KindVideo,
	"m3u8": media.KindVideo,
	"mpd":  media.KindVideo,
	"ts":   media.KindVideo,

	"mp3":  media.KindAudio,
	"wav":  media.KindAudio,
	"flac": media.KindAudio,
	"aac":  media.KindAudio,
	"ogg":  media.KindAudio,
	"wma":  media.KindAudio,
	"m4a":  media.KindAudio,
	"opus": media.KindAudio,
}

// exclusions keep segment fetches and page furniture from re-triggering
// detection.
var exclusions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.ts(\?|$)`),
	regexp.MustCompile(`(?i)/segment[_-]?\d+`),
	regexp.MustCompile(`(?i)thumbnail`),
	regexp.MustCompile(`(?i)preview`),
	regexp.MustCompile(`(?i)ads?/`),
}

// KindForExtension maps a bare extension (no dot, any case) to a kind.
func KindForExtension(ext string) (media.Kind, bool) {
	k, ok := extensions[lower(ext)]
	return k, ok
}

// KindForContentType maps a MIME type (parameters allowed) to a kind.
func KindForContentType(ct string) (media.Kind, bool) {
	k, ok := contentTypes[normalizeContentType(ct)]
	return k, ok
}

// Excluded reports whether a locator matches the exclusion set.
func Excluded(locator string) bool {
	for _, re := range exclusions {
		if re.MatchString(locator) {
			return true
		}
	}
	return false
}
