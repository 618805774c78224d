// Package hls parses HLS playlists, selects a variant and resolves segment
// references to absolute locators.
package hls

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes master from media playlists.
type Kind string

const (
	KindMaster Kind = "master"
	KindMedia  Kind = "media"
)

const streamInfTag = "#EXT-X-STREAM-INF"

var (
	// ErrEmptyPlaylist is returned for a media playlist without segments.
	ErrEmptyPlaylist = errors.New("hls: empty playlist")
	// ErrNoVariants is returned for a master playlist without usable variants.
	ErrNoVariants = errors.New("hls: master playlist has no variants")
)

// Variant is one entry of a master playlist.
type Variant struct {
	Bandwidth  int64
	Resolution string
	Codecs     string
	Locator    string
}

// Segment is one entry of a media playlist.
type Segment struct {
	Locator  string
	Duration time.Duration
}

// Document is a parsed playlist. Variants is set for masters, Segments for
// media playlists; both keep file order.
type Document struct {
	Kind     Kind
	Base     string
	Variants []Variant
	Segments []Segment

	// TotalDuration sums the EXTINF durations that were present.
	TotalDuration time.Duration
	// IsVOD is set by #EXT-X-ENDLIST or #EXT-X-PLAYLIST-TYPE:VOD.
	IsVOD bool
}

// Locators returns the absolute segment locators in playback order.
func (d *Document) Locators() []string {
	out := make([]string, len(d.Segments))
	for i, s := range d.Segments {
		out[i] = s.Locator
	}
	return out
}

// Parse reads playlist text and resolves every reference against base.
func Parse(text, base string) (*Document, error) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("hls: invalid base locator %q: %w", base, err)
	}

	doc := &Document{Kind: KindMedia, Base: base}
	if strings.Contains(text, streamInfTag) {
		doc.Kind = KindMaster
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		pendingVariant *Variant
		nextDuration   time.Duration
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			switch {
			case isStreamInf(line):
				v := parseStreamInf(line)
				pendingVariant = &v
			case strings.HasPrefix(line, "#EXTINF:"):
				nextDuration = parseExtInf(line)
			case line == "#EXT-X-ENDLIST", strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:VOD"):
				doc.IsVOD = true
			}
			continue
		}

		ref, err := resolve(baseURL, line)
		if err != nil {
			return nil, err
		}

		if doc.Kind == KindMaster {
			// Only the line directly following a marker names a variant.
			if pendingVariant != nil {
				pendingVariant.Locator = ref
				doc.Variants = append(doc.Variants, *pendingVariant)
				pendingVariant = nil
			}
			continue
		}

		doc.Segments = append(doc.Segments, Segment{Locator: ref, Duration: nextDuration})
		doc.TotalDuration += nextDuration
		nextDuration = 0
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hls: read playlist: %w", err)
	}

	switch doc.Kind {
	case KindMaster:
		if len(doc.Variants) == 0 {
			return nil, ErrNoVariants
		}
	default:
		if len(doc.Segments) == 0 {
			return nil, ErrEmptyPlaylist
		}
	}
	return doc, nil
}

// SelectVariant picks the variant with the strictly largest bandwidth; the
// first one seen wins ties.
func SelectVariant(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

func isStreamInf(line string) bool {
	return line == streamInfTag || strings.HasPrefix(line, streamInfTag+":")
}

func parseStreamInf(line string) Variant {
	attrs := parseAttributes(strings.TrimPrefix(strings.TrimPrefix(line, streamInfTag), ":"))
	v := Variant{Resolution: attrs["RESOLUTION"], Codecs: attrs["CODECS"]}
	if bw, err := strconv.ParseInt(attrs["BANDWIDTH"], 10, 64); err == nil && bw > 0 {
		v.Bandwidth = bw
	}
	return v
}

// parseExtInf reads "#EXTINF:<seconds>,<title>". Malformed durations count
// as zero.
func parseExtInf(line string) time.Duration {
	durPart := strings.TrimPrefix(line, "#EXTINF:")
	if idx := strings.Index(durPart, ","); idx != -1 {
		durPart = durPart[:idx]
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(durPart), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// parseAttributes splits an attribute list, honouring quoted values that
// contain commas (CODECS="avc1,mp4a").
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	for len(list) > 0 {
		eq := strings.IndexByte(list, '=')
		if eq < 0 {
			break
		}
		key := strings.ToUpper(strings.TrimSpace(list[:eq]))
		list = list[eq+1:]

		var val string
		if strings.HasPrefix(list, `"`) {
			end := strings.IndexByte(list[1:], '"')
			if end < 0 {
				val, list = list[1:], ""
			} else {
				val, list = list[1:end+1], list[end+2:]
			}
			if i := strings.IndexByte(list, ','); i >= 0 {
				list = list[i+1:]
			} else {
				list = ""
			}
		} else if i := strings.IndexByte(list, ','); i >= 0 {
			val, list = list[:i], list[i+1:]
		} else {
			val, list = list, ""
		}
		attrs[key] = strings.TrimSpace(val)
	}
	return attrs
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("hls: invalid reference %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}
