// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package classify

import (
	"mime"
	"net/url"
	"regexp"
	"strings"
)

var (
	extendedFilename = regexp.MustCompile(`(?i)filename\*=(?:UTF-8''|[^']*'[^']*')([^;]+)`)
	plainFilename    = regexp.MustCompile(`(?i)filename[^;=\n]*=("[^"]*"|'[^']*'|[^;\n]*)`)
)

// FilenameFromDisposition extracts the filename from a Content-Disposition
// value. The RFC 5987 filename* form wins over the plain one. Returns "" when
// no filename is present.
func FilenameFromDisposition(disposition string) string {
	disposition = strings.TrimSpace(disposition)
	if disposition == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := strings.TrimSpace(strings.Trim(params["filename"], `"'`)); name != "" {
			return name
		}
	}

	// Servers routinely send values mime rejects, e.g. unquoted spaces.
	if m := extendedFilename.FindStringSubmatch(disposition); m != nil {
		if name, err := url.PathUnescape(strings.TrimSpace(m[1])); err == nil && name != "" {
			return name
		}
	}
	if m := plainFilename.FindStringSubmatch(disposition); m != nil {
		return strings.TrimSpace(strings.Trim(m[1], `"'`))
	}
	return ""
}
