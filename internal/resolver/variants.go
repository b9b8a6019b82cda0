package resolver

import (
	"net/url"
	"strings"
)

// Variant labels, in probe order.
const (
	LabelZFile      = "zfile"
	LabelWFileType1 = "wfile_type1"
	LabelWFileType2 = "wfile_type2"
)

// Variant is one guessed endpoint for a file.
type Variant struct {
	Label string
	URL   string
}

// Links maps every variant label to the link found there, or nil.
type Links map[string]*string

// VariantURLs builds the endpoints for id under origin. id is inserted
// verbatim; an empty id still yields three (useless) URLs.
func VariantURLs(origin, id string) []Variant {
	origin = strings.TrimRight(origin, "/")
	return []Variant{
		{Label: LabelZFile, URL: origin + "/zfile/" + id},
		{Label: LabelWFileType1, URL: origin + "/wfile/" + id + "?type=1"},
		{Label: LabelWFileType2, URL: origin + "/wfile/" + id + "?type=2"},
	}
}

// FileID returns the last non-empty path segment of raw.
func FileID(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return lastSegment(u.Path)
	}
	return lastSegment(raw)
}

func lastSegment(p string) string {
	parts := strings.Split(p, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}
