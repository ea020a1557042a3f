package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedLink is returned for deep links that do not carry exactly
// three comma separated fields.
var ErrMalformedLink = errors.New("malformed deep link")

// Link is a parsed mod deep link of the form scheme://tag,modId,dlId.
type Link struct {
	Raw        string
	Tag        string
	ModID      string
	DownloadID string
}

// ParseLink parses raw into a Link. Anything before the first colon is the
// scheme and is not checked here; surrounding slashes are ignored.
func ParseLink(raw string) (Link, error) {
	_, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return Link{}, fmt.Errorf("%w: %q has no scheme", ErrMalformedLink, raw)
	}
	fields := strings.Split(strings.Trim(rest, "/"), ",")
	if len(fields) != 3 {
		return Link{}, fmt.Errorf("%w: %q has %d fields", ErrMalformedLink, raw, len(fields))
	}
	return Link{Raw: raw, Tag: fields[0], ModID: fields[1], DownloadID: fields[2]}, nil
}

// DownloadURL formats the archive location for l. template holds a single
// %s verb that receives the download id.
func (l Link) DownloadURL(template string) string {
	return fmt.Sprintf(template, l.DownloadID)
}
