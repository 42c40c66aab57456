// Package sheets converts shareable Google Sheets URLs into CSV export URLs.
package sheets

import (
	"fmt"
	"strings"

	"sheet-downloader/internal/domain"
)

const (
	docSegment = "/d/"
	gidParam   = "gid="
)

// ExportURL turns
//
//	https://docs.google.com/spreadsheets/d/<ID>/edit?gid=0#gid=<GID>
//
// into
//
//	https://docs.google.com/spreadsheets/d/<ID>/export?format=csv&gid=<GID>
func ExportURL(sheetURL string) (string, error) {
	if !strings.Contains(sheetURL, docSegment) || !strings.Contains(sheetURL, gidParam) {
		return "", fmt.Errorf("%w: invalid spreadsheets url: %s", domain.ErrInvalidInput, sheetURL)
	}

	base, rest, _ := strings.Cut(sheetURL, docSegment)
	id, _, _ := strings.Cut(rest, "/")

	// gid= must occur after /d/ for the URL to name a sheet tab.
	gidIndex := strings.Index(rest, gidParam)
	if gidIndex < 0 {
		return "", fmt.Errorf("%w: invalid spreadsheets url: %s", domain.ErrInvalidInput, sheetURL)
	}
	gid := rest[gidIndex+len(gidParam):]
	if end := strings.IndexAny(gid, "&#?"); end >= 0 {
		gid = gid[:end]
	}

	return fmt.Sprintf("%s/d/%s/export?format=csv&gid=%s", base, id, gid), nil
}
