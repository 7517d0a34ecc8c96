package storage

import (
	"errors"
	"strings"

	"github.com/acrylicworks/api/internal/platform/auth"
)

// ErrDownloadDenied is returned when the caller may not fetch a customer's artwork.
var ErrDownloadDenied = errors.New("storage: artwork download denied")

// CanDownload allows the customer who uploaded the artwork and back office reviewers. Artwork is
// never public, so a missing identity is always denied.
func CanDownload(identity *auth.Identity, ownerID string) error {
	switch {
	case identity == nil:
		return ErrDownloadDenied
	case identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin):
		return nil
	case strings.TrimSpace(ownerID) != "" && identity.UID == strings.TrimSpace(ownerID):
		return nil
	default:
		return ErrDownloadDenied
	}
}
