package storage

import (
	"context"
	"errors"

	"github.com/fabriqly/api/internal/platform/auth"
)

// ErrPermissionDenied is returned when the caller lacks permission to access the file.
var ErrPermissionDenied = errors.New("storage: permission denied")

// AuthorizeDownload validates whether the provided identity may access a file
// belonging to one of the workflow participants in participantUIDs.
func AuthorizeDownload(identity *auth.Identity, participantUIDs []string, allowAnonymous bool) error {
	if allowAnonymous {
		return nil
	}
	if identity == nil {
		return ErrPermissionDenied
	}
	for _, uid := range participantUIDs {
		if uid != "" && identity.UID == uid {
			return nil
		}
	}
	if identity.HasRole(auth.RoleAdmin) {
		return nil
	}
	return ErrPermissionDenied
}

// AuthorizeDownloadFromContext extracts the identity from context and validates access.
func AuthorizeDownloadFromContext(ctx context.Context, participantUIDs []string, allowAnonymous bool) (*auth.Identity, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok && !allowAnonymous {
		return nil, ErrPermissionDenied
	}
	if err := AuthorizeDownload(identity, participantUIDs, allowAnonymous); err != nil {
		return nil, err
	}
	return identity, nil
}
