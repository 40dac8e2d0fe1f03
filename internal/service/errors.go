package service

import (
	"net/http"

	"github.com/google/uuid"

	"caregiver-hub/internal/model"
	"caregiver-hub/pkg/apierror"
)

func errUnauthorized(message string) error {
	return apierror.Wrap(model.ErrUnauthorized, "UNAUTHORIZED", message, "", http.StatusUnauthorized)
}

// errInvalidCredentials is shared by every login failure so callers cannot
// tell an unknown email from a wrong password.
func errInvalidCredentials() error {
	return apierror.Wrap(model.ErrInvalidCredentials, "UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
}

func errForbidden(message string) error {
	return apierror.Wrap(model.ErrForbidden, "FORBIDDEN", message, "", http.StatusForbidden)
}

func errNotFound(message string, details string) error {
	return apierror.New("NOT_FOUND", message, details, http.StatusNotFound)
}

func errBadRequest(message string, details string) error {
	return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", message, details, http.StatusBadRequest)
}

func errConflict(message string) error {
	return apierror.New("ALREADY_EXISTS", message, "", http.StatusConflict)
}

// isID reports whether id is a canonical UUID. Ids from request paths are
// checked before they reach a uuid column.
func isID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}
