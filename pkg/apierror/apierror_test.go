package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errNoAccess = errors.New("no access")

func TestAPIError_Error(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: device not found", New("NOT_FOUND", "device not found", "", http.StatusNotFound).Error())
	assert.Equal(t, "NOT_FOUND: device not found (abc)", New("NOT_FOUND", "device not found", "abc", http.StatusNotFound).Error())

	var nilErr *APIError
	assert.Empty(t, nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())
}

func TestWrap_KeepsCauseReachable(t *testing.T) {
	err := fmt.Errorf("revoke device: %w", Wrap(errNoAccess, "FORBIDDEN", "no access to this patient", "", http.StatusForbidden))

	assert.ErrorIs(t, err, errNoAccess)

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
	assert.Equal(t, http.StatusForbidden, apiErr.HTTPStatus)
}
