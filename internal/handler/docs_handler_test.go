package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocsHandler_ServesSpecFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.0.3\n"), 0o600))

	rec := httptest.NewRecorder()
	NewDocsHandler(" "+path+" ").OpenAPI(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "openapi: 3.0.3\n", rec.Body.String())
}

func TestDocsHandler_MissingSpecIsJSONError(t *testing.T) {
	for name, path := range map[string]string{
		"unset":   "",
		"missing": filepath.Join(t.TempDir(), "nope.yaml"),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewDocsHandler(path).OpenAPI(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

			assert.Equal(t, http.StatusNotFound, rec.Code)
			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, "DOCS_UNAVAILABLE", body.Error.Code)
		})
	}
}

func TestDocsHandler_SwaggerPagePointsAtSpec(t *testing.T) {
	rec := httptest.NewRecorder()
	NewDocsHandler("").SwaggerUI(rec, httptest.NewRequest(http.MethodGet, "/swagger", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "connect-src 'self';")
	assert.Contains(t, rec.Body.String(), "<title>Caregiver Hub Auth API</title>")
	assert.Contains(t, rec.Body.String(), "openapi.yaml")
	assert.Contains(t, rec.Body.String(), "persistAuthorization: true")
}
