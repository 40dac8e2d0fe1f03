//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"caregiver-hub/internal/app"
	"caregiver-hub/internal/config"
	"caregiver-hub/internal/database"
)

type testServer struct {
	*httptest.Server
	db         *database.DB
	components *app.Components
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	DeviceID     string `json:"device_id"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

// newServer wires the real application against DATABASE_URL on a clean
// schema. Tests that use it must not run in parallel.
func newServer(t *testing.T) *testServer {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, url, database.Options{MaxConns: 10, MinConns: 1, ConnectRetries: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE audit_events, devices, pairing_codes, user_sessions, patient_caregivers, patients, users CASCADE`)
	require.NoError(t, err)

	cfg := &config.Config{
		RequestTimeout:    10 * time.Second,
		OpenAPISpecPath:   "../../docs/openapi.yaml",
		JWTAccessSecret:   "integration-access",
		JWTRefreshSecret:  "integration-refresh",
		JWTAccessTTL:      15 * time.Minute,
		SessionTTL:        30 * 24 * time.Hour,
		PatientRefreshTTL: 30 * 24 * time.Hour,
		PairingCodeTTL:    24 * time.Hour,
		BcryptCost:        bcrypt.MinCost,
		RefreshCookieName: "refresh_token",
		RefreshCookiePath: "/api/v1/auth",
		CORSOrigins:       []string{"*"},

		DeviceLoginAllowRaw: true,
	}

	components, err := app.Build(cfg, db)
	require.NoError(t, err)

	server := httptest.NewServer(components.Handler)
	t.Cleanup(server.Close)

	return &testServer{Server: server, db: db, components: components}
}

func (s *testServer) call(t *testing.T, method string, path string, token string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) register(t *testing.T, email string) tokens {
	t.Helper()
	status, env := s.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":      email,
		"password":   "Passw0rd!",
		"first_name": "Ona",
		"last_name":  "Kazlauskiene",
	})
	require.Equal(t, http.StatusCreated, status)
	return data[tokens](t, env)
}

func data[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
