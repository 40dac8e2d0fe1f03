package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/handler"
	"caregiver-hub/internal/middleware"
	"caregiver-hub/internal/repository/memstore"
	"caregiver-hub/internal/security"
	"caregiver-hub/internal/service"
	"caregiver-hub/internal/validation"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

type testServer struct {
	handler http.Handler
	users   *service.UserService
	audit   *service.AuditService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memstore.New()
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	signer, err := security.NewTokenSigner(security.SignerConfig{
		AccessSecret:      "router-access",
		RefreshSecret:     "router-refresh",
		AccessTTL:         15 * time.Minute,
		PatientRefreshTTL: 30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	ledger := service.NewSessionLedger(store.Sessions(), store, hasher, signer, 30*24*time.Hour)
	devices := service.NewDeviceRegistry(store.Devices(), store.Patients(), store, nil)
	pairing := service.NewPairingService(store.PairingCodes(), store.Patients(), nil, 24*time.Hour)
	patients := service.NewPatientService(store.Patients(), pairing, store, nil)
	users := service.NewUserService(store.Users(), hasher, nil)
	audit := service.NewAuditService(store.Audit())
	auth := service.NewAuthService(service.AuthServiceDeps{
		Users:            store.Users(),
		Patients:         store.Patients(),
		Ledger:           ledger,
		Pairing:          pairing,
		Devices:          devices,
		Signer:           signer,
		Hasher:           hasher,
		Tx:               store,
		AllowRawDeviceID: true,
	})

	v := validation.New()
	h := New(Options{RequestTimeout: 5 * time.Second}, middleware.NewAuthMiddleware(auth), Handlers{
		Auth:    handler.NewAuthHandler(auth, ledger, v, handler.CookieConfig{Secure: true}),
		Patient: handler.NewPatientHandler(patients, pairing, v),
		Device:  handler.NewDeviceHandler(devices, v),
		User:    handler.NewUserHandler(users, v),
		Audit:   handler.NewAuditHandler(audit),
		Health:  handler.NewHealthHandler(nil),
	})

	return &testServer{handler: h, users: users, audit: audit}
}

type request struct {
	method string
	path   string
	body   any
	token  string
	cookie *http.Cookie
}

func (s *testServer) do(t *testing.T, req request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}

	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

type authData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	DeviceID     string `json:"device_id"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func (s *testServer) register(t *testing.T, email string) authData {
	t.Helper()
	w, env := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{
		"email":      email,
		"password":   "Passw0rd!",
		"first_name": "Ona",
		"last_name":  "Kazlauskiene",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeData[authData](t, env)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRegisterSetsRefreshCookie(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{
		"email":      "owner@example.com",
		"password":   "Passw0rd!",
		"first_name": "Ona",
		"last_name":  "Kazlauskiene",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)

	data := decodeData[authData](t, env)
	assert.Equal(t, "CAREGIVER", data.User.Role)

	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, data.RefreshToken, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, "/api/v1/auth", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{
		"email":      "owner@example.com",
		"password":   "weakpassword",
		"first_name": "Ona",
		"last_name":  "Kazlauskiene",
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "password")

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: "not an object"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestLoginMeRefreshLogout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "owner@example.com")

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"email": "owner@example.com", "password": "nope",
	}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"email": "Owner@Example.com", "password": "Passw0rd!",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decodeData[authData](t, env)

	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: login.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeData[struct {
		Kind string `json:"kind"`
	}](t, env)
	assert.Equal(t, "user", me.Kind)

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/refresh", cookie: &http.Cookie{Name: "refresh_token", Value: login.RefreshToken}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refreshed := decodeData[authData](t, env)
	assert.Equal(t, login.SessionID, refreshed.SessionID)
	require.NotNil(t, refreshCookie(w))
	assert.Equal(t, refreshed.RefreshToken, refreshCookie(w).Value)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refresh_token": login.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "rotated token is dead")

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/sessions", token: login.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decodeData[[]map[string]any](t, env)
	assert.Len(t, sessions, 2)
	for _, session := range sessions {
		assert.NotContains(t, session, "refresh_token_hash")
	}

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/logout", token: login.AccessToken, body: map[string]string{"refresh_token": refreshed.RefreshToken}})
	require.Equal(t, http.StatusOK, w.Code)
	cleared := refreshCookie(w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refresh_token": refreshed.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPatientPairingFlow(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "owner@example.com")
	stranger := s.register(t, "stranger@example.com")

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/v1/patients", token: owner.AccessToken, body: map[string]any{
		"first_name": "Jonas",
		"last_name":  "Petraitis",
		"birth_date": "1941-03-12",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeData[struct {
		Patient struct {
			ID string `json:"id"`
		} `json:"patient"`
		PairingCode struct {
			Code string `json:"code"`
		} `json:"pairing_code"`
	}](t, env)
	patientID := created.Patient.ID

	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/patients/" + patientID, token: stranger.AccessToken})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/patient-login", body: map[string]any{
		"pairing_code": created.PairingCode.Code[:4] + "-" + created.PairingCode.Code[4:],
		"device_info":  map[string]string{"platform": "android", "device_name": "Kitchen tablet", "device_id": "tablet-1"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patient := decodeData[authData](t, env)
	assert.NotEmpty(t, patient.DeviceID)

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: patient.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"kind":"patient"`)

	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/patients/" + patientID, token: patient.AccessToken})
	assert.Equal(t, http.StatusForbidden, w.Code, "patient tokens cannot use caregiver routes")

	w, env = s.do(t, request{method: http.MethodPut, path: "/api/v1/devices/" + patient.DeviceID, token: owner.AccessToken, body: map[string]any{
		"device_name": "Bedroom tablet",
		"is_primary":  true,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"is_primary":true`)

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/v1/patients/" + patientID + "/devices", token: owner.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "Bedroom tablet")

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/device-login", body: map[string]string{"device_token": patient.DeviceID}})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/patient-refresh", body: map[string]string{"refresh_token": patient.RefreshToken}})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, request{method: http.MethodDelete, path: "/api/v1/devices/" + patient.DeviceID, token: owner.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/device-login", body: map[string]string{"device_token": patient.DeviceID}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/patient-login", body: map[string]any{
		"pairing_code": created.PairingCode.Code,
		"device_info":  map[string]string{"platform": "android", "device_name": "Other", "device_id": "tablet-2"},
	}})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "pairing codes are single use")
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	caregiver := s.register(t, "owner@example.com")

	w, env := s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/users", token: caregiver.AccessToken})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	require.NoError(t, s.users.SeedAdmin(context.Background(), "admin@example.com", "Adm1n!pass"))
	w, env = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"email": "admin@example.com", "password": "Adm1n!pass",
	}})
	require.Equal(t, http.StatusOK, w.Code)
	admin := decodeData[authData](t, env)

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/v1/admin/users", token: admin.AccessToken, body: map[string]string{
		"email":      "nurse@example.com",
		"password":   "Passw0rd!",
		"first_name": "Rasa",
		"last_name":  "Jankauskiene",
		"role":       "CAREGIVER",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/users", token: admin.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	users := decodeData[[]map[string]any](t, env)
	assert.Len(t, users, 3)
	for _, u := range users {
		assert.NotContains(t, u, "password_hash")
	}

	require.NoError(t, s.audit.Record(context.Background(), event.New(event.TypeUserCreated, "admin-id", map[string]string{"email": "nurse@example.com"})))

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/audit?type=user.created&limit=10", token: admin.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeData[[]map[string]any](t, env)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-id", entries[0]["actor_id"])

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/audit?from=yesterday", token: admin.AccessToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/audit", token: caregiver.AccessToken})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
