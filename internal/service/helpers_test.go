package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
	"caregiver-hub/internal/repository/memstore"
	"caregiver-hub/internal/security"
	"caregiver-hub/pkg/apierror"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(e event.Event) {
	m.Called(e)
}

func eventOfType(typ event.Type) interface{} {
	return mock.MatchedBy(func(e event.Event) bool { return e.Type == typ })
}

type testEnv struct {
	store    *memstore.Store
	clock    *testClock
	bus      *mockPublisher
	hasher   *security.PasswordHasher
	signer   *security.TokenSigner
	ledger   *SessionLedger
	devices  *DeviceRegistry
	pairing  *PairingService
	patients *PatientService
	users    *UserService
	auth     *AuthService
}

type envOption func(deps *AuthServiceDeps)

func withoutRawDeviceID() envOption {
	return func(deps *AuthServiceDeps) { deps.AllowRawDeviceID = false }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := memstore.New()
	clock := newTestClock()
	bus := new(mockPublisher)
	bus.On("Publish", mock.Anything).Return()

	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	signer, err := security.NewTokenSigner(security.SignerConfig{
		AccessSecret:      "test-access-secret",
		RefreshSecret:     "test-refresh-secret",
		AccessTTL:         15 * time.Minute,
		PatientRefreshTTL: 30 * 24 * time.Hour,
		Now:               clock.Now,
	})
	require.NoError(t, err)

	ledger := NewSessionLedger(store.Sessions(), store, hasher, signer, 30*24*time.Hour)
	ledger.SetClock(clock.Now)
	devices := NewDeviceRegistry(store.Devices(), store.Patients(), store, bus)
	devices.SetClock(clock.Now)
	pairing := NewPairingService(store.PairingCodes(), store.Patients(), bus, 24*time.Hour)
	pairing.SetClock(clock.Now)
	patients := NewPatientService(store.Patients(), pairing, store, bus)
	patients.SetClock(clock.Now)
	users := NewUserService(store.Users(), hasher, bus)

	deps := AuthServiceDeps{
		Users:            store.Users(),
		Patients:         store.Patients(),
		Ledger:           ledger,
		Pairing:          pairing,
		Devices:          devices,
		Signer:           signer,
		Hasher:           hasher,
		Tx:               store,
		Bus:              bus,
		AllowRawDeviceID: true,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{
		store:    store,
		clock:    clock,
		bus:      bus,
		hasher:   hasher,
		signer:   signer,
		ledger:   ledger,
		devices:  devices,
		pairing:  pairing,
		patients: patients,
		users:    users,
		auth:     NewAuthService(deps),
	}
}

func (e *testEnv) registerCaregiver(t *testing.T, email string) model.AuthResponse {
	t.Helper()
	resp, err := e.auth.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "Passw0rd!",
		FirstName: "Ona",
		LastName:  "Kazlauskiene",
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return resp
}

// createPatient registers a caregiver, creates a patient they own and returns
// the caregiver id, the patient and its first pairing code.
func (e *testEnv) createPatient(t *testing.T, email string) (string, model.Patient, model.PairingCode) {
	t.Helper()
	caregiver := e.registerCaregiver(t, email)
	created, err := e.patients.Create(context.Background(), caregiver.User.ID, CreatePatientInput{
		FirstName: "Jonas",
		LastName:  "Petraitis",
	})
	require.NoError(t, err)
	return caregiver.User.ID, created.Patient, created.PairingCode
}

func deviceInfo(publicID string) model.DeviceInfo {
	return model.DeviceInfo{Platform: "android", DeviceName: "Kitchen tablet", DeviceID: publicID}
}

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
}
