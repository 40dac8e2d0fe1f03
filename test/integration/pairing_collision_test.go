//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregiver-hub/internal/repository"
	"caregiver-hub/internal/service"
)

// scriptedCodes hands out codes in order and repeats the last one.
func scriptedCodes(codes ...string) func() (string, error) {
	var (
		mu   sync.Mutex
		next int
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[next]
		if next < len(codes)-1 {
			next++
		}
		return code, nil
	}
}

func TestPatientCreateRetriesCodeCollisionInsideTransaction(t *testing.T) {
	s := newServer(t)
	owner := s.register(t, "owner@example.com")
	ctx := context.Background()

	patientRepo := repository.NewPatientRepository(s.db)
	pairing := service.NewPairingService(repository.NewPairingCodeRepository(s.db), patientRepo, nil, 24*time.Hour)
	pairing.SetCodeSource(scriptedCodes("AAAA1111", "AAAA1111", "BBBB2222"))
	patients := service.NewPatientService(patientRepo, pairing, s.db, nil)

	first, err := patients.Create(ctx, owner.User.ID, service.CreatePatientInput{FirstName: "Jonas", LastName: "Petraitis"})
	require.NoError(t, err)
	assert.Equal(t, "AAAA1111", first.PairingCode.Code)

	second, err := patients.Create(ctx, owner.User.ID, service.CreatePatientInput{FirstName: "Rasa", LastName: "Petraitiene"})
	require.NoError(t, err, "the clash rolls back to a savepoint instead of aborting the transaction")
	assert.Equal(t, "BBBB2222", second.PairingCode.Code)
	assert.Equal(t, second.Patient.ID, second.PairingCode.PatientID)

	var codes int
	require.NoError(t, s.db.Pool.QueryRow(ctx, `SELECT count(*) FROM pairing_codes WHERE patient_id = $1`, second.Patient.ID).Scan(&codes))
	assert.Equal(t, 1, codes)

	ok, err := patientRepo.HasPatientAccess(ctx, owner.User.ID, second.Patient.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
