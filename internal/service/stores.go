package service

import (
	"context"
	"time"

	"caregiver-hub/internal/model"
)

// Transactor runs fn so that every store call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	List(ctx context.Context) ([]model.User, error)
}

type PatientStore interface {
	Create(ctx context.Context, p model.Patient) error
	FindByID(ctx context.Context, id string) (model.Patient, error)
	Grant(ctx context.Context, patientID string, caregiverID string, relation model.CaregiverRelation) error
	AccessChecker
}

// AccessChecker answers "may this caregiver act on this patient".
type AccessChecker interface {
	HasPatientAccess(ctx context.Context, caregiverID string, patientID string) (bool, error)
}

type SessionStore interface {
	Create(ctx context.Context, s model.Session) error
	FindByID(ctx context.Context, id string) (model.Session, error)
	UpdateHash(ctx context.Context, id string, hash string) error
	SwapHash(ctx context.Context, id string, oldHash string, newHash string) error
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]model.Session, error)
	Delete(ctx context.Context, id string, userID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type DeviceStore interface {
	FindOrCreate(ctx context.Context, d model.Device) (model.Device, error)
	FindByID(ctx context.Context, id string) (model.Device, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) (time.Time, error)
	SetPrimary(ctx context.Context, patientID string, deviceID string) error
	ClearPrimary(ctx context.Context, deviceID string) error
	Rename(ctx context.Context, deviceID string, name string) error
	Delete(ctx context.Context, deviceID string) error
	ListByPatient(ctx context.Context, patientID string) ([]model.Device, error)
}

type PairingCodeStore interface {
	Create(ctx context.Context, c model.PairingCode) error
	Redeem(ctx context.Context, code string, now time.Time) (model.PairingCode, error)
	FindByID(ctx context.Context, id string) (model.PairingCode, error)
	ListActive(ctx context.Context, patientID string, now time.Time) ([]model.PairingCode, error)
	Delete(ctx context.Context, id string) error
}

// Clock is swapped in tests.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

type AuditStore interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, int, error)
}
