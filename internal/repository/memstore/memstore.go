// Package memstore keeps every repository contract in process memory. It backs
// the service and handler tests and mirrors the Postgres repositories'
// constraints: unique emails, one active row per pairing code, one device per
// (patient, public id) and at most one primary device per patient.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"caregiver-hub/internal/model"
)

type accessKey struct {
	patientID   string
	caregiverID string
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users    map[string]model.User
	patients map[string]model.Patient
	access   map[accessKey]model.CaregiverRelation
	sessions map[string]model.Session
	devices  map[string]model.Device
	codes    map[string]model.PairingCode

	// audit is append-only and outside transaction snapshots.
	audit []model.AuditEntry
}

func New() *Store {
	return &Store{
		users:    map[string]model.User{},
		patients: map[string]model.Patient{},
		access:   map[accessKey]model.CaregiverRelation{},
		sessions: map[string]model.Session{},
		devices:  map[string]model.Device{},
		codes:    map[string]model.PairingCode{},
	}
}

// Views over the shared state, one per repository contract.
type (
	Users        struct{ *Store }
	Patients     struct{ *Store }
	Sessions     struct{ *Store }
	Devices      struct{ *Store }
	PairingCodes struct{ *Store }
	Audit        struct{ *Store }
)

func (s *Store) Users() Users               { return Users{s} }
func (s *Store) Patients() Patients         { return Patients{s} }
func (s *Store) Sessions() Sessions         { return Sessions{s} }
func (s *Store) Devices() Devices           { return Devices{s} }
func (s *Store) PairingCodes() PairingCodes { return PairingCodes{s} }
func (s *Store) Audit() Audit               { return Audit{s} }

type txKey struct{}

// WithinTx serialises transactions and restores the previous state when fn
// fails. Writes made outside a transaction while one is running are lost on
// rollback, which the tests never rely on.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type state struct {
	users    map[string]model.User
	patients map[string]model.Patient
	access   map[accessKey]model.CaregiverRelation
	sessions map[string]model.Session
	devices  map[string]model.Device
	codes    map[string]model.PairingCode
}

func (s *Store) snapshot() state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return state{
		users:    cloneMap(s.users),
		patients: cloneMap(s.patients),
		access:   cloneMap(s.access),
		sessions: cloneMap(s.sessions),
		devices:  cloneMap(s.devices),
		codes:    cloneMap(s.codes),
	}
}

func (s *Store) restore(st state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = st.users
	s.patients = st.patients
	s.access = st.access
	s.sessions = st.sessions
	s.devices = st.devices
	s.codes = st.codes
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Users

func (s Users) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s Users) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if strings.ToLower(u.Email) == needle {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s Users) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.ErrUserAlreadyExists
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s Users) List(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

// Patients and caregiver access

func (s Patients) Create(_ context.Context, p model.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
	return nil
}

func (s Patients) FindByID(_ context.Context, id string) (model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return model.Patient{}, model.ErrPatientNotFound
	}
	return p, nil
}

func (s Patients) Grant(_ context.Context, patientID string, caregiverID string, relation model.CaregiverRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[patientID]; !ok {
		return model.ErrPatientNotFound
	}
	s.access[accessKey{patientID: patientID, caregiverID: caregiverID}] = relation
	return nil
}

func (s Patients) HasPatientAccess(_ context.Context, caregiverID string, patientID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.access[accessKey{patientID: patientID, caregiverID: caregiverID}]
	return ok, nil
}

// Sessions

func (s Sessions) Create(_ context.Context, session model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s Sessions) FindByID(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	return session, nil
}

func (s Sessions) UpdateHash(_ context.Context, id string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	session.RefreshTokenHash = hash
	s.sessions[id] = session
	return nil
}

func (s Sessions) SwapHash(_ context.Context, id string, oldHash string, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.RefreshTokenHash != oldHash {
		return model.ErrSessionNotFound
	}
	session.RefreshTokenHash = newHash
	s.sessions[id] = session
	return nil
}

func (s Sessions) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]model.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID && !session.ExpiredAt(now) {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

func (s Sessions) Delete(_ context.Context, id string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.UserID != userID {
		return model.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s Sessions) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s Sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.sessions {
		if session.ExpiredAt(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Devices

func (s Devices) FindOrCreate(_ context.Context, d model.Device) (model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.devices {
		if existing.PatientID == d.PatientID && existing.DevicePublicID == d.DevicePublicID {
			return existing, nil
		}
	}
	d.IsPrimary = false
	s.devices[d.ID] = d
	return d, nil
}

func (s Devices) FindByID(_ context.Context, id string) (model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return model.Device{}, model.ErrDeviceNotFound
	}
	return d, nil
}

func (s Devices) TouchLastSeen(_ context.Context, id string, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return time.Time{}, model.ErrDeviceNotFound
	}
	if d.LastSeenAt != nil && !at.After(*d.LastSeenAt) {
		at = d.LastSeenAt.Add(time.Microsecond)
	}
	d.LastSeenAt = &at
	s.devices[id] = d
	return at, nil
}

func (s Devices) SetPrimary(_ context.Context, patientID string, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.devices[deviceID]
	if !ok || target.PatientID != patientID {
		return model.ErrDeviceNotFound
	}
	for id, d := range s.devices {
		if d.PatientID == patientID && d.IsPrimary && id != deviceID {
			d.IsPrimary = false
			s.devices[id] = d
		}
	}
	target.IsPrimary = true
	s.devices[deviceID] = target
	return nil
}

func (s Devices) ClearPrimary(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return model.ErrDeviceNotFound
	}
	d.IsPrimary = false
	s.devices[deviceID] = d
	return nil
}

func (s Devices) Rename(_ context.Context, deviceID string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return model.ErrDeviceNotFound
	}
	d.DeviceName = name
	s.devices[deviceID] = d
	return nil
}

func (s Devices) Delete(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return model.ErrDeviceNotFound
	}
	delete(s.devices, deviceID)
	return nil
}

func (s Devices) ListByPatient(_ context.Context, patientID string) ([]model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	devices := make([]model.Device, 0)
	for _, d := range s.devices {
		if d.PatientID == patientID {
			devices = append(devices, d)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.IsPrimary != b.IsPrimary {
			return a.IsPrimary
		}
		switch {
		case a.LastSeenAt != nil && b.LastSeenAt == nil:
			return true
		case a.LastSeenAt == nil && b.LastSeenAt != nil:
			return false
		case a.LastSeenAt != nil && b.LastSeenAt != nil && !a.LastSeenAt.Equal(*b.LastSeenAt):
			return a.LastSeenAt.After(*b.LastSeenAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return devices, nil
}

// Pairing codes

func (s PairingCodes) Create(_ context.Context, c model.PairingCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.codes {
		if existing.Code == c.Code && existing.UsedAt == nil {
			return model.ErrPairingCodeCollision
		}
	}
	s.codes[c.ID] = c
	return nil
}

func (s PairingCodes) Redeem(_ context.Context, code string, now time.Time) (model.PairingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.codes {
		if c.Code == code && c.Status(now) == model.PairingActive {
			used := now
			c.UsedAt = &used
			s.codes[id] = c
			return c, nil
		}
	}
	return model.PairingCode{}, model.ErrInvalidPairingCode
}

func (s PairingCodes) FindByID(_ context.Context, id string) (model.PairingCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[id]
	if !ok {
		return model.PairingCode{}, model.ErrPairingCodeNotFound
	}
	return c, nil
}

func (s PairingCodes) ListActive(_ context.Context, patientID string, now time.Time) ([]model.PairingCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]model.PairingCode, 0)
	for _, c := range s.codes {
		if c.PatientID == patientID && c.Status(now) == model.PairingActive {
			codes = append(codes, c)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].CreatedAt.After(codes[j].CreatedAt) })
	return codes, nil
}

func (s PairingCodes) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[id]; !ok {
		return model.ErrPairingCodeNotFound
	}
	delete(s.codes, id)
	return nil
}

// Audit

func (s Audit) Append(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.audit {
		if existing.ID == entry.ID {
			return nil
		}
	}
	s.audit = append(s.audit, entry)
	return nil
}

func (s Audit) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.AuditEntry, 0)
	for _, e := range s.audit {
		if query.Type != "" && e.Type != query.Type {
			continue
		}
		if query.ActorID != "" && e.ActorID != query.ActorID {
			continue
		}
		if query.From != nil && e.OccurredAt.Before(*query.From) {
			continue
		}
		if query.To != nil && e.OccurredAt.After(*query.To) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := (query.Page - 1) * query.Limit
	if start >= total {
		return []model.AuditEntry{}, total, nil
	}
	end := start + query.Limit
	if end > total {
		end = total
	}
	return append([]model.AuditEntry(nil), matched[start:end]...), total, nil
}
