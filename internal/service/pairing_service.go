package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
)

const (
	pairingCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	pairingCodeLength   = 8
	pairingCodeAttempts = 5
)

// PairingService issues and redeems single-use pairing codes. A code is
// ACTIVE until it is redeemed (USED) or its expiry passes (EXPIRED).
type PairingService struct {
	codes  PairingCodeStore
	access AccessChecker
	bus    event.Publisher
	ttl    time.Duration
	now    Clock
	source func() (string, error)
}

func NewPairingService(codes PairingCodeStore, access AccessChecker, bus event.Publisher, ttl time.Duration) *PairingService {
	if bus == nil {
		bus = event.Discard{}
	}
	return &PairingService{
		codes:  codes,
		access: access,
		bus:    bus,
		ttl:    ttl,
		now:    systemClock,
		source: generatePairingCode,
	}
}

func (s *PairingService) SetClock(now Clock) {
	s.now = now
}

// SetCodeSource replaces the random code generator.
func (s *PairingService) SetCodeSource(source func() (string, error)) {
	s.source = source
}

func (s *PairingService) Generate(ctx context.Context, patientID string, creatorID string) (model.PairingCode, error) {
	if err := s.requireAccess(ctx, creatorID, patientID); err != nil {
		return model.PairingCode{}, err
	}
	if !isID(patientID) {
		return model.PairingCode{}, errNotFound("patient not found", patientID)
	}

	pairing, err := s.create(ctx, patientID, creatorID)
	if err != nil {
		return model.PairingCode{}, err
	}
	s.publishCreated(pairing)
	return pairing, nil
}

// create skips the access check and publishes nothing. PatientService uses it
// for the first code, issued in the same transaction that grants the creator
// ownership, and publishes once that transaction commits.
func (s *PairingService) create(ctx context.Context, patientID string, creatorID string) (model.PairingCode, error) {
	for attempt := 1; attempt <= pairingCodeAttempts; attempt++ {
		code, err := s.source()
		if err != nil {
			return model.PairingCode{}, err
		}

		now := s.now()
		pairing := model.PairingCode{
			ID:        uuid.NewString(),
			PatientID: patientID,
			Code:      code,
			ExpiresAt: now.Add(s.ttl),
			CreatedBy: creatorID,
			CreatedAt: now,
		}

		err = s.codes.Create(ctx, pairing)
		if errors.Is(err, model.ErrPairingCodeCollision) {
			slog.Warn("pairing code collision, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return model.PairingCode{}, err
		}
		return pairing, nil
	}

	return model.PairingCode{}, fmt.Errorf("generate pairing code: %w", model.ErrPairingCodeCollision)
}

func (s *PairingService) publishCreated(pairing model.PairingCode) {
	s.bus.Publish(event.New(event.TypePairingCodeCreated, pairing.CreatedBy, map[string]string{
		"pairing_code_id": pairing.ID,
		"patient_id":      pairing.PatientID,
	}))
}

// Redeem consumes an active code. Only one of any number of concurrent
// redemptions of the same code succeeds.
func (s *PairingService) Redeem(ctx context.Context, raw string) (model.PairingCode, error) {
	code := NormalizePairingCode(raw)
	if len(code) != pairingCodeLength {
		return model.PairingCode{}, model.ErrInvalidPairingCode
	}
	return s.codes.Redeem(ctx, code, s.now())
}

func (s *PairingService) ListActive(ctx context.Context, patientID string, requestorID string) ([]model.PairingCode, error) {
	if !isID(patientID) {
		return nil, errNotFound("patient not found", patientID)
	}
	if err := s.requireAccess(ctx, requestorID, patientID); err != nil {
		return nil, err
	}
	return s.codes.ListActive(ctx, patientID, s.now())
}

func (s *PairingService) Revoke(ctx context.Context, codeID string, requestorID string) error {
	if !isID(codeID) {
		return errNotFound("pairing code not found", codeID)
	}

	pairing, err := s.codes.FindByID(ctx, codeID)
	if errors.Is(err, model.ErrPairingCodeNotFound) {
		return errNotFound("pairing code not found", codeID)
	}
	if err != nil {
		return err
	}

	if err := s.requireAccess(ctx, requestorID, pairing.PatientID); err != nil {
		return err
	}

	if err := s.codes.Delete(ctx, codeID); err != nil {
		if errors.Is(err, model.ErrPairingCodeNotFound) {
			return errNotFound("pairing code not found", codeID)
		}
		return err
	}

	s.bus.Publish(event.New(event.TypePairingCodeRevoked, requestorID, map[string]string{
		"pairing_code_id": codeID,
		"patient_id":      pairing.PatientID,
	}))
	return nil
}

func (s *PairingService) requireAccess(ctx context.Context, caregiverID string, patientID string) error {
	ok, err := s.access.HasPatientAccess(ctx, caregiverID, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden("no access to this patient")
	}
	return nil
}

// NormalizePairingCode trims, upper-cases and removes one optional dash, so
// "abcd-1234" and "ABCD1234" name the same code.
func NormalizePairingCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	return strings.Replace(code, "-", "", 1)
}

func generatePairingCode() (string, error) {
	max := big.NewInt(int64(len(pairingCodeAlphabet)))
	buf := make([]byte, pairingCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate pairing code: %w", err)
		}
		buf[i] = pairingCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
