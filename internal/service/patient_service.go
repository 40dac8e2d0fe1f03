package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
)

const dateLayout = "2006-01-02"

type CreatePatientInput struct {
	FirstName   string
	LastName    string
	BirthDate   *string
	AvatarURL   *string
	ShortIntro  *string
	MaritalDate *string
}

type PatientService struct {
	patients PatientStore
	pairing  *PairingService
	tx       Transactor
	bus      event.Publisher
	now      Clock
}

func NewPatientService(patients PatientStore, pairing *PairingService, tx Transactor, bus event.Publisher) *PatientService {
	if bus == nil {
		bus = event.Discard{}
	}
	return &PatientService{
		patients: patients,
		pairing:  pairing,
		tx:       tx,
		bus:      bus,
		now:      systemClock,
	}
}

func (s *PatientService) SetClock(now Clock) {
	s.now = now
}

// Create stores a patient, makes the caller its OWNER and issues the first
// pairing code, all in one transaction.
func (s *PatientService) Create(ctx context.Context, caregiverID string, input CreatePatientInput) (model.CreatePatientResponse, error) {
	birthDate, err := parseOptionalDate(input.BirthDate, "birth_date")
	if err != nil {
		return model.CreatePatientResponse{}, err
	}
	maritalDate, err := parseOptionalDate(input.MaritalDate, "marital_date")
	if err != nil {
		return model.CreatePatientResponse{}, err
	}

	now := s.now()
	patient := model.Patient{
		ID:          uuid.NewString(),
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		BirthDate:   birthDate,
		AvatarURL:   trimOptional(input.AvatarURL),
		ShortIntro:  trimOptional(input.ShortIntro),
		MaritalDate: maritalDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var code model.PairingCode
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, patient); err != nil {
			return err
		}
		if err := s.patients.Grant(ctx, patient.ID, caregiverID, model.RelationOwner); err != nil {
			return err
		}
		created, err := s.pairing.create(ctx, patient.ID, caregiverID)
		if err != nil {
			return err
		}
		code = created
		return nil
	})
	if err != nil {
		return model.CreatePatientResponse{}, fmt.Errorf("create patient: %w", err)
	}

	s.bus.Publish(event.New(event.TypePatientCreated, caregiverID, map[string]string{
		"patient_id": patient.ID,
	}))
	s.pairing.publishCreated(code)
	return model.CreatePatientResponse{Patient: patient, PairingCode: code}, nil
}

func (s *PatientService) Get(ctx context.Context, patientID string, requestorID string) (model.Patient, error) {
	if !isID(patientID) {
		return model.Patient{}, errNotFound("patient not found", patientID)
	}

	ok, err := s.patients.HasPatientAccess(ctx, requestorID, patientID)
	if err != nil {
		return model.Patient{}, err
	}
	if !ok {
		return model.Patient{}, errForbidden("no access to this patient")
	}

	patient, err := s.patients.FindByID(ctx, patientID)
	if errors.Is(err, model.ErrPatientNotFound) {
		return model.Patient{}, errNotFound("patient not found", patientID)
	}
	return patient, err
}

func parseOptionalDate(raw *string, field string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, errBadRequest("invalid date, expected YYYY-MM-DD", field)
	}
	return &parsed, nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
