package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caregiver-hub/internal/database"
	"caregiver-hub/internal/model"
)

type PatientRepository struct {
	db *database.DB
}

func NewPatientRepository(db *database.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) Create(ctx context.Context, p model.Patient) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO patients (id, first_name, last_name, birth_date, avatar_url, short_intro, marital_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.AvatarURL, p.ShortIntro, p.MaritalDate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *PatientRepository) FindByID(ctx context.Context, id string) (model.Patient, error) {
	var p model.Patient
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT id, first_name, last_name, birth_date, avatar_url, short_intro, marital_date, created_at, updated_at
		 FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.AvatarURL, &p.ShortIntro, &p.MaritalDate, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Patient{}, model.ErrPatientNotFound
	}
	if err != nil {
		return model.Patient{}, fmt.Errorf("find patient: %w", err)
	}
	return p, nil
}

func (r *PatientRepository) Grant(ctx context.Context, patientID string, caregiverID string, relation model.CaregiverRelation) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO patient_caregivers (patient_id, caregiver_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (patient_id, caregiver_id) DO UPDATE SET role = EXCLUDED.role`,
		patientID, caregiverID, string(relation))
	if err != nil {
		return fmt.Errorf("grant patient access: %w", err)
	}
	return nil
}

// HasPatientAccess is the relation predicate the rest of the product owns:
// any caregiver relation to the patient counts.
func (r *PatientRepository) HasPatientAccess(ctx context.Context, caregiverID string, patientID string) (bool, error) {
	var exists bool
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patient_caregivers WHERE patient_id = $1 AND caregiver_id = $2)`,
		patientID, caregiverID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient access: %w", err)
	}
	return exists, nil
}
