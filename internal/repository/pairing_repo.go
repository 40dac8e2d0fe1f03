package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"caregiver-hub/internal/database"
	"caregiver-hub/internal/model"
)

const pairingColumns = `id, patient_id, code, expires_at, used_at, created_by, created_at`

type PairingCodeRepository struct {
	db *database.DB
}

func NewPairingCodeRepository(db *database.DB) *PairingCodeRepository {
	return &PairingCodeRepository{db: db}
}

// Create runs the insert under its own savepoint so a code collision inside a
// caller's transaction can be retried.
func (r *PairingCodeRepository) Create(ctx context.Context, c model.PairingCode) error {
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.db.Conn(ctx).Exec(ctx,
			`INSERT INTO pairing_codes (id, patient_id, code, expires_at, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.PatientID, c.Code, c.ExpiresAt, c.CreatedBy, c.CreatedAt)
		return err
	})
	if database.IsUniqueViolation(err, "pairing_codes_active_code_key") {
		return model.ErrPairingCodeCollision
	}
	if err != nil {
		return fmt.Errorf("create pairing code: %w", err)
	}
	return nil
}

// Redeem consumes an active code in one conditional update. Of any number of
// concurrent callers presenting the same code, exactly one gets the row back.
func (r *PairingCodeRepository) Redeem(ctx context.Context, code string, now time.Time) (model.PairingCode, error) {
	c, err := scanPairingCode(r.db.Conn(ctx).QueryRow(ctx,
		`UPDATE pairing_codes SET used_at = $2
		 WHERE code = $1 AND used_at IS NULL AND expires_at > $2
		 RETURNING `+pairingColumns, code, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PairingCode{}, model.ErrInvalidPairingCode
	}
	if err != nil {
		return model.PairingCode{}, fmt.Errorf("redeem pairing code: %w", err)
	}
	return c, nil
}

func (r *PairingCodeRepository) FindByID(ctx context.Context, id string) (model.PairingCode, error) {
	c, err := scanPairingCode(r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+pairingColumns+` FROM pairing_codes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PairingCode{}, model.ErrPairingCodeNotFound
	}
	if err != nil {
		return model.PairingCode{}, fmt.Errorf("find pairing code: %w", err)
	}
	return c, nil
}

func (r *PairingCodeRepository) ListActive(ctx context.Context, patientID string, now time.Time) ([]model.PairingCode, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT `+pairingColumns+` FROM pairing_codes
		 WHERE patient_id = $1 AND used_at IS NULL AND expires_at > $2
		 ORDER BY created_at DESC`, patientID, now)
	if err != nil {
		return nil, fmt.Errorf("list pairing codes: %w", err)
	}
	defer rows.Close()

	codes := make([]model.PairingCode, 0)
	for rows.Next() {
		c, err := scanPairingCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pairing code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *PairingCodeRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM pairing_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pairing code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPairingCodeNotFound
	}
	return nil
}

func scanPairingCode(row pgx.Row) (model.PairingCode, error) {
	var c model.PairingCode
	err := row.Scan(&c.ID, &c.PatientID, &c.Code, &c.ExpiresAt, &c.UsedAt, &c.CreatedBy, &c.CreatedAt)
	return c, err
}
