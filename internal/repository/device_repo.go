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

const deviceColumns = `id, patient_id, platform, device_public_id, device_name, is_primary, last_seen_at, created_at`

type DeviceRepository struct {
	db *database.DB
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// FindOrCreate inserts d unless a device with the same (patient, public id)
// exists, and returns whichever row is stored.
func (r *DeviceRepository) FindOrCreate(ctx context.Context, d model.Device) (model.Device, error) {
	conn := r.db.Conn(ctx)
	_, err := conn.Exec(ctx,
		`INSERT INTO devices (id, patient_id, platform, device_public_id, device_name, is_primary, created_at)
		 VALUES ($1, $2, $3, $4, $5, false, $6)
		 ON CONFLICT (patient_id, device_public_id) DO NOTHING`,
		d.ID, d.PatientID, d.Platform, d.DevicePublicID, d.DeviceName, d.CreatedAt)
	if err != nil {
		return model.Device{}, fmt.Errorf("insert device: %w", err)
	}

	stored, err := scanDevice(conn.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE patient_id = $1 AND device_public_id = $2`,
		d.PatientID, d.DevicePublicID))
	if err != nil {
		return model.Device{}, fmt.Errorf("load device: %w", err)
	}
	return stored, nil
}

func (r *DeviceRepository) FindByID(ctx context.Context, id string) (model.Device, error) {
	d, err := scanDevice(r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Device{}, model.ErrDeviceNotFound
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("find device: %w", err)
	}
	return d, nil
}

// TouchLastSeen stores at, or one microsecond past the previous value when
// at would not move it forward, and returns what was stored.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) (time.Time, error) {
	var stored time.Time
	err := r.db.Conn(ctx).QueryRow(ctx,
		`UPDATE devices
		 SET last_seen_at = GREATEST($2::timestamptz, COALESCE(last_seen_at + interval '1 microsecond', $2::timestamptz))
		 WHERE id = $1
		 RETURNING last_seen_at`, id, at).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, model.ErrDeviceNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("touch device: %w", err)
	}
	return stored, nil
}

// SetPrimary locks the patient's devices, clears the current primary and
// marks deviceID. It joins the caller's transaction or opens its own.
func (r *DeviceRepository) SetPrimary(ctx context.Context, patientID string, deviceID string) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)

		rows, err := conn.Query(ctx,
			`SELECT id FROM devices WHERE patient_id = $1 ORDER BY id FOR UPDATE`, patientID)
		if err != nil {
			return fmt.Errorf("lock patient devices: %w", err)
		}
		found := false
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan locked device: %w", err)
			}
			if id == deviceID {
				found = true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("lock patient devices: %w", err)
		}
		if !found {
			return model.ErrDeviceNotFound
		}

		if _, err := conn.Exec(ctx,
			`UPDATE devices SET is_primary = false WHERE patient_id = $1 AND is_primary AND id <> $2`,
			patientID, deviceID); err != nil {
			return fmt.Errorf("clear primary device: %w", err)
		}

		if _, err := conn.Exec(ctx,
			`UPDATE devices SET is_primary = true WHERE id = $1`, deviceID); err != nil {
			return fmt.Errorf("set primary device: %w", err)
		}
		return nil
	})
}

func (r *DeviceRepository) ClearPrimary(ctx context.Context, deviceID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE devices SET is_primary = false WHERE id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("clear primary device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) Rename(ctx context.Context, deviceID string, name string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE devices SET device_name = $2 WHERE id = $1`, deviceID, name)
	if err != nil {
		return fmt.Errorf("rename device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) Delete(ctx context.Context, deviceID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM devices WHERE id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) ListByPatient(ctx context.Context, patientID string) ([]model.Device, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE patient_id = $1
		 ORDER BY is_primary DESC, last_seen_at DESC NULLS LAST, created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]model.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func scanDevice(row pgx.Row) (model.Device, error) {
	var d model.Device
	err := row.Scan(&d.ID, &d.PatientID, &d.Platform, &d.DevicePublicID, &d.DeviceName, &d.IsPrimary, &d.LastSeenAt, &d.CreatedAt)
	return d, err
}
