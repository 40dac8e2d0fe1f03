package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
	"caregiver-hub/internal/util"
)

const maxDeviceNameRunes = 100

type UpdateDeviceInput struct {
	DeviceName *string
	IsPrimary  *bool
}

// DeviceRegistry records the devices a patient has paired. Revoking a device
// deletes its row; outstanding patient tokens for it fail the next lookup.
type DeviceRegistry struct {
	devices DeviceStore
	access  AccessChecker
	tx      Transactor
	bus     event.Publisher
	now     Clock
}

func NewDeviceRegistry(devices DeviceStore, access AccessChecker, tx Transactor, bus event.Publisher) *DeviceRegistry {
	if bus == nil {
		bus = event.Discard{}
	}
	return &DeviceRegistry{
		devices: devices,
		access:  access,
		tx:      tx,
		bus:     bus,
		now:     systemClock,
	}
}

func (r *DeviceRegistry) SetClock(now Clock) {
	r.now = now
}

// FindOrCreate is idempotent on (patientID, info.DeviceID). New devices are
// never primary.
func (r *DeviceRegistry) FindOrCreate(ctx context.Context, patientID string, info model.DeviceInfo) (model.Device, error) {
	platform := strings.TrimSpace(info.Platform)
	name := util.CleanDisplayName(info.DeviceName)
	if name == "" {
		name = platform
	}

	return r.devices.FindOrCreate(ctx, model.Device{
		ID:             uuid.NewString(),
		PatientID:      patientID,
		Platform:       platform,
		DevicePublicID: strings.TrimSpace(info.DeviceID),
		DeviceName:     name,
		CreatedAt:      r.now(),
	})
}

func (r *DeviceRegistry) Get(ctx context.Context, deviceID string) (model.Device, error) {
	return r.devices.FindByID(ctx, deviceID)
}

func (r *DeviceRegistry) TouchLastSeen(ctx context.Context, deviceID string) (time.Time, error) {
	return r.devices.TouchLastSeen(ctx, deviceID, r.now())
}

// SetPrimary makes deviceID the patient's only primary device.
func (r *DeviceRegistry) SetPrimary(ctx context.Context, deviceID string, patientID string) error {
	if err := r.devices.SetPrimary(ctx, patientID, deviceID); err != nil {
		if errors.Is(err, model.ErrDeviceNotFound) {
			return errNotFound("device not found", deviceID)
		}
		return err
	}
	return nil
}

func (r *DeviceRegistry) ListForPatient(ctx context.Context, patientID string, requestorID string) ([]model.Device, error) {
	if !isID(patientID) {
		return nil, errNotFound("patient not found", patientID)
	}
	if err := r.requireAccess(ctx, requestorID, patientID); err != nil {
		return nil, err
	}
	return r.devices.ListByPatient(ctx, patientID)
}

// Update applies the rename and primary change in one transaction, so a
// failed primary switch leaves the old name in place.
func (r *DeviceRegistry) Update(ctx context.Context, deviceID string, requestorID string, input UpdateDeviceInput) (model.Device, error) {
	device, err := r.loadForCaregiver(ctx, deviceID, requestorID)
	if err != nil {
		return model.Device{}, err
	}

	var name string
	if input.DeviceName != nil {
		name = util.CleanDisplayName(*input.DeviceName)
		if name == "" || utf8.RuneCountInString(name) > maxDeviceNameRunes {
			return model.Device{}, errBadRequest("device name must be 1-100 characters", "device_name")
		}
	}

	var updated model.Device
	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if input.DeviceName != nil {
			if err := r.devices.Rename(ctx, device.ID, name); err != nil {
				return r.mapNotFound(err, deviceID)
			}
		}
		if input.IsPrimary != nil {
			if *input.IsPrimary {
				if err := r.SetPrimary(ctx, device.ID, device.PatientID); err != nil {
					return err
				}
			} else if err := r.devices.ClearPrimary(ctx, device.ID); err != nil {
				return r.mapNotFound(err, deviceID)
			}
		}

		reloaded, err := r.devices.FindByID(ctx, device.ID)
		if err != nil {
			return r.mapNotFound(err, deviceID)
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return model.Device{}, err
	}

	if input.IsPrimary != nil && *input.IsPrimary {
		r.bus.Publish(event.New(event.TypeDevicePrimarySet, requestorID, map[string]string{
			"device_id":  device.ID,
			"patient_id": device.PatientID,
		}))
	}
	r.bus.Publish(event.New(event.TypeDeviceUpdated, requestorID, map[string]string{
		"device_id":  updated.ID,
		"patient_id": updated.PatientID,
	}))
	return updated, nil
}

func (r *DeviceRegistry) Revoke(ctx context.Context, deviceID string, requestorID string) error {
	device, err := r.loadForCaregiver(ctx, deviceID, requestorID)
	if err != nil {
		return err
	}

	if err := r.devices.Delete(ctx, device.ID); err != nil {
		return r.mapNotFound(err, deviceID)
	}

	slog.Info("device revoked", "device_id", device.ID, "patient_id", device.PatientID, "revoked_by", requestorID)
	r.bus.Publish(event.New(event.TypeDeviceRevoked, requestorID, map[string]string{
		"device_id":  device.ID,
		"patient_id": device.PatientID,
	}))
	return nil
}

func (r *DeviceRegistry) loadForCaregiver(ctx context.Context, deviceID string, requestorID string) (model.Device, error) {
	if !isID(deviceID) {
		return model.Device{}, errNotFound("device not found", deviceID)
	}
	device, err := r.devices.FindByID(ctx, deviceID)
	if err != nil {
		return model.Device{}, r.mapNotFound(err, deviceID)
	}
	if err := r.requireAccess(ctx, requestorID, device.PatientID); err != nil {
		return model.Device{}, err
	}
	return device, nil
}

func (r *DeviceRegistry) requireAccess(ctx context.Context, caregiverID string, patientID string) error {
	ok, err := r.access.HasPatientAccess(ctx, caregiverID, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden("no access to this patient")
	}
	return nil
}

func (r *DeviceRegistry) mapNotFound(err error, deviceID string) error {
	if errors.Is(err, model.ErrDeviceNotFound) {
		return errNotFound("device not found", deviceID)
	}
	return err
}
