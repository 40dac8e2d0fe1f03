package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"caregiver-hub/internal/model"
	"caregiver-hub/internal/service"
	"caregiver-hub/internal/validation"
)

type DeviceHandler struct {
	devices  *service.DeviceRegistry
	validate *validation.Validator
}

func NewDeviceHandler(devices *service.DeviceRegistry, validate *validation.Validator) *DeviceHandler {
	return &DeviceHandler{devices: devices, validate: validate}
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	devices, err := h.devices.ListForPatient(r.Context(), chi.URLParam(r, "patientId"), user.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, devices, &model.Meta{Total: len(devices)})
}

// Update renames a device and/or changes whether it is the patient's primary.
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload model.UpdateDeviceRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	device, err := h.devices.Update(r.Context(), chi.URLParam(r, "deviceId"), user.UserID, service.UpdateDeviceInput{
		DeviceName: payload.DeviceName,
		IsPrimary:  payload.IsPrimary,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, device, nil)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.devices.Revoke(r.Context(), chi.URLParam(r, "deviceId"), user.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"revoked": true}, nil)
}
