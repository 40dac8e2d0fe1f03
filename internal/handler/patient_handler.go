package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"caregiver-hub/internal/model"
	"caregiver-hub/internal/service"
	"caregiver-hub/internal/validation"
)

// PatientHandler serves patient records and their pairing codes.
type PatientHandler struct {
	patients *service.PatientService
	pairing  *service.PairingService
	validate *validation.Validator
}

func NewPatientHandler(patients *service.PatientService, pairing *service.PairingService, validate *validation.Validator) *PatientHandler {
	return &PatientHandler{patients: patients, pairing: pairing, validate: validate}
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload model.CreatePatientRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.patients.Create(r.Context(), user.UserID, service.CreatePatientInput{
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		BirthDate:   payload.BirthDate,
		AvatarURL:   payload.AvatarURL,
		ShortIntro:  payload.ShortIntro,
		MaritalDate: payload.MaritalDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, created, nil)
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	patient, err := h.patients.Get(r.Context(), chi.URLParam(r, "patientId"), user.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, patient, nil)
}

func (h *PatientHandler) CreatePairingCode(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	code, err := h.pairing.Generate(r.Context(), chi.URLParam(r, "patientId"), user.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, code, nil)
}

func (h *PatientHandler) ListPairingCodes(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	codes, err := h.pairing.ListActive(r.Context(), chi.URLParam(r, "patientId"), user.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, codes, &model.Meta{Total: len(codes)})
}

func (h *PatientHandler) RevokePairingCode(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.pairing.Revoke(r.Context(), chi.URLParam(r, "codeId"), user.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"revoked": true}, nil)
}
