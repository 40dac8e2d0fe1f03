package handler

import (
	"net/http"

	"caregiver-hub/internal/model"
	"caregiver-hub/internal/service"
	"caregiver-hub/internal/validation"
)

// UserHandler is the admin-only account provisioning surface.
type UserHandler struct {
	service  *service.UserService
	validate *validation.Validator
}

func NewUserHandler(service *service.UserService, validate *validation.Validator) *UserHandler {
	return &UserHandler{service: service, validate: validate}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, users, &model.Meta{Total: len(users)})
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	admin, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload model.CreateUserRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Create(r.Context(), admin.UserID, service.CreateUserInput{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Role:      payload.Role,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}
