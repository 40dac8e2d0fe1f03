package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"caregiver-hub/internal/middleware"
	"caregiver-hub/internal/model"
	"caregiver-hub/internal/service"
	"caregiver-hub/internal/validation"
	"caregiver-hub/pkg/apierror"
)

type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
}

type AuthHandler struct {
	service  *service.AuthService
	ledger   *service.SessionLedger
	validate *validation.Validator
	cookie   CookieConfig
}

func NewAuthHandler(service *service.AuthService, ledger *service.SessionLedger, validate *validation.Validator, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "refresh_token"
	}
	if cookie.Path == "" {
		cookie.Path = "/api/v1/auth"
	}
	return &AuthHandler{service: service, ledger: ledger, validate: validate, cookie: cookie}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.setRefreshCookie(w, resp.RefreshToken, resp.RefreshExpiresAt)
	writeSuccess(w, http.StatusCreated, resp, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.Login(r.Context(), service.LoginInput{
		Email:     payload.Email,
		Password:  payload.Password,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.setRefreshCookie(w, resp.RefreshToken, resp.RefreshExpiresAt)
	writeSuccess(w, http.StatusOK, resp, nil)
}

func (h *AuthHandler) PatientLogin(w http.ResponseWriter, r *http.Request) {
	var payload model.PatientLoginRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.PatientLogin(r.Context(), payload.PairingCode, payload.DeviceInfo)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp, nil)
}

func (h *AuthHandler) DeviceLogin(w http.ResponseWriter, r *http.Request) {
	var payload model.DeviceLoginRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.DeviceLogin(r.Context(), payload.DeviceToken, payload.PinCode)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp, nil)
}

// Refresh takes the token from the JSON body, falling back to the cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.refreshTokenFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if token == "" {
		writeError(w, apierror.New("UNAUTHORIZED", "refresh token is required", "refresh_token", http.StatusUnauthorized))
		return
	}

	resp, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		h.clearRefreshCookie(w)
		writeError(w, err)
		return
	}

	h.setRefreshCookie(w, resp.RefreshToken, resp.RefreshExpiresAt)
	writeSuccess(w, http.StatusOK, resp, nil)
}

func (h *AuthHandler) PatientRefresh(w http.ResponseWriter, r *http.Request) {
	var payload model.PatientRefreshRequest
	if err := decodeJSON(r, h.validate, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.RefreshPatient(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	token, err := h.refreshTokenFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Logout(r.Context(), user.UserID, token); err != nil {
		writeError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	me, err := h.service.Me(r.Context(), principal)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, me, nil)
}

func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.ledger.List(r.Context(), user.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, sessions, &model.Meta{Total: len(sessions)})
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	if err := h.ledger.Revoke(r.Context(), sessionID, user.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"revoked": true}, nil)
}

// RevokeAllSessions signs the caller out everywhere.
func (h *AuthHandler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	removed, err := h.ledger.RevokeAll(r.Context(), user.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, map[string]any{"revoked": removed}, nil)
}

func (h *AuthHandler) refreshTokenFrom(r *http.Request) (string, error) {
	var payload model.RefreshRequest
	if _, err := decodeOptionalJSON(r, &payload); err != nil {
		return "", err
	}

	if token := strings.TrimSpace(payload.RefreshToken); token != "" {
		return token, nil
	}

	if cookie, err := r.Cookie(h.cookie.Name); err == nil {
		return strings.TrimSpace(cookie.Value), nil
	}
	return "", nil
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     h.cookie.Path,
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
