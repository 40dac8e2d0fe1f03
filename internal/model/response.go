package model

import "time"

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type Meta struct {
	Page       int `json:"page,omitempty"`
	Limit      int `json:"limit,omitempty"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages,omitempty"`
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type AuthResponse struct {
	TokenPair
	SessionID string   `json:"session_id"`
	User      AuthUser `json:"user"`
}

type PatientAuthResponse struct {
	TokenPair
	DeviceID string         `json:"device_id"`
	Patient  PatientProfile `json:"patient"`
}

type MeResponse struct {
	Kind    string          `json:"kind"`
	User    *AuthUser       `json:"user,omitempty"`
	Patient *PatientProfile `json:"patient,omitempty"`
}

type CreatePatientResponse struct {
	Patient     Patient     `json:"patient"`
	PairingCode PairingCode `json:"pairing_code"`
}
