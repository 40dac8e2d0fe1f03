package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token and session related errors
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrSessionNotFound = errors.New("session not found")

	// Patient, device and pairing related errors
	ErrPatientNotFound      = errors.New("patient not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrPairingCodeNotFound  = errors.New("pairing code not found")
	ErrInvalidPairingCode   = errors.New("invalid or expired pairing code")
	ErrPairingCodeCollision = errors.New("pairing code collision")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
