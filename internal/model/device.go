package model

import "time"

type Device struct {
	ID             string     `json:"id"`
	PatientID      string     `json:"patient_id"`
	Platform       string     `json:"platform"`
	DevicePublicID string     `json:"device_public_id"`
	DeviceName     string     `json:"device_name"`
	IsPrimary      bool       `json:"is_primary"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DeviceInfo is what a patient device reports about itself when pairing.
type DeviceInfo struct {
	Platform   string `json:"platform" validate:"required,max=100"`
	DeviceName string `json:"device_name" validate:"required,max=100"`
	DeviceID   string `json:"device_id" validate:"required,max=100"`
}
