package model

import "time"

type PairingStatus string

const (
	PairingActive  PairingStatus = "ACTIVE"
	PairingUsed    PairingStatus = "USED"
	PairingExpired PairingStatus = "EXPIRED"
)

type PairingCode struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	Code      string     `json:"code"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

func (c PairingCode) Status(now time.Time) PairingStatus {
	if c.UsedAt != nil {
		return PairingUsed
	}
	if !c.ExpiresAt.After(now) {
		return PairingExpired
	}
	return PairingActive
}
