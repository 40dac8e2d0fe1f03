package model

import "time"

type CaregiverRelation string

const (
	RelationOwner  CaregiverRelation = "OWNER"
	RelationEditor CaregiverRelation = "EDITOR"
	RelationViewer CaregiverRelation = "VIEWER"
)

type Patient struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	ShortIntro  *string    `json:"short_intro,omitempty"`
	MaritalDate *time.Time `json:"marital_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PatientProfile is the subset of a patient returned to a paired device.
type PatientProfile struct {
	ID         string  `json:"id"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
	ShortIntro *string `json:"short_intro,omitempty"`
}

func (p Patient) Profile() PatientProfile {
	return PatientProfile{
		ID:         p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		AvatarURL:  p.AvatarURL,
		ShortIntro: p.ShortIntro,
	}
}
