package model

import "time"

type Role string

const (
	RoleCaregiver Role = "CAREGIVER"
	RoleAdmin     Role = "ADMIN"
	RolePatient   Role = "PATIENT"
)

// Valid reports whether r is a role a user account may hold.
func (r Role) Valid() bool {
	return r == RoleCaregiver || r == RoleAdmin
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AuthUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

func (u User) Public() AuthUser {
	return AuthUser{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
	}
}

type TokenType string

const (
	TokenTypeAccess         TokenType = "access"
	TokenTypeRefresh        TokenType = "refresh"
	TokenTypePatientRefresh TokenType = "patient_refresh"
)

// AuthClaims is the decoded, verified content of any token the service signs.
// SessionID is set only on refresh tokens, DeviceID only on patient refresh tokens.
type AuthClaims struct {
	Subject   string
	Role      Role
	Type      TokenType
	SessionID string
	DeviceID  string
	TokenID   string
	ExpiresAt time.Time
}

func (c *AuthClaims) Principal() Principal {
	if c.Role == RolePatient {
		return PatientPrincipal{PatientID: c.Subject}
	}
	return UserPrincipal{UserID: c.Subject, Role: c.Role}
}
