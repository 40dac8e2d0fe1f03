package model

// Principal is the verified identity attached to a request. It is either a
// UserPrincipal (caregiver or admin) or a PatientPrincipal; callers type-switch
// on it rather than reading role strings.
type Principal interface {
	SubjectID() string
	PrincipalRole() Role
	principal()
}

type UserPrincipal struct {
	UserID string
	Role   Role
}

func (p UserPrincipal) SubjectID() string   { return p.UserID }
func (p UserPrincipal) PrincipalRole() Role { return p.Role }
func (p UserPrincipal) IsAdmin() bool       { return p.Role == RoleAdmin }
func (UserPrincipal) principal()            {}

type PatientPrincipal struct {
	PatientID string
}

func (p PatientPrincipal) SubjectID() string { return p.PatientID }
func (PatientPrincipal) PrincipalRole() Role { return RolePatient }
func (PatientPrincipal) principal()          {}
