package model

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=32,password_strength"`
	FirstName string `json:"first_name" validate:"required,max=50,person_name"`
	LastName  string `json:"last_name" validate:"required,max=50,person_name"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type PatientLoginRequest struct {
	PairingCode string     `json:"pairing_code" validate:"required,min=8,max=9"`
	DeviceInfo  DeviceInfo `json:"device_info" validate:"required"`
}

type DeviceLoginRequest struct {
	DeviceToken string `json:"device_token" validate:"required"`
	PinCode     string `json:"pin_code,omitempty" validate:"omitempty,max=32"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PatientRefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type UpdateDeviceRequest struct {
	DeviceName *string `json:"device_name,omitempty" validate:"omitempty,min=1,max=100"`
	IsPrimary  *bool   `json:"is_primary,omitempty"`
}

type CreatePatientRequest struct {
	FirstName   string  `json:"first_name" validate:"required,max=50,person_name"`
	LastName    string  `json:"last_name" validate:"required,max=50,person_name"`
	BirthDate   *string `json:"birth_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitempty,url,max=2048"`
	ShortIntro  *string `json:"short_intro,omitempty" validate:"omitempty,max=500"`
	MaritalDate *string `json:"marital_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=32,password_strength"`
	FirstName string `json:"first_name" validate:"required,max=50,person_name"`
	LastName  string `json:"last_name" validate:"required,max=50,person_name"`
	Role      Role   `json:"role" validate:"required,oneof=CAREGIVER ADMIN"`
}
