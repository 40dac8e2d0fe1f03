package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
	"caregiver-hub/internal/security"
)

const tokenTypeBearer = "Bearer"

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	IP        string
	UserAgent string
}

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type AuthServiceDeps struct {
	Users    UserStore
	Patients PatientStore
	Ledger   *SessionLedger
	Pairing  *PairingService
	Devices  *DeviceRegistry
	Signer   *security.TokenSigner
	Hasher   *security.PasswordHasher
	Tx       Transactor
	Bus      event.Publisher

	// AllowRawDeviceID accepts a bare device id as a device-login credential
	// in addition to a signed patient refresh token.
	AllowRawDeviceID bool
}

// AuthService is the authentication gateway: it turns credentials into
// tokens for caregivers, admins and paired patient devices.
type AuthService struct {
	users            UserStore
	patients         PatientStore
	ledger           *SessionLedger
	pairing          *PairingService
	devices          *DeviceRegistry
	signer           *security.TokenSigner
	hasher           *security.PasswordHasher
	tx               Transactor
	bus              event.Publisher
	allowRawDeviceID bool
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	bus := deps.Bus
	if bus == nil {
		bus = event.Discard{}
	}
	return &AuthService{
		users:            deps.Users,
		patients:         deps.Patients,
		ledger:           deps.Ledger,
		pairing:          deps.Pairing,
		devices:          deps.Devices,
		signer:           deps.Signer,
		hasher:           deps.Hasher,
		tx:               deps.Tx,
		bus:              bus,
		allowRawDeviceID: deps.AllowRawDeviceID,
	}
}

// VerifyAccessToken lets the auth middleware resolve bearer tokens.
func (s *AuthService) VerifyAccessToken(token string) (*model.AuthClaims, error) {
	return s.signer.VerifyAccess(token)
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (model.AuthResponse, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return model.AuthResponse{}, errBadRequest("email and password are required", "")
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return model.AuthResponse{}, errConflict("user with this email already exists")
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.AuthResponse{}, err
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return model.AuthResponse{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         model.RoleCaregiver,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var issued IssuedSession
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		created, err := s.ledger.Issue(ctx, user.ID, input.IP, input.UserAgent)
		if err != nil {
			return err
		}
		issued = created
		return nil
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return model.AuthResponse{}, errConflict("user with this email already exists")
	}
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("register user: %w", err)
	}

	resp, err := s.userTokens(user, issued)
	if err != nil {
		return model.AuthResponse{}, err
	}

	slog.Info("user registered", "user_id", user.ID)
	s.bus.Publish(event.New(event.TypeUserRegistered, user.ID, map[string]string{
		"session_id": issued.Session.ID,
	}))
	return resp, nil
}

// Login never reveals which of email or password was wrong.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (model.AuthResponse, error) {
	email := NormalizeEmail(input.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.hasher.VerifyDummy(input.Password)
		s.loginFailed(input.IP)
		return model.AuthResponse{}, errInvalidCredentials()
	}
	if err != nil {
		return model.AuthResponse{}, err
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		s.loginFailed(input.IP)
		return model.AuthResponse{}, errInvalidCredentials()
	}

	issued, err := s.ledger.Issue(ctx, user.ID, input.IP, input.UserAgent)
	if err != nil {
		return model.AuthResponse{}, err
	}

	resp, err := s.userTokens(user, issued)
	if err != nil {
		return model.AuthResponse{}, err
	}

	s.bus.Publish(event.New(event.TypeUserLoggedIn, user.ID, map[string]string{
		"session_id": issued.Session.ID,
		"ip":         input.IP,
	}))
	return resp, nil
}

// Refresh rotates a caregiver/admin refresh token within its session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.AuthResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.AuthResponse{}, errUnauthorized("refresh token is required")
	}

	issued, err := s.ledger.Rotate(ctx, strings.TrimSpace(refreshToken))
	if errors.Is(err, model.ErrInvalidToken) {
		return model.AuthResponse{}, errUnauthorized("invalid or expired refresh token")
	}
	if err != nil {
		return model.AuthResponse{}, err
	}

	user, err := s.users.FindByID(ctx, issued.Session.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.AuthResponse{}, errUnauthorized("invalid or expired refresh token")
	}
	if err != nil {
		return model.AuthResponse{}, err
	}

	s.bus.Publish(event.New(event.TypeSessionRefreshed, user.ID, map[string]string{
		"session_id": issued.Session.ID,
	}))
	return s.userTokens(user, issued)
}

// Logout revokes the session a refresh token belongs to when it is owned by
// userID. Unknown, expired or foreign tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, userID string, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	session, err := s.ledger.Authenticate(ctx, refreshToken)
	if errors.Is(err, model.ErrInvalidToken) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return nil
	}

	if err := s.ledger.Revoke(ctx, session.ID, userID); err != nil {
		return err
	}

	s.bus.Publish(event.New(event.TypeSessionRevoked, userID, map[string]string{
		"session_id": session.ID,
	}))
	return nil
}

// PatientLogin redeems a pairing code and binds the presenting device to the
// patient. Redemption, device registration and the last-seen update commit
// together.
func (s *AuthService) PatientLogin(ctx context.Context, pairingCode string, info model.DeviceInfo) (model.PatientAuthResponse, error) {
	var (
		patient model.Patient
		device  model.Device
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pairing, err := s.pairing.Redeem(ctx, pairingCode)
		if err != nil {
			return err
		}

		patient, err = s.patients.FindByID(ctx, pairing.PatientID)
		if err != nil {
			return err
		}

		device, err = s.devices.FindOrCreate(ctx, patient.ID, info)
		if err != nil {
			return err
		}

		_, err = s.devices.TouchLastSeen(ctx, device.ID)
		return err
	})
	if errors.Is(err, model.ErrInvalidPairingCode) || errors.Is(err, model.ErrPatientNotFound) {
		return model.PatientAuthResponse{}, errUnauthorized("invalid or expired pairing code")
	}
	if err != nil {
		return model.PatientAuthResponse{}, fmt.Errorf("patient login: %w", err)
	}

	slog.Info("patient device paired", "patient_id", patient.ID, "device_id", device.ID, "platform", device.Platform)
	s.bus.Publish(event.New(event.TypePatientPaired, patient.ID, map[string]string{
		"device_id": device.ID,
		"platform":  device.Platform,
	}))
	return s.patientTokens(patient, device)
}

// DeviceLogin re-authenticates a paired device. The credential is a patient
// refresh token or, when raw ids are allowed, the device id itself. The PIN is
// accepted but not checked.
func (s *AuthService) DeviceLogin(ctx context.Context, deviceToken string, pinCode string) (model.PatientAuthResponse, error) {
	device, err := s.resolveDevice(ctx, strings.TrimSpace(deviceToken))
	if err != nil {
		return model.PatientAuthResponse{}, err
	}

	slog.Debug("device login", "device_id", device.ID, "pin_supplied", pinCode != "")

	resp, err := s.resumeDevice(ctx, device)
	if err != nil {
		return model.PatientAuthResponse{}, err
	}

	s.bus.Publish(event.New(event.TypeDeviceLoggedIn, device.PatientID, map[string]string{
		"device_id": device.ID,
	}))
	return resp, nil
}

// RefreshPatient exchanges a patient refresh token for a fresh pair, provided
// the device it names is still registered to the patient.
func (s *AuthService) RefreshPatient(ctx context.Context, refreshToken string) (model.PatientAuthResponse, error) {
	claims, err := s.signer.VerifyPatientRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return model.PatientAuthResponse{}, errUnauthorized("invalid or expired refresh token")
	}

	device, err := s.deviceForPatient(ctx, claims.DeviceID, claims.Subject)
	if err != nil {
		return model.PatientAuthResponse{}, err
	}

	return s.resumeDevice(ctx, device)
}

func (s *AuthService) Me(ctx context.Context, principal model.Principal) (model.MeResponse, error) {
	switch p := principal.(type) {
	case model.UserPrincipal:
		user, err := s.users.FindByID(ctx, p.UserID)
		if errors.Is(err, model.ErrUserNotFound) {
			return model.MeResponse{}, errUnauthorized("user no longer exists")
		}
		if err != nil {
			return model.MeResponse{}, err
		}
		public := user.Public()
		return model.MeResponse{Kind: "user", User: &public}, nil
	case model.PatientPrincipal:
		patient, err := s.patients.FindByID(ctx, p.PatientID)
		if errors.Is(err, model.ErrPatientNotFound) {
			return model.MeResponse{}, errUnauthorized("patient no longer exists")
		}
		if err != nil {
			return model.MeResponse{}, err
		}
		profile := patient.Profile()
		return model.MeResponse{Kind: "patient", Patient: &profile}, nil
	default:
		return model.MeResponse{}, errUnauthorized("authentication required")
	}
}

func (s *AuthService) resolveDevice(ctx context.Context, deviceToken string) (model.Device, error) {
	if deviceToken == "" {
		return model.Device{}, errUnauthorized("device not found or not authorized")
	}

	if claims, err := s.signer.VerifyPatientRefresh(deviceToken); err == nil {
		return s.deviceForPatient(ctx, claims.DeviceID, claims.Subject)
	}

	if !s.allowRawDeviceID {
		return model.Device{}, errUnauthorized("device not found or not authorized")
	}

	if !isID(deviceToken) {
		return model.Device{}, errUnauthorized("device not found or not authorized")
	}

	device, err := s.devices.Get(ctx, deviceToken)
	if errors.Is(err, model.ErrDeviceNotFound) {
		return model.Device{}, errUnauthorized("device not found or not authorized")
	}
	return device, err
}

func (s *AuthService) deviceForPatient(ctx context.Context, deviceID string, patientID string) (model.Device, error) {
	device, err := s.devices.Get(ctx, deviceID)
	if errors.Is(err, model.ErrDeviceNotFound) {
		return model.Device{}, errUnauthorized("device not found or not authorized")
	}
	if err != nil {
		return model.Device{}, err
	}
	if device.PatientID != patientID {
		return model.Device{}, errUnauthorized("device not found or not authorized")
	}
	return device, nil
}

func (s *AuthService) resumeDevice(ctx context.Context, device model.Device) (model.PatientAuthResponse, error) {
	if _, err := s.devices.TouchLastSeen(ctx, device.ID); err != nil {
		if errors.Is(err, model.ErrDeviceNotFound) {
			return model.PatientAuthResponse{}, errUnauthorized("device not found or not authorized")
		}
		return model.PatientAuthResponse{}, err
	}

	patient, err := s.patients.FindByID(ctx, device.PatientID)
	if errors.Is(err, model.ErrPatientNotFound) {
		return model.PatientAuthResponse{}, errUnauthorized("device not found or not authorized")
	}
	if err != nil {
		return model.PatientAuthResponse{}, err
	}

	return s.patientTokens(patient, device)
}

func (s *AuthService) userTokens(user model.User, issued IssuedSession) (model.AuthResponse, error) {
	accessToken, _, err := s.signer.SignAccess(user.ID, user.Role)
	if err != nil {
		return model.AuthResponse{}, err
	}

	return model.AuthResponse{
		TokenPair: model.TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     issued.RefreshToken,
			TokenType:        tokenTypeBearer,
			ExpiresIn:        int64(s.signer.AccessTTL().Seconds()),
			RefreshExpiresAt: issued.Session.ExpiresAt,
		},
		SessionID: issued.Session.ID,
		User:      user.Public(),
	}, nil
}

func (s *AuthService) patientTokens(patient model.Patient, device model.Device) (model.PatientAuthResponse, error) {
	accessToken, _, err := s.signer.SignAccess(patient.ID, model.RolePatient)
	if err != nil {
		return model.PatientAuthResponse{}, err
	}

	refreshToken, refreshExpiresAt, err := s.signer.SignPatientRefresh(patient.ID, device.ID)
	if err != nil {
		return model.PatientAuthResponse{}, err
	}

	return model.PatientAuthResponse{
		TokenPair: model.TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			TokenType:        tokenTypeBearer,
			ExpiresIn:        int64(s.signer.AccessTTL().Seconds()),
			RefreshExpiresAt: refreshExpiresAt,
		},
		DeviceID: device.ID,
		Patient:  patient.Profile(),
	}, nil
}

func (s *AuthService) loginFailed(ip string) {
	slog.Warn("login failed", "ip", ip)
	s.bus.Publish(event.New(event.TypeLoginFailed, "", map[string]string{"ip": ip}))
}

// NormalizeEmail lower-cases and trims an address before any lookup or insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
