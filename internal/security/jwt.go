package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"caregiver-hub/internal/model"
)

type SignerConfig struct {
	AccessSecret      string
	RefreshSecret     string
	AccessTTL         time.Duration
	PatientRefreshTTL time.Duration
	Now               func() time.Time
}

// TokenSigner mints and verifies the three token kinds. Access tokens use the
// access secret; refresh and patient refresh tokens use the refresh secret.
// Every token carries a "type" claim and verification insists on the kind the
// caller asked for, so a token of one kind never passes as another.
type TokenSigner struct {
	accessSecret      []byte
	refreshSecret     []byte
	accessTTL         time.Duration
	patientRefreshTTL time.Duration
	now               func() time.Time
}

func NewTokenSigner(cfg SignerConfig) (*TokenSigner, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token signer requires access and refresh secrets")
	}
	if cfg.AccessTTL <= 0 || cfg.PatientRefreshTTL <= 0 {
		return nil, errors.New("token signer requires positive lifetimes")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenSigner{
		accessSecret:      []byte(cfg.AccessSecret),
		refreshSecret:     []byte(cfg.RefreshSecret),
		accessTTL:         cfg.AccessTTL,
		patientRefreshTTL: cfg.PatientRefreshTTL,
		now:               now,
	}, nil
}

func (s *TokenSigner) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenSigner) SignAccess(subjectID string, role model.Role) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.accessTTL)

	token, err := s.sign(s.accessSecret, jwt.MapClaims{
		"sub":  subjectID,
		"role": string(role),
		"type": string(model.TokenTypeAccess),
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// SignRefresh binds a refresh token to a session; its expiry is the session's.
func (s *TokenSigner) SignRefresh(userID string, sessionID string, expiresAt time.Time) (string, error) {
	return s.sign(s.refreshSecret, jwt.MapClaims{
		"sub":  userID,
		"sid":  sessionID,
		"type": string(model.TokenTypeRefresh),
		"jti":  uuid.NewString(),
		"iat":  s.now().UTC().Unix(),
		"exp":  expiresAt.UTC().Unix(),
	})
}

func (s *TokenSigner) SignPatientRefresh(patientID string, deviceID string) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.patientRefreshTTL)

	token, err := s.sign(s.refreshSecret, jwt.MapClaims{
		"sub":      patientID,
		"deviceId": deviceID,
		"type":     string(model.TokenTypePatientRefresh),
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      expiresAt.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

func (s *TokenSigner) VerifyAccess(token string) (*model.AuthClaims, error) {
	return s.Verify(token, model.TokenTypeAccess)
}

func (s *TokenSigner) VerifyRefresh(token string) (*model.AuthClaims, error) {
	return s.Verify(token, model.TokenTypeRefresh)
}

func (s *TokenSigner) VerifyPatientRefresh(token string) (*model.AuthClaims, error) {
	return s.Verify(token, model.TokenTypePatientRefresh)
}

// Verify checks signature, expiry and kind. A token is expired from the
// instant its exp claim names. All failures collapse to model.ErrInvalidToken.
func (s *TokenSigner) Verify(tokenString string, expected model.TokenType) (*model.AuthClaims, error) {
	secret := s.refreshSecret
	if expected == model.TokenTypeAccess {
		secret = s.accessSecret
	}

	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, model.ErrInvalidToken
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrInvalidToken
	}

	typ, _ := claimsMap["type"].(string)
	if model.TokenType(typ) != expected {
		return nil, model.ErrInvalidToken
	}

	claims := &model.AuthClaims{Type: expected}
	claims.Subject, _ = claimsMap["sub"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)
	if exp, err := claimsMap.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	switch expected {
	case model.TokenTypeAccess:
		role, _ := claimsMap["role"].(string)
		claims.Role = model.Role(role)
		if claims.Role != model.RolePatient && !claims.Role.Valid() {
			return nil, model.ErrInvalidToken
		}
	case model.TokenTypeRefresh:
		claims.SessionID, _ = claimsMap["sid"].(string)
		if claims.SessionID == "" {
			return nil, model.ErrInvalidToken
		}
	case model.TokenTypePatientRefresh:
		claims.Role = model.RolePatient
		claims.DeviceID, _ = claimsMap["deviceId"].(string)
		if claims.DeviceID == "" {
			return nil, model.ErrInvalidToken
		}
	}

	if claims.Subject == "" {
		return nil, model.ErrInvalidToken
	}

	return claims, nil
}

func (s *TokenSigner) sign(secret []byte, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
