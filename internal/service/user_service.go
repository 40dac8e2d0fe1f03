package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
	"caregiver-hub/internal/security"
)

type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
}

// UserService covers admin provisioning of caregiver and admin accounts.
type UserService struct {
	users  UserStore
	hasher *security.PasswordHasher
	bus    event.Publisher
	now    Clock
}

func NewUserService(users UserStore, hasher *security.PasswordHasher, bus event.Publisher) *UserService {
	if bus == nil {
		bus = event.Discard{}
	}
	return &UserService{
		users:  users,
		hasher: hasher,
		bus:    bus,
		now:    systemClock,
	}
}

func (s *UserService) List(ctx context.Context) ([]model.AuthUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.AuthUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *UserService) Create(ctx context.Context, actorID string, input CreateUserInput) (model.AuthUser, error) {
	if !input.Role.Valid() {
		return model.AuthUser{}, errBadRequest("role must be CAREGIVER or ADMIN", string(input.Role))
	}

	user, err := s.create(ctx, input)
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return model.AuthUser{}, errConflict("user with this email already exists")
	}
	if err != nil {
		return model.AuthUser{}, err
	}

	slog.Info("user created by admin", "user_id", user.ID, "role", user.Role, "actor_id", actorID)
	s.bus.Publish(event.New(event.TypeUserCreated, actorID, map[string]string{
		"user_id": user.ID,
		"role":    string(user.Role),
	}))
	return user.Public(), nil
}

// SeedAdmin creates the bootstrap admin unless the email is already taken.
func (s *UserService) SeedAdmin(ctx context.Context, email string, password string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}

	_, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}

	user, err := s.create(ctx, CreateUserInput{
		Email:     email,
		Password:  password,
		FirstName: "System",
		LastName:  "Admin",
		Role:      model.RoleAdmin,
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("seeded admin user", "user_id", user.ID, "email", user.Email)
	return nil
}

func (s *UserService) create(ctx context.Context, input CreateUserInput) (model.User, error) {
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return model.User{}, err
	}

	now := s.now()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(input.Email),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         input.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}
