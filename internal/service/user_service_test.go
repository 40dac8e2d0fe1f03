package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
)

func TestUserService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.Create(ctx, "admin-1", CreateUserInput{
		Email:     "Nurse@Example.com",
		Password:  "Passw0rd!",
		FirstName: "Rasa",
		LastName:  "Jankauskiene",
		Role:      model.RoleCaregiver,
	})
	require.NoError(t, err)
	assert.Equal(t, "nurse@example.com", user.Email)
	env.bus.AssertCalled(t, "Publish", eventOfType(event.TypeUserCreated))

	_, err = env.auth.Login(ctx, LoginInput{Email: "nurse@example.com", Password: "Passw0rd!"})
	require.NoError(t, err, "provisioned users can log in")

	_, err = env.users.Create(ctx, "admin-1", CreateUserInput{Email: "nurse@example.com", Password: "x", Role: model.RoleAdmin})
	assertAPIError(t, err, "ALREADY_EXISTS")

	_, err = env.users.Create(ctx, "admin-1", CreateUserInput{Email: "p@example.com", Password: "x", Role: model.RolePatient})
	assertAPIError(t, err, "BAD_REQUEST")
}

func TestUserService_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerCaregiver(t, "a@example.com")
	env.registerCaregiver(t, "b@example.com")

	users, err := env.users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserService_SeedAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.users.SeedAdmin(ctx, "", ""))
	require.NoError(t, env.users.SeedAdmin(ctx, "Admin@Example.com", "Adm1n!pass"))
	require.NoError(t, env.users.SeedAdmin(ctx, "admin@example.com", "different"))

	users, err := env.users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, model.RoleAdmin, users[0].Role)

	resp, err := env.auth.Login(ctx, LoginInput{Email: "admin@example.com", Password: "Adm1n!pass"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, resp.User.Role)
}
