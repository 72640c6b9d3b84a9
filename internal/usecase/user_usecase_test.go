package usecase

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venturelink/pitchcall/internal/domain/models"
	"github.com/venturelink/pitchcall/internal/infra/adapters/memory"
)

const testSecret = "test-secret"

func newUserFixture() (UserUsecase, *fakeUserRepo, memory.ConnectionRegistry) {
	users := &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
	registry := memory.NewConnectionRegistry()

	return NewUserUsecase([]byte(testSecret), users, registry), users, registry
}

func TestCreateUserHashesPassword(t *testing.T) {
	uc, users, _ := newUserFixture()

	user, err := uc.CreateUser(context.Background(), "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	assert.Empty(t, user.Password, "password must not leak in response")

	stored := users.users[user.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, "s3cret", stored.Password)
	assert.NotEmpty(t, stored.Password)
}

func TestValidateCredentials(t *testing.T) {
	uc, _, _ := newUserFixture()

	created, err := uc.CreateUser(context.Background(), "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	user, err := uc.ValidateCredentials(context.Background(), "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Empty(t, user.Password)

	// Повторный вход работает: сохранённый хеш не затирается
	_, err = uc.ValidateCredentials(context.Background(), "alice@example.com", "s3cret")
	require.NoError(t, err)

	_, err = uc.ValidateCredentials(context.Background(), "alice@example.com", "wrong")
	assert.Error(t, err)

	_, err = uc.ValidateCredentials(context.Background(), "nobody@example.com", "s3cret")
	assert.Error(t, err)
}

func TestGenerateJWTCarriesUserID(t *testing.T) {
	uc, _, _ := newUserFixture()

	user := models.NewUser("alice", "alice@example.com")

	signed, err := uc.GenerateJWT(user)
	require.NoError(t, err)

	token, err := jwt.ParseWithClaims(signed, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.NotNil(t, claims.ExpiresAt)
}

func TestGetOnlineUsersReflectsRegistry(t *testing.T) {
	uc, users, registry := newUserFixture()

	alice := models.NewUser("alice", "alice@example.com")
	users.users[alice.ID] = alice

	online, err := uc.GetOnlineUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, online)

	registry.Register(alice.ID, &fakeConn{})

	// Неизвестный реестру пользователь пропускается молча
	registry.Register(uuid.New(), &fakeConn{})

	online, err = uc.GetOnlineUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, alice.ID.String(), online[0].ID)
	assert.Equal(t, "alice", online[0].Name)
}
