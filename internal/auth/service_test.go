package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edulink/internal/config"
	"edulink/internal/models"
	"edulink/internal/relayerr"
)

var testSecret = []byte("test-secret")

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, relayerr.New(relayerr.CodeNotFound, "user not found")
	}
	return u, nil
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func newTestService(users ...*models.User) *Service {
	repo := &fakeUsers{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return NewService(repo, &config.Config{JWT: config.JWTConfig{Secret: testSecret}})
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestAuthenticateValidToken(t *testing.T) {
	user := &models.User{ID: "u1", Role: models.RoleTeacher, IsActive: true, Status: models.AccountApproved}
	svc := newTestService(user)

	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	got, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc := newTestService(&models.User{ID: "u1", Role: models.RoleTeacher, IsActive: true, Status: models.AccountApproved})
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Authenticate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	wrongKey := signToken(t, []byte("other-secret"), jwt.MapClaims{"user_id": "u1"})
	_, err = svc.Authenticate(ctx, wrongKey)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	noSubject := signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	_, err = svc.Authenticate(ctx, noSubject)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	svc := newTestService(&models.User{ID: "u1", Role: models.RoleTeacher, IsActive: true, Status: models.AccountApproved})

	expired := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, err := svc.Authenticate(context.Background(), expired)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc := newTestService()

	token := signToken(t, testSecret, jwt.MapClaims{"user_id": "ghost"})
	_, err := svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticateInactiveAccounts(t *testing.T) {
	disabled := &models.User{ID: "u1", Role: models.RoleTeacher, IsActive: false, Status: models.AccountApproved}
	pending := &models.User{ID: "u2", Role: models.RoleStudent, IsActive: true, Status: models.AccountPending}
	svc := newTestService(disabled, pending)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		token := signToken(t, testSecret, jwt.MapClaims{"user_id": id})
		_, err := svc.Authenticate(ctx, token)
		assert.True(t, relayerr.Is(err, relayerr.CodeInactive), "account %s must be refused", id)
	}
}
