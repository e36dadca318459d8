package service

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/bookstore/internal/apperr"
	"github.com/Skotchmaster/bookstore/internal/auth/repo"
	"github.com/Skotchmaster/bookstore/internal/dbtest"
	"github.com/Skotchmaster/bookstore/internal/hash"
	"github.com/Skotchmaster/bookstore/internal/models"
	"github.com/Skotchmaster/bookstore/internal/tokens"
)

func TestMain(m *testing.M) {
	hash.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

type recordedEvent struct {
	topic, key string
	event      any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakePublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{topic, key, event})
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	db := dbtest.Open(t)
	return &AuthService{
		Repo:   &repo.GormRepo{DB: db},
		Tokens: tokens.NewIssuer([]byte("test-jwt-secret"), []byte("test-refresh-secret")),
		Events: pub,
	}, pub
}

func register(t *testing.T, svc *AuthService, username, role string) *models.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Username: username, Password: "password", Role: role, Email: username + "@example.com",
	})
	require.NoError(t, err)
	return u
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{name: "empty username", in: RegisterInput{Password: "p", Role: "buyer", Email: "e@x"}},
		{name: "empty password", in: RegisterInput{Username: "u", Role: "buyer", Email: "e@x"}},
		{name: "empty email", in: RegisterInput{Username: "u", Password: "p", Role: "buyer"}},
		{name: "unknown role", in: RegisterInput{Username: "u", Password: "p", Role: "user", Email: "e@x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestAuthService_Register_DuplicateIsConflict(t *testing.T) {
	svc, pub := newTestAuthService(t)
	ctx := context.Background()

	first := register(t, svc, "alice", "buyer")
	assert.NotZero(t, first.ID)
	assert.NotEqual(t, "password", first.PasswordHash)

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "other", Role: "seller", Email: "a2@x"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	var count int64
	require.NoError(t, svc.Repo.DB.Model(&models.User{}).Where("username = ?", "alice").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "user_events", pub.events[0].topic)
}

func TestAuthService_Login(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	u := register(t, svc, "bob", "seller")

	res, err := svc.Login(ctx, "bob", "password")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)

	claims, err := tokens.AccessClaimsFromToken(res.AccessToken, svc.Tokens.AccessSecret)
	require.NoError(t, err)
	assert.Equal(t, "seller", claims.Role)
	assert.Equal(t, "bob", claims.Username)

	var stored models.RefreshToken
	require.NoError(t, svc.Repo.DB.Where("user_id = ?", u.ID).First(&stored).Error)
	assert.Equal(t, tokens.Sha256Hex(res.RefreshToken), stored.Token)

	_, err = svc.Login(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody", "password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Login(ctx, "", "password")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAuthService_Refresh_RotatesOnce(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	register(t, svc, "carol", "buyer")

	login, err := svc.Login(ctx, "carol", "password")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, next.RefreshToken)

	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestAuthService_Refresh_InvalidToken(t *testing.T) {
	svc, _ := newTestAuthService(t)

	res, err := svc.Refresh(context.Background(), "not-a-valid-jwt")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestAuthService_LogOut_RevokesRefresh(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	register(t, svc, "dave", "buyer")

	require.NoError(t, svc.LogOut(ctx, ""))

	login, err := svc.Login(ctx, "dave", "password")
	require.NoError(t, err)
	require.NoError(t, svc.LogOut(ctx, login.RefreshToken))

	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}
