package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type fakeUsers struct {
	byEmail map[string]*model.User
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func newAuthService(t *testing.T) (*AuthService, *fakeUsers) {
	t.Helper()
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, BcryptCost: 4}
	users := &fakeUsers{byEmail: map[string]*model.User{}}
	s := NewAuthService(cfg, nil, users)

	hash, err := s.HashPassword("invigilate")
	require.NoError(t, err)
	users.byEmail["admin@example.com"] = &model.User{
		ID: 1, Email: "admin@example.com", Name: "Admin", Role: model.RoleAdmin, PasswordHash: hash,
	}
	return s, users
}

func TestAuthService_PasswordRoundTrip(t *testing.T) {
	s, _ := newAuthService(t)

	hash, err := s.HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NoError(t, s.CheckPassword(hash, "s3cret!"))
	assert.ErrorIs(t, s.CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestAuthService_AdminLoginIssuesValidToken(t *testing.T) {
	s, _ := newAuthService(t)

	resp, err := s.Login(context.Background(), "admin@example.com", "invigilate")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.User.ID)

	claims, err := s.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestAuthService_LoginRejectsBadCredentials(t *testing.T) {
	s, _ := newAuthService(t)

	_, err := s.Login(context.Background(), "admin@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(context.Background(), "ghost@example.com", "invigilate")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_ValidateTokenRejectsForeignSignature(t *testing.T) {
	s, _ := newAuthService(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           1,
		Role:             model.RoleAdmin,
	})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = s.ValidateToken(signed)
	assert.Error(t, err)
}

func TestAuthService_ValidateTokenRejectsExpired(t *testing.T) {
	s, _ := newAuthService(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		UserID:           1,
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = s.ValidateToken(signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestAuthService_CurrentUserFromContext(t *testing.T) {
	s, _ := newAuthService(t)

	_, err := s.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrNoClaims)

	ctx := WithClaims(context.Background(), &Claims{UserID: 9, Email: "s@example.com", Name: "Sari", Role: model.RoleStudent})
	user, err := s.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.User{ID: 9, Email: "s@example.com", Name: "Sari", Role: model.RoleStudent}, user)
}
