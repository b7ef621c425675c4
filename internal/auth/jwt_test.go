package auth

import (
	"testing"
	"time"

	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndParseToken(t *testing.T) {
	provider := NewProvider("secret", time.Hour)
	user := &models.User{ID: 42, Username: "alice", Roles: []models.RoleType{models.RoleAdmin, models.RoleUser}}

	token, err := provider.CreateToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := provider.ParseToken(token)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"ADMIN", "USER"}, claims.Roles)
	assert.NotEmpty(t, claims.ID, "каждый токен получает уникальный jti")

	principal := claims.Principal()
	assert.Equal(t, int64(42), principal.UserID)
	assert.True(t, principal.IsAdmin())
}

func TestParseTokenRejections(t *testing.T) {
	provider := NewProvider("secret", time.Hour)
	user := &models.User{ID: 1, Username: "alice", Roles: []models.RoleType{models.RoleUser}}

	valid, err := provider.CreateToken(user)
	require.NoError(t, err)

	expiredProvider := &Provider{secret: []byte("secret"), ttl: -time.Minute}
	expired, err := expiredProvider.CreateToken(user)
	require.NoError(t, err)

	foreignProvider := NewProvider("other-secret", time.Hour)
	foreign, err := foreignProvider.CreateToken(user)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  struct {
			err error
		}
	}{
		{
			name:  "garbage token",
			token: "not-a-jwt",
			want: struct {
				err error
			}{
				err: errs.ErrUnauthorized,
			},
		},
		{
			name:  "expired token",
			token: expired,
			want: struct {
				err error
			}{
				err: errs.ErrUnauthorized,
			},
		},
		{
			name:  "token signed with another secret",
			token: foreign,
			want: struct {
				err error
			}{
				err: errs.ErrUnauthorized,
			},
		},
		{
			name:  "valid token",
			token: valid,
			want: struct {
				err error
			}{
				err: nil,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.ParseToken(tt.token)
			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewProviderDefaultsTTL(t *testing.T) {
	provider := NewProvider("secret", 0)
	assert.Equal(t, DefaultTokenTTL, provider.TTL())
}

func TestEachTokenGetsFreshID(t *testing.T) {
	provider := NewProvider("secret", time.Hour)
	user := &models.User{ID: 1, Username: "alice", Roles: []models.RoleType{models.RoleUser}}

	first, err := provider.CreateToken(user)
	require.NoError(t, err)
	second, err := provider.CreateToken(user)
	require.NoError(t, err)

	firstClaims, err := provider.ParseToken(first)
	require.NoError(t, err)
	secondClaims, err := provider.ParseToken(second)
	require.NoError(t, err)

	assert.NotEqual(t, firstClaims.ID, secondClaims.ID)
}
