package firmauth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmdesk/firmauth"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	service := firmauth.NewTokenService([]byte("test-signing-key"), 24, "test-issuer", []string{"test:audience"}, nil)

	identity := TestIdentity{
		id:       "account-1",
		email:    "test@example.com",
		role:     firmauth.RoleProjectManager,
		firmID:   "firm-1",
		clientID: "client-1",
	}

	token, err := service.Generate(identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, "account-1", claims.Subject())
	assert.Equal(t, "account-1", claims.AccountID())
	assert.Equal(t, firmauth.RoleProjectManager, claims.Role())
	assert.Equal(t, "firm-1", claims.FirmID())
	assert.Equal(t, "client-1", claims.ClientID())
	assert.True(t, claims.HasRole(firmauth.RoleProjectManager))
	assert.True(t, claims.IsAtLeast(firmauth.RoleTeamMember))
	assert.False(t, claims.IsAtLeast(firmauth.RoleAdmin))
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.Expires(), time.Minute)
}

func TestTokenServiceGenerate(t *testing.T) {
	t.Run("Nil identity is rejected", func(t *testing.T) {
		service := firmauth.NewTokenService([]byte("test-signing-key"), 24, "test-issuer", nil, nil)
		_, err := service.Generate(nil)
		assert.Error(t, err)
	})

	t.Run("Zero expiration falls back to the default", func(t *testing.T) {
		service := firmauth.NewTokenService([]byte("test-signing-key"), 0, "test-issuer", nil, nil)

		token, err := service.Generate(TestIdentity{id: "account-1", role: firmauth.RoleCustomer})
		require.NoError(t, err)

		claims, err := service.Validate(token)
		require.NoError(t, err)

		expected := time.Now().Add(firmauth.DefaultTokenExpiration * time.Hour)
		assert.WithinDuration(t, expected, claims.Expires(), time.Minute)
	})

	t.Run("Tokens carry a unique identifier", func(t *testing.T) {
		service := firmauth.NewTokenService([]byte("test-signing-key"), 24, "test-issuer", nil, nil)

		first, err := service.Generate(TestIdentity{id: "account-1", role: firmauth.RoleCustomer})
		require.NoError(t, err)
		second, err := service.Generate(TestIdentity{id: "account-1", role: firmauth.RoleCustomer})
		require.NoError(t, err)

		parse := func(token string) *firmauth.SessionClaims {
			parsed, err := jwt.ParseWithClaims(token, &firmauth.SessionClaims{}, func(t *jwt.Token) (any, error) {
				return []byte("test-signing-key"), nil
			})
			require.NoError(t, err)
			return parsed.Claims.(*firmauth.SessionClaims)
		}

		assert.NotEqual(t, parse(first).RegisteredClaims.ID, parse(second).RegisteredClaims.ID)
	})
}

func TestTokenServiceValidate(t *testing.T) {
	service := firmauth.NewTokenService([]byte("test-signing-key"), 24, "test-issuer", []string{"test:audience"}, nil)

	sign := func(t *testing.T, key []byte, claims *firmauth.SessionClaims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString(key)
		require.NoError(t, err)
		return signed
	}

	baseClaims := func(expires time.Time) *firmauth.SessionClaims {
		return &firmauth.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   "account-1",
				Audience:  jwt.ClaimStrings{"test:audience"},
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(expires),
			},
			UID:         "account-1",
			AccountRole: firmauth.RoleAdmin,
			Firm:        "firm-1",
		}
	}

	t.Run("Expired token", func(t *testing.T) {
		token := sign(t, []byte("test-signing-key"), baseClaims(time.Now().Add(-time.Hour)))

		_, err := service.Validate(token)
		assert.ErrorIs(t, err, firmauth.ErrTokenExpired)
		assert.True(t, firmauth.IsTokenExpiredError(err))
	})

	t.Run("Wrong signing key", func(t *testing.T) {
		token := sign(t, []byte("some-other-key"), baseClaims(time.Now().Add(time.Hour)))

		_, err := service.Validate(token)
		assert.Error(t, err)
		assert.True(t, firmauth.IsMalformedError(err))
	})

	t.Run("Wrong issuer", func(t *testing.T) {
		claims := baseClaims(time.Now().Add(time.Hour))
		claims.RegisteredClaims.Issuer = "evil-issuer"
		token := sign(t, []byte("test-signing-key"), claims)

		_, err := service.Validate(token)
		assert.True(t, firmauth.IsMalformedError(err))
	})

	t.Run("Wrong audience", func(t *testing.T) {
		claims := baseClaims(time.Now().Add(time.Hour))
		claims.RegisteredClaims.Audience = jwt.ClaimStrings{"other:audience"}
		token := sign(t, []byte("test-signing-key"), claims)

		_, err := service.Validate(token)
		assert.True(t, firmauth.IsMalformedError(err))
	})

	t.Run("Garbage input", func(t *testing.T) {
		_, err := service.Validate("not.a.token")
		assert.True(t, firmauth.IsMalformedError(err))
	})
}
