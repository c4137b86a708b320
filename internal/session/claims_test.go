package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestParseAccessClaims(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token := signedToken(t, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})

	claims, err := ParseAccessClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(exp))
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Second)))
}

func TestParseAccessClaimsOpaqueToken(t *testing.T) {
	_, err := ParseAccessClaims("A1")
	require.Error(t, err)

	_, err = ParseAccessClaims("")
	require.Error(t, err)
}

func TestCredentialsOAuth2Token(t *testing.T) {
	assert.Nil(t, Credentials{}.OAuth2Token())

	tok := Credentials{AccessToken: "A1", RefreshToken: "R1"}.OAuth2Token()
	require.NotNil(t, tok)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Expiry.IsZero(), "opaque tokens carry no expiry")

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	jwtTok := Credentials{AccessToken: signedToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})}.OAuth2Token()
	assert.True(t, jwtTok.Expiry.Equal(exp))
}

func TestUserHasRole(t *testing.T) {
	u := alice()
	assert.True(t, u.HasRole(RoleAdmin))
	assert.False(t, u.HasRole(RoleChofer))

	var none *User
	assert.False(t, none.HasRole(RoleAdmin))
}
