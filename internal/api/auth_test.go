package api

import (
	"net/http"
	"testing"
	"time"

	"tripdesk/internal/config"
	"tripdesk/internal/models"
	"tripdesk/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticatorRoundTrip(t *testing.T) {
	auth := NewAuthenticator(config.APIAuthConfig{JWTSecret: "s3cret", Issuer: "tripdesk"})
	partner := int64(11)
	in := service.Caller{UserID: 3, Role: models.RoleSalesPartner, SalesPartnerID: &partner}

	tok, err := auth.Issue(in, time.Minute)
	require.NoError(t, err)

	got, err := auth.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(config.APIAuthConfig{JWTSecret: "s3cret", Issuer: "tripdesk"})
	caller := service.Caller{UserID: 3, Role: models.RoleUser}

	expired, err := auth.Issue(caller, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewAuthenticator(config.APIAuthConfig{JWTSecret: "other", Issuer: "tripdesk"}).Issue(caller, time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewAuthenticator(config.APIAuthConfig{JWTSecret: "s3cret", Issuer: "someone-else"}).Issue(caller, time.Minute)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "3",
			Issuer:    "tripdesk",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "3", Issuer: "tripdesk"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"unknown role": badRole,
		"no expiry":    noExpiry,
		"garbage":      "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Parse(tok)
			assert.ErrorIs(t, err, errInvalidToken)
		})
	}
}

func TestFromRequest(t *testing.T) {
	auth := NewAuthenticator(config.APIAuthConfig{JWTSecret: "s3cret"})

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	_, err := auth.FromRequest(r)
	assert.ErrorIs(t, err, errMissingToken)

	r.Header.Set("Authorization", "Basic abc")
	_, err = auth.FromRequest(r)
	assert.ErrorIs(t, err, errInvalidToken)

	tok, err := auth.Issue(service.Caller{UserID: 5}, time.Minute)
	require.NoError(t, err)
	r.Header.Set("Authorization", "bearer "+tok)
	caller, err := auth.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, int64(5), caller.UserID)
	assert.Equal(t, models.RoleUser, caller.Role)
}
