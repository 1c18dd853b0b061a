package security_test

import (
	"testing"
	"time"

	"github.com/adserve/adzone/internal/security"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func signHS256(t *testing.T, secret []byte, uid, role, iss string, exp time.Time) string {
	t.Helper()

	jc := jwt.MapClaims{
		"uid":  uid,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  exp.Unix(),
		"iss":  iss,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jc)
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestHS256Verifier_VerifyAccessToken(t *testing.T) {
	secret := []byte("supersecret")
	v := security.NewHS256Verifier(string(secret), "adzone-auth")

	t.Run("valid token", func(t *testing.T) {
		token := signHS256(t, secret, "u1", "advertiser", "adzone-auth", time.Now().Add(1*time.Hour))

		claims, err := v.VerifyAccessToken(token)
		assert.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, "advertiser", claims.Role)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signHS256(t, secret, "u1", "advertiser", "adzone-auth", time.Now().Add(-1*time.Minute))

		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenExpired)
	})

	t.Run("wrong signature", func(t *testing.T) {
		token := signHS256(t, []byte("othersecret"), "u1", "admin", "adzone-auth", time.Now().Add(1*time.Hour))

		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token := signHS256(t, secret, "u1", "admin", "someone-else", time.Now().Add(1*time.Hour))

		_, err := v.VerifyAccessToken(token)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("issuer not enforced when unset", func(t *testing.T) {
		lax := security.NewHS256Verifier(string(secret), "")
		token := signHS256(t, secret, "u1", "admin", "whatever", time.Now().Add(1*time.Hour))

		_, err := lax.VerifyAccessToken(token)
		assert.NoError(t, err)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := v.VerifyAccessToken("not.a.jwt")
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		jc := jwt.MapClaims{
			"uid": "u1", "role": "admin",
			"iss": "adzone-auth",
			"exp": time.Now().Add(1 * time.Hour).Unix(),
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jc)
		s, _ := tok.SignedString(secret)

		_, err := v.VerifyAccessToken(s)
		assert.ErrorIs(t, err, security.ErrTokenInvalid)
	})
}
