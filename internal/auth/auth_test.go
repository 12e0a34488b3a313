package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/basalthq/basalt/internal/config"
)

func TestCheck(t *testing.T) {
	admin := &Principal{ID: "u1", Role: RoleAdmin}
	user := &Principal{ID: "u2", Role: RoleUser}

	tests := []struct {
		name      string
		principal *Principal
		mode      Mode
		want      bool
	}{
		{"public anonymous", nil, ModePublic, true},
		{"public authenticated", user, ModePublic, true},
		{"authenticated anonymous", nil, ModeAuthenticated, false},
		{"authenticated user", user, ModeAuthenticated, true},
		{"admin user", user, ModeAdmin, false},
		{"admin admin", admin, ModeAdmin, true},
		{"admin anonymous", nil, ModeAdmin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Check(tt.principal, tt.mode))
		})
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("admin")
	require.NoError(t, err)
	require.Equal(t, ModeAdmin, mode)

	// Empty defaults to public
	mode, err = ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModePublic, mode)

	_, err = ParseMode("root")
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestVerifier(t *testing.T) {
	secret := "test-secret"
	verifier := NewVerifier(config.AuthConfig{JWTSecret: secret})

	signToken := func(claims jwt.MapClaims) string {
		t.Helper()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)
		return signed
	}

	t.Run("valid token", func(t *testing.T) {
		token := signToken(jwt.MapClaims{
			"sub":   "user-1",
			"email": "user@example.com",
			"role":  RoleAdmin,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		p, err := verifier.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "user-1", p.ID)
		require.Equal(t, "user@example.com", p.Email)
		require.True(t, p.IsAdmin())
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := verifier.Verify(token)
		require.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("other-secret"))
		require.NoError(t, err)

		_, err = verifier.Verify(signed)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := verifier.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRuleEngine(t *testing.T) {
	engine, err := NewRuleEngine()
	require.NoError(t, err)

	require.NoError(t, engine.Compile("reports", `principal.role == "admin" || ("public" in payload && payload.public == true)`))

	t.Run("allowed by role", func(t *testing.T) {
		ok, err := engine.Evaluate("reports", &Principal{ID: "u1", Role: RoleAdmin}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("allowed by payload", func(t *testing.T) {
		ok, err := engine.Evaluate("reports", &Principal{ID: "u2", Role: RoleUser}, map[string]any{"public": true})
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("denied", func(t *testing.T) {
		ok, err := engine.Evaluate("reports", &Principal{ID: "u2", Role: RoleUser}, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("no rule means allowed", func(t *testing.T) {
		ok, err := engine.Evaluate("unknown", nil, nil)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("invalid expression", func(t *testing.T) {
		err := engine.Compile("bad", `principal.role ==`)
		require.ErrorIs(t, err, ErrInvalidRuleExpr)
	})

	t.Run("clear removes rules", func(t *testing.T) {
		engine.Clear()
		require.False(t, engine.HasRule("reports"))
	})
}
