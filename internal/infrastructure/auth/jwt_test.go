package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m, err := NewJWTManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	token, err := m.GenerateAccessToken(42)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("Expected user 42, got %d", claims.UserID)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m, _ := NewJWTManager("secret", time.Hour)
	other, _ := NewJWTManager("other-secret", time.Hour)

	foreign, _ := other.GenerateAccessToken(42)

	expiredIssuer, _ := NewJWTManager("secret", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredIssuer.GenerateAccessToken(42)

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 42,
		Type:   "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	refreshToken, _ := refresh.SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: expired},
		{name: "wrong type", token: refreshToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateAccessToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewJWTManager_EmptySecret(t *testing.T) {
	if _, err := NewJWTManager("", time.Hour); err == nil {
		t.Error("Expected error for empty secret")
	}
}
