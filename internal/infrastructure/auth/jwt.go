package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

var ErrInvalidToken = errors.New("invalid token")

// Claims - токен выдаётся фронтенду бота от имени telegram-пользователя.
type Claims struct {
	UserID int64  `json:"user_id"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewJWTManager(secretKey string, ttl time.Duration) (*JWTManager, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secretKey: []byte(secretKey), ttl: ttl, now: time.Now}, nil
}

// GenerateAccessToken генерирует access token для пользователя
func (m *JWTManager) GenerateAccessToken(userID int64) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		Type:   accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, nil
}

// ValidateAccessToken проверяет access token
func (m *JWTManager) ValidateAccessToken(tokenString string) (*entity.JWTClaims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	// Проверяем тип токена
	if claims.Type != accessTokenType {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidToken, claims.Type)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: empty user_id", ErrInvalidToken)
	}
	return &entity.JWTClaims{UserID: claims.UserID}, nil
}
