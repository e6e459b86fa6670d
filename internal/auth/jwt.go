// Package auth проверяет bearer-токены и передаёт id пользователя
// через контекст запроса.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
)

var ErrInvalidToken = apperror.New(apperror.Unauthenticated, "invalid or expired token")

type Verifier interface {
	VerifyToken(token string) (int64, error)
}

// Claims содержит числовой id пользователя рядом со стандартными полями.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

func (v *JWTVerifier) VerifyToken(token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, apperror.New(apperror.Unauthenticated, "token has expired")
		}
		return 0, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return 0, ErrInvalidToken
	}

	return claims.UserID, nil
}

// Issue подписывает токен для userID. Сам сервис никого не аутентифицирует,
// метод нужен для утилит и тестов.
func (v *JWTVerifier) Issue(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}
