package middleware

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken выпускает HS256-токен, который принимает Authenticate.
// Выдача токенов — не задача сервиса; используется cmd/genjwt и тестами.
func SignToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
