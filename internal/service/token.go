// token.go — выпуск и проверка сессионных токенов (HS256 JWT).
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// Claims — claims сессионного токена.
type Claims struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя (sub).
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenIssuer подписывает и проверяет токены общим секретом.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer создаёт TokenIssuer. secret — не короче 32 байт (проверяется в config).
func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// TTL возвращает время жизни токена.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue выпускает токен для пользователя и возвращает его вместе с временем истечения.
func (t *TokenIssuer) Issue(u *model.User) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)

	claims := Claims{
		Email:   u.Email,
		IsAdmin: u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет подпись, алгоритм, издателя и срок действия токена.
// Любая ошибка проверки — ErrUnauthorized.
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("неожиданный алгоритм подписи: %v", token.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: срок действия токена истёк", ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err) //nolint:errorlint // намеренный двойной wrap
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: некорректный токен", ErrUnauthorized)
	}
	return claims, nil
}
