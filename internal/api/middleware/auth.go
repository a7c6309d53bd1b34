// auth.go — аутентификация запросов Neptunium.
// Bearer — сессионный JWT (HS256), выпущенный при входе или верификации email.
// X-API-Key — долгоживущий ключ пользователя; запрос выполняется от имени владельца.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/neptunium/internal/api/errors"
	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/service"
)

// HeaderAPIKey — заголовок API-ключа.
const HeaderAPIKey = "X-API-Key"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — claims сессионного токена.
	ContextKeyClaims contextKey = "jwt_claims"
	// ContextKeyRequester — личность клиента (пользователь или владелец ключа).
	ContextKeyRequester contextKey = "requester"
)

// TokenParser проверяет сессионные токены. Реализуется service.TokenIssuer.
type TokenParser interface {
	Parse(tokenString string) (*service.Claims, error)
}

// APIKeyAuthenticator проверяет API-ключи. Реализуется service.APIKeyService.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, secret string) (*model.APIKey, error)
}

// Auth — middleware аутентификации.
type Auth struct {
	tokens TokenParser
	keys   APIKeyAuthenticator
	logger *slog.Logger
}

// NewAuth создаёт middleware аутентификации. keys может быть nil:
// тогда заголовок X-API-Key игнорируется.
func NewAuth(tokens TokenParser, keys APIKeyAuthenticator, logger *slog.Logger) *Auth {
	return &Auth{
		tokens: tokens,
		keys:   keys,
		logger: logger.With(slog.String("component", "auth")),
	}
}

// errNoCredentials — запрос без Authorization.
var errNoCredentials = errors.New("отсутствует заголовок Authorization")

// bearerClaims извлекает и проверяет Bearer token.
// Возвращает errNoCredentials, если заголовка нет.
func (a *Auth) bearerClaims(r *http.Request) (*service.Claims, string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, "Отсутствует заголовок Authorization", errNoCredentials
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, "Неверный формат Authorization: ожидается Bearer <token>", service.ErrUnauthorized
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, "Пустой Bearer token", service.ErrUnauthorized
	}

	claims, err := a.tokens.Parse(tokenString)
	if err != nil {
		a.logger.Debug("Токен не прошёл проверку",
			slog.String("error", err.Error()),
			slog.String("remote_addr", ClientIP(r)),
		)
		return nil, "Невалидный или просроченный токен", service.ErrUnauthorized
	}
	if claims.UserID() == "" {
		return nil, "Отсутствует sub в токене", service.ErrUnauthorized
	}
	return claims, "", nil
}

// withClaims помещает claims и личность пользователя в контекст.
func withClaims(r *http.Request, claims *service.Claims) *http.Request {
	ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
	ctx = context.WithValue(ctx, ContextKeyRequester, service.Requester{UserID: claims.UserID()})
	return r.WithContext(ctx)
}

// RequireUser пропускает только запросы с валидным Bearer token.
func (a *Auth) RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, msg, err := a.bearerClaims(r)
			if err != nil {
				apierrors.Unauthorized(w, msg)
				return
			}
			next.ServeHTTP(w, withClaims(r, claims))
		})
	}
}

// OptionalUser принимает анонимные запросы. Присланный, но невалидный
// Bearer token отклоняется с 401.
func (a *Auth) OptionalUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, msg, err := a.bearerClaims(r)
			switch {
			case errors.Is(err, errNoCredentials):
				next.ServeHTTP(w, r)
			case err != nil:
				apierrors.Unauthorized(w, msg)
			default:
				next.ServeHTTP(w, withClaims(r, claims))
			}
		})
	}
}

// OptionalIdentity принимает анонимные запросы, Bearer token или X-API-Key.
// Bearer проверяется первым. Присланный, но невалидный ключ отклоняется с 401.
func (a *Auth) OptionalIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, msg, err := a.bearerClaims(r)
			if err == nil {
				next.ServeHTTP(w, withClaims(r, claims))
				return
			}
			if !errors.Is(err, errNoCredentials) {
				apierrors.Unauthorized(w, msg)
				return
			}

			secret := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
			if secret == "" || a.keys == nil {
				next.ServeHTTP(w, r)
				return
			}

			key, err := a.keys.Authenticate(r.Context(), secret)
			if err != nil {
				a.writeKeyError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyRequester, service.Requester{
				UserID:   key.UserID,
				APIKeyID: key.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeKeyError отвечает на отказ проверки API-ключа.
func (a *Auth) writeKeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAPIKey):
		apierrors.InvalidAPIKey(w, service.ErrInvalidAPIKey.Error())
	case errors.Is(err, service.ErrRateLimited):
		apierrors.RateLimited(w, service.PublicMessage(err, service.ErrRateLimited))
	case errors.Is(err, service.ErrDependencyTimeout):
		a.logger.Error("Таймаут проверки API-ключа", slog.String("error", err.Error()))
		apierrors.DependencyTimeout(w, service.ErrDependencyTimeout.Error())
	default:
		a.logger.Error("Ошибка проверки API-ключа", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// ClaimsFromContext извлекает claims сессионного токена из контекста.
// Возвращает nil, если запрос не аутентифицирован через Bearer.
func ClaimsFromContext(ctx context.Context) *service.Claims {
	claims, _ := ctx.Value(ContextKeyClaims).(*service.Claims)
	return claims
}

// RequesterFromContext возвращает личность клиента; для анонимного
// запроса — пустой Requester.
func RequesterFromContext(ctx context.Context) service.Requester {
	requester, _ := ctx.Value(ContextKeyRequester).(service.Requester)
	return requester
}
