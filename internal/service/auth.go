// auth.go — регистрация с подтверждением email, вход и выпуск сессий.
// Пользователь создаётся только после ввода верного кода; до этого
// данные регистрации живут в эфемерном хранилище.
package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/neptunium/internal/cache"
	"github.com/bigkaa/neptunium/internal/domain/ident"
	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/domain/validation"
	"github.com/bigkaa/neptunium/internal/repository"
)

// Метрики аутентификации.
var (
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "np_registrations_total",
		Help: "Шаги регистрации по результату.",
	}, []string{"step", "result"})
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "np_logins_total",
		Help: "Попытки входа по результату.",
	}, []string{"result"})
)

// DefaultBcryptCost — стоимость bcrypt для паролей.
const DefaultBcryptCost = 12

// dummyPasswordHash сравнивается при неизвестном email, чтобы время ответа
// не выдавало существование пользователя.
var dummyPasswordHash, _ = bcrypt.GenerateFromPassword([]byte("neptunium-dummy-password"), bcrypt.MinCost)

// Mailer — отправка писем пользователям.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code, acceptLanguage string, validity time.Duration) error
	SendWelcome(ctx context.Context, to, acceptLanguage string) error
}

// UnitOfWork выполняет fn в одной транзакции с репозиториями, привязанными к ней.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(users repository.UserRepository, codes repository.VerificationCodeRepository) error) error
}

type pgUnitOfWork struct {
	tx *repository.TxRunner
}

// NewUnitOfWork создаёт UnitOfWork поверх транзакций PostgreSQL.
func NewUnitOfWork(tx *repository.TxRunner) UnitOfWork {
	return &pgUnitOfWork{tx: tx}
}

func (u *pgUnitOfWork) Do(ctx context.Context, fn func(users repository.UserRepository, codes repository.VerificationCodeRepository) error) error {
	return u.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(repository.NewUserRepository(tx), repository.NewVerificationCodeRepository(tx))
	})
}

// AuthSettings — параметры регистрации.
type AuthSettings struct {
	CodeTTL          time.Duration
	CodeMaxAttempts  int
	CodeCooldown     time.Duration
	RegisterIPLimit  int
	RegisterIPWindow time.Duration
	RegistrationTTL  time.Duration
	BcryptCost       int
}

// AuthService — регистрация, подтверждение email и вход.
type AuthService struct {
	users    repository.UserRepository
	codes    repository.VerificationCodeRepository
	sessions repository.SessionRepository
	uow      UnitOfWork
	store    cache.Store
	mailer   Mailer
	tokens   *TokenIssuer
	audit    *Auditor
	settings AuthSettings
	now      func() time.Time
	logger   *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(
	users repository.UserRepository,
	codes repository.VerificationCodeRepository,
	sessions repository.SessionRepository,
	uow UnitOfWork,
	store cache.Store,
	mailer Mailer,
	tokens *TokenIssuer,
	audit *Auditor,
	settings AuthSettings,
	logger *slog.Logger,
) *AuthService {
	if settings.BcryptCost == 0 {
		settings.BcryptCost = DefaultBcryptCost
	}
	return &AuthService{
		users:    users,
		codes:    codes,
		sessions: sessions,
		uow:      uow,
		store:    store,
		mailer:   mailer,
		tokens:   tokens,
		audit:    audit,
		settings: settings,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "auth_service")),
	}
}

// RegisterInput — запрос регистрации.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Meta            RequestMeta
}

// RegisterResult — ответ на запрос регистрации.
type RegisterResult struct {
	Message   string
	Email     string
	ExpiresIn int
}

// pendingRegistration — данные регистрации до подтверждения email.
type pendingRegistration struct {
	PasswordHash string    `json:"passwordHash"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"userAgent"`
	CreatedAt    time.Time `json:"createdAt"`
}

// normalizeEmail приводит email к каноническому виду.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register проверяет данные, выдаёт код подтверждения и отправляет его на email.
// Пользователь не создаётся до VerifyEmail.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (result *RegisterResult, err error) {
	email := normalizeEmail(in.Email)

	if r := validation.Email(email); !r.IsValid {
		return nil, validationError(r.Message)
	}
	if r := validation.Password(in.Password, in.ConfirmPassword); !r.IsValid {
		return nil, validationError(r.Message)
	}

	// Лимит регистраций с одного IP: здесь только проверка, учёт после отправки письма
	if err := s.checkRegisterIPLimit(ctx, in.Meta.IP); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, dependencyError("проверка email", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: пользователь с таким email уже зарегистрирован", ErrConflict)
	}

	// Cooldown повторной отправки
	acquired, err := s.store.SetNX(ctx, cache.CooldownKey(email), "1", s.settings.CodeCooldown)
	if err != nil {
		return nil, dependencyError("cooldown отправки кода", err)
	}
	if !acquired {
		registrationsTotal.WithLabelValues("register", "cooldown").Inc()
		return nil, fmt.Errorf("%w: повторная отправка кода возможна через %d секунд",
			ErrRateLimited, int(s.settings.CodeCooldown.Seconds()))
	}
	// При ошибке на любом следующем шаге cooldown снимается, чтобы можно было повторить сразу.
	defer func() {
		if err != nil {
			if delErr := s.store.Delete(context.WithoutCancel(ctx), cache.CooldownKey(email)); delErr != nil {
				s.logger.Warn("Не удалось снять cooldown", slog.String("error", delErr.Error()))
			}
		}
	}()

	code, err := ident.VerificationCode()
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации кода: %w", err)
	}

	if err := s.codes.Create(ctx, &model.VerificationCode{
		Email:       email,
		Code:        code,
		Type:        model.VerificationTypeEmail,
		MaxAttempts: s.settings.CodeMaxAttempts,
		ExpiresAt:   s.now().Add(s.settings.CodeTTL),
	}); err != nil {
		return nil, dependencyError("сохранение кода", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.settings.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хэширования пароля: %w", err)
	}
	payload, err := json.Marshal(pendingRegistration{
		PasswordHash: string(hash),
		IP:           in.Meta.IP,
		UserAgent:    in.Meta.UserAgent,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации регистрации: %w", err)
	}
	if err := s.store.Set(ctx, cache.TempRegisterKey(email), string(payload), s.settings.RegistrationTTL); err != nil {
		return nil, dependencyError("сохранение данных регистрации", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, email, code, in.Meta.AcceptLanguage, s.settings.CodeTTL); err != nil {
		registrationsTotal.WithLabelValues("register", "email_failed").Inc()
		return nil, dependencyError("отправка кода подтверждения", err)
	}

	if in.Meta.IP != "" {
		if _, incrErr := s.store.Incr(ctx, cache.RegisterIPKey(in.Meta.IP), s.settings.RegisterIPWindow); incrErr != nil {
			s.logger.Warn("Не удалось учесть регистрацию по IP",
				slog.String("ip", in.Meta.IP),
				slog.String("error", incrErr.Error()),
			)
		}
	}

	registrationsTotal.WithLabelValues("register", "ok").Inc()
	s.logger.Info("Код подтверждения отправлен", slog.String("email", email))

	return &RegisterResult{
		Message:   "Код подтверждения отправлен на ваш email",
		Email:     email,
		ExpiresIn: int(s.settings.CodeTTL.Seconds()),
	}, nil
}

// checkRegisterIPLimit отклоняет регистрацию, если IP исчерпал лимит окна.
// Учитываются только регистрации, по которым письмо ушло.
func (s *AuthService) checkRegisterIPLimit(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	raw, err := s.store.Get(ctx, cache.RegisterIPKey(ip))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil
		}
		return dependencyError("счётчик регистраций по IP", err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn("Некорректный счётчик регистраций по IP",
			slog.String("ip", ip),
			slog.String("value", raw),
		)
		return nil
	}
	if n >= int64(s.settings.RegisterIPLimit) {
		registrationsTotal.WithLabelValues("register", "ip_limited").Inc()
		return fmt.Errorf("%w: превышен лимит регистраций с этого IP", ErrRateLimited)
	}
	return nil
}

// VerifyInput — запрос подтверждения email.
type VerifyInput struct {
	Email string
	Code  string
	Meta  RequestMeta
}

// AuthResult — выпущенная сессия.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresIn int
}

// VerifyEmail проверяет самый свежий код для email и создаёт пользователя.
// Создание пользователя и погашение кода выполняются в одной транзакции.
func (s *AuthService) VerifyEmail(ctx context.Context, in VerifyInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	code := strings.TrimSpace(in.Code)

	if email == "" || code == "" {
		return nil, validationError("email и код подтверждения обязательны")
	}
	if !validation.SixDigitCode(code) {
		return nil, validationError("код подтверждения должен состоять из 6 цифр")
	}

	stored, err := s.codes.GetLatest(ctx, email, model.VerificationTypeEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, dependencyError("получение кода", err)
	}
	if stored.UsedAt != nil {
		return nil, ErrCodeInvalid
	}
	if stored.AttemptsExhausted() {
		registrationsTotal.WithLabelValues("verify", "attempts_exceeded").Inc()
		return nil, ErrCodeAttemptsExceeded
	}
	if stored.IsExpired(s.now()) {
		return nil, ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(code)) != 1 {
		if _, err := s.codes.IncrementAttempts(ctx, stored.ID); err != nil {
			return nil, dependencyError("учёт попытки", err)
		}
		registrationsTotal.WithLabelValues("verify", "mismatch").Inc()
		return nil, ErrCodeMismatch
	}

	raw, err := s.store.Get(ctx, cache.TempRegisterKey(email))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrRegistrationExpired
		}
		return nil, dependencyError("получение данных регистрации", err)
	}
	var pending pendingRegistration
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		s.logger.Warn("Повреждённые данные регистрации", slog.String("email", email), slog.String("error", err.Error()))
		return nil, ErrRegistrationExpired
	}

	regIP := pending.IP
	if regIP == "" {
		regIP = in.Meta.IP
	}
	user := &model.User{
		Email:        email,
		PasswordHash: pending.PasswordHash,
		IsVerified:   true,
		ProfileData: map[string]any{
			"registeredAt":   s.now().UTC().Format(time.RFC3339),
			"registrationIP": regIP,
		},
	}

	err = s.uow.Do(ctx, func(users repository.UserRepository, codes repository.VerificationCodeRepository) error {
		if err := users.Create(ctx, user); err != nil {
			return err
		}
		return codes.MarkUsed(ctx, stored.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: пользователь с таким email уже зарегистрирован", ErrConflict)
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrCodeInvalid
		default:
			return nil, dependencyError("создание пользователя", err)
		}
	}

	registrationsTotal.WithLabelValues("verify", "ok").Inc()
	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	if err := s.store.Delete(ctx, cache.TempRegisterKey(email)); err != nil {
		s.logger.Warn("Не удалось удалить данные регистрации", slog.String("error", err.Error()))
	}

	result, err := s.startSession(ctx, user, in.Meta, "Пользователь подтвердил email")
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendWelcome(context.WithoutCancel(ctx), email, in.Meta.AcceptLanguage); err != nil {
		s.logger.Warn("Не удалось отправить приветственное письмо",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}

	return result, nil
}

// LoginInput — запрос входа.
type LoginInput struct {
	Email    string
	Password string
	Meta     RequestMeta
}

// Login проверяет пароль и выпускает сессию. Неизвестный email и неверный
// пароль неразличимы для клиента.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)

	if r := validation.Email(email); !r.IsValid {
		return nil, validationError(r.Message)
	}
	if in.Password == "" {
		return nil, validationError("пароль обязателен")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(in.Password))
			loginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, dependencyError("поиск пользователя", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		loginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		loginsTotal.WithLabelValues("not_verified").Inc()
		return nil, ErrEmailNotVerified
	}

	loginsTotal.WithLabelValues("ok").Inc()
	return s.startSession(ctx, user, in.Meta, "Пользователь вошёл в систему")
}

// startSession выпускает токен и выполняет best-effort шаги входа:
// last_login_at, запись сессии и системный журнал.
func (s *AuthService) startSession(ctx context.Context, user *model.User, meta RequestMeta, event string) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Не удалось обновить last_login_at",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	if err := s.sessions.Create(ctx, &model.Session{
		UserID:    user.ID,
		TokenHash: ident.HashSecret(token),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		ExpiresAt: expiresAt,
	}); err != nil {
		s.logger.Warn("Не удалось сохранить сессию",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.audit.System(ctx, model.LogLevelInfo, event, &user.ID, meta, map[string]any{"email": user.Email})

	return &AuthResult{
		User:      user,
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
	}, nil
}
