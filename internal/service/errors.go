// errors.go — ошибки бизнес-логики сервисного слоя.
// Каждая ошибка однозначно отображается в HTTP-статус и код ответа.
package service

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bigkaa/neptunium/internal/repository"
)

var (
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthorized — требуется аутентификация.
	ErrUnauthorized = errors.New("требуется аутентификация")
	// ErrInvalidCredentials — неверный email или пароль.
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrInvalidAPIKey — API-ключ не найден, выключен или истёк.
	ErrInvalidAPIKey = errors.New("недействительный API-ключ")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrEmailNotVerified — email пользователя не подтверждён.
	ErrEmailNotVerified = errors.New("email не подтверждён")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — ресурс уже существует.
	ErrConflict = errors.New("ресурс уже существует")
	// ErrGone — срок действия файла истёк.
	ErrGone = errors.New("срок действия файла истёк")
	// ErrCodeInvalid — код не найден или уже использован.
	ErrCodeInvalid = errors.New("код подтверждения недействителен или истёк")
	// ErrCodeExpired — срок действия кода истёк.
	ErrCodeExpired = errors.New("срок действия кода истёк")
	// ErrCodeMismatch — код не совпадает.
	ErrCodeMismatch = errors.New("неверный код подтверждения")
	// ErrCodeAttemptsExceeded — исчерпан лимит попыток ввода кода.
	ErrCodeAttemptsExceeded = errors.New("превышено количество попыток, запросите новый код")
	// ErrRegistrationExpired — временные данные регистрации истекли.
	ErrRegistrationExpired = errors.New("данные регистрации истекли, зарегистрируйтесь заново")
	// ErrRateLimited — превышен лимит частоты запросов.
	ErrRateLimited = errors.New("слишком много запросов, попробуйте позже")
	// ErrKeyLimitExceeded — достигнут лимит API-ключей пользователя.
	ErrKeyLimitExceeded = errors.New("достигнут лимит API-ключей")
	// ErrIDSpaceExhausted — не удалось подобрать свободный ID за отведённые попытки.
	ErrIDSpaceExhausted = errors.New("не удалось выделить идентификатор файла")
	// ErrDependency — отказ внешней зависимости (БД, кэш, хранилище, почта).
	ErrDependency = errors.New("внешняя зависимость недоступна")
	// ErrDependencyTimeout — внешняя зависимость не ответила вовремя.
	ErrDependencyTimeout = errors.New("внешняя зависимость не ответила вовремя")
)

// validationError оборачивает сообщение валидации в ErrValidation.
func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// detailedKinds — ошибки, уточнение которых можно показать клиенту как есть.
var detailedKinds = []error{ErrValidation, ErrRateLimited, ErrConflict}

// PublicMessage возвращает сообщение для клиента. Для detailedKinds это
// уточнение без префикса, для остальных ошибок таксономии их общий текст.
func PublicMessage(err error, kind error) string {
	if !errors.Is(err, kind) {
		return err.Error()
	}
	for _, k := range detailedKinds {
		if k != kind {
			continue
		}
		if msg, ok := strings.CutPrefix(err.Error(), k.Error()+": "); ok {
			return msg
		}
	}
	return kind.Error()
}

// dependencyError классифицирует ошибку инфраструктуры: таймаут или отказ.
func dependencyError(what string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %w", ErrDependencyTimeout, what, err) //nolint:errorlint // намеренный двойной wrap
	}
	return fmt.Errorf("%w: %s: %w", ErrDependency, what, err) //nolint:errorlint // намеренный двойной wrap
}

// isTimeout распознаёт таймауты PostgreSQL, контекста и сетевых клиентов.
func isTimeout(err error) bool {
	if repository.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
