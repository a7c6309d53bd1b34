package model

import "time"

// User — зарегистрированный пользователь.
// Создаётся только после успешной верификации email, не удаляется.
type User struct {
	// ID — UUID пользователя
	ID string
	// Email — уникальный адрес (в нижнем регистре)
	Email string
	// PasswordHash — bcrypt-хэш пароля
	PasswordHash string
	// IsVerified — email подтверждён
	IsVerified bool
	// IsAdmin — административный флаг
	IsAdmin bool
	// ProfileData — произвольные данные профиля (registeredAt, registrationIP)
	ProfileData map[string]any
	// LastLoginAt — время последнего входа
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserStats — агрегаты по пользователям для dashboard.
type UserStats struct {
	Total              int64
	Verified           int64
	TodayRegistrations int64
}

// Session — выданный сессионный токен.
// Хранится только SHA-256 токена.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}
