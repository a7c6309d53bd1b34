package model

import "time"

// VerificationTypeEmail — код подтверждения email при регистрации.
const VerificationTypeEmail = "email_verification"

// VerificationCode — выданный 6-значный код.
// UsedAt == nil означает, что код ещё не использован.
type VerificationCode struct {
	ID          string
	Email       string
	Code        string
	Type        string
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// AttemptsExhausted возвращает true, если лимит попыток исчерпан.
func (c *VerificationCode) AttemptsExhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// IsExpired проверяет истечение кода на момент now.
func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
