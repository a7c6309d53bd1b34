// Пакет ident — генерация публичных идентификаторов и секретов.
// Источник случайности — crypto/rand.
package ident

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// FileIDLength — длина публичного ID файла проекции.
	FileIDLength = 6
	// VerificationCodeLength — длина кода подтверждения.
	VerificationCodeLength = 6
	// APIKeyPrefix — фиксированный префикс секрета API-ключа.
	APIKeyPrefix = "npt_"
	// APIKeyDisplayLength — длина отображаемого префикса ключа.
	APIKeyDisplayLength = 10

	// apiKeyEntropyBytes — случайная часть секрета (32 байта, 64 hex-символа).
	apiKeyEntropyBytes = 32
)

// NumericCode возвращает равномерно распределённую десятичную строку
// фиксированной длины с ведущими нулями.
func NumericCode(length int) (string, error) {
	if length < 1 || length > 18 {
		return "", fmt.Errorf("недопустимая длина кода: %d", length)
	}
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("ошибка генерации случайного числа: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

// FileID возвращает кандидата на публичный ID файла.
func FileID() (string, error) {
	return NumericCode(FileIDLength)
}

// VerificationCode возвращает новый код подтверждения.
func VerificationCode() (string, error) {
	return NumericCode(VerificationCodeLength)
}

// APIKeySecret возвращает новый секрет API-ключа: "npt_" + 64 hex-символа.
func APIKeySecret() (string, error) {
	buf := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации секрета: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// KeyPrefix возвращает отображаемый префикс секрета.
func KeyPrefix(secret string) string {
	if len(secret) <= APIKeyDisplayLength {
		return secret
	}
	return secret[:APIKeyDisplayLength]
}

// HashSecret возвращает SHA-256 (hex) строки. Используется для API-ключей
// и сессионных токенов.
func HashSecret(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
