// Пакет validation — чистые функции проверки входных данных.
// Функции не паникуют и не возвращают error: результат — Result,
// сообщение которого можно показать пользователю как есть.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// MaxFilenameLength — предельная длина санитизированного имени файла (в байтах).
const MaxFilenameLength = 255

// MaxAPIKeyNameLength — предельная длина имени API-ключа.
const MaxAPIKeyNameLength = 100

var (
	emailRe      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	sixDigitRe   = regexp.MustCompile(`^[0-9]{6}$`)
	apiKeyNameRe = regexp.MustCompile(`^[\p{L}\p{N} _-]+$`)
	unsafeRunRe  = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	underscoreRe = regexp.MustCompile(`_{2,}`)
	dotRe        = regexp.MustCompile(`\.{2,}`)
)

// Result — результат проверки.
type Result struct {
	IsValid bool
	Message string
}

func ok() Result { return Result{IsValid: true} }

func fail(msg string) Result { return Result{IsValid: false, Message: msg} }

// Email проверяет форму адреса: один @, без пробелов, точка после @.
func Email(s string) Result {
	if strings.TrimSpace(s) == "" {
		return fail("Email не может быть пустым")
	}
	if !emailRe.MatchString(s) {
		return fail("Укажите корректный email")
	}
	return ok()
}

// SixDigitCode проверяет, что строка — ровно шесть ASCII-цифр.
func SixDigitCode(s string) bool {
	return sixDigitRe.MatchString(s)
}

// Password проверяет сложность пароля и совпадение с подтверждением.
func Password(password, confirm string) Result {
	if len(password) < 8 {
		return fail("Пароль должен содержать не менее 8 символов")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fail("Пароль должен содержать заглавные и строчные буквы и цифры")
	}
	if password != confirm {
		return fail("Пароли не совпадают")
	}
	return ok()
}

// Extension возвращает расширение имени файла в нижнем регистре (с точкой).
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// FileType проверяет расширение по allow-list (без учёта регистра).
func FileType(name string, allowed []string) Result {
	ext := Extension(name)
	for _, a := range allowed {
		if ext != "" && ext == strings.ToLower(a) {
			return ok()
		}
	}
	return fail(fmt.Sprintf("Неподдерживаемый тип файла, допустимые: %s", strings.Join(allowed, ", ")))
}

// FileSize проверяет размер: строго больше нуля и не больше maxBytes.
func FileSize(size, maxBytes int64) Result {
	if size <= 0 {
		return fail("Размер файла должен быть больше нуля")
	}
	if size > maxBytes {
		return fail(fmt.Sprintf("Размер файла превышает лимит (максимум %s)", FormatBytes(maxBytes)))
	}
	return ok()
}

// APIKeyName проверяет имя API-ключа: 1–100 символов из букв, цифр, пробела, _ и -.
func APIKeyName(name string) Result {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fail("Имя API-ключа не может быть пустым")
	}
	if len([]rune(trimmed)) > MaxAPIKeyNameLength {
		return fail(fmt.Sprintf("Имя API-ключа не должно превышать %d символов", MaxAPIKeyNameLength))
	}
	if !apiKeyNameRe.MatchString(trimmed) {
		return fail("Имя API-ключа может содержать только буквы, цифры, пробел, _ и -")
	}
	return ok()
}

// SanitizeFilename заменяет символы вне [A-Za-z0-9._-] на _, схлопывает
// повторы, убирает ведущие точки и обрезает до MaxFilenameLength байт
// с сохранением расширения.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	s := unsafeRunRe.ReplaceAllString(name, "_")
	s = underscoreRe.ReplaceAllString(s, "_")
	s = dotRe.ReplaceAllString(s, ".")
	s = strings.TrimLeft(s, ".")

	if len(s) > MaxFilenameLength {
		ext := filepath.Ext(s)
		if len(ext) >= MaxFilenameLength {
			ext = ""
		}
		s = s[:MaxFilenameLength-len(ext)] + ext
	}
	if s == "" || s == "_" {
		return "file"
	}
	return s
}

// FormatBytes форматирует размер в человекочитаемый вид (1024-база, 2 знака).
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	return s + " " + units[i]
}
