// Пакет mailer — отправка писем через Resend REST API.
// Шаблоны на русском и английском, язык выбирается по Accept-Language.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/neptunium/internal/config"
)

// Message — письмо для отправки.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// sendRequest — тело POST /emails.
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// sendResponse — ответ POST /emails.
type sendResponse struct {
	ID string `json:"id"`
}

// Client — HTTP-клиент Resend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	from       string
	appName    string
	appURL     string
	logger     *slog.Logger
}

// New создаёт клиент Resend. Таймаут запросов — NP_EMAIL_TIMEOUT.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.EmailTimeout},
		baseURL:    cfg.ResendURL,
		apiKey:     cfg.ResendAPIKey,
		from:       cfg.EmailFrom,
		appName:    cfg.AppName,
		appURL:     cfg.AppURL,
		logger:     logger.With(slog.String("component", "mailer")),
	}
}

// Send отправляет письмо. Любой ответ, кроме 2xx, — ошибка.
func (c *Client) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("сериализация письма: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса к Resend: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос к Resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("Resend вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("декодирование ответа Resend: %w", err)
	}

	c.logger.Debug("Письмо отправлено",
		slog.String("email_id", result.ID),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// SendVerificationCode отправляет письмо с кодом подтверждения.
// acceptLanguage — значение заголовка Accept-Language клиента.
func (c *Client) SendVerificationCode(ctx context.Context, to, code, acceptLanguage string, validity time.Duration) error {
	msg, err := render(verificationTemplates[matchLanguage(acceptLanguage)], templateData{
		AppName:      c.appName,
		AppURL:       c.appURL,
		Code:         code,
		ValidMinutes: int(validity.Minutes()),
	})
	if err != nil {
		return err
	}
	msg.To = to
	return c.Send(ctx, msg)
}

// SendWelcome отправляет приветственное письмо после подтверждения email.
func (c *Client) SendWelcome(ctx context.Context, to, acceptLanguage string) error {
	msg, err := render(welcomeTemplates[matchLanguage(acceptLanguage)], templateData{
		AppName: c.appName,
		AppURL:  c.appURL,
		Email:   to,
	})
	if err != nil {
		return err
	}
	msg.To = to
	return c.Send(ctx, msg)
}

// CheckReady проверяет, что отправка настроена. Resend не имеет
// бесплатного health endpoint, поэтому сетевой запрос не выполняется.
func (c *Client) CheckReady() (string, string) {
	if c.apiKey == "" || c.from == "" {
		return "fail", "Resend не настроен"
	}
	return "ok", "Resend настроен"
}
