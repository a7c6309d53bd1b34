package mailer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/neptunium/internal/config"
)

func newTestClient(serverURL string) *Client {
	cfg := &config.Config{
		ResendURL:    serverURL,
		ResendAPIKey: "re_test",
		EmailFrom:    "Neptunium <noreply@neptunium.dev>",
		EmailTimeout: 2 * time.Second,
		AppName:      "Neptunium",
		AppURL:       "https://neptunium.dev",
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendVerificationCode(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("запрос %s %s, ожидается POST /emails", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("декодирование тела: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.SendVerificationCode(context.Background(), "steve@example.com", "042137", "en-US,en;q=0.9", 10*time.Minute); err != nil {
		t.Fatalf("SendVerificationCode() ошибка: %v", err)
	}

	if len(got.To) != 1 || got.To[0] != "steve@example.com" {
		t.Errorf("To = %v", got.To)
	}
	if got.Subject != "Neptunium email verification code" {
		t.Errorf("Subject = %q", got.Subject)
	}
	if !strings.Contains(got.HTML, "042137") || !strings.Contains(got.Text, "042137") {
		t.Error("код отсутствует в письме")
	}
	if !strings.Contains(got.Text, "10 minutes") {
		t.Errorf("Text не содержит срок действия: %q", got.Text)
	}
}

func TestSendWelcome_Russian(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"email-2"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.SendWelcome(context.Background(), "alex@example.com", "ru-RU,ru;q=0.9"); err != nil {
		t.Fatalf("SendWelcome() ошибка: %v", err)
	}
	if got.Subject != "Добро пожаловать в Neptunium!" {
		t.Errorf("Subject = %q", got.Subject)
	}
	if !strings.Contains(got.HTML, `href="https://neptunium.dev"`) {
		t.Error("ссылка на приложение отсутствует в HTML")
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Send(context.Background(), Message{To: "a@b.c", Subject: "s", HTML: "<p>x</p>"})
	if err == nil {
		t.Fatal("ожидается ошибка при статусе 422")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "invalid from") {
		t.Errorf("ошибка %q не содержит статус и тело ответа", err)
	}
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"id":"late"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.httpClient.Timeout = 50 * time.Millisecond

	if err := c.Send(context.Background(), Message{To: "a@b.c", Subject: "s"}); err == nil {
		t.Fatal("ожидается ошибка таймаута")
	}
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"ru", "ru"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "ru"},
		{"de-DE,en;q=0.5", "en"},
		{"zh-CN", "en"},
		{"not a header;;", "en"},
	}
	for _, tt := range tests {
		if got := matchLanguage(tt.header); got != tt.want {
			t.Errorf("matchLanguage(%q) = %q, хотели %q", tt.header, got, tt.want)
		}
	}
}
