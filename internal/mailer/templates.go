package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"golang.org/x/text/language"
)

// Поддерживаемые языки писем. Первый — язык по умолчанию.
var supportedLanguages = []language.Tag{language.English, language.Russian}

var languageMatcher = language.NewMatcher(supportedLanguages)

// matchLanguage выбирает язык письма по Accept-Language ("en" или "ru").
func matchLanguage(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	_, idx, _ := languageMatcher.Match(tags...)
	base, _ := supportedLanguages[idx].Base()
	return base.String()
}

type templateData struct {
	AppName      string
	AppURL       string
	Email        string
	Code         string
	ValidMinutes int
}

type emailTemplate struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

func newTemplate(name, subject, html, text string) *emailTemplate {
	return &emailTemplate{
		subject: texttemplate.Must(texttemplate.New(name + "_subject").Parse(subject)),
		html:    htmltemplate.Must(htmltemplate.New(name + "_html").Parse(html)),
		text:    texttemplate.Must(texttemplate.New(name + "_text").Parse(text)),
	}
}

func render(t *emailTemplate, data templateData) (Message, error) {
	var subject, html, text bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("шаблон темы письма: %w", err)
	}
	if err := t.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("HTML-шаблон письма: %w", err)
	}
	if err := t.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("текстовый шаблон письма: %w", err)
	}
	return Message{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()),
	}, nil
}

const layoutHead = `<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
  <div style="text-align: center; margin-bottom: 30px;">
    <h1 style="color: #d4af37; margin: 0;">{{.AppName}}</h1>
    <p style="color: #666; margin: 5px 0;">{{template "tagline"}}</p>
  </div>`

const layoutFoot = `  <div style="text-align: center; margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee;">
    <p style="color: #999; font-size: 12px;">{{template "footer" .}}</p>
  </div>
</div>`

const codeBlock = `<div style="background: #000; color: #d4af37; padding: 20px; border-radius: 6px; font-size: 32px; font-weight: bold; letter-spacing: 8px; margin: 20px 0;">{{.Code}}</div>`

var verificationTemplates = map[string]*emailTemplate{
	"en": newTemplate("verification_en",
		`{{.AppName}} email verification code`,
		`{{define "tagline"}}Minecraft projection system{{end}}{{define "footer"}}This email was sent automatically by {{.AppName}}. Please do not reply.{{end}}`+layoutHead+`
  <div style="background: #f8f9fa; padding: 30px; border-radius: 8px; text-align: center;">
    <h2 style="color: #333;">Email verification</h2>
    <p style="color: #666;">Your verification code is:</p>
    `+codeBlock+`
    <p style="color: #999; font-size: 14px;">The code is valid for {{.ValidMinutes}} minutes.<br>If you did not request it, ignore this email.</p>
  </div>
`+layoutFoot,
		`{{.AppName}} verification code: {{.Code}}. The code is valid for {{.ValidMinutes}} minutes. If you did not request it, ignore this email.`,
	),
	"ru": newTemplate("verification_ru",
		`{{.AppName}}: код подтверждения email`,
		`{{define "tagline"}}Система проекций Minecraft{{end}}{{define "footer"}}Письмо отправлено системой {{.AppName}} автоматически, не отвечайте на него.{{end}}`+layoutHead+`
  <div style="background: #f8f9fa; padding: 30px; border-radius: 8px; text-align: center;">
    <h2 style="color: #333;">Подтверждение email</h2>
    <p style="color: #666;">Ваш код подтверждения:</p>
    `+codeBlock+`
    <p style="color: #999; font-size: 14px;">Код действителен {{.ValidMinutes}} минут.<br>Если вы не запрашивали код, проигнорируйте письмо.</p>
  </div>
`+layoutFoot,
		`{{.AppName}}: код подтверждения {{.Code}}. Код действителен {{.ValidMinutes}} минут. Если вы не запрашивали код, проигнорируйте письмо.`,
	),
}

var welcomeTemplates = map[string]*emailTemplate{
	"en": newTemplate("welcome_en",
		`Welcome to {{.AppName}}!`,
		`{{define "tagline"}}Minecraft projection system{{end}}{{define "footer"}}This email was sent automatically by {{.AppName}}. Please do not reply.{{end}}`+layoutHead+`
  <div style="background: #f8f9fa; padding: 30px; border-radius: 8px;">
    <h2 style="color: #333;">Welcome to {{.AppName}}!</h2>
    <p style="color: #666; line-height: 1.6;">Thank you for registering. Now you can:</p>
    <ul style="color: #666; line-height: 1.8;">
      <li>upload Minecraft projection files</li>
      <li>share projection IDs with Bedrock players</li>
      <li>manage your upload history</li>
      <li>create API keys for plugin integration</li>
    </ul>
    <div style="text-align: center; margin: 30px 0;">
      <a href="{{.AppURL}}" style="background: #d4af37; color: #000; padding: 12px 30px; text-decoration: none; border-radius: 6px; font-weight: bold;">Get started</a>
    </div>
  </div>
`+layoutFoot,
		`Welcome to {{.AppName}}! You can now upload projection files, share projection IDs, manage your history and create API keys. Visit {{.AppURL}} to get started.`,
	),
	"ru": newTemplate("welcome_ru",
		`Добро пожаловать в {{.AppName}}!`,
		`{{define "tagline"}}Система проекций Minecraft{{end}}{{define "footer"}}Письмо отправлено системой {{.AppName}} автоматически, не отвечайте на него.{{end}}`+layoutHead+`
  <div style="background: #f8f9fa; padding: 30px; border-radius: 8px;">
    <h2 style="color: #333;">Добро пожаловать в {{.AppName}}!</h2>
    <p style="color: #666; line-height: 1.6;">Спасибо за регистрацию. Теперь вы можете:</p>
    <ul style="color: #666; line-height: 1.8;">
      <li>загружать файлы проекций Minecraft</li>
      <li>делиться ID проекций с игроками Bedrock</li>
      <li>управлять историей загрузок</li>
      <li>создавать API-ключи для плагинов</li>
    </ul>
    <div style="text-align: center; margin: 30px 0;">
      <a href="{{.AppURL}}" style="background: #d4af37; color: #000; padding: 12px 30px; text-decoration: none; border-radius: 6px; font-weight: bold;">Начать</a>
    </div>
  </div>
`+layoutFoot,
		`Добро пожаловать в {{.AppName}}! Теперь вы можете загружать файлы проекций, делиться ID, управлять историей и создавать API-ключи. Начните на {{.AppURL}}.`,
	),
}
