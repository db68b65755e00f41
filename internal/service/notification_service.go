package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/config"
)

// RegistrationNotice - данные для уведомления о новой регистрации
type RegistrationNotice struct {
	IdentityID string
	Email      string
	Username   string
	FirstName  string
	// Consent - согласие на email-уведомления из настроек записи
	Consent bool
}

// Notifier доставляет уведомления по побочному каналу
type Notifier interface {
	SendRegistration(ctx context.Context, notice RegistrationNotice) error
}

// NoopNotifier только пишет в лог
type NoopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier создает NoopNotifier
func NewNoopNotifier(logger *zap.Logger) *NoopNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopNotifier{logger: logger}
}

func (n *NoopNotifier) SendRegistration(_ context.Context, notice RegistrationNotice) error {
	n.logger.Info("noop registration notice", zap.String("identity_id", notice.IdentityID))
	return nil
}

// RemoteNotifier вызывает сервис уведомлений по HTTP
type RemoteNotifier struct {
	baseURL string
	client  *http.Client
}

// NewRemoteNotifier создает клиента сервиса уведомлений
func NewRemoteNotifier(baseURL string, timeout time.Duration) (*RemoteNotifier, error) {
	if baseURL == "" {
		return nil, errors.New("notification service url is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (n *RemoteNotifier) SendRegistration(ctx context.Context, notice RegistrationNotice) error {
	payload, err := json.Marshal(map[string]interface{}{
		"userId":  notice.IdentityID,
		"email":   notice.Email,
		"consent": notice.Consent,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.baseURL+"/notifications/email/registration", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	return nil
}

// ResendNotifier отправляет приветственное письмо через Resend
type ResendNotifier struct {
	from   string
	client *resend.Client
}

// NewResendNotifier создает ResendNotifier
func NewResendNotifier(apiKey, from string) (*ResendNotifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendNotifier{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (n *ResendNotifier) SendRegistration(ctx context.Context, notice RegistrationNotice) error {
	if !notice.Consent {
		return nil
	}
	if notice.Email == "" {
		return fmt.Errorf("recipient email is required")
	}

	subject, text, htmlBody := registrationEmail(notice)
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{notice.Email},
		Subject: subject,
		Text:    text,
		Html:    htmlBody,
	}
	options := &resend.SendEmailOptions{IdempotencyKey: "registration-" + notice.IdentityID}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := n.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}

// SMTPNotifier отправляет приветственное письмо через SMTP
type SMTPNotifier struct {
	cfg config.SMTPConfig
}

// NewSMTPNotifier создает SMTPNotifier
func NewSMTPNotifier(cfg config.SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.FromEmail == "" {
		return nil, errors.New("smtp host and from email are required")
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

func (n *SMTPNotifier) SendRegistration(ctx context.Context, notice RegistrationNotice) error {
	if !notice.Consent {
		return nil
	}
	subject, text, htmlBody := registrationEmail(notice)

	m := mail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", notice.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", htmlBody)

	d := mail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.Username, n.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: n.cfg.Host}
	if n.cfg.TLSMode == "ssl" {
		d.SSL = true
	}
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func registrationEmail(notice RegistrationNotice) (subject, text, htmlBody string) {
	name := notice.FirstName
	if name == "" {
		name = notice.Username
	}
	subject = "Welcome!"
	text = fmt.Sprintf("Hi %s, your account has been created.", name)
	htmlBody = fmt.Sprintf("<p>Hi %s,</p><p>your account has been created.</p>", html.EscapeString(name))
	return subject, text, htmlBody
}

// NewNotifierFromConfig выбирает реализацию Notifier по настройкам
func NewNotifierFromConfig(cfg config.NotificationConfig, logger *zap.Logger) (Notifier, error) {
	switch driver := cfg.NotifierDriver(); driver {
	case config.NotifierRemote:
		return NewRemoteNotifier(cfg.BaseURL, cfg.Timeout)
	case config.NotifierResend:
		from := cfg.Resend.FromEmail
		if cfg.Resend.FromName != "" && from != "" {
			from = fmt.Sprintf("%s <%s>", cfg.Resend.FromName, from)
		}
		return NewResendNotifier(cfg.Resend.APIKey, from)
	case config.NotifierSMTP:
		return NewSMTPNotifier(cfg.SMTP)
	case config.NotifierNoop:
		return NewNoopNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notification driver: %s", driver)
	}
}
