package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// LinkPurpose selects the wording of an emailed link.
type LinkPurpose string

const (
	LinkPurposeRegistration LinkPurpose = "registration"
	LinkPurposeSignIn       LinkPurpose = "sign_in"
)

// LinkEmail is a single emailed verification link.
type LinkEmail struct {
	To             string
	Name           string
	Link           string
	Purpose        LinkPurpose
	ExpiresAt      time.Time
	IdempotencyKey string
}

// EmailService sends transactional emails.
type EmailService interface {
	SendVerificationLink(ctx context.Context, msg LinkEmail) error
}

// NoopEmailService logs instead of sending. Used in local development.
type NoopEmailService struct{}

func (s *NoopEmailService) SendVerificationLink(ctx context.Context, msg LinkEmail) error {
	log.Printf("[EmailService] noop send %s link to=%s link=%s", msg.Purpose, msg.To, msg.Link)
	return nil
}

// ResendEmailService sends emails via Resend REST API.
type ResendEmailService struct {
	from   string
	client *resend.Client
}

func NewResendEmailService(apiKey, from string) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailService{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (s *ResendEmailService) SendVerificationLink(ctx context.Context, msg LinkEmail) error {
	if msg.To == "" || msg.Link == "" {
		return fmt.Errorf("recipient and link are required")
	}

	subject, text, htmlBody := renderLinkEmail(msg)
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: subject,
		Text:    text,
		Html:    htmlBody,
	}

	options := &resend.SendEmailOptions{}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		options.IdempotencyKey = key
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
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

func renderLinkEmail(msg LinkEmail) (subject, text, htmlBody string) {
	action := "sign in"
	subject = "Your sign-in link"
	if msg.Purpose == LinkPurposeRegistration {
		action = "complete your registration"
		subject = "Confirm your email"
	}

	greeting := "Hi,"
	if msg.Name != "" {
		greeting = fmt.Sprintf("Hi %s,", msg.Name)
	}
	expires := msg.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")

	text = fmt.Sprintf("%s\n\nClick the link below to %s:\n\n%s\n\nThis link can be used once and expires at %s.",
		greeting, action, msg.Link, expires)
	htmlBody = fmt.Sprintf(
		`<p>%s</p><p>Click the link below to %s:</p><p><a href="%s">%s</a></p><p>This link can be used once and expires at %s.</p>`,
		html.EscapeString(greeting), action, html.EscapeString(msg.Link), action, expires,
	)
	return subject, text, htmlBody
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

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
