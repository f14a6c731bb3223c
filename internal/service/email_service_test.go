package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResendEmailService_RequiresConfig(t *testing.T) {
	_, err := NewResendEmailService("", "noreply@example.com")
	assert.Error(t, err)

	_, err = NewResendEmailService("re_test", "")
	assert.Error(t, err)

	svc, err := NewResendEmailService("re_test", "noreply@example.com")
	require.NoError(t, err)
	assert.Error(t, svc.SendVerificationLink(context.Background(), LinkEmail{To: "a@x.com"}))
}

func TestRenderLinkEmail(t *testing.T) {
	expires := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	subject, text, htmlBody := renderLinkEmail(LinkEmail{
		To:        "a@x.com",
		Name:      "Ann <script>",
		Link:      "https://app.example.com/verify?token=abc&x=1",
		Purpose:   LinkPurposeRegistration,
		ExpiresAt: expires,
	})
	assert.Equal(t, "Confirm your email", subject)
	assert.Contains(t, text, "complete your registration")
	assert.Contains(t, text, "https://app.example.com/verify?token=abc&x=1")
	assert.Contains(t, text, "2025-03-01 10:30 UTC")
	assert.Contains(t, htmlBody, "Ann &lt;script&gt;")
	assert.Contains(t, htmlBody, `href="https://app.example.com/verify?token=abc&amp;x=1"`)

	subject, text, _ = renderLinkEmail(LinkEmail{Link: "https://x", Purpose: LinkPurposeSignIn, ExpiresAt: expires})
	assert.Equal(t, "Your sign-in link", subject)
	assert.Contains(t, text, "Hi,")
	assert.Contains(t, text, "sign in")
}

func TestResendRetryDelay(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		attempt   int
		wantRetry bool
		wantDelay time.Duration
	}{
		{"rate limited with retry-after", &resend.RateLimitError{RetryAfter: "2"}, 0, true, 2 * time.Second},
		{"rate limited retry-after capped", &resend.RateLimitError{RetryAfter: "120"}, 0, true, 30 * time.Second},
		{"rate limited without header", &resend.RateLimitError{}, 1, true, 2 * time.Second},
		{"timeout message", errors.New("request timeout"), 0, true, 500 * time.Millisecond},
		{"temporary failure", errors.New("Temporary failure in name resolution"), 1, true, time.Second},
		{"validation error", errors.New("invalid from address"), 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retry := resendRetryDelay(tt.err, tt.attempt)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.wantDelay, delay)
		})
	}
}

func TestNoopEmailService(t *testing.T) {
	svc := &NoopEmailService{}
	assert.NoError(t, svc.SendVerificationLink(context.Background(), LinkEmail{To: "a@x.com", Link: "https://x"}))
}
