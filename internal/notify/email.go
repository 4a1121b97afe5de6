package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const postmarkAPI = "https://api.postmarkapp.com"

// Mailer sends notification e-mail through the Postmark API.
type Mailer struct {
	serverToken string
	fromEmail   string
	baseURL     string
	client      *resty.Client
}

type MailerOption func(*Mailer)

// WithAPIURL points the mailer at a different Postmark-compatible endpoint.
func WithAPIURL(url string) MailerOption {
	return func(m *Mailer) {
		m.client.SetBaseURL(url)
	}
}

// NewMailer creates a mailer. baseURL is the public address of the app and
// prefixes notification links.
func NewMailer(serverToken, fromEmail, baseURL string, opts ...MailerOption) *Mailer {
	m := &Mailer{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client: resty.New().
			SetBaseURL(postmarkAPI).
			SetTimeout(15*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500*time.Millisecond).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured returns true if the server token is set.
func (m *Mailer) Configured() bool {
	return m != nil && m.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Send e-mails one notification. link is relative to the app base URL and
// may be empty.
func (m *Mailer) Send(ctx context.Context, to, tag, subject, body, link string) error {
	if !m.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	text := body
	htmlBody := "<p>" + html.EscapeString(body) + "</p>"
	if link != "" {
		full := m.baseURL + link
		text += "\n\n" + full
		htmlBody += fmt.Sprintf(`<p><a href="%s">Open in Cleanround</a></p>`, html.EscapeString(full))
	}

	var result postmarkResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("X-Postmark-Server-Token", m.serverToken).
		SetBody(postmarkEmail{
			From:     m.fromEmail,
			To:       to,
			Subject:  subject,
			HtmlBody: htmlBody,
			TextBody: text,
			Tag:      tag,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/email")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode(), result.Message)
	}
	if result.ErrorCode != 0 {
		return fmt.Errorf("postmark API error %d: %s", result.ErrorCode, result.Message)
	}
	return nil
}
