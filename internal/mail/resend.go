package mail

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendTransport sends mail through the Resend API.
type ResendTransport struct {
	client *resend.Client
}

// NewResendTransport creates a Resend-backed transport. baseURL overrides
// the API endpoint when non-empty.
func NewResendTransport(apiKey, baseURL string, httpClient *http.Client) (*ResendTransport, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultSendTimeout}
	}
	client := resend.NewCustomClient(httpClient, apiKey)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		client.BaseURL = u
	}
	return &ResendTransport{client: client}, nil
}

// Send implements Transport.
func (t *ResendTransport) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := t.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return sent.Id, nil
}
