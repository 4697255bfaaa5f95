package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	sendgridMailURL       = "https://api.sendgrid.com/v3/mail/send"
	defaultRequestTimeout = 10 * time.Second
)

// SendGridSender delivers codes through the SendGrid v3 mail API.
type SendGridSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

func NewSendGridSender(apiKey, from string) (*SendGridSender, error) {
	if !strings.HasPrefix(apiKey, "SG.") {
		return nil, errors.New(`sendgrid api key must start with "SG."`)
	}
	if from == "" {
		return nil, errors.New("sendgrid sender address required")
	}

	return &SendGridSender{
		apiKey:  apiKey,
		from:    from,
		baseURL: sendgridMailURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}, nil
}

func (s *SendGridSender) SendCode(ctx context.Context, to, code string) error {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": s.from},
		"subject": "Your password reset code",
		"content": []map[string]string{
			{
				"type":  "text/plain",
				"value": fmt.Sprintf("Your one-time code is %s. It expires in 10 minutes.", code),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send failed: status %d", resp.StatusCode)
	}
	return nil
}
