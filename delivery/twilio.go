package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const twilioVerifyBase = "https://verify.twilio.com/v2"

// TwilioVerifier runs SMS identity proof through a Twilio Verify service.
// Twilio owns code generation and checking; we only start and check
// challenges.
type TwilioVerifier struct {
	accountSID string
	authToken  string
	verifySID  string
	baseURL    string
	client     *http.Client
}

func NewTwilioVerifier(accountSID, authToken, verifySID string) (*TwilioVerifier, error) {
	if !strings.HasPrefix(accountSID, "AC") {
		return nil, errors.New(`twilio account sid must start with "AC"`)
	}
	if authToken == "" {
		return nil, errors.New("twilio auth token required")
	}
	if !strings.HasPrefix(verifySID, "VA") {
		return nil, errors.New(`twilio verify service sid must start with "VA"`)
	}

	return &TwilioVerifier{
		accountSID: accountSID,
		authToken:  authToken,
		verifySID:  verifySID,
		baseURL:    twilioVerifyBase,
		client:     &http.Client{Timeout: defaultRequestTimeout},
	}, nil
}

func (t *TwilioVerifier) StartChallenge(ctx context.Context, number string) error {
	form := url.Values{}
	form.Set("To", number)
	form.Set("Channel", "sms")

	endpoint := fmt.Sprintf("%s/Services/%s/Verifications", t.baseURL, t.verifySID)
	_, err := t.post(ctx, endpoint, form)
	return err
}

func (t *TwilioVerifier) CheckChallenge(ctx context.Context, number, code string) (bool, error) {
	form := url.Values{}
	form.Set("To", number)
	form.Set("Code", code)

	endpoint := fmt.Sprintf("%s/Services/%s/VerificationCheck", t.baseURL, t.verifySID)
	body, err := t.post(ctx, endpoint, form)
	if err != nil {
		return false, err
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, err
	}
	return result.Status == "approved", nil
}

func (t *TwilioVerifier) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twilio request failed: status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
