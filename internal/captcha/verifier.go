package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier checks a captcha response token against a third-party
// verification endpoint. Implementations are a black box to callers: true
// means the token passed, an error means the verdict could not be obtained.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

func NewHTTPVerifier(endpoint, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha verification returned status %d", resp.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("captcha verification returned invalid body: %w", err)
	}

	return result.Success, nil
}

// Static always answers with a fixed verdict. Test doubles and local
// development without a captcha provider.
type Static struct {
	Result bool
	Err    error
}

func (s Static) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return s.Result, s.Err
}
