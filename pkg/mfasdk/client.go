package mfasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SDKClient calls the unauthenticated endpoints and hands out Sessions for
// the authenticated ones.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// do sends payload as JSON (when non-nil) and decodes a response with
// status want into out (when non-nil).
func (c *SDKClient) do(
	ctx context.Context,
	method, path, token string,
	headers map[string]string,
	payload, out any,
	want int,
) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return decodeJSON(resp, out, want)
}

// decodeJSON reads the body once and returns an *APIError for any status
// other than expected.
func decodeJSON(resp *http.Response, target any, expected int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expected {
		if err := parseErrorResponse(resp, bodyBytes); err != nil {
			return err
		}
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        ErrorCodeServerError,
			Description: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}
	if target == nil || len(bodyBytes) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", "", nil, nil, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetJWKS fetches the keys that verify tokens issued by the service.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	var keys JWKSResponse
	if err := c.do(ctx, http.MethodGet, "/.well-known/jwks.json", "", nil, nil, &keys, http.StatusOK); err != nil {
		return nil, err
	}
	return &keys, nil
}

// GetReadiness returns the health report. A degraded service answers 503,
// which is returned as an *APIError.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", "", nil, nil, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}

// Bootstrap seeds the first users. Only works once, and only when the
// server runs with its own user store and a bootstrap token.
func (c *SDKClient) Bootstrap(ctx context.Context, token string, req BootstrapRequest) (*BootstrapResponse, error) {
	var out BootstrapResponse
	headers := map[string]string{"X-Bootstrap-Token": token}
	if err := c.do(ctx, http.MethodPost, "/v1/bootstrap", "", headers, req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) Login(ctx context.Context, userID, password string) (*LoginResponse, error) {
	var out LoginResponse
	req := LoginRequest{UserID: userID, Password: password}
	if err := c.do(ctx, http.MethodPost, "/v1/login", "", nil, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) CheckFirstLogin(ctx context.Context, userID string) (*FirstLoginStateResponse, error) {
	var out FirstLoginStateResponse
	path := "/v1/first-login/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangeTemporaryPassword replaces a temporary password. The returned token
// is a session, or a step-up when the user already has MFA.
func (c *SDKClient) ChangeTemporaryPassword(ctx context.Context, userID, current, next string) (*PasswordChangeResponse, error) {
	var out PasswordChangeResponse
	req := ChangePasswordRequest{UserID: userID, CurrentPassword: current, NewPassword: next}
	if err := c.do(ctx, http.MethodPost, "/v1/first-login/password", "", nil, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
