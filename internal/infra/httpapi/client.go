// Package httpapi implements the platform auth API boundary over HTTP(S).
// Transport and protocol failures are folded into the typed error taxonomy in
// core/port; callers never see raw status codes.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/core/port"
	"github.com/EmerBV/figrclub-sub001/internal/infra/logger"
)

const (
	codeVerificationPending = "email_verification_pending"

	maxErrorBody = 64 << 10
)

// Client talks to the auth endpoints of the platform API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// Option configures optional Client behaviour.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client; used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New constructs a Client for the given base URL.
func New(baseURL string, timeout time.Duration, log *zap.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Login exchanges credentials for a user and token pair.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (port.AuthResult, error) {
	var resp authResponse
	err := c.post(ctx, "/api/v1/auth/login", loginRequest{
		Email:    creds.Email,
		Password: creds.Password,
	}, "", &resp)
	if err != nil {
		return port.AuthResult{}, err
	}

	result, err := resultFromResponse(resp)
	if err != nil {
		return port.AuthResult{}, err
	}

	c.log.Debug("login accepted", zap.String("email", logger.MaskEmail(creds.Email)))
	return result, nil
}

// Register submits the sign-up form. A VerificationRequired result means the
// server created the account but withheld tokens until the email is confirmed.
func (c *Client) Register(ctx context.Context, form domain.RegistrationForm) (port.AuthResult, error) {
	consents := make([]consentPayload, 0, len(form.Consents))
	for _, consent := range form.Consents {
		consents = append(consents, consentPayload{
			Kind:       string(consent.Kind),
			Accepted:   consent.Accepted,
			AcceptedAt: consent.AcceptedAt,
		})
	}

	var resp authResponse
	err := c.post(ctx, "/api/v1/auth/register", registerRequest{
		Email:       form.Email,
		Username:    form.Username,
		DisplayName: form.DisplayName,
		Password:    form.Password,
		Consents:    consents,
	}, "", &resp)
	if err != nil {
		return port.AuthResult{}, err
	}

	if resp.VerificationRequired {
		if resp.User == nil {
			return port.AuthResult{}, fmt.Errorf("%w: verification response missing user", port.ErrUnknown)
		}
		return port.AuthResult{User: resp.User.toDomain(), VerificationRequired: true}, nil
	}

	return resultFromResponse(resp)
}

// VerifyEmail confirms the emailed registration code and completes sign-in.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (port.AuthResult, error) {
	var resp authResponse
	err := c.post(ctx, "/api/v1/auth/verify", verifyRequest{Email: email, Code: code}, "", &resp)
	if err != nil {
		return port.AuthResult{}, err
	}
	return resultFromResponse(resp)
}

// Refresh rotates the refresh token and returns fresh tokens plus the current
// user record.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (port.AuthResult, error) {
	var resp authResponse
	err := c.post(ctx, "/api/v1/auth/refresh", refreshRequest{RefreshToken: refreshToken}, "", &resp)
	if err != nil {
		// A rejected refresh token means the session is gone, not that the
		// user typed something wrong.
		if errors.Is(err, port.ErrInvalidCredentials) {
			return port.AuthResult{}, port.ErrSessionExpired
		}
		return port.AuthResult{}, err
	}
	return resultFromResponse(resp)
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	err := c.post(ctx, "/api/v1/auth/logout", struct{}{}, accessToken, nil)
	if errors.Is(err, port.ErrInvalidCredentials) || errors.Is(err, port.ErrSessionExpired) {
		// The server already considers the session dead; local logout proceeds.
		return nil
	}
	return err
}

// CurrentUser fetches the profile bound to the access token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var resp authResponse
	if err := c.do(req, &resp); err != nil {
		if errors.Is(err, port.ErrInvalidCredentials) {
			return nil, port.ErrSessionExpired
		}
		return nil, err
	}

	if resp.User == nil {
		return nil, fmt.Errorf("%w: response missing user", port.ErrUnknown)
	}

	user := resp.User.toDomain()
	return &user, nil
}

func (c *Client) post(ctx context.Context, path string, body any, accessToken string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		c.log.Debug("request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return fmt.Errorf("%w: %v", port.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", port.ErrUnknown, err)
		}
		return nil
	}

	return c.mapError(resp)
}

func (c *Client) mapError(resp *http.Response) error {
	var apiErr errorResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(body, &apiErr)

	detail := apiErr.Error
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", port.ErrInvalidCredentials, detail)
	case resp.StatusCode == http.StatusForbidden && apiErr.Code == codeVerificationPending:
		return fmt.Errorf("%w: %s", port.ErrAccountPending, detail)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", port.ErrValidationRejected, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", port.ErrServer, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", port.ErrUnknown, resp.StatusCode, detail)
	}
}

func resultFromResponse(resp authResponse) (port.AuthResult, error) {
	if resp.User == nil || resp.Tokens == nil {
		return port.AuthResult{}, fmt.Errorf("%w: response missing user or tokens", port.ErrUnknown)
	}

	return port.AuthResult{
		User: resp.User.toDomain(),
		Tokens: domain.TokenPair{
			AccessToken:  resp.Tokens.AccessToken,
			RefreshToken: resp.Tokens.RefreshToken,
			ObtainedAt:   time.Now().UTC(),
		},
	}, nil
}
