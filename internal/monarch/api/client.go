// Package api implements the Monarch Money client: token login over
// /auth/login and GraphQL queries over /graphql.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"monarch/internal/monarch"
)

const (
	loginPath   = "/auth/login"
	graphqlPath = "/graphql"

	// clientPlatform is required by the Monarch API on every request.
	clientPlatform = "web"
)

type Client struct {
	baseURL  string
	hc       *http.Client
	sessions monarch.SessionStore

	mu    sync.RWMutex
	token string
}

// Ensure interface conformance
var (
	_ monarch.Source        = (*Client)(nil)
	_ monarch.Authenticator = (*Client)(nil)
)

// New creates a client against baseURL and restores any saved session from
// the store. A missing session is not an error; the client just starts
// unauthenticated.
func New(baseURL string, sessions monarch.SessionStore) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("empty Monarch base URL")
	}

	c := &Client{
		baseURL:  baseURL,
		hc:       newHTTPClientWithPooling(),
		sessions: sessions,
	}

	if sessions != nil {
		sess, err := sessions.Load()
		switch {
		case err == nil:
			c.token = sess.Token
			slog.Info("Restored Monarch session", "saved_at", sess.SavedAt.Format(time.RFC3339))
		case errors.Is(err, monarch.ErrNoSession):
			slog.Info("No saved Monarch session, login required")
		default:
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	return c, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for repeated calls
// against a single API host: pooled connections, keep-alive, HTTP/2.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives: false,
		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second, // outer bound; callers pass tighter ctx deadlines
	}
}

// Authenticated reports whether the client holds a session token.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TrustedDevice bool   `json:"trusted_device"`
	SupportsMFA   bool   `json:"supports_mfa"`
	TOTP          string `json:"totp,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates with email and password, plus an optional one-time
// MFA code, and persists the resulting token.
func (c *Client) Login(ctx context.Context, email, password, totp string) error {
	body, err := json.Marshal(loginRequest{
		Username:      email,
		Password:      password,
		TrustedDevice: true,
		SupportsMFA:   true,
		TOTP:          totp,
	})
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Platform", clientPlatform)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to token parse
	case resp.StatusCode == http.StatusForbidden && strings.Contains(string(raw), "Multi-Factor"):
		return monarch.ErrMFARequired
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		slog.Warn("Monarch login rejected", "status", resp.StatusCode)
		return monarch.ErrAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		return monarch.ErrRateLimited
	default:
		return fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if lr.Token == "" {
		return errors.New("login: empty token in response")
	}

	c.mu.Lock()
	c.token = lr.Token
	c.mu.Unlock()

	if c.sessions != nil {
		if err := c.sessions.Save(monarch.Session{Token: lr.Token, SavedAt: time.Now().UTC()}); err != nil {
			slog.Error("Failed to persist Monarch session", "error", err)
			// Login still succeeded; the session just won't survive a restart.
		}
	}

	slog.Info("Authenticated with Monarch")
	return nil
}

type graphqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// do runs one GraphQL operation and decodes the "data" object into out.
func (c *Client) do(ctx context.Context, opName, query string, variables map[string]any, out any) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return monarch.ErrAuthFailed
	}

	body, err := json.Marshal(graphqlRequest{OperationName: opName, Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", opName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+graphqlPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", opName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Platform", clientPlatform)
	req.Header.Set("Authorization", "Token "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", opName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", opName, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		slog.Warn("Monarch session rejected", "operation", opName, "status", resp.StatusCode)
		return monarch.ErrAuthFailed
	case http.StatusTooManyRequests:
		return monarch.ErrRateLimited
	default:
		return fmt.Errorf("%s: unexpected status %d", opName, resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode %s envelope: %w", opName, err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("%s: %s", opName, envelope.Errors[0].Message)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("%s: empty data in response", opName)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", opName, err)
	}
	return nil
}
