// Package client is a Go client for the keyward HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/types"
)

// Client talks to a keyward server. Admin calls need a session token,
// either set directly or obtained with Login.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: http.DefaultClient,
	}
}

// ValidateResult is the server's answer to a validation request.
type ValidateResult struct {
	StatusCode int
	types.ValidateResponse
}

// Login starts an admin session and keeps its token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp types.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", types.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return err
	}
	c.Token = resp.Token
	return nil
}

// Logout ends the current admin session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

// Validate presents an API key. Rejections are reported in the result,
// not as an error.
func (c *Client) Validate(ctx context.Context, key, endpoint string) (*ValidateResult, error) {
	body, err := json.Marshal(types.ValidateRequest{Key: key, Endpoint: endpoint})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &ValidateResult{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&result.ValidateResponse); err != nil {
		return nil, fmt.Errorf("decode validate response (status %d): %w", resp.StatusCode, err)
	}
	return result, nil
}

// ListKeys returns every key.
func (c *Client) ListKeys(ctx context.Context) ([]models.APIKey, error) {
	var resp types.Response[[]models.APIKey]
	if err := c.do(ctx, http.MethodGet, "/api/keys", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateKey issues a new key.
func (c *Client) CreateKey(ctx context.Context, name, description string) (*models.APIKey, error) {
	var resp types.Response[*models.APIKey]
	if err := c.do(ctx, http.MethodPost, "/api/keys", types.CreateKeyRequest{Name: name, Description: description}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetKey returns one key.
func (c *Client) GetKey(ctx context.Context, id string) (*models.APIKey, error) {
	var resp types.Response[*models.APIKey]
	if err := c.do(ctx, http.MethodGet, "/api/keys/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateKey applies a partial update and returns the updated key.
func (c *Client) UpdateKey(ctx context.Context, id string, u types.UpdateKeyRequest) (*models.APIKey, error) {
	var resp types.Response[*models.APIKey]
	if err := c.do(ctx, http.MethodPut, "/api/keys/"+url.PathEscape(id), u, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// DeleteKey removes a key.
func (c *Client) DeleteKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/keys/"+url.PathEscape(id), nil, nil)
}

// Stats returns the usage summary and the seven day chart.
func (c *Client) Stats(ctx context.Context) (*types.StatsData, error) {
	var resp types.Response[types.StatsData]
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &StatusError{resp.StatusCode, fmt.Sprintf("request failed with status %d", resp.StatusCode)}
	}

	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &StatusError{resp.StatusCode, fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return &StatusError{resp.StatusCode, errResp.Error}
}
