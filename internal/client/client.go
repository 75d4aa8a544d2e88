// Package client is an HTTP client for the gotreasury API, used by the CLI
// and by integrations that script rule management.
package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/TimurManjosov/gotreasury/internal/authz"
	"github.com/TimurManjosov/gotreasury/internal/rules"
	"github.com/TimurManjosov/gotreasury/internal/store"
)

// Client is an HTTP client for the treasury API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Authorization is the wire form of a signed mutation authorization.
type Authorization struct {
	RuleID    int64  `json:"ruleId"`
	Target    string `json:"target"`
	Amount    int64  `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	PubKey    string `json:"pubKey"`
	Signature string `json:"signature"`
}

// SignAuthorization produces a wire-ready authorization for the payload,
// signed under the given domain.
func SignAuthorization(priv ed25519.PrivateKey, d authz.Domain, p authz.Payload) Authorization {
	return Authorization{
		RuleID:    p.RuleID,
		Target:    p.Target,
		Amount:    p.Amount,
		Nonce:     p.Nonce,
		Deadline:  p.Deadline,
		PubKey:    hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
		Signature: hex.EncodeToString(authz.Sign(priv, d, p)),
	}
}

// CreateRule creates a new rule and returns its id.
func (c *Client) CreateRule(ctx context.Context, params store.CreateParams, auth Authorization) (int64, error) {
	body := map[string]any{"rule": params, "authorization": auth}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/rules", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// UpdateRule patches an existing rule.
func (c *Client) UpdateRule(ctx context.Context, id int64, patch rules.Patch, auth Authorization) error {
	body := map[string]any{"patch": patch, "authorization": auth}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/v1/rules/%d", id), body, nil)
}

// GetRule retrieves a single rule by id.
func (c *Client) GetRule(ctx context.Context, id int64) (*rules.Rule, error) {
	var rule rules.Rule
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/rules/%d", id), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules retrieves all rules.
func (c *Client) ListRules(ctx context.Context) ([]rules.Rule, error) {
	var resp struct {
		Rules []rules.Rule `json:"rules"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/rules", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// GetHistory retrieves a rule's execution records.
func (c *Client) GetHistory(ctx context.Context, id int64) ([]rules.ExecutionRecord, error) {
	var resp struct {
		Executions []rules.ExecutionRecord `json:"executions"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/rules/%d/history", id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

// NextNonce asks the server for the signer's highest consumed nonce and
// returns the next usable one.
func (c *Client) NextNonce(ctx context.Context, address string) (uint64, error) {
	var resp struct {
		Nonce    uint64 `json:"nonce"`
		Consumed bool   `json:"consumed"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/signers/"+address+"/nonce", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Nonce + 1, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
