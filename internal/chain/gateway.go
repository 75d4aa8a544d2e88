package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// ErrPartialTransfer is returned when the gateway reports that a transfer was
// applied to some recipients but not all. This should be impossible for a
// conforming ledger; callers must stop executing the rule until an operator
// reconciles.
var ErrPartialTransfer = errors.New("transfer partially applied")

// GatewayClient talks to a chain gateway service over JSON/HTTP. Read calls
// (balance, time, inflow) are retried with exponential backoff inside the
// current poll cycle because the gateway is eventually consistent and may
// briefly refuse. Transfer submission is never retried here: a failed or
// timed-out submission is surfaced and the rule is re-evaluated from scratch
// on the next cycle, which prevents double-submission.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint
}

// NewGatewayClient creates a client for the gateway at baseURL.
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxTries:   3,
	}
}

// Balance returns the current balance of an account.
func (c *GatewayClient) Balance(ctx context.Context, account string) (int64, error) {
	return c.readInt(ctx, "/v1/balance?account="+url.QueryEscape(account))
}

// Now returns the gateway's chain timestamp.
func (c *GatewayClient) Now(ctx context.Context) (int64, error) {
	return c.readInt(ctx, "/v1/time")
}

// CumulativeInflow returns the total inflow into the account strictly after
// the given unix timestamp. The gateway's /v1/inflow contract is exclusive of
// the boundary so that inflow landing at the exact moment of an execution is
// never counted toward the next one.
func (c *GatewayClient) CumulativeInflow(ctx context.Context, account string, since int64) (int64, error) {
	return c.readInt(ctx, "/v1/inflow?account="+url.QueryEscape(account)+
		"&since="+strconv.FormatInt(since, 10))
}

type transferRequest struct {
	Treasury string         `json:"treasury"`
	Payouts  []rules.Payout `json:"payouts"`
}

// SubmitTransfer submits one atomic multi-recipient transfer. Exactly one
// attempt is made.
func (c *GatewayClient) SubmitTransfer(ctx context.Context, treasury string, payouts []rules.Payout) (Receipt, error) {
	body, err := json.Marshal(transferRequest{Treasury: treasury, Payouts: payouts})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var gwErr struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(msg, &gwErr) == nil && gwErr.Code == "PARTIAL_TRANSFER" {
			return Receipt{}, fmt.Errorf("%w: %s", ErrPartialTransfer, string(msg))
		}
		return Receipt{}, fmt.Errorf("gateway rejected transfer (status %d): %s",
			resp.StatusCode, string(msg))
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return receipt, nil
}

type intResponse struct {
	Value int64 `json:"value"`
}

// readInt fetches an integer-valued read endpoint with bounded retries.
func (c *GatewayClient) readInt(ctx context.Context, path string) (int64, error) {
	operation := func() (int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("gateway read %s: status %d", path, resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return 0, backoff.Permanent(err)
			}
			return 0, err
		}

		var out intResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return 0, backoff.Permanent(fmt.Errorf("decode gateway response: %w", err))
		}
		return out.Value, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries))
}
