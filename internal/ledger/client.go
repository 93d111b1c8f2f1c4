package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tonkeeper/tongo/liteapi"

	"github.com/veshch/ton-tipbot/internal/asset"
)

// Client talks to the TON blockchain. Read access (balances, events, webhook
// management) goes through a TonAPI-compatible HTTP endpoint; transfers and
// account provisioning use tongo directly (see wallet.go).
type Client struct {
	baseURL    string
	apiKey     string
	testnet    bool
	httpClient *http.Client

	liteOnce sync.Once
	lite     *liteapi.Client
	liteErr  error

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewClient creates a new ledger client. The liteserver connection is dialed
// lazily on the first transfer.
func NewClient(baseURL, apiKey string, testnet bool) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		testnet: testnet,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay: 250 * time.Millisecond, // ~4 RPS
	}
}

func (c *Client) liteClient() (*liteapi.Client, error) {
	c.liteOnce.Do(func() {
		if c.testnet {
			c.lite, c.liteErr = liteapi.NewClient(liteapi.Testnet())
		} else {
			c.lite, c.liteErr = liteapi.NewClient(liteapi.Mainnet())
		}
	})
	return c.lite, c.liteErr
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	c.throttle()

	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}

// GetBalance returns an account's balance of the given transferable, in base
// units. An account that never held a jetton reports zero.
func (c *Client) GetBalance(ctx context.Context, t *asset.Transferable, addressRaw string) (int64, error) {
	if t.IsNative() {
		data, err := c.doRequest(ctx, "GET", "/accounts/"+addressRaw, nil)
		if err != nil {
			return 0, err
		}

		var info AccountInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return 0, fmt.Errorf("unmarshal: %w", err)
		}
		return info.Balance, nil
	}

	data, err := c.doRequest(ctx, "GET", "/accounts/"+addressRaw+"/jettons", nil)
	if err != nil {
		return 0, err
	}

	var resp JettonsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("unmarshal: %w", err)
	}

	for _, b := range resp.Balances {
		if NormalizeAddress(b.Jetton.Address) != t.Master {
			continue
		}
		units, err := strconv.ParseInt(b.Balance, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s balance %q: %w", t.Name, b.Balance, err)
		}
		return units, nil
	}

	return 0, nil
}

// GetEvents returns recent events for an account
func (c *Client) GetEvents(ctx context.Context, addressRaw string, limit int) ([]Event, error) {
	path := fmt.Sprintf("/accounts/%s/events?limit=%d", addressRaw, limit)
	data, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp EventsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return resp.Events, nil
}

// GetEventByHash returns an event by transaction hash
func (c *Client) GetEventByHash(ctx context.Context, txHash string) (*Event, error) {
	data, err := c.doRequest(ctx, "GET", "/events/"+txHash, nil)
	if err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &event, nil
}

// --- Webhook Management ---

// ListWebhooks returns all webhooks
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	data, err := c.doRequest(ctx, "GET", "/webhooks", nil)
	if err != nil {
		return nil, err
	}

	var resp WebhookListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return resp.Webhooks, nil
}

// CreateWebhook creates a new webhook
func (c *Client) CreateWebhook(ctx context.Context, endpoint string) (*Webhook, error) {
	body := map[string]string{"endpoint": endpoint}
	data, err := c.doRequest(ctx, "POST", "/webhooks", body)
	if err != nil {
		return nil, err
	}

	var webhook Webhook
	if err := json.Unmarshal(data, &webhook); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &webhook, nil
}

// SubscribeAccounts subscribes accounts to a webhook
func (c *Client) SubscribeAccounts(ctx context.Context, webhookID int64, accounts []string) error {
	path := fmt.Sprintf("/webhooks/%d/account-tx/subscribe", webhookID)
	body := map[string][]string{"accounts": accounts}
	_, err := c.doRequest(ctx, "POST", path, body)
	return err
}

// UnsubscribeAccounts unsubscribes accounts from a webhook
func (c *Client) UnsubscribeAccounts(ctx context.Context, webhookID int64, accounts []string) error {
	path := fmt.Sprintf("/webhooks/%d/account-tx/unsubscribe", webhookID)
	body := map[string][]string{"accounts": accounts}
	_, err := c.doRequest(ctx, "POST", path, body)
	return err
}
