// Package razorpay implements the payment provider boundary against a
// Razorpay-compatible orders API. Amounts cross the boundary in minor
// currency units; signature verification is HMAC-SHA256 over
// "orderID|paymentID" with the key secret.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/pawmart/cart-engine/internal/domain/payment"
)

var _ payment.Provider = (*Client)(nil)

// Config holds provider credentials and endpoint.
type Config struct {
	// BaseURL of the provider API, e.g. https://api.razorpay.com.
	BaseURL string
	KeyID   string
	Secret  string
	// Timeout for provider calls. Zero means 15s.
	Timeout time.Duration
}

// Client is an HTTP payment.Provider. The client handle is created
// once at startup and reused; it is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a provider client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

// CreateIntent creates a provider order for the given amount in minor
// units and returns the provider order ID.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, orderID string) (string, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  orderID,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal order request")
	}

	var resp createOrderResponse
	if err := c.post(ctx, "/v1/orders", body, &resp); err != nil {
		return "", errors.Wrap(err, "create provider order")
	}
	if resp.ID == "" {
		return "", errors.New("provider returned empty order id")
	}
	return resp.ID, nil
}

// Verify checks the callback signature: HMAC-SHA256 of
// "providerOrderID|paymentID" keyed with the secret, compared in
// constant time. A mismatch is a clean false, not an error.
func (c *Client) Verify(_ context.Context, providerOrderID, paymentID, signature string) (bool, error) {
	mac := hmac.New(sha256.New, []byte(c.cfg.Secret))
	fmt.Fprintf(mac, "%s|%s", providerOrderID, paymentID)
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1, nil
}

// NotifyTimeout voids an unconfirmed provider order after the session
// watchdog fired.
func (c *Client) NotifyTimeout(ctx context.Context, providerOrderID string) error {
	return c.post(ctx, "/v1/orders/"+providerOrderID+"/void", []byte(`{"reason":"expired"}`), nil)
}

// NotifyCancelled cancels a provider order after an explicit user
// dismissal. Distinct from NotifyTimeout so the provider can tell
// user-abandon from silent expiry.
func (c *Client) NotifyCancelled(ctx context.Context, providerOrderID string) error {
	return c.post(ctx, "/v1/orders/"+providerOrderID+"/void", []byte(`{"reason":"cancelled"}`), nil)
}

// post issues an authenticated POST and decodes the response into out
// when non-nil.
func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "provider request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("provider returned %d: %s", resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode provider response")
	}
	return nil
}
