package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DeliveryHeader carries an ID that stays the same across retries of one
// notification, so a plugin can drop duplicates.
const DeliveryHeader = "X-Slotgrid-Delivery"

// maxRetryAfter caps how long a plugin may ask us to back off.
const maxRetryAfter = 30 * time.Second

// rpcRequest is the JSON-RPC 2.0 envelope a plugin receives. Method is the
// topic name and Params its payload.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// rpcResponse is a plugin's acknowledgement.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *PluginError    `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// PluginError is a JSON-RPC error object returned by a plugin that was
// reachable but refused the notification.
type PluginError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin error %d: %s", e.Code, e.Message)
}

// errPermanent marks answers that resending the notification cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// retryAfterError is a 429 or 503 that named its own backoff.
type retryAfterError struct {
	status int
	wait   time.Duration
}

func (e retryAfterError) Error() string {
	return fmt.Sprintf("plugin busy: %d, retry after %s", e.status, e.wait)
}

// PluginClient delivers topic notifications to plugin endpoints. Network
// errors, 5xx and 429 answers are retried with doubling backoff; a
// Retry-After header overrides the backoff for that attempt.
type PluginClient struct {
	httpClient *http.Client
	nextID     atomic.Int64
	maxRetries int
	baseDelay  time.Duration
}

// NewPluginClient creates a client that tries each delivery up to
// maxRetries+1 times.
func NewPluginClient(maxRetries int, baseDelay time.Duration, timeout time.Duration) *PluginClient {
	return &PluginClient{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Deliver sends payload under topic to endpoint. A plugin that answers with
// a JSON-RPC error yields a *PluginError; transport failures yield any other
// error.
func (c *PluginClient) Deliver(ctx context.Context, endpoint string, topic Topic, payload any) error {
	id := c.nextID.Add(1)
	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  string(topic),
		Params:  payload,
		ID:      id,
	})
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", topic, err)
	}
	delivery := uuid.NewString()

	var lastErr error
	delay := c.baseDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := c.post(ctx, endpoint, delivery, data)
		if err == nil {
			if resp.ID != id {
				return fmt.Errorf("plugin answered id %d to request %d", resp.ID, id)
			}
			if resp.Error != nil {
				return resp.Error
			}
			return nil
		}
		lastErr = err

		var perm errPermanent
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt < c.maxRetries {
			wait := delay
			var busy retryAfterError
			if errors.As(err, &busy) && busy.wait > 0 {
				wait = busy.wait
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s not delivered after %d attempts: %w", topic, c.maxRetries+1, lastErr)
}

func (c *PluginClient) post(ctx context.Context, endpoint, delivery string, data []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, errPermanent{fmt.Errorf("build request for %s: %w", endpoint, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, delivery)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to plugin: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, retryAfterError{status: resp.StatusCode, wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("plugin server error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read plugin answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errPermanent{fmt.Errorf("plugin rejected notification with %d: %s", resp.StatusCode, body)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, errPermanent{fmt.Errorf("decode plugin answer: %w", err)}
	}
	return &rpcResp, nil
}

// parseRetryAfter reads the delay-seconds form of Retry-After. Dates and
// garbage give zero so the regular backoff applies.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
