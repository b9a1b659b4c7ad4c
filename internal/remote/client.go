package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bairro/internal/config"
	"bairro/internal/metrics"

	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer token for outgoing requests. The client
// only reads tokens; it clears them when the API answers 401 so the next
// caller is forced to re-authenticate.
type TokenSource interface {
	Token() string
	ClearToken()
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource

	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	backoffFactor float64

	logger *zerolog.Logger
}

func NewClient(cfg config.APIConfig, tokens TokenSource, logger *zerolog.Logger) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		tokens:        tokens,
		maxRetries:    cfg.MaxRetries,
		baseDelay:     cfg.RetryBaseDelay.Std(),
		maxDelay:      cfg.RetryMaxDelay.Std(),
		backoffFactor: cfg.BackoffFactor,
		logger:        logger,
	}
}

// envelope is the conventional response body of the remote API.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Total   int             `json:"total"`
}

// do performs a single attempt. Any non-2xx response or transport failure
// comes back as *Error.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindPermanent, Message: "encode request body", Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindPermanent, Message: "build request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, aborted requests and connection failures are all
		// transient from the caller's point of view.
		return &Error{Kind: KindTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransient, Message: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Kind:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
		var env envelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.Message != "" {
			apiErr.Message = env.Message
			apiErr.Code = env.Code
		}

		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
			// Stored token is no longer valid; drop it before surfacing.
			c.tokens.ClearToken()
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Kind: KindPermanent, Message: "decode response body", Err: err}
		}
	}
	return nil
}

// Do performs a request with retry on the transient whitelist only.
// Delays follow base * factor^attempt plus a small random jitter, capped
// at the configured maximum.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncHTTPRetry(path)
			select {
			case <-time.After(c.retryDelay(attempt)):
			case <-ctx.Done():
				return &Error{Kind: KindTransient, Message: "canceled while waiting to retry", Err: ctx.Err()}
			}
		}

		lastErr = c.do(ctx, method, path, body, out)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}

		if c.logger != nil {
			c.logger.Warn().Err(lastErr).Str("method", method).Str("path", path).
				Int("attempt", attempt+1).Msg("transient remote failure")
		}
	}
	return lastErr
}

func (c *Client) retryDelay(attempt int) time.Duration {
	base := c.baseDelay
	if base <= 0 {
		base = time.Second
	}
	factor := c.backoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	delay += jitter
	if c.maxDelay > 0 && delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

// CheckConnectivity probes the health endpoint. Any failure means offline;
// it never returns an error.
func (c *Client) CheckConnectivity(ctx context.Context) bool {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return false
	}
	return true
}

func decodeData(env envelope, out interface{}) error {
	if len(env.Data) == 0 {
		return &Error{Kind: KindPermanent, Message: "response has no data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindPermanent, Message: "decode data payload", Err: err}
	}
	return nil
}

func ensureSuccess(env envelope) error {
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "remote reported failure"
		}
		return &Error{Kind: KindPermanent, Message: msg, Code: env.Code}
	}
	return nil
}

func queryString(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return "?" + values.Encode()
}
