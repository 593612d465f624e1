package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"
)

// DefaultAPIVersion is the admin API version used when none is configured.
const DefaultAPIVersion = "2024-10"

// DefaultMaxAttempts bounds ExecuteWithRetry's total call count.
const DefaultMaxAttempts = 3

// Client is a Shopify admin GraphQL client bound to one shop/token pair.
// It is stateless across calls beyond those read-only fields and the
// request limiter, so one instance is shared across all pipeline steps.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *slog.Logger

	// retryBaseDelay is the delay before the first retry; each further
	// retry doubles it. Overridable for tests.
	retryBaseDelay time.Duration
}

// Config holds client construction parameters.
type Config struct {
	// Shop is the myshopify domain, e.g. "example.myshopify.com".
	Shop string
	// Token is the admin API access token.
	Token string
	// APIVersion selects the admin API version (default: DefaultAPIVersion).
	APIVersion string
	// RequestsPerMinute sizes the local request limiter.
	RequestsPerMinute int
	// Endpoint overrides the derived admin URL (used by tests).
	Endpoint string
	// HTTPClient overrides the default HTTP client (used by tests).
	HTTPClient *http.Client
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates an admin API client.
func New(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", cfg.Shop, cfg.APIVersion)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		endpoint:       endpoint,
		token:          cfg.Token,
		httpClient:     httpClient,
		limiter:        NewRateLimiter(cfg.RequestsPerMinute),
		logger:         cfg.Logger,
		retryBaseDelay: time.Second,
	}
}

// Request is a GraphQL request body.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body. Data is kept raw; call sites pull
// the fields they need and validate them before use.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []ResponseError `json:"errors,omitempty"`
}

// ResponseError is a top-level GraphQL error.
type ResponseError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

// Get extracts a value from the response data by gjson path,
// e.g. "shop.name" or "collections.edges.0.node.id".
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Data, path)
}

// UserError is a mutation-level validation error returned under a
// mutation's userErrors field.
type UserError struct {
	Field   []string
	Message string
}

// UserErrors collects the userErrors reported under the given mutation
// root, e.g. UserErrors("collectionCreate").
func (r *Response) UserErrors(root string) []UserError {
	var out []UserError
	r.Get(root + ".userErrors").ForEach(func(_, v gjson.Result) bool {
		ue := UserError{Message: v.Get("message").String()}
		v.Get("field").ForEach(func(_, f gjson.Result) bool {
			ue.Field = append(ue.Field, f.String())
			return true
		})
		out = append(out, ue)
		return true
	})
	return out
}

// Execute issues a single POST to the admin endpoint. Errors inside a 200
// body become BusinessError (or RetryableError when they signal
// throttling); non-2xx responses and transport failures become
// NetworkError. Execute itself never retries.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(Request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.RecordThrottle()
			return nil, &RetryableError{Message: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		return nil, &NetworkError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var gqlResp Response
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(respBody))
	}

	if len(gqlResp.Errors) > 0 {
		if isThrottled(gqlResp.Errors) {
			c.limiter.RecordThrottle()
			return nil, &RetryableError{Message: joinMessages(gqlResp.Errors)}
		}
		return nil, &BusinessError{Message: joinMessages(gqlResp.Errors)}
	}

	return &gqlResp, nil
}

// ExecuteWithRetry wraps Execute with bounded exponential backoff for
// throttled calls. The delay before retry k is 2^(k-1) times the base
// delay. Business and network errors pass through after a single call.
func (c *Client) ExecuteWithRetry(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	return c.ExecuteWithRetryAttempts(ctx, query, variables, DefaultMaxAttempts)
}

// ExecuteWithRetryAttempts is ExecuteWithRetry with an explicit attempt
// budget. maxAttempts counts total calls, not retries.
func (c *Client) ExecuteWithRetryAttempts(ctx context.Context, query string, variables map[string]any, maxAttempts int) (*Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return retry.DoWithData(
		func() (*Response, error) {
			return c.Execute(ctx, query, variables)
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(c.retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(5*time.Minute),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var re *RetryableError
			return errors.As(err, &re)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("admin api call throttled, backing off",
				"attempt", n+1, "max_attempts", maxAttempts, "error", err)
		}),
	)
}

// LimiterStatus reports the request limiter's current state.
func (c *Client) LimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}
