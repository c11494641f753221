package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker/v2"

	"restaurantintel/backend/internal/bizdate"
	"restaurantintel/backend/internal/logging"
)

const (
	tenantHeader    = "Toast-Restaurant-External-ID"
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 100
	maxPageSize     = 100
	defaultMaxPages = 50
	maxResponseBody = 16 << 20
)

var errServerStatus = errors.New("vendor server error")

// rawResponse is what passes through the circuit breaker; decoding happens
// outside so malformed payloads do not trip it.
type rawResponse struct {
	status int
	body   []byte
}

type Client struct {
	creds      Credentials
	tokens     *TokenManager
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*rawResponse]
	validate   *validator.Validate
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
	pageSize   int
	maxPages   int
	breakerCfg gobreaker.Settings
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone business dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = clampPageSize(n)
	}
}

func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithBreakerThreshold trips the breaker after n consecutive failures and
// keeps it open for cooldown.
func WithBreakerThreshold(n uint32, cooldown time.Duration) Option {
	return func(c *Client) {
		if n > 0 {
			c.breakerCfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= n
			}
		}
		if cooldown > 0 {
			c.breakerCfg.Timeout = cooldown
		}
	}
}

// New validates the credentials and returns a ready client. A
// *ConfigurationError is returned when anything required is missing.
func New(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")

	c := &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: defaultTimeout},
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logging.Discard(),
		loc:        time.UTC,
		now:        time.Now,
		pageSize:   defaultPageSize,
		maxPages:   defaultMaxPages,
		breakerCfg: gobreaker.Settings{
			Name:        "pos",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}
	if loc, err := bizdate.LoadLocation(""); err == nil {
		c.loc = loc
	}
	for _, opt := range opts {
		opt(c)
	}

	tokens, err := NewTokenManager(creds, c.httpClient, c.logger)
	if err != nil {
		return nil, err
	}
	tokens.setClock(c.now)
	c.tokens = tokens

	logger := c.logger
	c.breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	c.breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("pos circuit breaker state change",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		breakerState.WithLabelValues(name).Set(stateToFloat(to))
	}
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](c.breakerCfg)
	breakerState.WithLabelValues(c.breakerCfg.Name).Set(0)

	return c, nil
}

func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

func (c *Client) Location() *time.Location {
	return c.loc
}

func (c *Client) Status() TokenStatus {
	return c.tokens.Status()
}

// get performs an authenticated GET and decodes the body into dest.
func (c *Client) get(ctx context.Context, resource, path string, query url.Values, dest any) error {
	started := time.Now()
	err := c.withAuthRetry(ctx, resource, func(token string) error {
		return c.fetch(ctx, resource, path, query, token, dest)
	})
	requestDuration.WithLabelValues(resource).Observe(time.Since(started).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
		c.logger.WarnContext(ctx, "pos request failed",
			slog.String("resource", resource),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	requestsTotal.WithLabelValues(resource, outcome).Inc()
	return err
}

// withAuthRetry runs fn with a fresh token. A 401 invalidates the token and
// fn runs exactly once more; a second 401 is returned to the caller.
func (c *Client) withAuthRetry(ctx context.Context, resource string, fn func(token string) error) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return authFailure(resource, err)
	}

	err = fn(tok.Value)
	if !IsUnauthorized(err) {
		return err
	}

	c.logger.InfoContext(ctx, "pos token rejected, re-authenticating", slog.String("resource", resource))
	c.tokens.Invalidate()
	tok, err = c.tokens.Authenticate(ctx)
	if err != nil {
		return authFailure(resource, err)
	}
	return fn(tok.Value)
}

func authFailure(resource string, err error) error {
	return &APIError{Resource: resource, Message: err.Error(), Err: err}
}

func (c *Client) fetch(ctx context.Context, resource, path string, query url.Values, token string, dest any) error {
	endpoint := c.creds.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var captured *rawResponse
	_, err := c.breaker.Execute(func() (*rawResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(tenantHeader, c.creds.TenantGUID)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		captured = &rawResponse{status: resp.StatusCode, body: body}
		if resp.StatusCode >= http.StatusInternalServerError {
			return captured, errServerStatus
		}
		return captured, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &APIError{Resource: resource, Message: "circuit open: vendor temporarily unavailable", Err: err}
	case captured == nil && err != nil:
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			msg = "request timed out"
		}
		return &APIError{Resource: resource, Message: msg, Err: err}
	case captured == nil:
		return &APIError{Resource: resource, Message: "empty response"}
	}

	if captured.status < 200 || captured.status >= 300 {
		return &APIError{
			Resource: resource,
			Status:   captured.status,
			Message:  vendorMessage(captured.status, captured.body),
		}
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(captured.body, dest); err != nil {
		return &APIError{
			Resource: resource,
			Status:   captured.status,
			Message:  fmt.Sprintf("invalid %s response: %v", resource, err),
			Err:      err,
		}
	}
	if err := c.validateRecords(dest); err != nil {
		return &APIError{
			Resource: resource,
			Status:   captured.status,
			Message:  fmt.Sprintf("invalid %s response: %v", resource, err),
			Err:      err,
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// validateRecords validates a decoded struct or each struct element of a
// decoded slice.
func (c *Client) validateRecords(dest any) error {
	v := reflect.ValueOf(dest)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		return c.validate.Struct(v.Addr().Interface())
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			if elem.Kind() != reflect.Struct {
				continue
			}
			if err := c.validate.Struct(elem.Addr().Interface()); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
	}
	return nil
}

func clampPageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
