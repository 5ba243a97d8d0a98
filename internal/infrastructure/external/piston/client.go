// Package piston is a client for the Piston sandboxed code execution API.
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/circuitbreaker"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Piston client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://emkc.org/api/v2/piston
	BaseURL string

	Timeout time.Duration

	// RateLimit is the outbound request rate per second shared by all users.
	RateLimit      float64
	RateLimitBurst int

	MaxRetries     int
	RetryBaseDelay time.Duration

	// MaxSourceBytes rejects larger programs before they leave the process.
	MaxSourceBytes int

	Logger *logger.Logger

	// OnStateChange is called when the circuit breaker changes state.
	OnStateChange func(name string, from, to circuitbreaker.State)

	HTTPClient *http.Client
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		Timeout:        15 * time.Second,
		RateLimit:      5,
		RateLimitBurst: 5,
		MaxRetries:     2,
		RetryBaseDelay: 200 * time.Millisecond,
		MaxSourceBytes: 64 * 1024,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ExecuteRequest is one program run.
type ExecuteRequest struct {
	Language string
	// Version defaults to "*", the newest installed runtime.
	Version string
	Source  string
	Stdin   string
	Args    []string
}

// Stage is the outcome of the compile or run stage.
type Stage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output string  `json:"output"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// ExecuteResult is the sandbox response.
type ExecuteResult struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Run      Stage  `json:"run"`
	// Compile is nil for interpreted languages.
	Compile *Stage `json:"compile,omitempty"`
}

// Succeeded reports whether the program compiled and exited with code 0.
func (r *ExecuteResult) Succeeded() bool {
	if r.Compile != nil && r.Compile.Code != nil && *r.Compile.Code != 0 {
		return false
	}
	return r.Run.Code != nil && *r.Run.Code == 0
}

// Runtime is an installed language runtime.
type Runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

type executeBody struct {
	Language string     `json:"language"`
	Version  string     `json:"version"`
	Files    []fileBody `json:"files"`
	Stdin    string     `json:"stdin,omitempty"`
	Args     []string   `json:"args,omitempty"`
}

type fileBody struct {
	Content string `json:"content"`
}

type errorBody struct {
	Message string `json:"message"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Piston API client. Calls pass a process-wide rate limiter,
// then the circuit breaker, then the retrier.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *logger.Logger
}

// NewClient creates a new Piston client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}
	if config.RateLimitBurst <= 0 {
		config.RateLimitBurst = 1
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimitBurst),
		breaker:    circuitbreaker.ExecutorBreaker(config.OnStateChange, countsAsOutage),
		retrier:    retry.ExecutorRetrier(config.MaxRetries, config.RetryBaseDelay),
		logger:     config.Logger.With(logger.Component("piston")),
	}
}

// countsAsOutage excludes caller mistakes from the breaker's failure count.
func countsAsOutage(err error) bool {
	return !shared.IsValidation(err) && !errors.Is(err, shared.ErrRateLimited)
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Execute runs a program in the sandbox.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}
	version := req.Version
	if version == "" {
		version = "*"
	}
	body := executeBody{
		Language: strings.ToLower(strings.TrimSpace(req.Language)),
		Version:  version,
		Files:    []fileBody{{Content: req.Source}},
		Stdin:    req.Stdin,
		Args:     req.Args,
	}

	var result ExecuteResult
	if err := c.call(ctx, http.MethodPost, "/execute", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Runtimes lists the installed language runtimes.
func (c *Client) Runtimes(ctx context.Context) ([]Runtime, error) {
	var runtimes []Runtime
	if err := c.call(ctx, http.MethodGet, "/runtimes", nil, &runtimes); err != nil {
		return nil, err
	}
	return runtimes, nil
}

func (c *Client) validate(req ExecuteRequest) error {
	if strings.TrimSpace(req.Language) == "" {
		return shared.ValidationError("executor", "Execute", "language is required")
	}
	if strings.TrimSpace(req.Source) == "" {
		return shared.ValidationError("executor", "Execute", "source is required")
	}
	if c.config.MaxSourceBytes > 0 && len(req.Source) > c.config.MaxSourceBytes {
		return shared.NewDomainError("executor", "Execute", shared.ErrValueOutOfRange,
			fmt.Sprintf("source exceeds %d bytes", c.config.MaxSourceBytes))
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return shared.WrapError("executor", "Wait", shared.ErrRateLimited, "code executor rate limit exceeded", err)
	}

	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, method, path, body, dest)
		})
	})
	if circuitbreaker.IsOpenError(err) {
		return fmt.Errorf("%w: %w", shared.ErrExecutorUnavailable, err)
	}
	if err != nil {
		c.logger.Warn("executor request failed",
			logger.String("path", path),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
		return err
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return shared.WrapError("executor", "Request", shared.ErrTimeout, "code executor request cancelled", err)
		}
		return retry.Retryable(shared.WrapError("executor", "Request", shared.ErrExternalService, "code executor unreachable", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return retry.Retryable(shared.WrapError("executor", "Request", shared.ErrExternalService, "read executor response", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return shared.ErrExecutorRateLimited
	case resp.StatusCode >= 500:
		return retry.Retryable(shared.WrapError("executor", "Request", shared.ErrExternalService,
			fmt.Sprintf("executor returned %d", resp.StatusCode), errors.New(upstreamMessage(respBody))))
	case resp.StatusCode >= 400:
		return shared.NewDomainError("executor", "Request", shared.ErrInvalidInput, upstreamMessage(respBody))
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return shared.WrapError("executor", "Decode", shared.ErrExternalService, "malformed executor response", err)
	}
	return nil
}

func upstreamMessage(body []byte) string {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return "empty response"
	}
	return msg
}
