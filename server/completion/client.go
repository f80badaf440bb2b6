package completion

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/teilomillet/concierge/config"
	"github.com/teilomillet/concierge/server/circuitbreaker"
	"github.com/teilomillet/concierge/server/metrics"
)

var _ Completer = (*Client)(nil)

// Client calls the chat completion API through a circuit breaker.
type Client struct {
	api     *openai.Client
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewClient builds a client from the completion settings. breaker and m may
// be nil.
func NewClient(cfg config.CompletionConfig, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		oc.OrgID = cfg.Organization
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		api:     openai.NewClientWithConfig(oc),
		timeout: cfg.Timeout,
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}
}

// Complete sends req and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	var callErr error
	call := func() error {
		resp, callErr = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: toOpenAIMessages(req.Messages),
			Tools:    toOpenAITools(req.Tools),
		})
		// A rejected request says nothing about the health of the service.
		if rejectedRequest(callErr) {
			return nil
		}
		return callErr
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err == nil {
		err = callErr
	}
	duration := time.Since(start)

	if err == nil && len(resp.Choices) == 0 {
		err = &Error{Err: ErrNoChoices}
	} else {
		err = classify(err)
	}
	c.observe(req.Model, duration, err)

	if err != nil {
		c.logger.Warn("Completion call failed",
			zap.String("model", req.Model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	choice := resp.Choices[0]
	c.logger.Debug("Completion call succeeded",
		zap.String("model", req.Model),
		zap.Duration("duration", duration),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &Response{
		Message:      fromOpenAIMessage(choice.Message),
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// BreakerState reports the circuit state for health checks.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return errors.Join(ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &Error{Err: err}
}

// rejectedRequest reports whether the service refused the request itself,
// for example a malformed history or an unreachable image URL. Timeouts and
// rate limiting are the service's problem and still count as failures.
func rejectedRequest(err error) bool {
	if err == nil {
		return false
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

func (c *Client) observe(model string, d time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnavailable):
		outcome = "unavailable"
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	c.metrics.CompletionCalls.WithLabelValues(model, outcome).Inc()
	c.metrics.CompletionDuration.WithLabelValues(model).Observe(d.Seconds())
}
