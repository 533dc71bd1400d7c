package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/config"
)

type LLMErrorKind string

const (
	LLMErrorRateLimited LLMErrorKind = "rate_limited"
	LLMErrorTimeout     LLMErrorKind = "timeout"
	LLMErrorProvider    LLMErrorKind = "provider"
)

// LLMError is a classified provider failure. Only rate limits and timeouts are
// retried.
type LLMError struct {
	Kind       LLMErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm %s error: %s", e.Kind, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status from the provider to an LLMError.
func ClassifyStatus(status int, message string, cause error) *LLMError {
	kind := LLMErrorProvider
	switch status {
	case http.StatusTooManyRequests:
		kind = LLMErrorRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = LLMErrorTimeout
	}
	return &LLMError{Kind: kind, StatusCode: status, Message: message, Err: cause}
}

// classifyTransportError handles failures that never produced a status code.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &LLMError{Kind: LLMErrorTimeout, Message: err.Error(), Err: err}
	}
	return &LLMError{Kind: LLMErrorProvider, Message: err.Error(), Err: err}
}

func IsRateLimited(err error) bool {
	var llmErr *LLMError
	return errors.As(err, &llmErr) && llmErr.Kind == LLMErrorRateLimited
}

func IsTimeout(err error) bool {
	var llmErr *LLMError
	return errors.As(err, &llmErr) && llmErr.Kind == LLMErrorTimeout
}

// LLMTransport performs one provider call with no retries.
type LLMTransport interface {
	ChatCompletion(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
	Embedding(ctx context.Context, text string) ([]float32, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

type LLMClient interface {
	Embedder
	Completer
}

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Delay is the wait before the given retry (1-based): exponential for rate
// limits, linear for timeouts.
func (p RetryPolicy) Delay(kind LLMErrorKind, retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	switch kind {
	case LLMErrorRateLimited:
		return p.BaseDelay * time.Duration(1<<(retry-1))
	case LLMErrorTimeout:
		return p.BaseDelay * time.Duration(retry)
	default:
		return 0
	}
}

type llmClient struct {
	transport LLMTransport
	retry     RetryPolicy
	dimension int
}

// NewLLMClient validates cfg and builds the client for the configured
// provider. Nothing is deferred to the first call.
func NewLLMClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: LLM API key is required", ErrInvalidArgument)
	}
	if cfg.Model == "" || cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("%w: LLM model and embedding model are required", ErrInvalidArgument)
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: malformed LLM base URL %q", ErrInvalidArgument, cfg.BaseURL)
		}
	}
	if cfg.MaxRetries < 0 || cfg.RetryBaseDelay < 0 {
		return nil, fmt.Errorf("%w: LLM retry settings must not be negative", ErrInvalidArgument)
	}

	var transport LLMTransport
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		transport = newOpenAITransport(cfg)
	case config.ProviderGemini:
		gemini, err := newGeminiTransport(ctx, cfg)
		if err != nil {
			return nil, err
		}
		transport = gemini
	default:
		return nil, fmt.Errorf("%w: unknown LLM provider %q", ErrInvalidArgument, cfg.Provider)
	}

	return NewLLMClientWithTransport(transport, RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	}, cfg.EmbeddingDimension), nil
}

// NewLLMClientWithTransport wraps an already-built transport. A dimension of 0
// disables the embedding length check.
func NewLLMClientWithTransport(transport LLMTransport, retry RetryPolicy, dimension int) LLMClient {
	return &llmClient{transport: transport, retry: retry, dimension: dimension}
}

func (c *llmClient) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	var text string
	err := c.withRetry(ctx, "chat completion", func(ctx context.Context) error {
		var err error
		text, err = c.transport.ChatCompletion(ctx, prompt, temperature, maxTokens)
		return err
	})
	return text, err
}

func (c *llmClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := c.withRetry(ctx, "embedding", func(ctx context.Context) error {
		var err error
		vector, err = c.transport.Embedding(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.dimension > 0 && len(vector) != c.dimension {
		return nil, &LLMError{
			Kind:    LLMErrorProvider,
			Message: fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), c.dimension),
		}
	}

	return vector, nil
}

func (c *llmClient) withRetry(ctx context.Context, op string, call func(context.Context) error) error {
	for retry := 0; ; retry++ {
		err := call(ctx)
		if err == nil {
			return nil
		}

		var llmErr *LLMError
		if !errors.As(err, &llmErr) || llmErr.Kind == LLMErrorProvider {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s aborted: %w", op, ctx.Err())
		}
		if retry >= c.retry.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", op, retry, err)
		}

		delay := c.retry.Delay(llmErr.Kind, retry+1)
		logrus.WithFields(logrus.Fields{
			"op":    op,
			"kind":  llmErr.Kind,
			"retry": retry + 1,
			"delay": delay,
		}).Warn("⚠️  LLM call failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s aborted: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
}
