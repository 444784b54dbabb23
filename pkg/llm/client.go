package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/kgas-labs/kgas/internal/resilience"
)

// DefaultModel is the model used when a request does not name one.
const DefaultModel = "claude-sonnet-4-5-20250929"

// defaultCallTimeout bounds a single completion call. Assessment callers
// degrade to a documented default on timeout; nothing may hang on the API.
const defaultCallTimeout = 60 * time.Second

// Client is the single call shape the assessment pipeline needs from a
// language model: prompt in, text out. Implementations must be safe for
// concurrent use.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is one prompt for the model. Temperature defaults to 0
// because calibration assumes reproducible outputs.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// AnthropicClient implements Client over the official SDK with a client-side
// rate limit, a per-call timeout, bounded retries on transient errors, and a
// circuit breaker that sheds calls while the API stays down.
type AnthropicClient struct {
	client  sdk.Client
	limiter *rate.Limiter
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) AnthropicOption {
	return func(c *AnthropicClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) AnthropicOption {
	return func(c *AnthropicClient) { c.timeout = d }
}

// WithRetry overrides the retry policy. The retry logger and transient-error
// classification are kept unless the config sets its own.
func WithRetry(cfg resilience.RetryConfig) AnthropicOption {
	return func(c *AnthropicClient) {
		if cfg.OnRetry == nil {
			cfg.OnRetry = resilience.RetryLogger("anthropic", "complete")
		}
		if cfg.ShouldRetry == nil {
			cfg.ShouldRetry = transientAPIError
		}
		c.retry = cfg
	}
}

// WithCircuit overrides the circuit breaker tuning.
func WithCircuit(cfg resilience.CircuitBreakerConfig) AnthropicOption {
	return func(c *AnthropicClient) {
		if cfg.ShouldTrip == nil {
			cfg.ShouldTrip = transientAPIError
		}
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// NewAnthropic creates a Client backed by the Anthropic API.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.ShouldTrip = transientAPIError

	c := &AnthropicClient{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		timeout: defaultCallTimeout,
		retry: resilience.RetryConfig{
			MaxAttempts: 2,
			ShouldRetry: transientAPIError,
			OnRetry:     resilience.RetryLogger("anthropic", "complete"),
		},
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "llm: rate limit wait")
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(model),
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(req.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	text, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			msg, err := c.client.Messages.New(callCtx, params)
			if err != nil {
				return "", eris.Wrap(err, "llm: create message")
			}

			var sb strings.Builder
			for _, block := range msg.Content {
				if block.Type == "text" {
					sb.WriteString(block.Text)
				}
			}
			return sb.String(), nil
		})
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// transientAPIError classifies an SDK error by HTTP status when one is
// available, falling back to generic transport heuristics.
func transientAPIError(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// CleanJSON strips markdown fences and extracts the first JSON object span
// from model output.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
