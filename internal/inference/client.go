package inference

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/observability"
	"github.com/ent0n29/tensai/internal/reliability"
)

type ClientOption func(*Client)

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = observability.OrNop(logger) }
}

func WithMetrics(metrics *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = metrics }
}

// WithBackoffUnit scales the 2^attempt backoff. Defaults to one second.
func WithBackoffUnit(unit time.Duration) ClientOption {
	return func(c *Client) {
		if unit > 0 {
			c.unit = unit
		}
	}
}

// WithSleep replaces the wait between throttled attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithJitter replaces the U(0,1) jitter source.
func WithJitter(jitter func() float64) ClientOption {
	return func(c *Client) {
		if jitter != nil {
			c.jitter = jitter
		}
	}
}

func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// Client wraps a Provider with the fixed system instruction and throttling
// backoff. It is safe for concurrent use.
type Client struct {
	provider  Provider
	system    string
	maxTokens int
	unit      time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() float64
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewClient(provider Provider, systemPrompt string, opts ...ClientOption) *Client {
	c := &Client{
		provider:  provider,
		system:    strings.TrimSpace(systemPrompt),
		maxTokens: 4096,
		unit:      time.Second,
		sleep:     sleepContext,
		jitter:    rand.Float64,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Infer returns the model reply for turns. On failure the returned text is a
// user-presentable error message and err describes what happened; callers may
// store the text as an assistant turn either way.
func (c *Client) Infer(ctx context.Context, turns []conversation.Turn) (string, error) {
	if c == nil || c.provider == nil {
		return ErrorText(ErrNoProvider), &InferenceError{Kind: KindFailed, Err: ErrNoProvider}
	}
	req := c.buildRequest(turns)
	name := c.provider.Name()

	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		start := time.Now()
		text, err := c.provider.Complete(ctx, req)
		elapsed := time.Since(start)
		if err == nil {
			c.metrics.ObserveInferenceAttempt(name, "ok", elapsed)
			return text, nil
		}
		if !reliability.IsThrottled(err) {
			c.metrics.ObserveInferenceAttempt(name, "failed", elapsed)
			c.logger.Warn("inference failed",
				zap.String("provider", name),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			return ErrorText(err), &InferenceError{Kind: KindFailed, Provider: name, Attempts: attempt + 1, Err: err}
		}

		lastErr = err
		c.metrics.ObserveInferenceAttempt(name, "throttled", elapsed)
		wait := reliability.JitteredBackoff(attempt, c.unit, c.jitter())
		c.logger.Info("inference throttled, backing off",
			zap.String("provider", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return ErrorText(err), &InferenceError{Kind: KindFailed, Provider: name, Attempts: attempt + 1, Err: err}
		}
	}

	c.logger.Warn("inference retries exhausted", zap.String("provider", name), zap.Error(lastErr))
	return ExhaustedText, &InferenceError{Kind: KindExhausted, Provider: name, Attempts: MaxAttempts, Err: lastErr}
}

// buildRequest folds caller-supplied system turns into the fixed instruction.
func (c *Client) buildRequest(turns []conversation.Turn) Request {
	system := []string{}
	if c.system != "" {
		system = append(system, c.system)
	}
	messages := make([]conversation.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == conversation.RoleSystem {
			if s := strings.TrimSpace(t.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		messages = append(messages, t)
	}
	return Request{
		System:    strings.Join(system, "\n\n"),
		Turns:     messages,
		MaxTokens: c.maxTokens,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
