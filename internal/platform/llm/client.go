package llm

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Request describes one call to the external generation service.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSONOnly asks the model for a JSON object response.
	JSONOnly bool
}

// Result is the outcome of a generation call. It never carries a Go error:
// failures are absorbed into OK=false so callers degrade instead of failing
// the turn.
type Result struct {
	OK   bool
	Text string
	Err  string
}

// Generator is the single operation the intake engine needs from the
// external generation service.
type Generator interface {
	GenerateText(ctx context.Context, req Request) Result
}

// RetryPolicy bounds the transient-failure retry loop.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client calls the OpenAI chat completion API with bounded retries.
type Client struct {
	api    *openai.Client
	model  string
	retry  RetryPolicy
	logger zerolog.Logger
	// sleep is swappable for tests
	sleep func(time.Duration)
}

func NewClient(apiKey, model string, retry RetryPolicy, logger zerolog.Logger) *Client {
	return &Client{
		api:    openai.NewClient(apiKey),
		model:  model,
		retry:  retry,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// GenerateText performs the call, retrying transient failures with
// exponential backoff and jitter. Non-transient failures (auth, malformed
// request, not found) fail immediately.
func (c *Client) GenerateText(ctx context.Context, req Request) Result {
	delay := c.retry.BaseDelay

	for attempt := 0; attempt < c.retry.MaxRetries; attempt++ {
		text, err := c.call(ctx, req)
		if err == nil {
			return Result{OK: true, Text: text}
		}

		if !IsTransient(err) || attempt == c.retry.MaxRetries-1 {
			c.logger.Error().
				Str("model", c.model).
				Int("attempt", attempt+1).
				Err(err).
				Msg("llm_error")
			return Result{Err: truncate(err.Error(), 200)}
		}

		sleep := delay
		if sleep > c.retry.MaxDelay {
			sleep = c.retry.MaxDelay
		}
		jitter := 0.8 + 0.4*rand.Float64()
		c.sleep(time.Duration(float64(sleep) * jitter))
		delay *= 2
	}

	return Result{Err: "unknown_retry_failure"}
}

func (c *Client) call(ctx context.Context, req Request) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONOnly {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// IsTransient reports whether the failure is worth retrying: timeouts, rate
// limits and temporary outages. Auth and request-shape problems are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		case 400, 401, 403, 404:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, k := range []string{"timeout", "timed out", "rate limit", "429", "unavailable", "503", "temporarily"} {
		if strings.Contains(msg, k) {
			return true
		}
	}
	for _, k := range []string{"api key", "permission", "unauthorized", "forbidden", "invalid argument", "not found"} {
		if strings.Contains(msg, k) {
			return false
		}
	}

	// Unknown failures are not retried.
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
