// Package llm talks to an OpenAI compatible chat completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/httpx"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-3.5-turbo"
	DefaultMaxTokens = 200
	DefaultTimeout   = 30 * time.Second

	completionsPath = "/chat/completions"
)

var (
	ErrMissingAPIKey = errors.New("llm: API key is required")
	// ErrEmptyResponse is returned when the completion carries no choices.
	ErrEmptyResponse = errors.New("llm: response has no choices")
)

type Options struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	// System is sent as a leading system message when set.
	System  string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Client requests one completion per question.
type Client struct {
	http   *httpx.Client
	opts   Options
	logger *zap.Logger
}

func NewClient(opts Options, clientOpts ...httpx.ClientOption) (*Client, error) {
	opts = opts.withDefaults()
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	clientOpts = append([]httpx.ClientOption{
		httpx.WithBaseURL(opts.BaseURL),
		httpx.WithClientTimeout(opts.Timeout),
	}, clientOpts...)
	return &Client{http: httpx.NewClient(clientOpts...), opts: opts, logger: opts.Logger}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Answer returns the first choice's content for question.
func (c *Client) Answer(ctx context.Context, question string) (string, error) {
	msgs := make([]message, 0, 2)
	if c.opts.System != "" {
		msgs = append(msgs, message{Role: "system", Content: c.opts.System})
	}
	msgs = append(msgs, message{Role: "user", Content: question})

	var out completionResponse
	start := time.Now()
	_, err := c.http.Post(ctx, completionsPath, completionRequest{
		Model:     c.opts.Model,
		Messages:  msgs,
		MaxTokens: c.opts.MaxTokens,
	}, &out, httpx.WithBearer(c.opts.APIKey))
	if err != nil {
		c.logger.Warn("llm completion failed", zap.String("model", c.opts.Model), zap.Error(err))
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	c.logger.Debug("llm completion",
		zap.String("model", c.opts.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(answer)),
	)
	return answer, nil
}
