package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/adeilh/qacache/httpx"
)

// QueryPath is the scoring service route the HTTP scorer posts to.
const QueryPath = "/query"

// HTTPScorer queries the scoring service over HTTP.
type HTTPScorer struct {
	client *httpx.Client
}

// NewHTTPScorer builds a scorer for baseURL. The client timeout is a
// backstop; Resolve applies its own deadline through the context.
func NewHTTPScorer(baseURL string, timeout time.Duration, opts ...httpx.ClientOption) (*HTTPScorer, error) {
	if baseURL == "" {
		return nil, errors.New("fallback: scorer base URL is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts = append([]httpx.ClientOption{httpx.WithBaseURL(baseURL), httpx.WithClientTimeout(timeout)}, opts...)
	return &HTTPScorer{client: httpx.NewClient(opts...)}, nil
}

type queryRequest struct {
	Question string `json:"question"`
}

func (s *HTTPScorer) Query(ctx context.Context, question string) (json.RawMessage, error) {
	resp, err := s.client.Post(ctx, QueryPath, queryRequest{Question: question}, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(append([]byte(nil), resp.Body()...)), nil
}
