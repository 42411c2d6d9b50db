package scoring

import (
	"context"
	"errors"

	"github.com/adeilh/qacache/httpx"
)

// UpdatePath is the cache service route graded answers are pushed to.
const UpdatePath = "/update"

// HTTPCacheUpdater posts graded answers to the cache service.
type HTTPCacheUpdater struct {
	client *httpx.Client
}

func NewHTTPCacheUpdater(baseURL string, opts ...httpx.ClientOption) (*HTTPCacheUpdater, error) {
	if baseURL == "" {
		return nil, errors.New("scoring: cache service URL is required")
	}
	opts = append([]httpx.ClientOption{httpx.WithBaseURL(baseURL), httpx.WithClientTimeout(DefaultPushTimeout)}, opts...)
	return &HTTPCacheUpdater{client: httpx.NewClient(opts...)}, nil
}

type updateBody struct {
	Question     string  `json:"question"`
	AnswerLLM    string  `json:"answer_llm"`
	QualityScore float64 `json:"quality_score"`
}

func (u *HTTPCacheUpdater) Update(ctx context.Context, r Result) error {
	_, err := u.client.Post(ctx, UpdatePath, updateBody{
		Question:     r.Question,
		AnswerLLM:    r.AnswerLLM,
		QualityScore: r.QualityScore,
	}, nil)
	return err
}
