package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/qacache/httpx"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "it_s", "42"}, Tokenize("Hello, World! it_s 42"))
	assert.Equal(t, []string{"año", "niño"}, Tokenize("Año-Niño"))
	assert.Empty(t, Tokenize("?!  ..."))
}

func TestScore(t *testing.T) {
	cases := []struct {
		name      string
		ref, cand string
		want      float64
	}{
		{"identical", "the quick brown fox", "The quick brown fox", 1},
		{"subsequence", "the quick brown fox", "the brown dog", 0.5},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"empty reference", "", "anything", 0},
		{"empty candidate", "anything", "", 0},
		{"punctuation only reference", "?!", "words", 0},
		{"candidate longer", "go is fun", "go really is very much fun", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Score(tc.ref, tc.cand), 1e-9)
		})
	}
}

type stubLLM struct {
	answer string
	err    error
	calls  int
}

func (s *stubLLM) Answer(context.Context, string) (string, error) {
	s.calls++
	return s.answer, s.err
}

type memoryResults struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (m *memoryResults) Save(_ context.Context, r Result) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	r.ID = int64(len(m.results) + 1)
	m.results = append(m.results, r)
	return r, nil
}

func (m *memoryResults) Latest(_ context.Context, question string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].Question == question {
			m.results[i].TimesQueried++
			return m.results[i], nil
		}
	}
	return Result{}, ErrNoResult
}

type recordingCache struct {
	pushed   []Result
	err      error
	deadline time.Time
}

func (c *recordingCache) Update(ctx context.Context, r Result) error {
	c.deadline, _ = ctx.Deadline()
	c.pushed = append(c.pushed, r)
	return c.err
}

func TestEvaluatePipeline(t *testing.T) {
	llm := &stubLLM{answer: "the quick brown fox"}
	store := &memoryResults{}
	pushed := &recordingCache{}
	svc, err := NewService(llm, WithResultStore(store), WithCacheUpdater(pushed))
	require.NoError(t, err)

	res, err := svc.Evaluate(context.Background(), "what jumps?", "the quick fox jumps")
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", res.AnswerLLM)
	assert.InDelta(t, 0.75, res.QualityScore, 1e-9)
	assert.Equal(t, int64(1), res.ID)

	require.Len(t, store.results, 1)
	assert.Equal(t, "the quick fox jumps", store.results[0].AnswerYahoo)
	assert.Equal(t, 1, store.results[0].TimesQueried)

	require.Len(t, pushed.pushed, 1)
	assert.Equal(t, res, pushed.pushed[0])
	assert.False(t, pushed.deadline.IsZero())
}

func TestEvaluateValidation(t *testing.T) {
	llm := &stubLLM{answer: "x"}
	svc, err := NewService(llm)
	require.NoError(t, err)

	_, err = svc.Evaluate(context.Background(), "q", "")
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Zero(t, llm.calls)
}

func TestEvaluateFailures(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)

	svc, _ := NewService(&stubLLM{err: errors.New("quota")})
	_, err = svc.Evaluate(context.Background(), "q", "a")
	assert.ErrorContains(t, err, "quota")

	pushed := &recordingCache{}
	svc, _ = NewService(&stubLLM{answer: "a"}, WithResultStore(&memoryResults{err: errors.New("db down")}), WithCacheUpdater(pushed))
	_, err = svc.Evaluate(context.Background(), "q", "a")
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, pushed.pushed, "nothing is pushed when persistence fails")
}

func TestEvaluateCachePushIsBestEffort(t *testing.T) {
	svc, _ := NewService(&stubLLM{answer: "a"}, WithCacheUpdater(&recordingCache{err: errors.New("cache down")}))
	res, err := svc.Evaluate(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.QualityScore)
}

func TestQuery(t *testing.T) {
	llm := &stubLLM{answer: "fresh"}
	store := &memoryResults{}
	svc, _ := NewService(llm, WithResultStore(store))
	ctx := context.Background()

	got, err := svc.Query(ctx, "new question")
	require.NoError(t, err)
	assert.Equal(t, QueryResult{Question: "new question", AnswerLLM: "fresh", Source: SourceLLM}, got)

	_, err = svc.Evaluate(ctx, "known", "fresh answer")
	require.NoError(t, err)
	got, err = svc.Query(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, SourceHistory, got.Source)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 1.0, *got.QualityScore, 1e-9)
	assert.Equal(t, 2, store.results[0].TimesQueried)

	_, err = svc.Query(ctx, "")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestHTTPCacheUpdater(t *testing.T) {
	var got updateBody
	server := httpx.NewServer()
	server.RegisterRoutes(func(a *httpx.App) {
		a.POST(UpdatePath, func(c httpx.Context) error {
			if err := c.Bind(&got); err != nil {
				return httpx.HTTPError(httpx.StatusBadRequest, "bad body")
			}
			if got.AnswerLLM == "" {
				return httpx.HTTPError(httpx.StatusBadRequest, "Missing fields: answer_llm")
			}
			return c.JSON(httpx.StatusCreated, map[string]any{"ok": true})
		})
	})
	ts := httpx.NewTestServer(server.Handler())
	defer ts.Close()

	u, err := NewHTTPCacheUpdater(ts.BaseURL())
	require.NoError(t, err)

	require.NoError(t, u.Update(context.Background(), Result{Question: "q", AnswerLLM: "a", QualityScore: 0.5}))
	assert.Equal(t, updateBody{Question: "q", AnswerLLM: "a", QualityScore: 0.5}, got)

	err = u.Update(context.Background(), Result{Question: "q"})
	assert.Equal(t, httpx.StatusBadRequest, httpx.StatusCode(err))

	_, err = NewHTTPCacheUpdater("")
	assert.Error(t, err)
}
