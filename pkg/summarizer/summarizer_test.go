package summarizer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/jobsum/pkg/model"
	"github.com/kadirpekel/jobsum/pkg/observability"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
)

const jobDescription = "Senior Go engineer. 5+ years building distributed systems."

// spyStore counts store calls.
type spyStore struct {
	*ratelimit.MemoryStore

	mu      sync.Mutex
	queries int
	inserts int
	prunes  int
	failAll bool

	failInsert bool
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: ratelimit.NewMemoryStore()}
}

func (s *spyStore) Query(ctx context.Context, identity string, cutoff time.Time) ([]ratelimit.UsageEvent, error) {
	s.mu.Lock()
	s.queries++
	fail := s.failAll
	s.mu.Unlock()
	if fail {
		return nil, errors.New("store unavailable")
	}
	return s.MemoryStore.Query(ctx, identity, cutoff)
}

func (s *spyStore) Insert(ctx context.Context, event ratelimit.UsageEvent) error {
	s.mu.Lock()
	s.inserts++
	fail := s.failInsert
	s.mu.Unlock()
	if fail {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Insert(ctx, event)
}

func (s *spyStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	s.prunes++
	s.mu.Unlock()
	return s.MemoryStore.Prune(ctx, cutoff)
}

func (s *spyStore) calls() (queries, inserts, prunes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.inserts, s.prunes
}

func echoGenerator(prompts *[]string) model.GeneratorFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		if prompts != nil {
			*prompts = append(*prompts, prompt)
		}
		return "Summary: builds systems.\n- Go\n- Distributed systems", nil
	}
}

func failingGenerator(err error) model.GeneratorFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return "", err
	}
}

func newService(t *testing.T, gen model.Generator, store ratelimit.Store, limit int, opts ...Option) *Service {
	t.Helper()
	limiter, err := ratelimit.New(store, ratelimit.Policy{Limit: limit, Window: time.Hour})
	require.NoError(t, err)

	svc, err := New(gen, limiter, opts...)
	require.NoError(t, err)
	return svc
}

func TestSummarize_Success(t *testing.T) {
	var prompts []string
	store := newSpyStore()
	svc := newService(t, echoGenerator(&prompts), store, 5)

	res, err := svc.Summarize(context.Background(), "203.0.113.7", jobDescription)
	require.NoError(t, err)

	assert.Contains(t, res.Summary, "Distributed systems")
	assert.Equal(t, "static", res.Model)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 1, res.Usage.Count)
	assert.Equal(t, 4, res.Usage.Remaining)
	assert.Equal(t, 1, store.Size())

	require.Len(t, prompts, 1)
	assert.True(t, strings.HasPrefix(prompts[0], "Analyze the following job description and provide two things:"))
	assert.Contains(t, prompts[0], "Job Description:\n---\n"+jobDescription)
}

func TestSummarize_EmptyInputNeverTouchesStore(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t \n"} {
		store := newSpyStore()
		called := false
		gen := model.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
			called = true
			return "x", nil
		})
		svc := newService(t, gen, store, 5)

		_, err := svc.Summarize(context.Background(), "203.0.113.7", input)
		assert.ErrorIs(t, err, ErrEmptyInput)

		queries, inserts, prunes := store.calls()
		assert.Zero(t, queries)
		assert.Zero(t, inserts)
		assert.Zero(t, prunes)
		assert.False(t, called)
	}
}

func TestSummarize_UnknownIdentity(t *testing.T) {
	store := newSpyStore()
	svc := newService(t, echoGenerator(nil), store, 5)

	for _, id := range []string{"", "unknown"} {
		_, err := svc.Summarize(context.Background(), id, jobDescription)
		assert.ErrorIs(t, err, ErrUnknownIdentity)
	}

	queries, inserts, _ := store.calls()
	assert.Zero(t, queries)
	assert.Zero(t, inserts)
}

func TestSummarize_FailedGenerationConsumesNoQuota(t *testing.T) {
	store := newSpyStore()
	cause := errors.New("quota exhausted upstream")
	svc := newService(t, failingGenerator(cause), store, 5)

	before := store.Size()
	_, err := svc.Summarize(context.Background(), "203.0.113.7", jobDescription)
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "static", genErr.Model)

	assert.Equal(t, before, store.Size())
	_, inserts, _ := store.calls()
	assert.Zero(t, inserts)
}

func TestSummarize_EmptyGenerationIsFailure(t *testing.T) {
	store := newSpyStore()
	gen := model.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "  ", nil
	})
	svc := newService(t, gen, store, 5)

	_, err := svc.Summarize(context.Background(), "203.0.113.7", jobDescription)
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
	assert.Zero(t, store.Size())
}

func TestSummarize_RateLimited(t *testing.T) {
	store := newSpyStore()
	calls := 0
	gen := model.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "ok", nil
	})
	svc := newService(t, gen, store, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Summarize(ctx, "a", jobDescription)
		require.NoError(t, err)
	}

	_, err := svc.Summarize(ctx, "a", jobDescription)
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)

	d := ratelimit.DecisionFromError(err)
	require.NotNil(t, d)
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, 2, d.Limit)
	assert.Positive(t, d.RetryAfter)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, store.Size())

	// Other identities are unaffected.
	_, err = svc.Summarize(ctx, "b", jobDescription)
	assert.NoError(t, err)
}

func TestSummarize_StoreFailure(t *testing.T) {
	store := newSpyStore()
	store.failAll = true
	svc := newService(t, echoGenerator(nil), store, 5)

	_, err := svc.Summarize(context.Background(), "a", jobDescription)
	require.Error(t, err)
	assert.False(t, ratelimit.IsRateLimitError(err))

	var genErr *GenerationError
	assert.False(t, errors.As(err, &genErr))
}

func TestSummarize_RecordFailureKeepsSummary(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	store := newSpyStore()
	store.failInsert = true
	svc := newService(t, echoGenerator(nil), store, 5)

	result, err := svc.Summarize(context.Background(), "a", jobDescription)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Summary)
	assert.Zero(t, store.Size())

	_, inserts, _ := store.calls()
	assert.Equal(t, 1, inserts)
	assert.Contains(t, logs.String(), `"level":"ERROR","msg":"Failed to record usage after successful summary"`)
}

func TestSummarize_PerRequestStore(t *testing.T) {
	shared := newSpyStore()
	svc := newService(t, echoGenerator(nil), shared, 1)
	ctx := context.Background()

	cookie := ratelimit.NewCookieStore("")
	_, err := svc.Summarize(ctx, "browser", jobDescription, WithStore(cookie))
	require.NoError(t, err)
	assert.Equal(t, 1, cookie.Len())
	assert.Zero(t, shared.Size())

	_, err = svc.Summarize(ctx, "browser", jobDescription, WithStore(cookie))
	assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)

	// A fresh cookie starts a fresh log.
	_, err = svc.Summarize(ctx, "browser", jobDescription, WithStore(ratelimit.NewCookieStore("")))
	assert.NoError(t, err)
}

func TestSummarize_WithoutLimiter(t *testing.T) {
	svc, err := New(echoGenerator(nil), nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		res, err := svc.Summarize(context.Background(), "a", jobDescription)
		require.NoError(t, err)
		assert.Nil(t, res.Usage)
	}

	usage, err := svc.Usage(context.Background(), "a")
	require.NoError(t, err)
	assert.Nil(t, usage)
}

func TestSummarize_Timeout(t *testing.T) {
	gen := model.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	store := newSpyStore()
	svc := newService(t, gen, store, 5, WithTimeout(20*time.Millisecond))

	_, err := svc.Summarize(context.Background(), "a", jobDescription)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Zero(t, store.Size())
}

func TestPromptTemplate(t *testing.T) {
	var prompts []string
	svc := newService(t, echoGenerator(&prompts), newSpyStore(), 5,
		WithPromptTemplate("Summarize: {{ .JobDescription }}"))

	_, err := svc.Summarize(context.Background(), "a", "Go dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"Summarize: Go dev"}, prompts)

	require.NoError(t, svc.SetPromptTemplate(""))
	out, err := svc.RenderPrompt("Go dev")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Analyze the following"))

	assert.Error(t, svc.SetPromptTemplate("{{ .Broken "))
	_, err = New(echoGenerator(nil), nil, WithPromptTemplate("{{ .Broken "))
	assert.Error(t, err)

	err = svc.SetPromptTemplate("{{ .Missing }}")
	require.NoError(t, err)
	_, err = svc.RenderPrompt("x")
	assert.Error(t, err)
}

func TestSummarize_RecordsMetrics(t *testing.T) {
	metrics, err := observability.NewMetrics(observability.MetricsConfig{})
	require.NoError(t, err)
	require.NotNil(t, metrics)

	svc := newService(t, echoGenerator(nil), newSpyStore(), 5, WithMetrics(metrics))
	_, err = svc.Summarize(context.Background(), "a", jobDescription)
	require.NoError(t, err)
	_, err = svc.Summarize(context.Background(), "a", " ")
	require.Error(t, err)
}

func TestUsage(t *testing.T) {
	store := newSpyStore()
	svc := newService(t, echoGenerator(nil), store, 5)
	ctx := context.Background()

	_, err := svc.Summarize(ctx, "a", jobDescription)
	require.NoError(t, err)

	d, err := svc.Usage(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Count)
	assert.Equal(t, 4, d.Remaining)

	_, err = svc.Usage(ctx, "unknown")
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}
