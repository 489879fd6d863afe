package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestTimeout = time.Second
	cfg.Retry = RetryConfig{MaxRetries: 3, BackoffType: "fixed", InitialDelay: 1, MaxDelay: 5}
	return cfg
}

// scoreByText answers every item with the number encoded in its text.
func scoreByText(_ context.Context, req *Request) ([]byte, error) {
	items := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		score, _ := strconv.ParseFloat(item.Text, 64)
		items = append(items, map[string]any{
			"index":       item.Index,
			"score":       score,
			"explanation": "scored " + item.Text,
		})
	}
	return json.Marshal(items)
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestScoreBatch(t *testing.T) {
	t.Run("should split candidates into windows and keep input order", func(t *testing.T) {
		var mu sync.Mutex
		var sizes []int
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			mu.Lock()
			sizes = append(sizes, len(req.Items))
			mu.Unlock()
			assert.Equal(t, 1, req.Items[0].Index)
			assert.Equal(t, "query", req.Query)
			assert.Equal(t, "name", req.Context)
			return scoreByText(ctx, req)
		})

		client := NewBatchClient(o, nil, fastConfig(), testLogger())
		scores, summary := client.ScoreBatch(context.Background(), "query", numbered(25), "name")

		require.Len(t, scores, 25)
		for i, s := range scores {
			assert.Equal(t, float64(i), s.Value)
			assert.Equal(t, models.SourceOracle, s.Source)
			assert.Equal(t, fmt.Sprintf("scored %d", i), s.Explanation)
		}
		assert.ElementsMatch(t, []int{10, 10, 5}, sizes)
		assert.Equal(t, Summary{Windows: 3}, summary)
		assert.False(t, summary.AllFailed())
	})

	t.Run("should return nothing for no candidates", func(t *testing.T) {
		called := false
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			called = true
			return nil, nil
		})
		scores, summary := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", nil, "")
		assert.Empty(t, scores)
		assert.Equal(t, 0, summary.Windows)
		assert.False(t, called)
	})

	t.Run("should clamp scores into range", func(t *testing.T) {
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			return []byte(`[{"index":1,"score":150,"explanation":"a"},{"index":2,"score":-5,"explanation":"b"}]`), nil
		})
		scores, _ := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", []string{"a", "b"}, "")
		assert.Equal(t, 100.0, scores[0].Value)
		assert.Equal(t, 0.0, scores[1].Value)
		assert.Equal(t, models.SourceOracle, scores[1].Source)
	})

	t.Run("should fall back for items missing from the response", func(t *testing.T) {
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			return []byte(`[{"index":1,"score":90,"explanation":"a"},{"index":3,"score":40}]`), nil
		})
		scores, summary := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", []string{"a", "b", "c"}, "")

		assert.Equal(t, 90.0, scores[0].Value)
		assert.Equal(t, models.NewFallbackScore(ReasonMissing), scores[1])
		assert.Equal(t, 40.0, scores[2].Value)
		assert.Equal(t, ReasonNoExplanation, scores[2].Explanation)
		assert.Equal(t, 1, summary.MissingItems)
		assert.Equal(t, 0, summary.FailedWindows)
	})

	t.Run("should ignore out of range and repeated indexes", func(t *testing.T) {
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			return []byte(`[{"index":1,"score":90},{"index":1,"score":10},{"index":7,"score":50}]`), nil
		})
		scores, _ := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", []string{"a", "b"}, "")
		assert.Equal(t, 90.0, scores[0].Value)
		assert.Equal(t, models.SourceFallback, scores[1].Source)
	})

	t.Run("should isolate a failing window from the others", func(t *testing.T) {
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			if req.Items[0].Text == "10" {
				return nil, errors.New("connection reset")
			}
			return scoreByText(ctx, req)
		})
		scores, summary := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", numbered(25), "")

		for i := 0; i < 10; i++ {
			assert.Equal(t, models.SourceOracle, scores[i].Source)
		}
		for i := 10; i < 20; i++ {
			assert.Equal(t, models.SourceFallback, scores[i].Source)
			assert.Equal(t, 0.0, scores[i].Value)
			assert.Contains(t, scores[i].Explanation, "connection reset")
		}
		for i := 20; i < 25; i++ {
			assert.Equal(t, models.SourceOracle, scores[i].Source)
		}
		assert.Equal(t, 1, summary.FailedWindows)
		assert.False(t, summary.AllFailed())
	})

	t.Run("should retry transient failures", func(t *testing.T) {
		var calls atomic.Int32
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			if calls.Add(1) <= 2 {
				return nil, &StatusError{StatusCode: http.StatusServiceUnavailable}
			}
			return scoreByText(ctx, req)
		})
		scores, summary := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", []string{"42"}, "")

		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 42.0, scores[0].Value)
		assert.Equal(t, 0, summary.FailedWindows)
	})

	t.Run("should retry unparseable responses and then fall back", func(t *testing.T) {
		var calls atomic.Int32
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			calls.Add(1)
			return []byte("I think they are similar."), nil
		})
		scores, summary := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", []string{"a", "b"}, "")

		assert.Equal(t, int32(4), calls.Load())
		for _, s := range scores {
			assert.Equal(t, models.SourceFallback, s.Source)
			assert.Contains(t, s.Explanation, "unparseable oracle response")
		}
		assert.True(t, summary.AllFailed())
	})

	t.Run("should not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			calls.Add(1)
			return nil, &StatusError{StatusCode: http.StatusBadRequest, Body: "bad prompt"}
		})
		scores, _ := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", []string{"a"}, "")

		assert.Equal(t, int32(1), calls.Load())
		assert.Contains(t, scores[0].Explanation, "bad prompt")
	})

	t.Run("should cap the number of retries", func(t *testing.T) {
		var calls atomic.Int32
		cfg := fastConfig()
		cfg.Retry.MaxRetries = 1000
		cfg.Retry.InitialDelay = 0
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			calls.Add(1)
			return nil, errors.New("down")
		})
		client := NewBatchClient(o, nil, cfg, testLogger())
		client.ScoreBatch(context.Background(), "q", []string{"a"}, "")

		assert.Equal(t, MaxRetriesCap, client.Config().Retry.MaxRetries)
		assert.Equal(t, int32(MaxRetriesCap+1), calls.Load())
	})

	t.Run("should time out slow attempts", func(t *testing.T) {
		cfg := fastConfig()
		cfg.RequestTimeout = 10 * time.Millisecond
		cfg.Retry.MaxRetries = 1
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		scores, summary := NewBatchClient(o, nil, cfg, testLogger()).ScoreBatch(context.Background(), "q", []string{"a"}, "")

		assert.Equal(t, models.SourceFallback, scores[0].Source)
		assert.Contains(t, scores[0].Explanation, "timed out")
		assert.Equal(t, 0, summary.AbandonedWindows)
	})

	t.Run("should abandon windows when the caller deadline passes", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			<-block // ignores ctx on purpose
			return nil, errors.New("unreachable")
		})
		cfg := fastConfig()
		cfg.RequestTimeout = time.Minute

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		scores, summary := NewBatchClient(o, nil, cfg, testLogger()).ScoreBatch(ctx, "q", numbered(30), "")

		assert.Less(t, time.Since(start), 5*time.Second)
		require.Len(t, scores, 30)
		for _, s := range scores {
			assert.Equal(t, models.NewFallbackScore("deadline exceeded"), s)
		}
		assert.Equal(t, 3, summary.AbandonedWindows)
		assert.True(t, summary.AllFailed())
	})

	t.Run("should bound the number of windows in flight", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		o := FuncOracle(func(ctx context.Context, req *Request) ([]byte, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return scoreByText(ctx, req)
		})
		cfg := fastConfig()
		cfg.BatchSize = 2
		cfg.MaxInFlight = 3

		scores, _ := NewBatchClient(o, nil, cfg, testLogger()).ScoreBatch(context.Background(), "q", numbered(40), "")

		assert.LessOrEqual(t, peak.Load(), int32(3))
		for i, s := range scores {
			assert.Equal(t, float64(i), s.Value)
		}
	})

	t.Run("should consult the limiter before each attempt", func(t *testing.T) {
		limiter := &countingLimiter{}
		o := FuncOracle(scoreByText)
		NewBatchClient(o, limiter, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", numbered(15), "")
		assert.Equal(t, int32(2), limiter.calls.Load())
	})
}

type countingLimiter struct {
	calls atomic.Int32
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.calls.Add(1)
	return nil
}

func TestSplitWindows(t *testing.T) {
	windows := splitWindows(21, 10)
	require.Len(t, windows, 3)
	assert.Equal(t, window{index: 0, start: 0, end: 10}, windows[0])
	assert.Equal(t, window{index: 2, start: 20, end: 21}, windows[2])

	assert.Len(t, splitWindows(10, 10), 1)
}
