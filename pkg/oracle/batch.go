package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// ReasonMissing explains a candidate the oracle did not return.
	ReasonMissing = "missing from oracle response"
	// ReasonNoExplanation replaces an empty oracle explanation.
	ReasonNoExplanation = "no explanation provided"
)

// Limiter gates oracle attempts. Wait blocks until an attempt may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Config holds batch client configuration
type Config struct {
	BatchSize      int           `json:"batch_size"`
	MaxInFlight    int           `json:"max_in_flight"`
	RequestTimeout time.Duration `json:"request_timeout"`
	Retry          RetryConfig   `json:"retry"`
}

// DefaultConfig returns default batch client configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:      10,
		MaxInFlight:    4,
		RequestTimeout: 30 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// Summary describes how a ScoreBatch call went.
type Summary struct {
	Windows          int `json:"windows"`
	FailedWindows    int `json:"failed_windows"`
	AbandonedWindows int `json:"abandoned_windows"`
	MissingItems     int `json:"missing_items"`
}

// AllFailed reports whether no window got an answer from the oracle.
func (s Summary) AllFailed() bool {
	return s.Windows > 0 && s.FailedWindows == s.Windows
}

// BatchClient scores candidate texts against a query in windows.
type BatchClient struct {
	oracle  Oracle
	limiter Limiter
	config  Config
	logger  ectologger.Logger
}

// NewBatchClient creates a batch client. limiter may be nil.
func NewBatchClient(o Oracle, limiter Limiter, cfg Config, logger ectologger.Logger) *BatchClient {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaults.MaxInFlight
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	cfg.Retry.MaxRetries = cfg.Retry.retries()

	return &BatchClient{
		oracle:  o,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}
}

// Config returns the effective configuration.
func (c *BatchClient) Config() Config {
	return c.config
}

type window struct {
	index int
	start int
	end   int
}

type windowOutcome struct {
	scores    []models.SimilarityScore
	failed    bool
	abandoned bool
	missing   int
}

// ScoreBatch returns one score per candidate, in candidate order. It never
// fails: windows that cannot be scored yield fallback scores explaining why.
// promptContext describes what is being compared and is passed to the oracle verbatim.
func (c *BatchClient) ScoreBatch(ctx context.Context, query string, candidates []string, promptContext string) ([]models.SimilarityScore, Summary) {
	ctx, span := tracing.StartSpan(ctx, "oracle.BatchClient.ScoreBatch")
	defer span.End()

	results := make([]models.SimilarityScore, len(candidates))
	if len(candidates) == 0 {
		return results, Summary{}
	}

	windows := splitWindows(len(candidates), c.config.BatchSize)
	outcomes := make([]windowOutcome, len(windows))

	g := new(errgroup.Group)
	g.SetLimit(c.config.MaxInFlight)
	for _, w := range windows {
		g.Go(func() error {
			outcomes[w.index] = c.scoreWindow(ctx, w, query, candidates[w.start:w.end], promptContext)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Windows: len(windows)}
	fallbacks := 0
	for _, w := range windows {
		outcome := outcomes[w.index]
		copy(results[w.start:w.end], outcome.scores)
		summary.MissingItems += outcome.missing
		switch {
		case outcome.abandoned:
			summary.FailedWindows++
			summary.AbandonedWindows++
			fallbacks += w.end - w.start
			metrics.OracleWindowsTotal.WithLabelValues("abandoned").Inc()
		case outcome.failed:
			summary.FailedWindows++
			fallbacks += w.end - w.start
			metrics.OracleWindowsTotal.WithLabelValues("failed").Inc()
		default:
			fallbacks += outcome.missing
			metrics.OracleWindowsTotal.WithLabelValues("ok").Inc()
		}
	}
	metrics.OracleFallbackItemsTotal.Add(float64(fallbacks))

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"candidates":        len(candidates),
		"windows":           summary.Windows,
		"failed_windows":    summary.FailedWindows,
		"abandoned_windows": summary.AbandonedWindows,
		"missing_items":     summary.MissingItems,
	}).Debug("oracle batch scored")

	return results, summary
}

func splitWindows(n, size int) []window {
	windows := make([]window, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		windows = append(windows, window{
			index: len(windows),
			start: start,
			end:   min(start+size, n),
		})
	}
	return windows
}

func (c *BatchClient) scoreWindow(ctx context.Context, w window, query string, texts []string, promptContext string) windowOutcome {
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"window": w.index,
		"start":  w.start,
		"size":   len(texts),
	})

	req := &Request{Query: query, Context: promptContext, Items: make([]Item, len(texts))}
	for i, text := range texts {
		req.Items[i] = Item{Index: i + 1, Text: text}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(&c.config.Retry, attempt)
			metrics.OracleRetriesTotal.Inc()
			log.WithError(lastErr).Debugf("retrying oracle window in %s (attempt %d/%d)", delay, attempt, c.config.Retry.MaxRetries)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return abandonedOutcome(ctx, len(texts))
			case <-timer.C:
			}
		}

		if ctx.Err() != nil {
			return abandonedOutcome(ctx, len(texts))
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return abandonedOutcome(ctx, len(texts))
				}
				lastErr = fmt.Errorf("rate limiter: %w", err)
				continue
			}
		}

		items, err := c.attempt(ctx, req)
		if err == nil {
			return mapItems(items, len(texts))
		}
		if ctx.Err() != nil {
			return abandonedOutcome(ctx, len(texts))
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	log.WithError(lastErr).Warn("oracle window failed, using fallback scores")
	return failedOutcome(fmt.Sprintf("oracle unavailable: %v", lastErr), len(texts))
}

// attempt makes one bounded call and parses its response.
func (c *BatchClient) attempt(ctx context.Context, req *Request) ([]ResponseItem, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	body, err := call(attemptCtx, c.oracle, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("oracle attempt timed out after %s", c.config.RequestTimeout)
		}
		return nil, err
	}
	return ParseResponse(body)
}

// call runs the oracle in its own goroutine so an implementation that ignores
// ctx is still abandoned when ctx ends.
func call(ctx context.Context, o Oracle, req *Request) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		body, err := o.Compare(ctx, req)
		done <- result{body: body, err: err}
	}()

	select {
	case r := <-done:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// mapItems places parsed items by their declared 1-based index. Indexes out of
// range are ignored and the first item for an index wins.
func mapItems(items []ResponseItem, n int) windowOutcome {
	scores := make([]models.SimilarityScore, n)
	filled := make([]bool, n)

	for _, item := range items {
		pos := item.Index - 1
		if pos < 0 || pos >= n || filled[pos] {
			continue
		}
		explanation := item.Explanation
		if explanation == "" {
			explanation = ReasonNoExplanation
		}
		scores[pos] = models.SimilarityScore{
			Value:       models.ClampScore(*item.Score),
			Explanation: explanation,
			Source:      models.SourceOracle,
		}
		filled[pos] = true
	}

	missing := 0
	for i, ok := range filled {
		if !ok {
			scores[i] = models.NewFallbackScore(ReasonMissing)
			missing++
		}
	}

	return windowOutcome{scores: scores, missing: missing}
}

func failedOutcome(reason string, n int) windowOutcome {
	scores := make([]models.SimilarityScore, n)
	for i := range scores {
		scores[i] = models.NewFallbackScore(reason)
	}
	return windowOutcome{scores: scores, failed: true}
}

func abandonedOutcome(ctx context.Context, n int) windowOutcome {
	reason := "deadline exceeded"
	if errors.Is(ctx.Err(), context.Canceled) {
		reason = "request cancelled"
	}
	outcome := failedOutcome(reason, n)
	outcome.abandoned = true
	return outcome
}
