package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// MaxResponseSize is the maximum oracle response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// MaxRequestSize is the maximum oracle request body size (5MB)
	MaxRequestSize = 5 * 1024 * 1024

	// maxErrorBody is how much of a failed response body is kept in the error
	maxErrorBody = 512
)

// HTTPConfig holds HTTP oracle configuration
type HTTPConfig struct {
	URL             string
	APIKey          string
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	// Timeout bounds a whole HTTP exchange. Attempt timeouts are set per call
	// by the batch client, so this is only a backstop.
	Timeout time.Duration
}

// DefaultHTTPConfig returns default HTTP oracle configuration
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		Timeout:         2 * time.Minute,
	}
}

// HTTPOracle posts comparison requests as JSON to a remote scoring endpoint.
// It shares one pooled client across all calls.
type HTTPOracle struct {
	client *http.Client
	url    string
	apiKey string
	logger ectologger.Logger
}

// NewHTTPOracle creates a new HTTP oracle
func NewHTTPOracle(cfg HTTPConfig, logger ectologger.Logger) (*HTTPOracle, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("oracle url is required")
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &HTTPOracle{
		client: &http.Client{
			// otelhttp adds a client span per attempt and propagates the trace
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		logger: logger,
	}, nil
}

// Compare sends req and returns the response body of a 2xx response.
func (o *HTTPOracle) Compare(ctx context.Context, req *Request) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "oracle.HTTPOracle.Compare")
	defer span.End()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode oracle request: %w", err)
	}
	if len(payload) > MaxRequestSize {
		return nil, fmt.Errorf("oracle request too large: %d bytes (max %d)", len(payload), MaxRequestSize)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	if requestID := fernctx.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-Id", requestID)
	}

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		metrics.OracleRequestDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		o.logger.WithContext(ctx).WithError(err).Warnf("oracle request failed: POST %s", o.url)
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("oracle response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("oracle response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	duration := time.Since(start)
	metrics.OracleRequestDuration.WithLabelValues(strconv.Itoa(resp.StatusCode)).Observe(duration.Seconds())
	o.logger.WithContext(ctx).Debugf("oracle POST %s -> %d (%s)", o.url, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
		tracing.RecordError(span, statusErr)
		return nil, statusErr
	}

	return body, nil
}
