package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestHTTPOracle(t *testing.T) {
	t.Run("should require a url", func(t *testing.T) {
		_, err := NewHTTPOracle(DefaultHTTPConfig(), testLogger())
		assert.Error(t, err)
	})

	t.Run("should post the request and return the body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.Equal(t, "req-1", r.Header.Get("X-Request-Id"))

			var req Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "kim", req.Query)
			require.Len(t, req.Items, 1)

			_, _ = w.Write([]byte(`[{"index":1,"score":88,"explanation":"close"}]`))
		}))
		defer server.Close()

		cfg := DefaultHTTPConfig()
		cfg.URL = server.URL
		cfg.APIKey = "secret"
		o, err := NewHTTPOracle(cfg, testLogger())
		require.NoError(t, err)

		ctx := fernctx.WithRequest(context.Background(), fernctx.Request{ID: "req-1"})
		body, err := o.Compare(ctx, &Request{Query: "kim", Items: []Item{{Index: 1, Text: "kimm"}}})
		require.NoError(t, err)
		assert.JSONEq(t, `[{"index":1,"score":88,"explanation":"close"}]`, string(body))
	})

	t.Run("should return a status error for non 2xx responses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
		}))
		defer server.Close()

		cfg := DefaultHTTPConfig()
		cfg.URL = server.URL
		o, err := NewHTTPOracle(cfg, testLogger())
		require.NoError(t, err)

		_, err = o.Compare(context.Background(), &Request{Query: "q"})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.Equal(t, "slow down", statusErr.Body)
		assert.True(t, statusErr.Retryable())
	})

	t.Run("should work end to end through the batch client", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req Request
			_ = json.NewDecoder(r.Body).Decode(&req)
			body, _ := scoreByText(r.Context(), &req)
			_, _ = w.Write(append([]byte("```json\n"), append(body, []byte("\n```")...)...))
		}))
		defer server.Close()

		cfg := DefaultHTTPConfig()
		cfg.URL = server.URL
		o, err := NewHTTPOracle(cfg, testLogger())
		require.NoError(t, err)

		scores, summary := NewBatchClient(o, nil, fastConfig(), testLogger()).ScoreBatch(context.Background(), "q", numbered(12), "")
		assert.Equal(t, 0, summary.FailedWindows)
		for i, s := range scores {
			assert.Equal(t, float64(i), s.Value)
			assert.Equal(t, models.SourceOracle, s.Source)
		}
	})
}

func TestStatusErrorRetryable(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 500}).Retryable())
	assert.True(t, (&StatusError{StatusCode: 408}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 401}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 404}).Retryable())
}
