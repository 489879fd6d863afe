package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("should reject an empty service name", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ServiceName = ""
		_, err := NewProvider(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("should reject an out of range sampling rate", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SamplingRate = 2
		_, err := NewProvider(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("should reject an unknown protocol", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Protocol = "carrier-pigeon"
		_, err := NewProvider(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("should record spans locally without an exporter", func(t *testing.T) {
		p, err := NewProvider(context.Background(), DefaultConfig())
		require.NoError(t, err)
		defer func() {
			_ = p.Shutdown(context.Background())
			SetTracer(nil)
		}()

		ctx, span := StartSpan(context.Background(), "tracing.test")
		defer span.End()

		assert.Len(t, GetTraceID(ctx), 32)
		assert.Len(t, GetSpanID(ctx), 16)

		headers := map[string]string{}
		InjectHeaders(ctx, headers)
		assert.Contains(t, headers["traceparent"], GetTraceID(ctx))
	})
}

func TestStartSpanWithoutTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.Equal(t, "", GetTraceID(ctx))
	headers := map[string]string{}
	InjectHeaders(ctx, headers)
	assert.Empty(t, headers)
}

func TestRecordError(t *testing.T) {
	p, err := NewProvider(context.Background(), DefaultConfig())
	require.NoError(t, err)
	defer func() {
		_ = p.Shutdown(context.Background())
		SetTracer(nil)
	}()

	_, span := StartSpan(context.Background(), "tracing.error")
	defer span.End()

	assert.NotPanics(t, func() {
		RecordError(span, nil)
		RecordError(span, errors.New("oracle unavailable"))
	})
}
