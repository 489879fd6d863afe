package context

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequest(t *testing.T) {
	t.Run("should return zero values without a request", func(t *testing.T) {
		ctx := context.Background()
		assert.Equal(t, "", GetRequestID(ctx))
		assert.Equal(t, Request{}, RequestFrom(ctx))
		assert.Empty(t, Fields(ctx))
	})

	t.Run("should carry the request", func(t *testing.T) {
		started := time.Now()
		ctx := WithRequest(context.Background(), Request{
			ID:        "req-1",
			Method:    "POST",
			Route:     "/api/v1/search",
			RemoteIP:  "10.0.0.1",
			StartedAt: started,
		})

		assert.Equal(t, "req-1", GetRequestID(ctx))
		assert.Equal(t, started, RequestFrom(ctx).StartedAt)
		assert.Equal(t, map[string]any{
			"request_id": "req-1",
			"method":     "POST",
			"route":      "/api/v1/search",
			"remote_ip":  "10.0.0.1",
		}, Fields(ctx))
	})

	t.Run("should add the user without losing the request", func(t *testing.T) {
		ctx := WithRequest(context.Background(), Request{ID: "req-2", UserID: "header-user"})
		ctx = WithUser(ctx, "sub-1", "kim@x.com")

		assert.Equal(t, "req-2", GetRequestID(ctx))
		assert.Equal(t, "sub-1", GetUserID(ctx))
		assert.Equal(t, "kim@x.com", GetUserEmail(ctx))
	})
}
