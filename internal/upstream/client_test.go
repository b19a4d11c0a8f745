package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-cli/internal/resilience"
)

func testPolicy() resilience.Policy {
	return resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/thing/X1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL+"/", WithToken("secret"), WithPolicy(testPolicy()))

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/thing/X1", &out))
	assert.Equal(t, "ok", out.Name)
	assert.Equal(t, "svc", c.Service())
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL, WithPolicy(testPolicy()))
	var out map[string]any
	require.NoError(t, c.GetJSON(context.Background(), "/x", &out))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_ExhaustedIsTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL, WithPolicy(testPolicy()))
	err := c.GetJSON(context.Background(), "/x", &struct{}{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_ClientErrorsNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, IsNotFound},
		{"bad request", http.StatusBadRequest, IsBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			c := NewClient("svc", srv.URL, WithPolicy(testPolicy()))
			err := c.GetJSON(context.Background(), "/x", &struct{}{})
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.False(t, resilience.IsTransient(err))
			assert.Equal(t, int32(1), calls.Load())
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestGetJSON_ReadTimeoutRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL, WithPolicy(testPolicy()), WithTimeouts(time.Second, 50*time.Millisecond))
	require.NoError(t, c.GetJSON(context.Background(), "/x", &map[string]any{}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetJSON_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := resilience.NewBreaker("svc", resilience.BreakerConfig{Threshold: 1, Cooldown: time.Minute})
	c := NewClient("svc", srv.URL, WithPolicy(resilience.Policy{Attempts: 1}), WithBreaker(b))

	require.Error(t, c.GetJSON(context.Background(), "/x", &struct{}{}))
	err := c.GetJSON(context.Background(), "/x", &struct{}{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL, WithRateLimit(1))
	require.NoError(t, c.GetJSON(context.Background(), "/x", &map[string]any{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.GetJSON(ctx, "/x", &map[string]any{})
	require.Error(t, err)
}
