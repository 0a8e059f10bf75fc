package libhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBody struct {
	Value string `json:"value"`
}

func TestCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in echoBody
		_ = json.NewDecoder(r.Body).Decode(&in)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "1", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(echoBody{Value: in.Value + "!"})
	}))
	defer srv.Close()

	out, err := Call[echoBody](context.Background(), http.MethodPost, srv.URL, nil, echoBody{Value: "hi"}, map[string]string{"q": "1"})
	require.NoError(t, err)
	assert.Equal(t, "hi!", out.Value)
}

func TestCallStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := Call[string](context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTeapot, statusErr.StatusCode)
}

func TestCallWithRetry(t *testing.T) {
	policy := RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		out, err := CallWithRetry[string](context.Background(), policy, http.MethodGet, srv.URL, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := CallWithRetry[string](context.Background(), policy, http.MethodGet, srv.URL, nil, nil, nil)
		assert.Error(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := CallWithRetry[string](context.Background(), policy, http.MethodGet, srv.URL, nil, nil, nil)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, int32(1), calls.Load())
	})
}
