package piston

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/domain/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL + "/")
	cfg.RateLimit = 1000
	cfg.RateLimitBurst = 100
	cfg.RetryBaseDelay = time.Millisecond
	cfg.MaxSourceBytes = 64
	return NewClient(cfg)
}

func TestExecute_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body executeBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "python", body.Language)
		assert.Equal(t, "*", body.Version)
		assert.Equal(t, "print(1)", body.Files[0].Content)

		_, _ = w.Write([]byte(`{"language":"python","version":"3.10.0","run":{"stdout":"1\n","stderr":"","output":"1\n","code":0,"signal":null}}`))
	})

	res, err := c.Execute(t.Context(), ExecuteRequest{Language: " Python ", Source: "print(1)"})
	require.NoError(t, err)
	assert.Equal(t, "1\n", res.Run.Stdout)
	assert.True(t, res.Succeeded())
	assert.Nil(t, res.Compile)
}

func TestExecute_CompileFailureIsNotSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"language":"c","version":"10.2.0","compile":{"stderr":"error","code":1},"run":{"code":null}}`))
	})

	res, err := c.Execute(t.Context(), ExecuteRequest{Language: "c", Source: "int main(){"})
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
}

func TestExecute_ValidatesLocally(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := c.Execute(t.Context(), ExecuteRequest{Source: "x"})
	assert.True(t, shared.IsValidation(err))

	_, err = c.Execute(t.Context(), ExecuteRequest{Language: "go", Source: string(make([]byte, 65))})
	assert.True(t, shared.IsValidation(err))

	assert.Zero(t, calls.Load())
}

func TestExecute_UpstreamClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"cobol-9 runtime is unknown"}`))
	})

	_, err := c.Execute(t.Context(), ExecuteRequest{Language: "cobol", Source: "x"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Contains(t, err.Error(), "runtime is unknown")
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"language":"go","version":"1.16.2","run":{"code":0}}`))
	})

	_, err := c.Execute(t.Context(), ExecuteRequest{Language: "go", Source: "package main"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_OpensCircuitAfterRepeatedOutages(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 3; i++ {
		_, err := c.Execute(t.Context(), ExecuteRequest{Language: "go", Source: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrExternalService))
	}
	before := calls.Load()

	_, err := c.Execute(t.Context(), ExecuteRequest{Language: "go", Source: "x"})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.ErrorIs(t, err, shared.ErrExecutorUnavailable)
	assert.Equal(t, before, calls.Load())
}

func TestExecute_UpstreamRateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Execute(t.Context(), ExecuteRequest{Language: "go", Source: "x"})
	assert.ErrorIs(t, err, shared.ErrRateLimited)
}

func TestRuntimes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runtimes", r.URL.Path)
		_, _ = w.Write([]byte(`[{"language":"python","version":"3.10.0","aliases":["py"]}]`))
	})

	rts, err := c.Runtimes(t.Context())
	require.NoError(t, err)
	require.Len(t, rts, 1)
	assert.Equal(t, []string{"py"}, rts[0].Aliases)
}
