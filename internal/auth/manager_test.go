package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clipsesh.systems/clipbot/internal/backend"
)

func TestAcquire_StoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok-1"}`))
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL), "bot", "pw")

	_, ok := m.Token()
	require.False(t, ok)

	require.NoError(t, m.Acquire(context.Background()))

	token, ok := m.Token()
	require.True(t, ok)
	require.Equal(t, "tok-1", token)
}

func TestRefresh_ReplacesToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.Write([]byte(`{"token":"tok-1"}`))
			return
		}
		w.Write([]byte(`{"token":"tok-2"}`))
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL), "bot", "pw")
	require.NoError(t, m.Acquire(context.Background()))
	require.NoError(t, m.Refresh(context.Background()))

	token, _ := m.Token()
	require.Equal(t, "tok-2", token)
}

func TestAcquire_FailureKeepsOldToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"token":"tok-1"}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL), "bot", "pw")
	require.NoError(t, m.Acquire(context.Background()))
	require.Error(t, m.Refresh(context.Background()))

	token, ok := m.Token()
	require.True(t, ok)
	require.Equal(t, "tok-1", token)
}

func TestAcquireWithRetry_StopsOnInvalidCredentials(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad credentials"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL), "bot", "pw")
	m.sleep = func(time.Duration) { t.Fatal("should not sleep on invalid credentials") }

	err := m.AcquireWithRetry(context.Background())
	require.ErrorIs(t, err, backend.ErrInvalidCredentials)
	require.Equal(t, int32(1), calls.Load())
}

func TestAcquireWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"token":"tok-1"}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	m := NewManager(backend.NewClient(srv.URL), "bot", "pw")
	m.sleep = func(d time.Duration) { slept = append(slept, d) }

	require.NoError(t, m.AcquireWithRetry(context.Background()))
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{5 * time.Second, 7500 * time.Millisecond}, slept)

	token, ok := m.Token()
	require.True(t, ok)
	require.Equal(t, "tok-1", token)
}

func TestAcquireWithRetry_ExhaustionLeavesTokenless(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewManager(backend.NewClient(srv.URL), "bot", "pw")
	m.sleep = func(time.Duration) {}

	err := m.AcquireWithRetry(context.Background())
	require.ErrorIs(t, err, backend.ErrUnavailable)

	_, ok := m.Token()
	require.False(t, ok)
}
