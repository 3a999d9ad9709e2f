package remoteconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clipsesh.systems/clipbot/internal/auth"
	"clipsesh.systems/clipbot/internal/backend"
)

// newBackend wires a Cache against an httptest server that serves both the
// login and config endpoints.
func newBackend(t *testing.T, config http.HandlerFunc) (*Cache, *atomic.Int32) {
	t.Helper()

	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/login":
			logins.Add(1)
			w.Write([]byte(`{"token":"tok"}`))
		case "/api/config/admin":
			config(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL)
	creds := auth.NewManager(client, "bot", "pw")
	require.NoError(t, creds.Acquire(context.Background()))
	logins.Store(0)

	cache := NewCache(client, creds, nil)
	cache.sleep = func(time.Duration) {}
	return cache, &logins
}

func TestRefresh_PopulatesCache(t *testing.T) {
	cache, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"admin":{
			"clipChannelIds":["111","222"],
			"blacklistedSubmitters":[{"userId":"42"}],
			"blacklistedStreamers":["BadStreamer"]
		}}`))
	})

	cache.Refresh(context.Background())

	require.True(t, cache.HasChannels())
	require.True(t, cache.IsChannelAllowed("111"))
	require.True(t, cache.IsChannelAllowed("222"))
	require.False(t, cache.IsChannelAllowed("333"))
}

func TestRefresh_EmptyFieldsRetainOldValues(t *testing.T) {
	var fetches atomic.Int32
	cache, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.Write([]byte(`{"admin":{
				"clipChannelIds":["111"],
				"blacklistedSubmitters":[{"userId":"42"}],
				"blacklistedStreamers":["badstreamer"]
			}}`))
			return
		}
		w.Write([]byte(`{"admin":{"clipChannelIds":[],"blacklistedSubmitters":[],"blacklistedStreamers":[]}}`))
	})

	cache.Refresh(context.Background())
	cache.Refresh(context.Background())

	require.True(t, cache.IsChannelAllowed("111"))
	blocked, reason := cache.IsBlacklisted("", "42")
	require.True(t, blocked)
	require.Equal(t, "submitter", reason)
}

func TestRefresh_FetchErrorRetainsStaleCache(t *testing.T) {
	var fetches atomic.Int32
	cache, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.Write([]byte(`{"admin":{"clipChannelIds":["111"]}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	cache.Refresh(context.Background())
	cache.Refresh(context.Background())

	require.True(t, cache.IsChannelAllowed("111"))
	// first refresh fetched once, second exhausted its 3 attempts
	require.Equal(t, int32(4), fetches.Load())
}

func TestRefresh_UnauthorizedTriggersTokenRefreshThenRetry(t *testing.T) {
	var fetches atomic.Int32
	cache, logins := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"admin":{"clipChannelIds":["111"]}}`))
	})

	cache.Refresh(context.Background())

	require.True(t, cache.IsChannelAllowed("111"))
	require.Equal(t, int32(1), logins.Load())
	require.Equal(t, int32(2), fetches.Load())
}

func TestIsBlacklisted_StreamerCaseInsensitive(t *testing.T) {
	cache, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"admin":{
			"clipChannelIds":["111"],
			"blacklistedStreamers":["BadStreamer"]
		}}`))
	})
	cache.Refresh(context.Background())

	for _, name := range []string{"badstreamer", "BADSTREAMER", "BadStreamer"} {
		blocked, reason := cache.IsBlacklisted(name, "7")
		require.True(t, blocked, name)
		require.Equal(t, "streamer", reason)
	}

	blocked, _ := cache.IsBlacklisted("goodstreamer", "7")
	require.False(t, blocked)
}

func TestIsBlacklisted_SubmitterExactMatch(t *testing.T) {
	cache, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"admin":{
			"clipChannelIds":["111"],
			"blacklistedSubmitters":[{"userId":"42"}]
		}}`))
	})
	cache.Refresh(context.Background())

	blocked, reason := cache.IsBlacklisted("anyone", "42")
	require.True(t, blocked)
	require.Equal(t, "submitter", reason)

	blocked, _ = cache.IsBlacklisted("anyone", "420")
	require.False(t, blocked)
}

func TestNewCache_SeedChannels(t *testing.T) {
	cache := NewCache(nil, nil, []string{"999"})
	require.True(t, cache.HasChannels())
	require.True(t, cache.IsChannelAllowed("999"))
}
