// Package remoteconfig caches the channel allow-list and the submitter and
// streamer blacklists served by the backend. The cache is replaced wholesale
// on successful fetches and never regresses to empty on a failed one.
package remoteconfig

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"clipsesh.systems/clipbot/internal/auth"
	"clipsesh.systems/clipbot/internal/backend"
)

const (
	fetchMaxAttempts = 3
	fetchBaseDelay   = 2 * time.Second

	// Every 3rd periodic tick also refreshes the backend token as a
	// liveness heartbeat.
	tokenHeartbeatTicks = 3
)

type Cache struct {
	client *backend.Client
	creds  *auth.Manager

	mu         sync.RWMutex
	channelIDs []string
	submitters map[string]struct{}
	streamers  map[string]struct{}

	sleep func(time.Duration)
}

// NewCache seeds the channel list from local configuration so the bot can
// operate before the first successful fetch.
func NewCache(client *backend.Client, creds *auth.Manager, seedChannels []string) *Cache {
	return &Cache{
		client:     client,
		creds:      creds,
		channelIDs: append([]string(nil), seedChannels...),
		submitters: map[string]struct{}{},
		streamers:  map[string]struct{}{},
		sleep:      time.Sleep,
	}
}

// Refresh fetches the admin config with up to 3 attempts (backoff 2s, x1.5).
// A 401 triggers a credential refresh before the next attempt. On exhaustion
// the stale cache is retained unchanged.
func (c *Cache) Refresh(ctx context.Context) {
	delay := fetchBaseDelay

	for attempt := 1; attempt <= fetchMaxAttempts; attempt++ {
		token, ok := c.creds.Token()
		if !ok {
			if err := c.creds.Refresh(ctx); err != nil {
				slog.Error("Cannot fetch config without token",
					"attempt", attempt, "max_attempts", fetchMaxAttempts, "error", err)
				if attempt < fetchMaxAttempts {
					c.sleep(delay)
					delay = time.Duration(float64(delay) * 1.5)
				}
				continue
			}
			token, _ = c.creds.Token()
		}

		cfg, err := c.client.AdminConfigFetch(ctx, token)
		if err == nil {
			c.apply(cfg)
			return
		}

		if errors.Is(err, backend.ErrUnauthorized) {
			slog.Warn("Token expired while fetching config, refreshing")
			if refreshErr := c.creds.Refresh(ctx); refreshErr != nil {
				slog.Error("Failed to refresh token", "error", refreshErr)
			}
		} else {
			slog.Error("Failed to fetch config",
				"attempt", attempt, "max_attempts", fetchMaxAttempts, "error", err)
		}

		if attempt < fetchMaxAttempts {
			c.sleep(delay)
			delay = time.Duration(float64(delay) * 1.5)
		}
	}
}

// apply replaces cached values wholesale, but an empty or missing field from
// the server means "no change", not "clear".
func (c *Cache) apply(cfg *backend.AdminConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(cfg.ClipChannelIDs) > 0 {
		ids := make([]string, 0, len(cfg.ClipChannelIDs))
		for _, id := range cfg.ClipChannelIDs {
			if s := strings.TrimSpace(string(id)); s != "" {
				ids = append(ids, s)
			}
		}
		if len(ids) > 0 {
			c.channelIDs = ids
			slog.Info("Updated clip channel IDs from backend", "channels", len(ids))
		}
	} else {
		slog.Warn("No clip channel IDs in config, keeping current list")
	}

	if len(cfg.BlacklistedSubmitters) > 0 {
		submitters := make(map[string]struct{}, len(cfg.BlacklistedSubmitters))
		for _, s := range cfg.BlacklistedSubmitters {
			if id := strings.TrimSpace(s.UserID); id != "" {
				submitters[id] = struct{}{}
			}
		}
		if len(submitters) > 0 {
			c.submitters = submitters
			slog.Info("Updated blacklisted submitters", "count", len(submitters))
		}
	}

	if len(cfg.BlacklistedStreamers) > 0 {
		streamers := make(map[string]struct{}, len(cfg.BlacklistedStreamers))
		for _, name := range cfg.BlacklistedStreamers {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				streamers[name] = struct{}{}
			}
		}
		if len(streamers) > 0 {
			c.streamers = streamers
			slog.Info("Updated blacklisted streamers", "count", len(streamers))
		}
	}
}

// HasChannels reports whether any clip channel is configured yet.
func (c *Cache) HasChannels() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channelIDs) > 0
}

func (c *Cache) IsChannelAllowed(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, allowed := range c.channelIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// IsBlacklisted checks the submitter identity (exact) and the streamer name
// (case-insensitive). The reason is "submitter" or "streamer".
func (c *Cache) IsBlacklisted(streamer, submitterID string) (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.submitters[submitterID]; ok {
		return true, "submitter"
	}
	if streamer != "" {
		if _, ok := c.streamers[strings.ToLower(streamer)]; ok {
			return true, "streamer"
		}
	}
	return false, ""
}

// Run refreshes the cache on a fixed interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.Refresh(ctx)
		slog.Info("Refreshed channel IDs and blacklists from backend config")

		if tick%tokenHeartbeatTicks == 0 {
			if err := c.creds.Refresh(ctx); err != nil {
				slog.Error("Periodic token refresh failed", "error", err)
			} else {
				slog.Info("Refreshed backend token")
			}
		}
	}
}
