// Package auth owns the backend bearer token. The token is only replaced by
// explicit Acquire/Refresh calls; there is no background expiry timer.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"clipsesh.systems/clipbot/internal/backend"
)

const (
	startupMaxAttempts = 10
	startupBaseDelay   = 5 * time.Second
	startupMaxDelay    = 60 * time.Second
)

type Manager struct {
	client   *backend.Client
	username string
	password string

	mu    sync.RWMutex
	token string

	sleep func(time.Duration)
}

func NewManager(client *backend.Client, username, password string) *Manager {
	return &Manager{
		client:   client,
		username: username,
		password: password,
		sleep:    time.Sleep,
	}
}

// Token returns the current bearer token, and false when none is held.
func (m *Manager) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Acquire logs in and replaces the stored token. The stored token is left
// untouched on failure.
func (m *Manager) Acquire(ctx context.Context) error {
	token, err := m.client.Login(ctx, m.username, m.password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	slog.Info("Authenticated with backend")
	return nil
}

// Refresh re-acquires the token. Triggered by observed 401s and by the
// periodic config loop's heartbeat.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.Acquire(ctx)
}

// AcquireWithRetry is the startup policy: up to 10 attempts with exponential
// backoff (base 5s, x1.5, capped at 60s). Invalid credentials stop the loop
// immediately. A non-nil return means the process continues tokenless;
// uploads will fail until a later refresh succeeds.
func (m *Manager) AcquireWithRetry(ctx context.Context) error {
	delay := startupBaseDelay

	var err error
	for attempt := 1; attempt <= startupMaxAttempts; attempt++ {
		err = m.Acquire(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, backend.ErrInvalidCredentials) {
			slog.Error("Authentication rejected, check credentials", "error", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Error("Failed to get backend token",
			"attempt", attempt, "max_attempts", startupMaxAttempts,
			"retry_in", delay, "error", err)
		m.sleep(delay)

		delay = time.Duration(float64(delay) * 1.5)
		if delay > startupMaxDelay {
			delay = startupMaxDelay
		}
	}

	slog.Warn("Max login attempts reached, continuing without backend token")
	return err
}
