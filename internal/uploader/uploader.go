// Package uploader posts finished clips to the backend. Transient network
// failures are retried with backoff; clips that cannot be uploaded at all
// are parked in the on-disk pending directory for manual reprocessing.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"clipsesh.systems/clipbot/internal/auth"
	"clipsesh.systems/clipbot/internal/backend"
	"clipsesh.systems/clipbot/internal/clip"
)

const maxAttempts = 3

type Status int

const (
	// StatusUploaded: the backend accepted the clip; the caller deletes the
	// local file.
	StatusUploaded Status = iota

	// StatusDeferred: the clip was moved to the pending directory for
	// manual reprocessing. Not an error; the local file no longer exists at
	// its original path.
	StatusDeferred

	// StatusFailed: the upload was abandoned; the caller deletes the local
	// file. No remote copy exists.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUploaded:
		return "uploaded"
	case StatusDeferred:
		return "deferred"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one upload call.
type Result struct {
	Status Status

	// HTTPStatus is set for StatusFailed results caused by a non-2xx
	// response.
	HTTPStatus int

	// PendingPath is set for StatusDeferred results.
	PendingPath string

	// Err carries the final error for StatusFailed results.
	Err error
}

type Uploader struct {
	client     *backend.Client
	creds      *auth.Manager
	pendingDir string

	sleep func(time.Duration)
	now   func() time.Time
}

func New(client *backend.Client, creds *auth.Manager, pendingDir string) *Uploader {
	return &Uploader{
		client:     client,
		creds:      creds,
		pendingDir: pendingDir,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// Upload posts the submission to the backend. Every call ends in exactly one
// terminal state: uploaded (caller deletes the file), deferred (file moved
// to pending), or failed (caller deletes the file).
func (u *Uploader) Upload(ctx context.Context, sub *clip.Submission) Result {
	log := slog.With("submission", sub.ID, "file", sub.Basename())

	token, ok := u.creds.Token()
	if !ok {
		// One acquire attempt; a tokenless upload cannot succeed.
		if err := u.creds.Acquire(ctx); err != nil {
			log.Error("No backend token available, saving clip for later", "error", err)
			return u.park(log, sub)
		}
		token, _ = u.creds.Token()
	}

	if fi, err := os.Stat(sub.FilePath); err == nil {
		log.Info("Uploading clip", "streamer", sub.Streamer, "title", sub.Title, "size", humanize.Bytes(uint64(fi.Size())))
	}

	req := backend.UploadRequest{
		FilePath:    sub.FilePath,
		Streamer:    sub.Streamer,
		Title:       sub.Title,
		Link:        sub.Link,
		Submitter:   sub.Submitter,
		SubmitterID: sub.SubmitterID,
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := u.client.UploadClip(ctx, token, req)
		if err == nil {
			log.Info("Clip uploaded successfully")
			return Result{Status: StatusUploaded}
		}

		switch {
		case errors.Is(err, backend.ErrUnauthorized):
			// One refresh so the next submission has a live token; the
			// current clip is given up regardless (no same-call re-upload).
			log.Warn("Token expired during upload, refreshing")
			if refreshErr := u.creds.Refresh(ctx); refreshErr != nil {
				log.Error("Failed to refresh token after 401", "error", refreshErr)
			}
			return Result{Status: StatusFailed, HTTPStatus: 401, Err: err}

		case isStatusError(err):
			var se *backend.StatusError
			errors.As(err, &se)
			log.Error("Upload rejected by server", "status", se.StatusCode, "message", se.Message)
			return Result{Status: StatusFailed, HTTPStatus: se.StatusCode, Err: err}

		case isNetworkError(err):
			if attempt == maxAttempts {
				log.Error("Failed to upload after retries", "attempts", attempt, "error", err)
				return u.park(log, sub)
			}
			delay := time.Duration(attempt) * 2 * time.Second
			log.Warn("Upload attempt failed, retrying", "attempt", attempt, "retry_in", delay, "error", err)
			u.sleep(delay)

		default:
			// Unexpected local failure (unreadable file etc.), no retry.
			log.Error("Unexpected error during upload", "error", err)
			return Result{Status: StatusFailed, Err: err}
		}
	}

	// Unreachable; the network branch returns on the final attempt.
	return Result{Status: StatusFailed}
}

// park relocates the clip into the pending directory, named
// <unixtime>_<basename> so entries sort by arrival.
func (u *Uploader) park(log *slog.Logger, sub *clip.Submission) Result {
	dest := filepath.Join(u.pendingDir, fmt.Sprintf("%d_%s", u.now().Unix(), sub.Basename()))

	if err := os.MkdirAll(u.pendingDir, 0o755); err != nil {
		log.Error("Failed to create pending directory", "error", err)
		return Result{Status: StatusFailed, Err: err}
	}
	if err := os.Rename(sub.FilePath, dest); err != nil {
		log.Error("Failed to move clip to pending directory", "error", err)
		return Result{Status: StatusFailed, Err: err}
	}

	log.Info("Saved clip for later upload", "pending_path", dest)
	return Result{Status: StatusDeferred, PendingPath: dest}
}

func isStatusError(err error) bool {
	var se *backend.StatusError
	return errors.As(err, &se)
}

// isNetworkError classifies transport-level failures worth retrying.
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
