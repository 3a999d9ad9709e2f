// Package pipeline runs accepted submissions through transcode and upload
// under a fixed concurrency cap, decoupled from the event-intake path.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"clipsesh.systems/clipbot/internal/clip"
	"clipsesh.systems/clipbot/internal/uploader"
)

// DefaultConcurrency bounds simultaneous transcode+upload runs, limiting
// host CPU and outbound bandwidth pressure.
const DefaultConcurrency = 2

type Transcoder interface {
	Transcode(ctx context.Context, path string) error
}

type Uploader interface {
	Upload(ctx context.Context, sub *clip.Submission) uploader.Result
}

type Coordinator struct {
	transcoder Transcoder
	uploader   Uploader

	permits chan struct{}
	wg      sync.WaitGroup
}

func New(t Transcoder, u Uploader, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Coordinator{
		transcoder: t,
		uploader:   u,
		permits:    make(chan struct{}, concurrency),
	}
}

// Submit schedules the submission and returns immediately. The unit of work
// waits for a permit in its own goroutine; there is no queue-depth cap
// beyond goroutine scheduling. A unit's failure never affects other units.
func (c *Coordinator) Submit(ctx context.Context, sub *clip.Submission) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case c.permits <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-c.permits }()

		c.run(ctx, sub)
	}()
}

// Wait blocks until all in-flight and queued units have finished. Used by
// tests; process shutdown does not wait.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// run drives one submission to its terminal state: remote copy created and
// local file deleted, file relocated to pending, or file deleted with no
// remote copy. Never two, never zero.
func (c *Coordinator) run(ctx context.Context, sub *clip.Submission) {
	log := slog.With("submission", sub.ID, "file", sub.Basename())
	log.Info("Processing clip", "streamer", sub.Streamer, "title", sub.Title)

	if err := c.transcoder.Transcode(ctx, sub.FilePath); err != nil {
		log.Error("Transcode failed, dropping clip", "error", err)
		c.removeFile(log, sub.FilePath)
		return
	}

	res := c.uploader.Upload(ctx, sub)
	switch res.Status {
	case uploader.StatusUploaded:
		c.removeFile(log, sub.FilePath)
	case uploader.StatusDeferred:
		// Already relocated to the pending directory.
	case uploader.StatusFailed:
		log.Warn("Upload failed, removing local file", "http_status", res.HTTPStatus, "error", res.Err)
		c.removeFile(log, sub.FilePath)
	}
}

func (c *Coordinator) removeFile(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error("Failed to remove local file", "path", path, "error", err)
	}
}
