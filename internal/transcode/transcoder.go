// Package transcode re-encodes downloaded clips in place with a fixed
// profile before upload.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"clipsesh.systems/clipbot/pkg/ffmpeg"
)

type Transcoder struct {
	// Fixed re-encode profile.
	Codec string
	CRF   int

	runFn func(ctx context.Context, args []string) error
}

func New() *Transcoder {
	return &Transcoder{
		Codec: "libx264",
		CRF:   23,
		runFn: ffmpeg.Run,
	}
}

// Transcode re-encodes the file at path, writing to a temporary sibling and
// renaming over the original only on success. On failure the temp file is
// removed and an error is returned; disposing of the original is the
// caller's job. No retry: a failed transcode is unrecoverable for that clip.
func (t *Transcoder) Transcode(ctx context.Context, path string) error {
	temp := path + ".temp.mp4"

	args := []string{
		"-i", path,
		"-vcodec", t.Codec,
		"-crf", strconv.Itoa(t.CRF),
		"-y",
		temp,
	}

	slog.Debug("Starting ffmpeg compression", "file", path)
	if err := t.runFn(ctx, args); err != nil {
		if removeErr := os.Remove(temp); removeErr != nil && !os.IsNotExist(removeErr) {
			slog.Warn("Failed to remove temp file after transcode failure", "file", temp, "error", removeErr)
		}
		return fmt.Errorf("transcode %s: %w", path, err)
	}

	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("transcode %s: replace original: %w", path, err)
	}

	slog.Info("Video compression completed", "file", path)
	return nil
}

// CheckInstalled probes for a runnable ffmpeg binary. Called once at
// startup; a missing binary is fatal for the process.
func CheckInstalled(ctx context.Context) error {
	if err := ffmpeg.Probe(ctx); err != nil {
		return fmt.Errorf("ffmpeg is not installed or not runnable: %w", err)
	}
	return nil
}
