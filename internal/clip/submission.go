// Package clip defines the unit of work moving through the ingestion
// pipeline.
package clip

import (
	"path/filepath"

	"github.com/google/uuid"
)

// Submission is one clip candidate: a downloaded local file plus the
// metadata the backend wants alongside it. It is transient; nothing survives
// past upload, deletion, or relocation to the pending directory.
type Submission struct {
	// ID correlates log lines across pipeline stages.
	ID uuid.UUID

	FilePath    string
	Streamer    string
	Title       string
	Link        string
	Submitter   string
	SubmitterID string
}

func New(filePath, streamer, title, link, submitter, submitterID string) *Submission {
	return &Submission{
		ID:          uuid.New(),
		FilePath:    filePath,
		Streamer:    streamer,
		Title:       title,
		Link:        link,
		Submitter:   submitter,
		SubmitterID: submitterID,
	}
}

// Basename is the file name used in logs and pending-queue entries.
func (s *Submission) Basename() string {
	return filepath.Base(s.FilePath)
}
