package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Info models the fields of yt-dlp's JSON output that the bot cares about.
// The full JSON is preserved in Raw.
type Info struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Ext        string `json:"ext"`
	WebpageURL string `json:"webpage_url"`
	Creator    string `json:"creator"`
	Channel    string `json:"channel"`
	Uploader   string `json:"uploader"`

	// Filename and RequestedDownloads locate the produced file; which one
	// yt-dlp populates depends on the extractor.
	Filename           string `json:"filename"`
	RequestedDownloads []struct {
		Filepath string `json:"filepath"`
	} `json:"requested_downloads"`

	Raw json.RawMessage `json:"-"`
}

// LocalPath resolves the path of the downloaded file relative to the output
// template rooted at destDir.
func (i *Info) LocalPath(destDir string) string {
	if len(i.RequestedDownloads) > 0 && i.RequestedDownloads[0].Filepath != "" {
		return i.RequestedDownloads[0].Filepath
	}
	if i.Filename != "" {
		return i.Filename
	}
	if i.ID != "" && i.Ext != "" {
		return filepath.Join(destDir, i.ID+"."+i.Ext)
	}
	return ""
}

// CreatorName falls through creator -> channel -> uploader.
func (i *Info) CreatorName() string {
	for _, name := range []string{i.Creator, i.Channel, i.Uploader} {
		if strings.TrimSpace(name) != "" {
			return name
		}
	}
	return ""
}

// Download fetches the media into destDir using a stable output template
// (<destDir>/<id>.<ext>) and returns the parsed metadata in one pass.
// It uses: --dump-single-json --no-simulate
func (c *Client) Download(ctx context.Context, url string, destDir string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return nil, fmt.Errorf("ytdlp: destDir is required")
	}

	tmpl := filepath.Join(destDir, "%(id)s.%(ext)s")

	args := []string{
		"-o", tmpl,
		"--no-playlist",
		"--no-colors",
		"--dump-single-json",
		"--no-simulate",
	}
	if c.RateLimit != "" {
		args = append(args, "--limit-rate", c.RateLimit)
	}
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return nil, wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}

	raw := bytes.TrimSpace(stdout)
	info := &Info{Raw: append([]byte(nil), raw...)}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse json: %w", err)
	}

	return info, nil
}
