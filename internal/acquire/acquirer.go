// Package acquire resolves an inbound chat message to a local media file
// plus upload metadata, either by extracting a supported video link with
// yt-dlp or by downloading a video attachment.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"clipsesh.systems/clipbot/internal/clip"
	"clipsesh.systems/clipbot/pkg/ytdlp"
)

var (
	// ErrUnsupportedSource means the URL's host is not a recognized clip
	// source; the caller should fall through to attachments.
	ErrUnsupportedSource = errors.New("acquire: unsupported source")

	// ErrUnsupportedAttachment means the attachment is not an accepted
	// video type. Silently skipped, not an error path.
	ErrUnsupportedAttachment = errors.New("acquire: unsupported attachment")

	// ErrNoMedia means the message carried neither a URL nor an attachment.
	ErrNoMedia = errors.New("acquire: no media in message")
)

// Hosts recognized by the URL path. Subdomains are accepted (www.youtube.com
// etc.).
var supportedHosts = []string{"youtube.com", "youtu.be", "twitch.tv", "medal.tv"}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// FirstURL extracts the first URL from message text, or "".
func FirstURL(content string) string {
	return strings.TrimSpace(urlPattern.FindString(content))
}

const (
	defaultURLTitle        = "YT Clip"
	defaultAttachmentTitle = "Discord Clip"
)

var attachmentExtensions = map[string]struct{}{
	".mp4": {},
	".mov": {},
}

// Attachment is a chat attachment with its CDN URL and declared filename.
type Attachment struct {
	URL      string
	Filename string
}

// Message is the gateway-agnostic view of an inbound chat message.
type Message struct {
	Content     string
	AuthorName  string
	AuthorID    string
	ChannelID   string
	PermaLink   string
	Attachments []Attachment
}

type fetcher interface {
	Download(ctx context.Context, url string, destDir string) (*ytdlp.Info, error)
}

type Acquirer struct {
	ytdlp       fetcher
	downloadDir string
	http        *http.Client
}

func New(client *ytdlp.Client, downloadDir string) *Acquirer {
	return &Acquirer{
		ytdlp:       client,
		downloadDir: downloadDir,
		http: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// FromMessage resolves the message to a Submission. A URL takes precedence
// over attachments; an unsupported URL host falls through to the attachment
// path. Exactly one download is performed per message.
func (a *Acquirer) FromMessage(ctx context.Context, msg Message) (*clip.Submission, error) {
	if u := FirstURL(msg.Content); u != "" {
		sub, err := a.fromURL(ctx, msg, u)
		if err == nil || !errors.Is(err, ErrUnsupportedSource) {
			return sub, err
		}
	}

	if len(msg.Attachments) > 0 {
		return a.fromAttachment(ctx, msg, msg.Attachments[0])
	}

	return nil, ErrNoMedia
}

func (a *Acquirer) fromURL(ctx context.Context, msg Message, rawURL string) (*clip.Submission, error) {
	if !isSupportedSource(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, rawURL)
	}

	slog.Debug("Extracting clip from URL", "url", rawURL, "submitter", msg.AuthorName)

	info, err := a.ytdlp.Download(ctx, rawURL, a.downloadDir)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rawURL, err)
	}

	path := info.LocalPath(a.downloadDir)
	if path == "" {
		return nil, fmt.Errorf("extract %s: no output file in metadata", rawURL)
	}

	streamer := info.CreatorName()
	if streamer == "" {
		streamer = msg.AuthorName
	}
	title := info.Title
	if strings.TrimSpace(title) == "" {
		title = defaultURLTitle
	}

	logDownloadedSize(path)
	return clip.New(path, streamer, title, rawURL, msg.AuthorName, msg.AuthorID), nil
}

func (a *Acquirer) fromAttachment(ctx context.Context, msg Message, att Attachment) (*clip.Submission, error) {
	name := filepath.Base(att.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := attachmentExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAttachment, name)
	}

	path := filepath.Join(a.downloadDir, name)
	if err := a.saveAttachment(ctx, att.URL, path); err != nil {
		return nil, fmt.Errorf("save attachment %s: %w", name, err)
	}

	logDownloadedSize(path)
	return clip.New(path, msg.AuthorName, defaultAttachmentTitle, msg.PermaLink, msg.AuthorName, msg.AuthorID), nil
}

func (a *Acquirer) saveAttachment(ctx context.Context, srcURL, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(destPath)
		return err
	}
	return out.Close()
}

func isSupportedSource(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())

	for _, supported := range supportedHosts {
		if host == supported || strings.HasSuffix(host, "."+supported) {
			return true
		}
	}
	return false
}

func logDownloadedSize(path string) {
	if fi, err := os.Stat(path); err == nil {
		slog.Info("Saved media file", "file", filepath.Base(path), "size", humanize.Bytes(uint64(fi.Size())))
	}
}
