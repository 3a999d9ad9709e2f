// Package bot wires the Discord gateway to the ingestion pipeline. The
// gateway is a thin integration: events are mapped to gateway-agnostic
// acquire.Message values and everything interesting happens downstream.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/bwmarrin/discordgo"

	"clipsesh.systems/clipbot/internal/acquire"
	"clipsesh.systems/clipbot/internal/clip"
	"clipsesh.systems/clipbot/internal/pipeline"
	"clipsesh.systems/clipbot/internal/remoteconfig"
)

type Bot struct {
	session  *discordgo.Session
	cfg      *remoteconfig.Cache
	acquirer *acquire.Acquirer
	coord    *pipeline.Coordinator

	ready chan struct{}
}

func New(token string, cfg *remoteconfig.Cache, acquirer *acquire.Acquirer, coord *pipeline.Coordinator) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &Bot{
		session:  session,
		cfg:      cfg,
		acquirer: acquirer,
		coord:    coord,
		ready:    make(chan struct{}),
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)

	return b, nil
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

// Ready closes once the gateway reports ready; the periodic config refresh
// loop starts after that.
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Bot logged in", "user", r.User.Username)

	if err := s.UpdateWatchStatus(0, "for clips"); err != nil {
		slog.Warn("Failed to set presence", "error", err)
	} else {
		slog.Info("Bot presence set to 'Watching for clips'")
	}

	select {
	case <-b.ready:
	default:
		close(b.ready)
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	ctx := context.Background()

	if !b.cfg.HasChannels() {
		b.cfg.Refresh(ctx)
		if !b.cfg.HasChannels() {
			slog.Warn("No clip channels configured, skipping message")
			return
		}
	}

	if !b.cfg.IsChannelAllowed(m.ChannelID) {
		return
	}

	msg := messageFromEvent(m)

	// Acquisition runs inline on the intake path; only transcode and
	// upload go through the bounded pool.
	sub, err := b.acquirer.FromMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, acquire.ErrNoMedia) ||
			errors.Is(err, acquire.ErrUnsupportedSource) ||
			errors.Is(err, acquire.ErrUnsupportedAttachment) {
			return
		}
		slog.Error("Failed to acquire media", "channel", m.ChannelID, "submitter", msg.AuthorName, "error", err)
		return
	}

	if blocked, reason := b.cfg.IsBlacklisted(sub.Streamer, sub.SubmitterID); blocked {
		slog.Info("Clip blocked by blacklist",
			"reason", reason, "submitter", msg.AuthorName, "streamer", sub.Streamer)
		removeBlocked(sub)
		return
	}

	b.coord.Submit(ctx, sub)
}

// messageFromEvent maps a gateway event to the gateway-agnostic message
// shape. Only attachments hosted on the Discord CDN are considered.
func messageFromEvent(m *discordgo.MessageCreate) acquire.Message {
	msg := acquire.Message{
		Content:    m.Content,
		AuthorName: m.Author.Username,
		AuthorID:   m.Author.ID,
		ChannelID:  m.ChannelID,
		PermaLink:  permalink(m.GuildID, m.ChannelID, m.ID),
	}

	for _, att := range m.Attachments {
		if att == nil || !isDiscordCDN(att.URL) {
			continue
		}
		msg.Attachments = append(msg.Attachments, acquire.Attachment{
			URL:      att.URL,
			Filename: att.Filename,
		})
	}

	return msg
}

func permalink(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func isDiscordCDN(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "cdn.discordapp.com" || strings.HasSuffix(host, ".discordapp.com")
}

func removeBlocked(sub *clip.Submission) {
	if err := os.Remove(sub.FilePath); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to remove blocked clip", "file", sub.Basename(), "error", err)
	}
}
