package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"clipsesh.systems/clipbot/internal/acquire"
	"clipsesh.systems/clipbot/internal/auth"
	"clipsesh.systems/clipbot/internal/backend"
	"clipsesh.systems/clipbot/internal/bot"
	"clipsesh.systems/clipbot/internal/config"
	"clipsesh.systems/clipbot/internal/logging"
	"clipsesh.systems/clipbot/internal/pipeline"
	"clipsesh.systems/clipbot/internal/remoteconfig"
	"clipsesh.systems/clipbot/internal/transcode"
	"clipsesh.systems/clipbot/internal/uploader"
	"clipsesh.systems/clipbot/pkg/ytdlp"
)

const configRefreshInterval = 20 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(conf.LogDir)
	if err != nil {
		slog.Error("failed to set up logging", "dir", conf.LogDir, "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("Starting clipbot", "backend_url", conf.BackendURL)

	if err := transcode.CheckInstalled(ctx); err != nil {
		slog.Error("ffmpeg check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("FFmpeg is installed and accessible")

	if conf.DiscordBotToken == "" {
		slog.Error("No Discord bot token configured, bot cannot start")
		os.Exit(1)
	}

	pendingDir := filepath.Join(conf.DownloadDir, "pending")
	if err := os.MkdirAll(pendingDir, 0o755); err != nil {
		slog.Error("failed to create download directories", "dir", pendingDir, "error", err)
		os.Exit(1)
	}

	ytdlpClient := ytdlp.New()
	ytdlpClient.RateLimit = "20M"
	if conf.YtdlpPath != "" {
		ytdlpClient.Path = conf.YtdlpPath
	}
	ytdlpClient.LogCallback = func(stream, line string) {
		slog.Debug("yt-dlp output", "stream", stream, "line", line)
	}

	if conf.YtdlpSelfUpdate {
		updateCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		if err := ytdlpClient.Update(updateCtx); err != nil {
			slog.Warn("failed to update yt-dlp", "error", err)
		} else {
			slog.Info("yt-dlp updated successfully")
		}
		cancel()
	}

	client := backend.NewClient(conf.BackendURL)
	creds := auth.NewManager(client, conf.UploadBotUsername, conf.UploadBotPassword)

	// Degraded tokenless mode is allowed: uploads park clips in the pending
	// directory until the backend becomes reachable again.
	if err := creds.AcquireWithRetry(ctx); err != nil {
		slog.Warn("Running without a backend token, uploads will fail until login succeeds", "error", err)
	}

	cache := remoteconfig.NewCache(client, creds, conf.ChannelIDs())
	slog.Info("Fetching initial channel configuration")
	cache.Refresh(ctx)
	if !cache.HasChannels() {
		slog.Warn("No clip channel IDs configured, bot will run but won't process any clips")
	}

	coordinator := pipeline.New(
		transcode.New(),
		uploader.New(client, creds, pendingDir),
		conf.PipelineWorkers,
	)
	acquirer := acquire.New(ytdlpClient, conf.DownloadDir)

	b, err := bot.New(conf.DiscordBotToken, cache, acquirer, coordinator)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	if err := b.Open(); err != nil {
		slog.Error("failed to connect to Discord", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the periodic refresh only after the gateway is ready.
		select {
		case <-gctx.Done():
			return nil
		case <-b.Ready():
		}
		slog.Info("Started background config refresh task")
		cache.Run(gctx, configRefreshInterval)
		return nil
	})

	slog.Info("Bot startup completed")
	<-ctx.Done()
	slog.Info("Shutting down")

	// In-flight pipeline work is not awaited; anything not yet uploaded
	// stays under downloads/ or downloads/pending/.
	_ = g.Wait()
}
