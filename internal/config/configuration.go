package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// Backend API
	BackendURL        string `mapstructure:"BACKEND_URL" validate:"required,url"`
	UploadBotUsername string `mapstructure:"UPLOADBOT_USERNAME" validate:"required"`
	UploadBotPassword string `mapstructure:"UPLOADBOT_PASSWORD" validate:"required"`

	// Discord
	DiscordBotToken string `mapstructure:"DISCORD_BOT_TOKEN"`

	// Fallback clip channel IDs (comma-separated), used until the first
	// successful admin-config fetch.
	ClipChannelIDs string `mapstructure:"CLIP_CHANNEL_IDS"`

	// Filesystem
	DownloadDir string `mapstructure:"DOWNLOAD_DIR"`
	LogDir      string `mapstructure:"LOG_DIR"`

	// Pipeline
	PipelineWorkers int `mapstructure:"PIPELINE_WORKERS"`

	// Tools
	YtdlpPath       string `mapstructure:"YTDLP_PATH"`
	YtdlpSelfUpdate bool   `mapstructure:"YTDLP_SELF_UPDATE"`
}

// ChannelIDs splits the comma-separated fallback channel list.
func (c *Config) ChannelIDs() []string {
	var out []string
	for _, id := range strings.Split(c.ClipChannelIDs, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" {
			viper.BindEnv(tag)
		}
	}
}

func LoadConfig() (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("DOWNLOAD_DIR", "downloads")
	viper.SetDefault("LOG_DIR", "logs")
	viper.SetDefault("PIPELINE_WORKERS", 2)
	viper.SetDefault("YTDLP_SELF_UPDATE", true)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration",
		"backend_url", cfg.BackendURL,
		"download_dir", cfg.DownloadDir,
		"log_dir", cfg.LogDir,
		"pipeline_workers", cfg.PipelineWorkers)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
