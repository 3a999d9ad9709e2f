package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Success_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("BACKEND_URL", "https://clips.example.com")
	t.Setenv("UPLOADBOT_USERNAME", "uploadbot")
	t.Setenv("UPLOADBOT_PASSWORD", "hunter2")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "https://clips.example.com", cfg.BackendURL)
	require.Equal(t, "downloads", cfg.DownloadDir) // default
	require.Equal(t, "logs", cfg.LogDir)           // default
	require.Equal(t, 2, cfg.PipelineWorkers)       // default
	require.True(t, cfg.YtdlpSelfUpdate)
}

func TestLoadConfig_ValidationError(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("BACKEND_URL", "https://clips.example.com")
	// Missing UPLOADBOT_USERNAME / UPLOADBOT_PASSWORD

	cfg, err := LoadConfig()
	require.Error(t, err)
	require.Nil(t, cfg)
}

func TestLoadConfig_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("BACKEND_URL", "https://clips.example.com")
	t.Setenv("UPLOADBOT_USERNAME", "uploadbot")
	t.Setenv("UPLOADBOT_PASSWORD", "hunter2")
	t.Setenv("DOWNLOAD_DIR", "/var/spool/clips")
	t.Setenv("PIPELINE_WORKERS", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/var/spool/clips", cfg.DownloadDir)
	require.Equal(t, 4, cfg.PipelineWorkers)
}

func TestChannelIDs_SplitsAndTrims(t *testing.T) {
	cfg := &Config{ClipChannelIDs: "123, 456 ,,789"}
	require.Equal(t, []string{"123", "456", "789"}, cfg.ChannelIDs())

	cfg = &Config{}
	require.Empty(t, cfg.ChannelIDs())
}
