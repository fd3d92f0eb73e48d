package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should fall back to defaults without a file", func(t *testing.T) {
		req := require.New(t)
		t.Chdir(t.TempDir())
		t.Setenv("CONFIG_ENV", "none")

		cfg, err := Load()
		req.NoError(err)
		req.Equal(8080, cfg.Port)
		req.Equal("release", cfg.Mode)
		req.Equal(60*time.Second, cfg.PongWait)
		req.Equal(100, cfg.History.Limit)
		req.Empty(cfg.History.Path)
		req.Equal(4000, cfg.Chat.MaxLength)
		req.Equal(10*time.Second, cfg.Chat.RateInterval)
	})

	t.Run("should read the env file and let variables win", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		req.NoError(os.MkdirAll(filepath.Join(dir, "config"), 0o755))
		req.NoError(os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(
			"mode: debug\nport: 9000\nhistory:\n  path: /tmp/h\n  limit: 20\ncors:\n  allow_origins:\n    - http://a\n",
		), 0o600))
		t.Chdir(dir)
		t.Setenv("CONFIG_ENV", "test")
		t.Setenv("MESH_PORT", "9100")

		cfg, err := Load()
		req.NoError(err)
		req.Equal("debug", cfg.Mode)
		req.Equal(9100, cfg.Port)
		req.Equal("/tmp/h", cfg.History.Path)
		req.Equal(20, cfg.History.Limit)
		req.Equal([]string{"http://a"}, cfg.CORS.AllowOrigins)
	})
}

func TestLoadPeer(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "none")
	t.Setenv("MESH_SERVER_URL", "http://relay:8080")

	cfg, err := LoadPeer()
	req.NoError(err)
	req.Equal("http://relay:8080", cfg.ServerURL)
	req.Equal(2*time.Second, cfg.RecreateDelay)
	req.Equal(10*time.Second, cfg.NegotiateTimeout)
	req.NotEmpty(cfg.ICEServers)
}

func TestParseLevel(t *testing.T) {
	req := require.New(t)
	req.Equal(zerolog.DebugLevel, ParseLevel("DEBUG"))
	req.Equal(zerolog.WarnLevel, ParseLevel("warn"))
	req.Equal(zerolog.InfoLevel, ParseLevel(""))
	req.Equal(zerolog.InfoLevel, ParseLevel("loud"))
}
