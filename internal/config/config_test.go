package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer(nil)
	require.NoError(t, err)
	assert.Equal(t, Server{Addr: ":8080", LogLevel: "info"}, cfg)
}

func TestLoadServerPrecedence(t *testing.T) {
	t.Setenv("ROOMSYNC_ADDR", ":9000")
	t.Setenv("ROOMSYNC_TOKEN", "from-env")

	cfg, err := LoadServer([]string{"--token", "from-flag"})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr, "env beats default")
	assert.Equal(t, "from-flag", cfg.Token, "flag beats env")
}

func TestLoadWatch(t *testing.T) {
	t.Setenv("ROOMSYNC_WS_URL", "wss://rooms.example/ws")
	t.Setenv("ROOMSYNC_MAX_ATTEMPTS", "5")

	cfg, err := LoadWatch([]string{
		"--base-url", "https://rooms.example/",
		"-r", "g1", "--room", "g2",
		"--reconnect-delay", "250ms",
		"g3",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://rooms.example", cfg.BaseURL)
	assert.Equal(t, "wss://rooms.example/ws", cfg.WSURL)
	assert.Equal(t, []string{"g1", "g2", "g3"}, cfg.Rooms)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	assert.Zero(t, cfg.MaxReconnectDelay)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestLoadWatchRoomsFromEnv(t *testing.T) {
	cases := []struct {
		name string
		env  string
		want []string
	}{
		{"comma separated", "g1,g2", []string{"g1", "g2"}},
		{"space separated", "g1 g2", []string{"g1", "g2"}},
		{"mixed with blanks", " g1, ,g2 g3", []string{"g1", "g2", "g3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ROOMSYNC_ROOM", tc.env)
			cfg, err := LoadWatch(nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Rooms)
		})
	}

	t.Setenv("ROOMSYNC_ROOM", ",")
	_, err := LoadWatch(nil)
	assert.Error(t, err, "only separators means no rooms")
}

func TestLoadWatchValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"no rooms", nil},
		{"zero delay", []string{"--reconnect-delay", "0s", "g1"}},
		{"cap below delay", []string{"--reconnect-delay", "2s", "--max-reconnect-delay", "1s", "g1"}},
		{"negative attempts", []string{"--max-attempts", "-1", "g1"}},
		{"unknown flag", []string{"--nope", "g1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWatch(tc.args)
			assert.Error(t, err)
		})
	}

	cfg, err := LoadWatch([]string{"--version"})
	require.NoError(t, err, "--version skips validation")
	assert.True(t, cfg.ShowVersion)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROOMSYNC_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("ROOMSYNC_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("ROOMSYNC_LOG_LEVEL"))

	require.NoError(t, LoadDotEnv(path))
	cfg, err := LoadServer(nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}
