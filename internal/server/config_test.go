package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	req := require.New(t)
	cfg := NewConfig()

	req.Equal(":8080", cfg.Port)
	req.Equal([]string{"http://localhost:3000"}, cfg.AllowedOrigins)
	req.EqualValues(64<<10, cfg.MaxMessageSize)
	req.Equal(5, cfg.RateLimit.Burst)
	req.Equal(Interval(time.Second), cfg.RateLimit.RefillInterval)
	req.Equal(256, cfg.SendBufferSize)
	req.False(cfg.RequireClientID)
	req.False(cfg.StrictRooms)
	req.Equal("memory", cfg.Confessions.Store)
}

func TestSetConfigSanitizes(t *testing.T) {
	req := require.New(t)
	t.Cleanup(func() { SetConfig(nil) })

	applied := SetConfig(&Config{
		Port:           "9090",
		AllowedOrigins: []string{" HTTP://Example.COM ", "not-a-url", ""},
		Confessions:    ConfessionConfig{Store: " SQLite "},
	})

	req.Equal(":9090", applied.Port)
	req.Equal([]string{"http://example.com"}, applied.AllowedOrigins)
	req.EqualValues(defaultMaxMessageSize, applied.MaxMessageSize)
	req.Equal(defaultBurst, applied.RateLimit.Burst)
	req.Equal(Interval(time.Second), applied.RateLimit.RefillInterval)
	req.Equal(defaultSendBuffer, applied.SendBufferSize)
	req.Equal("sqlite", applied.Confessions.Store)
	req.Equal(applied, currentConfig())
}

func TestSetConfigCopiesOrigins(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	origins := []string{"http://a.example"}
	SetConfig(&Config{AllowedOrigins: origins})

	origins[0] = "http://b.example"

	require.Equal(t, []string{"http://a.example"}, CurrentConfig().AllowedOrigins)
}

func TestNewConfigFromEnv(t *testing.T) {
	req := require.New(t)

	// Given
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example,https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "9")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("SEND_BUFFER_SIZE", "16")
	t.Setenv("REQUIRE_CLIENT_ID", "true")
	t.Setenv("STRICT_ROOM_MEMBERSHIP", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SHUTDOWN_TIMEOUT", "2500ms")
	t.Setenv("CONFESSION_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/talkrooms")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CONFESSION_RATE_LIMIT", "2")
	t.Setenv("CONFESSION_RATE_WINDOW", "30")

	// When
	cfg, err := NewConfigFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	// Then
	req.NoError(err)
	req.Equal(":9999", cfg.Port)
	req.Equal([]string{"http://a.example", "https://b.example"}, cfg.AllowedOrigins)
	req.EqualValues(1024, cfg.MaxMessageSize)
	req.Equal(9, cfg.RateLimit.Burst)
	req.Equal(Interval(3*time.Second), cfg.RateLimit.RefillInterval)
	req.Equal(16, cfg.SendBufferSize)
	req.True(cfg.RequireClientID)
	req.True(cfg.StrictRooms)
	req.Equal("DEBUG", cfg.LogLevel)
	req.Equal(Interval(2500*time.Millisecond), cfg.ShutdownTimeout)
	req.Equal("postgres", cfg.Confessions.Store)
	req.Equal("postgres://localhost/talkrooms", cfg.Confessions.DatabaseURL)
	req.Equal("redis://localhost:6379/0", cfg.Confessions.RedisURL)
	req.Equal(2, cfg.Confessions.RateLimit)
	req.Equal(Interval(30*time.Second), cfg.Confessions.RateWindow)
}

func TestNewConfigFromEnvDefaults(t *testing.T) {
	req := require.New(t)

	cfg, err := NewConfigFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	req.NoError(err)
	req.Equal(":8080", cfg.Port)
	req.Equal(5, cfg.RateLimit.Burst)
	req.Equal(Interval(time.Second), cfg.RateLimit.RefillInterval)
	req.Equal(Interval(time.Minute), cfg.Confessions.RateWindow)
	req.Equal("memory", cfg.Confessions.Store)
}

func TestNewConfigFromEnvFile(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("SQLITE_PATH=/tmp/from-file.db\nCONFESSION_STORE=sqlite\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SQLITE_PATH")
		_ = os.Unsetenv("CONFESSION_STORE")
	})

	cfg, err := NewConfigFromEnv(path)

	req.NoError(err)
	req.Equal("sqlite", cfg.Confessions.Store)
	req.Equal("/tmp/from-file.db", cfg.Confessions.SQLitePath)
}

func TestNewConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")

	_, err := NewConfigFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	require.Error(t, err)
}

func TestIntervalDecode(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"1", time.Second, false},
		{" 15 ", 15 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"2m", 2 * time.Minute, false},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var i Interval
			err := i.Decode(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, time.Duration(i))
		})
	}
}
