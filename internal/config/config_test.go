package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "token", cfg.WebSocket.TokenCookie)
	assert.Equal(t, time.Second, cfg.WebSocket.DeleteGrace)
	assert.Equal(t, 60, cfg.WebSocket.MessageRateLimit)
	assert.Equal(t, time.Minute, cfg.WebSocket.MessageRateWindow)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.WebSocket.AllowedOrigins)
	assert.False(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Empty(t, cfg.Internal.APIToken)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("WS_ALLOWED_ORIGINS", " https://app.example.com , ,https://admin.example.com")
	t.Setenv("WS_DELETE_GRACE", "250ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("INTERNAL_API_TOKEN", "svc-token")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.WebSocket.DeleteGrace)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "svc-token", cfg.Internal.APIToken)
	require.True(t, cfg.Kafka.Enabled())
	assert.Len(t, cfg.Kafka.Brokers, 2)
}

func TestLoadFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realtime.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=7070\nWS_TOKEN_COOKIE=session\n"), 0o600))

	v := viper.New()
	v.Set("CONFIG_FILE", path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "session", cfg.WebSocket.TokenCookie)
}

func TestLoadMissingConfigFile(t *testing.T) {
	v := viper.New()
	v.Set("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))
	_, err := Load(v)
	assert.Error(t, err)
}
