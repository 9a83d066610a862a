package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, "development", cfg.Server.Environment)
	require.False(t, cfg.Server.Production())
	require.Empty(t, cfg.Redis.URL)

	require.Equal(t, int64(480), cfg.Auth.ChainID)
	require.Equal(t, 10*time.Minute, cfg.Auth.NonceTTL)
	require.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	require.Equal(t, 10, cfg.Auth.MaxVerifyAttempts)
	require.Equal(t, 15*time.Minute, cfg.Auth.VerifyWindow)
	require.Equal(t, 3, cfg.Auth.MaxAuthRetries)
	require.Equal(t, time.Second, cfg.Auth.RetryBaseDelay)
	require.False(t, cfg.Auth.SingleSessionPerAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":8080")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AUTH_CHAIN_ID", "1")
	t.Setenv("AUTH_NONCE_TTL", "2m")
	t.Setenv("AUTH_SINGLE_SESSION_PER_ADDRESS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.True(t, cfg.Server.Production())
	require.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	require.Equal(t, int64(1), cfg.Auth.ChainID)
	require.Equal(t, 2*time.Minute, cfg.Auth.NonceTTL)
	require.True(t, cfg.Auth.SingleSessionPerAddr)
}
