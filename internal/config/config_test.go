package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_ADDRESS", "STORE_BACKEND", "ADMIN_EMAILS", "CACHE_TTL", "CACHE_SIZE", "SCORING_SCHEDULE"} {
		// Setenv restores the original value on cleanup
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, BackendFirestore, cfg.StoreBackend)
	assert.Equal(t, "*/30 * * * *", cfg.ScoringSchedule)
	assert.Empty(t, cfg.AdminEmails)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 1024, cfg.CacheSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("ADMIN_EMAILS", " a1@example.com, ,a2@example.com ")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CACHE_SIZE", "12")
	t.Setenv("JWT_TTL", "not-a-duration")
	t.Setenv("SCORING_SCHEDULE", "@hourly")

	cfg := Load()

	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, []string{"a1@example.com", "a2@example.com"}, cfg.AdminEmails)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 12, cfg.CacheSize)
	assert.Equal(t, 12*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "@hourly", cfg.ScoringSchedule)
}

func TestSetLoggerSetsDevelopmentLogger(t *testing.T) {
	l, err := setLogger("development")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestSetLoggerSetsProductionLogger(t *testing.T) {
	l, err := setLogger("production")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLoggerReplacesGlobals(t *testing.T) {
	l, err := NewLogger("test")
	require.NoError(t, err)
	assert.NotNil(t, l)
}
