package config

import (
	"os"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"8080"}, log.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1, cfg.ThreadPoolSize)
	assert.EqualValues(t, 24*60*60*1000, cfg.CacheExpiryMs)
}

func TestLoadRejectsMissingPort(t *testing.T) {
	_, err := Load(nil, log.NewNopLogger())
	require.Error(t, err)
	assert.True(t, Is(err, ErrConfig))
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	_, err := Load([]string{"not-a-port"}, log.NewNopLogger())
	require.Error(t, err)
	assert.True(t, Is(err, ErrConfig))
}

func TestLoadOverlaysEnvVars(t *testing.T) {
	os.Setenv(envThreadPoolSize, "4")
	os.Setenv(envCacheExpiredMs, "500")
	defer os.Unsetenv(envThreadPoolSize)
	defer os.Unsetenv(envCacheExpiredMs)

	cfg, err := Load([]string{"9090"}, log.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ThreadPoolSize)
	assert.EqualValues(t, 500, cfg.CacheExpiryMs)
}

func TestLoadFallsBackOnInvalidEnvVar(t *testing.T) {
	os.Setenv(envThreadPoolSize, "not-a-number")
	defer os.Unsetenv(envThreadPoolSize)

	cfg, err := Load([]string{"9090"}, log.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, defaultThreadPool, cfg.ThreadPoolSize)
}
