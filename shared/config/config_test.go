package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("AUCTION_TEST_STR", "value")
	t.Setenv("AUCTION_TEST_INT", "42")
	t.Setenv("AUCTION_TEST_BAD_INT", "forty")
	t.Setenv("AUCTION_TEST_DUR", "750ms")
	t.Setenv("AUCTION_TEST_BOOL", "true")

	assert.Equal(t, "value", GetEnv("AUCTION_TEST_STR", "x"))
	assert.Equal(t, "x", GetEnv("AUCTION_TEST_MISSING", "x"))
	assert.Equal(t, 42, GetEnvInt("AUCTION_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("AUCTION_TEST_BAD_INT", 1))
	assert.Equal(t, 750*time.Millisecond, GetEnvDuration("AUCTION_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("AUCTION_TEST_MISSING", time.Second))
	assert.True(t, GetEnvBool("AUCTION_TEST_BOOL", false))
}

type fileConfig struct {
	ServerAddr    string   `toml:"server_addr"`
	SweepInterval Duration `toml:"sweep_interval"`
	Redis         struct {
		Addr string `toml:"addr"`
		DB   int    `toml:"db"`
	} `toml:"redis"`
}

func TestLoadFileKeepsUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
sweep_interval = "5s"

[redis]
addr = "redis:6379"
`), 0o600))

	cfg := fileConfig{ServerAddr: ":8080"}
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval.Std())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`no_such_key = 1`), 0o600))

	var cfg fileConfig
	require.Error(t, LoadFile(path, &cfg))
}
