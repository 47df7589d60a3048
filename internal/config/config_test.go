package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
log_level = "debug"
auth_token = "secret"

[database]
history_path = "/data/history.db"
subscriptions_path = "/data/subs.db"

[downloads]
dir = "/media/anime"
max_concurrent = 5
stall_window = "45s"
history_limit = 100

[defaults]
language = "German Sub"
provider = "VOE"

[cache]
popular_ttl = "5m"

[subscriptions]
check_interval = "1h"
auto_download = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "secret", cfg.Server.AuthToken)
	assert.Equal(t, "/data/history.db", cfg.Database.HistoryPath)
	assert.Equal(t, "/media/anime", cfg.Downloads.Dir)
	assert.Equal(t, 5, cfg.Downloads.MaxConcurrent)
	assert.Equal(t, 45*time.Second, cfg.Downloads.StallWindow)
	assert.Equal(t, 100, cfg.Downloads.HistoryLimit)
	assert.Equal(t, "German Sub", cfg.Defaults.Language)
	assert.Equal(t, "VOE", cfg.Defaults.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Cache.PopularTTL)
	assert.Equal(t, time.Hour, cfg.Subscriptions.CheckInterval)
	assert.True(t, cfg.Subscriptions.AutoDownload)

	assert.Empty(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8844", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Empty(t, cfg.Server.AuthToken)
	assert.Equal(t, 3, cfg.Downloads.MaxConcurrent)
	assert.Equal(t, 60*time.Second, cfg.Downloads.StallWindow)
	assert.Equal(t, 50, cfg.Downloads.HistoryLimit)
	assert.Equal(t, "German Dub", cfg.Defaults.Language)
	assert.Equal(t, 15*time.Minute, cfg.Cache.PopularTTL)
	assert.Equal(t, 30*time.Minute, cfg.Subscriptions.CheckInterval)
	assert.False(t, cfg.Subscriptions.AutoDownload)

	assert.Empty(t, cfg.Validate())
}

func TestEnvVarSubstitution(t *testing.T) {
	t.Setenv("FETCHARR_TEST_TOKEN", "from-env")

	path := writeConfig(t, `
[server]
auth_token = "${FETCHARR_TEST_TOKEN}"

[downloads]
dir = "${FETCHARR_TEST_MISSING}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Server.AuthToken)
	// Unresolved variables are left as-is.
	assert.Equal(t, "${FETCHARR_TEST_MISSING}", cfg.Downloads.Dir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	cfg.Server.LogLevel = "loud"
	cfg.Downloads.MaxConcurrent = 0
	cfg.Defaults.Provider = "megaupload"

	errs := cfg.Validate()
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "server.port")
	assert.Contains(t, errs[1], "server.log_level")
	assert.Contains(t, errs[2], "downloads.max_concurrent")
	assert.Contains(t, errs[3], "defaults.provider")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestDiscoverEnvOverride(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("FETCHARR_CONFIG", path)

	found, err := Discover()
	require.NoError(t, err)
	assert.Equal(t, path, found)

	t.Setenv("FETCHARR_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	_, err = Discover()
	assert.Error(t, err)
}
