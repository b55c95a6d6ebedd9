package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Equal(t, CatalogPostgres, cfg.CatalogProvider)
	assert.Equal(t, "postgres://disputa:disputa_pass@db:5432/disputa?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, 10*time.Minute, cfg.Session.RandomBase)
	assert.Equal(t, 10*time.Minute, cfg.Session.RandomSpread)
	assert.Equal(t, 10*time.Second, cfg.Session.ConfirmWindow)
	assert.Equal(t, "@every 1s", cfg.Scheduler.TickSpec)
	assert.Equal(t, "tmp/raft/"+cfg.NodeID, cfg.Cluster.DataDir)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CONFIG_PATH", "")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: "127.0.0.1:9000"
log_level: debug
jwt_secret: from-file
catalog_provider: fixture
fixture_path: catalog.yaml
session:
  extension_window: 3m
  holidays: ["2026-04-21"]
cluster:
  raft_addr: "127.0.0.1:18000"
`), 0o600))

	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SESSION_HOLIDAYS", "2026-09-07, 2026-10-12")

	cfg, err := Load([]string{"--config", path, "--addr", ":7000"})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ServerAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, CatalogFixture, cfg.CatalogProvider)
	assert.Equal(t, 3*time.Minute, cfg.Session.ExtensionWindow)
	assert.Equal(t, []string{"2026-09-07", "2026-10-12"}, cfg.Session.Holidays)
	assert.Equal(t, "127.0.0.1:18000", cfg.Cluster.RaftAddr)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadRejectsBadProvider(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load([]string{"--catalog", "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")

	_, err = Load([]string{"--catalog", "fixture"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIXTURE_PATH")
}

func TestClusterNeedsSeed(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("NODE_KEY_SEED", "")

	_, err := Load([]string{"--cluster"})
	require.Error(t, err)

	t.Setenv("NODE_KEY_SEED", "0123456789abcdef")
	cfg, err := Load([]string{"--cluster", "--bootstrap", "--node-id", "n2"})
	require.NoError(t, err)
	assert.True(t, cfg.Cluster.Enabled)
	assert.True(t, cfg.Cluster.Bootstrap)
	assert.Equal(t, "tmp/raft/n2", cfg.Cluster.DataDir)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("bogus", 5*time.Second))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Second))
	assert.True(t, parseBool("true", false))
	assert.False(t, parseBool("nope", false))
	assert.Equal(t, 7, parseInt(" 7 ", 1))
	assert.Equal(t, 1, parseInt("x", 1))
}
