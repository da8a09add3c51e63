package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Ingests())
	assert.True(t, cfg.Serves())
	assert.Contains(t, cfg.Relay.Kinds, 30402)
	assert.Contains(t, cfg.Relay.Kinds, 5322)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradedvm.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "ingest"

[relay]
urls = ["wss://relay.example"]

[pipeline]
flush_interval = "5s"
workers = 2

[s3]
key_prefix = "staging/"

[codec]
geohash_precision = 6
include_inventory = true
`), 0o600))

	t.Setenv("TRADEDVM_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("TRADEDVM_RELAY_KINDS", "30402, 5322")
	t.Setenv("TRADEDVM_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("TRADEDVM_REDIS_KEY_PREFIX", "staging")
	t.Setenv("TRADEDVM_PIPELINE_EVENT_RETENTION_DAYS", "14")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ingest", cfg.Mode)
	assert.False(t, cfg.Serves())
	assert.Equal(t, []string{"wss://relay.example"}, cfg.Relay.URLs)
	assert.Equal(t, []int{30402, 5322}, cfg.Relay.Kinds)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FlushInterval.Duration)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 500, cfg.Pipeline.BatchSize, "unset keys keep defaults")
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "staging", cfg.Redis.KeyPrefix)
	assert.Equal(t, "staging/", cfg.S3.KeyPrefix)
	assert.Equal(t, 16, cfg.S3.MultipartThresholdMB)
	assert.Equal(t, 14, cfg.Pipeline.EventRetentionDays)

	opts := cfg.Codec.TagOptions()
	assert.Equal(t, 6, opts.GeohashPrecision)
	assert.True(t, opts.IncludeInventory)
	assert.False(t, opts.IncludeDelivery)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Relay.URLs = []string{"https://relay.example"}
	cfg.Postgres.PoolMinConns = 50
	cfg.Codec.GeohashPrecision = 13
	cfg.Pipeline.Workers = 0
	cfg.Pipeline.EventRetentionDays = -1

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"relay: url",
		"pool_min_conns must not exceed",
		"codec: geohash_precision",
		"pipeline: workers",
		"pipeline: event_retention_days",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateServerModeSkipsRelay(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	cfg.Relay.URLs = nil
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Server.APIKey = "key"
	cfg.S3.SecretKey = "s3"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Equal(t, redacted, out.S3.SecretKey)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")
	assert.Equal(t, "secret", cfg.Postgres.Password)

	out.Relay.URLs[0] = "wss://changed"
	assert.NotEqual(t, "wss://changed", cfg.Relay.URLs[0])
}
