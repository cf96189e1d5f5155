package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) Getenv {
	return func(key string) string { return m[key] }
}

func required() map[string]string {
	return map[string]string{
		"BIGCOMMERCE_STORE_HASH":       "abc123",
		"BIGCOMMERCE_STOREFRONT_TOKEN": "tok",
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(required()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.Production)
	assert.Equal(t, "abc123", cfg.StoreHash)
	assert.Equal(t, "mybigcommerce.com", cfg.GraphQLDomain)
	assert.Equal(t, time.Hour, cfg.Revalidate)
	assert.Equal(t, "customerAccessToken", cfg.CustomerTokenCookie)
	assert.Equal(t, 10*time.Second, cfg.MigrationTimeout)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.RedisURL)
}

func TestFromEnv_Overrides(t *testing.T) {
	env := required()
	env["APP_ENV"] = "production"
	env["REVALIDATE_WEBHOOK_SECRET"] = "shh"
	env["DEFAULT_REVALIDATE_TARGET"] = "120"
	env["CART_MIGRATION_TIMEOUT"] = "5s"
	env["REDIS_URL"] = "redis://localhost:6379/0"
	env["CACHE_FOR_CUSTOMER"] = "true"
	env["LOG_PRETTY"] = "1"

	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)

	assert.True(t, cfg.Production)
	assert.Equal(t, 2*time.Minute, cfg.Revalidate)
	assert.Equal(t, 5*time.Second, cfg.MigrationTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.True(t, cfg.CacheForCustomer)
	assert.True(t, cfg.LogPretty)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{"missing store hash", func(m map[string]string) { delete(m, "BIGCOMMERCE_STORE_HASH") }, "BIGCOMMERCE_STORE_HASH"},
		{"missing token", func(m map[string]string) { delete(m, "BIGCOMMERCE_STOREFRONT_TOKEN") }, "BIGCOMMERCE_STOREFRONT_TOKEN"},
		{"bad revalidate", func(m map[string]string) { m["DEFAULT_REVALIDATE_TARGET"] = "soon" }, "DEFAULT_REVALIDATE_TARGET"},
		{"negative revalidate", func(m map[string]string) { m["DEFAULT_REVALIDATE_TARGET"] = "-5" }, "DEFAULT_REVALIDATE_TARGET"},
		{"bad bool", func(m map[string]string) { m["LOG_PRETTY"] = "maybe" }, "LOG_PRETTY"},
		{"production without secret", func(m map[string]string) { m["APP_ENV"] = "production" }, "REVALIDATE_WEBHOOK_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := required()
			tt.mutate(env)

			_, err := FromEnv(envMap(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegions_BuiltIn(t *testing.T) {
	cfg, err := FromEnv(envMap(required()))
	require.NoError(t, err)

	reg, err := cfg.Regions()
	require.NoError(t, err)

	assert.Equal(t, "row", reg.Default().ID)
	assert.Equal(t, "1705753", cfg.DefaultChannelID)
}

func TestRegions_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
regions:
  - id: us
    channel_id: "1"
    label: United States
    default: true
  - id: ca
    channel_id: "2"
    label: Canada
`), 0o600))

	env := required()
	env["REGIONS_FILE"] = path
	env["BIGCOMMERCE_CHANNEL_ID"] = "1"
	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)

	reg, err := cfg.Regions()
	require.NoError(t, err)

	assert.Len(t, reg.All(), 2)
	assert.Equal(t, "2", reg.ChannelID("ca"))
	assert.Equal(t, "1", cfg.DefaultChannelID)
}
