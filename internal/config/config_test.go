package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("IMOBIX_STORAGE_DRIVER", "memory")
	t.Setenv("IMOBIX_JWT_SECRET", "s3cret")
	t.Setenv("IMOBIX_GRPC_PORT", "6000")
	t.Setenv("IMOBIX_REDIS_OWNER_TTL", "30s")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "6000", cfg.GRPC.Port)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Redis.OwnerTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Duration)
	assert.Equal(t, "imobix_chat", cfg.Mongo.Database)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
app:
  env: production
storage:
  driver: mongo
mongo:
  uri: mongodb://localhost:27017
jwt:
  keys: k1:one,k2:two
  active_kid: k2
ratelimit:
  rpm: 5
properties:
  owners: prop-1:owner-101
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application.yaml"), []byte(yaml), 0o600))
	t.Setenv("IMOBIX_RATELIMIT_RPM", "7")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "k2", cfg.JWT.ActiveKid)
	assert.Equal(t, 7, cfg.RateLimit.RPM, "env wins over file")
	assert.False(t, cfg.IsDevelopment())

	owners, err := cfg.PropertyOwners()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"prop-1": "owner-101"}, owners)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("mongo without uri", func(t *testing.T) {
		t.Setenv("IMOBIX_JWT_SECRET", "s")
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "mongo.uri")
	})

	t.Run("no jwt key", func(t *testing.T) {
		t.Setenv("IMOBIX_STORAGE_DRIVER", "memory")
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "jwt")
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("IMOBIX_STORAGE_DRIVER", "sqlite")
		t.Setenv("IMOBIX_JWT_SECRET", "s")
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "sqlite")
	})

	t.Run("tls required without certs", func(t *testing.T) {
		t.Setenv("IMOBIX_STORAGE_DRIVER", "memory")
		t.Setenv("IMOBIX_JWT_SECRET", "s")
		t.Setenv("IMOBIX_GRPC_REQUIRE_TLS", "true")
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "require_tls")
	})
}

func TestPropertyOwners_Invalid(t *testing.T) {
	var cfg Config
	cfg.Properties.Owners = "prop-1:owner-1, broken"
	_, err := cfg.PropertyOwners()
	assert.Error(t, err)

	cfg.Properties.Owners = ""
	owners, err := cfg.PropertyOwners()
	require.NoError(t, err)
	assert.Empty(t, owners)
}
