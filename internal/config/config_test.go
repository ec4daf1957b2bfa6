package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreSQLite, cfg.EventStore)
	assert.Equal(t, CarsFromEvents, cfg.CarBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10, cfg.SnapshotThreshold)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.SeedSampleData)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("EVENT_STORE", " Postgres ")
	t.Setenv("CAR_BACKEND", "postgres")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("SEED_SAMPLE_DATA", "true")
	t.Setenv("SNAPSHOT_THRESHOLD", "0")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.EventStore)
	assert.Equal(t, CarsFromPostgres, cfg.CarBackend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.True(t, cfg.SeedSampleData)
	assert.Zero(t, cfg.SnapshotThreshold)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown store", "EVENT_STORE", "mongo"},
		{"unknown car backend", "CAR_BACKEND", "redis"},
		{"negative threshold", "SNAPSHOT_THRESHOLD", "-1"},
		{"bad duration", "ACCESS_TOKEN_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRequireJWTSecret(t *testing.T) {
	cfg := &Config{}
	assert.ErrorContains(t, cfg.RequireJWTSecret(), "required")

	cfg.JWTSecret = "too-short"
	assert.ErrorContains(t, cfg.RequireJWTSecret(), "at least 32")

	cfg.JWTSecret = strings.Repeat("k", 32)
	assert.NoError(t, cfg.RequireJWTSecret())
}
