package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Positive(t, cfg.Server.Port)
	assert.Positive(t, cfg.WebSocket.SendChannelSize)
	assert.Positive(t, cfg.Server.HandshakeTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_DefaultThresholds(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	hr, ok := cfg.Thresholds["heart_rate"]
	require.True(t, ok)
	require.NotNil(t, hr.Min)
	require.NotNil(t, hr.Max)
	assert.Equal(t, 40.0, *hr.Min)
	assert.Equal(t, 120.0, *hr.Max)
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.internal", Port: 5432, User: "carelink",
		Password: "s3cret", Database: "carelink", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=carelink password=s3cret dbname=carelink sslmode=require",
		db.DSN())
}
