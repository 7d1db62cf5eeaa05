package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "memory", c.Storage.Backend)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 5*time.Minute, c.Review.Timeout)
	assert.True(t, c.Review.RetryFromRejected)
	assert.Equal(t, 24*time.Hour, c.Credits.BonusTTL)
	assert.Equal(t, int64(1), c.Credits.BonusPerAd)
	assert.Equal(t, "0 */1 * * * *", c.Review.SweepSchedule)
}

func TestParseCORSOrigins(t *testing.T) {
	c, err := Parse([]byte("server:\n  cors_origins: [https://app.example.com]\n"))
	require.NoError(t, err)
	assert.True(t, c.Server.CORS)
	assert.Equal(t, []string{"https://app.example.com"}, c.Server.CORSOrigins)
}

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load("../../config/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, "config/instruments.yaml", c.Instruments.SnapshotPath)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":        "storage:\n  backend: sqlite\n",
		"postgres url":   "storage:\n  backend: postgres\n",
		"redis queue":    "queue:\n  backend: redis\n",
		"kafka brokers":  "kafka:\n  enabled: true\n",
		"review timeout": "review:\n  timeout: 0s\n",
		"callback":       "engine:\n  callback_url: http://x/cb\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	env := map[string]string{
		"DATABASE_URL":  "postgres://u:p@db/reviews",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"REDIS_HOST":    "cache",
		"HTTP_PORT":     "9090",
		"JWT_SECRET":    "s",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "postgres", c.Storage.Backend)
	assert.Equal(t, "postgres://u:p@db/reviews", c.Storage.Postgres.URL)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "s", c.Auth.JWTSecret)
	assert.NoError(t, c.Validate())
}
