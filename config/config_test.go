package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "192.168.10.1:8889", cfg.Drone.Address)
	assert.Equal(t, ":9000", cfg.Drone.ControlAddr)
	assert.Equal(t, ":8890", cfg.Drone.TelemetryAddr)
	assert.Equal(t, "udp://@0.0.0.0:11111", cfg.Drone.VideoURL)
	assert.Equal(t, 7*time.Second, cfg.Drone.CommandTimeout)
	assert.Equal(t, 20, cfg.Media.RecordFPS)
	assert.Equal(t, 10, cfg.Media.RecordQueueSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Media.RecordInterval)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.S3Config.Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DRONE_ADDR", "127.0.0.1:18889")
	t.Setenv("COMMAND_TIMEOUT", "0")
	t.Setenv("RECORD_QUEUE_SIZE", "4")
	t.Setenv("AUTO_UPLOAD", "true")
	t.Setenv("S3_BUCKET_NAME", "flights")

	cfg := FromEnv()

	assert.Equal(t, "127.0.0.1:18889", cfg.Drone.Address)
	assert.Zero(t, cfg.Drone.CommandTimeout)
	assert.Equal(t, 4, cfg.Media.RecordQueueSize)
	assert.True(t, cfg.AutoUpload)
	assert.True(t, cfg.S3Config.Enabled())
}

func TestFromEnvFallsBackOnGarbage(t *testing.T) {
	t.Setenv("RECORD_FPS", "fast")
	t.Setenv("RECORD_INTERVAL", "-3s")
	t.Setenv("AUTO_UPLOAD", "maybe")

	cfg := FromEnv()

	assert.Equal(t, 20, cfg.Media.RecordFPS)
	assert.Equal(t, 50*time.Millisecond, cfg.Media.RecordInterval)
	assert.False(t, cfg.AutoUpload)
}
