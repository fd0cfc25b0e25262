package flightlog

import (
	"path/filepath"
	"testing"
	"time"

	"dronegcs/app/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, interval time.Duration) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "flights.db"), interval)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFlightLifecycle(t *testing.T) {
	s := openStore(t, time.Hour)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.ErrorIs(t, s.RecordMedia("photo", "a.jpg", start), ErrNoFlight)
	written, err := s.SampleTelemetry(codec.Snapshot{Timestamp: start})
	require.NoError(t, err)
	assert.False(t, written)

	id, err := s.StartFlight("192.168.10.1:8889", start)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, _ := codec.ParseTelemetry("bat:80;templ:70;temph:72;", start)
	written, err = s.SampleTelemetry(snap)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.SampleTelemetry(snap)
	require.NoError(t, err)
	assert.False(t, written, "second sample within the interval is skipped")

	require.NoError(t, s.RecordMedia("video", "/tmp/v.avi", start.Add(time.Minute)))
	require.NoError(t, s.EndFlight(start.Add(2*time.Minute)))
	assert.ErrorIs(t, s.EndFlight(start), ErrNoFlight)

	n, err := s.TelemetryCount(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	flights, err := s.Flights()
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, id, flights[0].ID)
	assert.True(t, flights[0].EndedAt.Valid)

	media, err := s.Media(id)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "video", media[0].Kind)
	assert.Equal(t, "/tmp/v.avi", media[0].Path)

	flight, err := s.Flight(id)
	require.NoError(t, err)
	assert.Equal(t, "192.168.10.1:8889", flight.Device)
	assert.True(t, flight.StartedAt.Equal(start))

	_, err = s.Flight("missing")
	assert.ErrorIs(t, err, ErrUnknownFlight)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "flights.db"), time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
