// Package flightlog keeps a sqlite record of each flight: sampled telemetry
// and the photos and recordings produced during it.
package flightlog

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"dronegcs/app/codec"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/time/rate"
)

//go:embed schema.sql
var schemaSQL string

// DefaultSampleInterval bounds how often telemetry rows are written; the
// device broadcasts far more often than is useful to keep.
const DefaultSampleInterval = time.Second

var (
	ErrNoFlight      = errors.New("no flight in progress")
	ErrUnknownFlight = errors.New("unknown flight")
)

type Flight struct {
	ID        string
	Device    string
	StartedAt time.Time
	EndedAt   sql.NullTime
}

type MediaRecord struct {
	FlightID  string
	Kind      string
	Path      string
	CreatedAt time.Time
}

type Store struct {
	db      *sql.DB
	sampler rate.Sometimes

	mu     sync.Mutex
	flight string

	closeOnce sync.Once
	closeErr  error
}

// Open creates the database file when missing and applies the schema.
func Open(path string, sampleInterval time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
	if err != nil {
		return nil, fmt.Errorf("opening flight log: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{
		db:      db,
		sampler: rate.Sometimes{Interval: sampleInterval},
	}, nil
}

const insertFlightSQL = `
INSERT INTO flights (id, device, started_at)
VALUES (?, ?, ?)`

// StartFlight opens a new flight row and makes it current.
func (s *Store) StartFlight(device string, at time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.Exec(insertFlightSQL, id, device, at.UTC()); err != nil {
		return "", fmt.Errorf("inserting flight: %w", err)
	}

	s.mu.Lock()
	s.flight = id
	s.mu.Unlock()
	return id, nil
}

const endFlightSQL = `
UPDATE flights
SET ended_at = ?
WHERE id = ?`

func (s *Store) EndFlight(at time.Time) error {
	s.mu.Lock()
	id := s.flight
	s.flight = ""
	s.mu.Unlock()

	if id == "" {
		return ErrNoFlight
	}
	if _, err := s.db.Exec(endFlightSQL, at.UTC(), id); err != nil {
		return fmt.Errorf("ending flight: %w", err)
	}
	return nil
}

func (s *Store) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flight
}

const insertTelemetrySQL = `
INSERT INTO telemetry (flight_id,
                       timestamp,
                       battery,
                       temperature,
                       speed,
                       altitude,
                       barometric_height,
                       tof,
                       pitch,
                       roll,
                       yaw,
                       flight_time_seconds)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SampleTelemetry stores snap if the sampling interval has elapsed. It
// reports whether a row was written.
func (s *Store) SampleTelemetry(snap codec.Snapshot) (written bool, err error) {
	id := s.current()
	if id == "" {
		return false, nil
	}
	s.sampler.Do(func() {
		err = s.insertTelemetry(id, snap)
		written = err == nil
	})
	return
}

func (s *Store) insertTelemetry(id string, snap codec.Snapshot) error {
	_, err := s.db.Exec(insertTelemetrySQL,
		id,
		snap.Timestamp.UTC(),
		nullInt(snap.Battery),
		nullFloat(snap.Temperature),
		nullFloat(snap.Speed),
		nullFloat(snap.Altitude),
		nullFloat(snap.BarometricHeight),
		nullFloat(snap.TimeOfFlight),
		nullFloat(snap.Pitch),
		nullFloat(snap.Roll),
		nullFloat(snap.Yaw),
		nullInt(snap.FlightTimeSeconds),
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry: %w", err)
	}
	return nil
}

const insertMediaSQL = `
INSERT INTO media (flight_id, kind, path, created_at)
VALUES (?, ?, ?, ?)`

func (s *Store) RecordMedia(kind, path string, at time.Time) error {
	id := s.current()
	if id == "" {
		return ErrNoFlight
	}
	if _, err := s.db.Exec(insertMediaSQL, id, kind, path, at.UTC()); err != nil {
		return fmt.Errorf("inserting media: %w", err)
	}
	return nil
}

const selectFlightsSQL = `
SELECT id,
       device,
       started_at,
       ended_at
FROM flights
ORDER BY started_at`

const selectFlightSQL = `
SELECT id,
       device,
       started_at,
       ended_at
FROM flights
WHERE id = ?`

// Flight looks up one flight by id.
func (s *Store) Flight(id string) (Flight, error) {
	var f Flight
	err := s.db.QueryRow(selectFlightSQL, id).Scan(&f.ID, &f.Device, &f.StartedAt, &f.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Flight{}, fmt.Errorf("%w: %s", ErrUnknownFlight, id)
	}
	if err != nil {
		return Flight{}, fmt.Errorf("querying flight: %w", err)
	}
	return f, nil
}

func (s *Store) Flights() (flights []Flight, err error) {
	rows, err := s.db.Query(selectFlightsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying flights: %w", err)
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cErr)
		}
	}()

	for rows.Next() {
		var f Flight
		if err = rows.Scan(&f.ID, &f.Device, &f.StartedAt, &f.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

const selectMediaSQL = `
SELECT flight_id,
       kind,
       path,
       created_at
FROM media
WHERE flight_id = ?
ORDER BY id`

func (s *Store) Media(flightID string) (media []MediaRecord, err error) {
	rows, err := s.db.Query(selectMediaSQL, flightID)
	if err != nil {
		return nil, fmt.Errorf("querying media: %w", err)
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cErr)
		}
	}()

	for rows.Next() {
		var m MediaRecord
		if err = rows.Scan(&m.FlightID, &m.Kind, &m.Path, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning media: %w", err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

const countTelemetrySQL = `SELECT COUNT(*) FROM telemetry WHERE flight_id = ?`

func (s *Store) TelemetryCount(flightID string) (n int, err error) {
	err = s.db.QueryRow(countTelemetrySQL, flightID).Scan(&n)
	return
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
