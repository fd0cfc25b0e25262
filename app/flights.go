package app

import (
	"errors"
	"path/filepath"
	"time"

	"dronegcs/app/flightlog"
	"dronegcs/apperror"
	"dronegcs/models"
)

func (s *Session) flightStore() (*flightlog.Store, error) {
	if s.flightLog == nil {
		return nil, apperror.ServiceUnavailable.SetMessage("flight log is not enabled")
	}
	if s.State() == StateTerminated {
		return nil, invalidState("read the flight log", StateTerminated)
	}
	return s.flightLog, nil
}

// Flights lists every logged flight, oldest first.
func (s *Session) Flights() ([]models.FlightSummary, error) {
	store, err := s.flightStore()
	if err != nil {
		return nil, err
	}

	flights, err := store.Flights()
	if err != nil {
		s.logger.LogError(err, "Error reading flights")
		return nil, apperror.ServerError.Wrap(err)
	}

	out := make([]models.FlightSummary, 0, len(flights))
	for _, f := range flights {
		summary := models.FlightSummary{ID: f.ID, Device: f.Device, StartedAt: f.StartedAt}
		end := time.Now()
		if f.EndedAt.Valid {
			ended := f.EndedAt.Time
			summary.EndedAt = &ended
			end = ended
		}
		summary.Duration = end.Sub(f.StartedAt).Round(time.Second).String()

		if summary.TelemetrySamples, err = store.TelemetryCount(f.ID); err != nil {
			s.logger.LogError(err, "Error counting telemetry samples", "flight_id", f.ID)
			return nil, apperror.ServerError.Wrap(err)
		}
		out = append(out, summary)
	}
	return out, nil
}

// FlightMedia lists the photos and recordings captured during one flight.
func (s *Session) FlightMedia(flightID string) ([]models.FlightMedia, error) {
	store, err := s.flightStore()
	if err != nil {
		return nil, err
	}

	if _, err = store.Flight(flightID); err != nil {
		if errors.Is(err, flightlog.ErrUnknownFlight) {
			return nil, apperror.NotFound.SetMessage("no such flight")
		}
		s.logger.LogError(err, "Error reading flight", "flight_id", flightID)
		return nil, apperror.ServerError.Wrap(err)
	}

	records, err := store.Media(flightID)
	if err != nil {
		s.logger.LogError(err, "Error reading flight media", "flight_id", flightID)
		return nil, apperror.ServerError.Wrap(err)
	}

	out := make([]models.FlightMedia, 0, len(records))
	for _, r := range records {
		out = append(out, models.FlightMedia{Kind: r.Kind, Filename: filepath.Base(r.Path), CreatedAt: r.CreatedAt})
	}
	return out, nil
}
