// Package app owns one device session: the control link, the telemetry and
// video loops, and the recording pipeline fed by them.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/command"
	"dronegcs/app/flightlog"
	"dronegcs/app/media"
	"dronegcs/app/metrics"
	"dronegcs/app/telemetry"
	"dronegcs/app/upload"
	"dronegcs/app/video"
	"dronegcs/apperror"
	"dronegcs/config"
	"dronegcs/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateControlMode  State = "control_mode"
	StateStreaming    State = "streaming"
	StateTerminated   State = "terminated"
)

type Option func(*Session)

func WithVideoSource(src video.Source) Option {
	return func(s *Session) { s.source = src }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func WithWriterFactory(f media.WriterFactory) Option {
	return func(s *Session) { s.writerFactory = f }
}

func WithUploader(u *upload.Uploader) Option {
	return func(s *Session) { s.uploader = u }
}

func WithFlightLog(store *flightlog.Store) Option {
	return func(s *Session) { s.flightLog = store }
}

type namedFilter struct {
	name string
	fn   codec.FrameFilter
}

type Session struct {
	id     string
	cfg    config.Config
	logger *logger.Logger

	metrics       *metrics.Metrics
	source        video.Source
	writerFactory media.WriterFactory
	uploader      *upload.Uploader
	flightLog     *flightlog.Store

	queue    *media.RecordQueue
	recorder *media.Recorder
	hooks    *media.Hooks
	filter   atomic.Pointer[namedFilter]

	ctx    context.Context
	cancel context.CancelFunc

	// lifecycle serializes Connect, BeginStreaming and Teardown. mu guards
	// the fields below and is never held across network I/O.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	state     State
	channel   *command.Channel
	receiver  *telemetry.Receiver
	ingest    *video.Ingest

	uploads sync.WaitGroup

	// pending feeds the auto-upload worker. pendingMu guards closing it.
	pendingMu     sync.Mutex
	pending       chan pendingUpload
	pendingClosed bool
}

type pendingUpload struct {
	folder string
	path   string
}

func NewSession(cfg config.Config, logger *logger.Logger, opts ...Option) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
		hooks:  &media.Hooks{},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}
	if s.source == nil {
		s.source = video.NewFFmpegSource(cfg.Drone.FFmpegPath, cfg.Drone.VideoURL)
	}

	if s.flightLog == nil && cfg.FlightLog != "" {
		logger.LogInfo("Opening flight log", "path", cfg.FlightLog)
		store, err := flightlog.Open(cfg.FlightLog, flightlog.DefaultSampleInterval)
		if err != nil {
			cancel()
			logger.LogError(err, "Error opening flight log", "path", cfg.FlightLog)
			return nil, err
		}
		s.flightLog = store
	}

	if s.uploader == nil && cfg.S3Config.Enabled() {
		logger.LogInfo("Initializing uploader")
		uploader, err := upload.NewUploader(cfg.S3Config, logger, s.metrics)
		if err != nil {
			logger.LogError(err, "Error initializing uploader")
		} else {
			s.uploader = uploader
		}
	}

	s.filter.Store(&namedFilter{name: media.FilterNormal, fn: codec.Identity})
	s.queue = media.NewRecordQueue(cfg.Media.RecordQueueSize)
	s.recorder = media.NewRecorder(s.queue, media.RecorderConfig{
		FPS:       cfg.Media.RecordFPS,
		Interval:  cfg.Media.RecordInterval,
		Quality:   cfg.Media.JPEGQuality,
		NewWriter: s.writerFactory,
	}, s.frameFilter, s.hooks, logger, s.metrics)

	s.hooks.Add(s.logMedia)
	if cfg.AutoUpload && s.uploader != nil {
		s.pending = make(chan pendingUpload, autoUploadBacklog)
		s.uploads.Add(1)
		go s.uploadPending()
		s.hooks.Add(s.autoUpload)
	}

	logger.LogInfo("session created", "session_id", s.id, "device", cfg.Drone.Address)
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.LogInfo("session state changed", "session_id", s.id, "state", string(st))
}

func invalidState(op string, st State) error {
	return apperror.InvalidState.SetMessage(fmt.Sprintf("cannot %s while %s", op, st))
}

// Connect opens the control socket and enters command mode. On failure the
// socket is closed again and the session stays disconnected.
func (s *Session) Connect() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateDisconnected {
		return invalidState("connect", st)
	}

	d := s.cfg.Drone
	ch, err := command.Open(d.ControlAddr, d.Address, d.CommandTimeout, s.logger, s.metrics)
	if err != nil {
		s.logger.LogError(err, "Error opening control channel")
		return apperror.ServiceUnavailable.SetMessage("could not open control socket").Wrap(err)
	}

	if err = ch.EnterControlMode(); err != nil {
		s.logger.LogError(err, "Device refused command mode", "session_id", s.id)
		_ = ch.Close()
		return err
	}

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
	s.setState(StateControlMode)

	if s.flightLog != nil {
		if _, err = s.flightLog.StartFlight(d.Address, time.Now()); err != nil {
			s.logger.LogError(err, "Error starting flight log entry")
		}
	}
	return nil
}

// BeginStreaming turns the device's video on and starts the telemetry and
// video loops together. If either loop fails to start, both are stopped and
// the session stays in control mode.
func (s *Session) BeginStreaming() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateControlMode {
		return invalidState("begin streaming", st)
	}

	s.mu.RLock()
	ch := s.channel
	s.mu.RUnlock()

	reply, err := ch.Send(codec.CmdStreamOn)
	if err != nil {
		return apperror.CommandFailed.Wrap(err)
	}
	if reply != codec.ResponseOK {
		s.logger.LogError(fmt.Errorf("device answered %q", reply), "Device refused to start the video stream")
		return apperror.CommandFailed.SetMessage(fmt.Sprintf("device answered %q to %s", reply, codec.CmdStreamOn))
	}

	receiver := telemetry.NewReceiver(s.cfg.Drone.TelemetryAddr, s.logger, s.metrics)
	receiver.OnSnapshot = s.onSnapshot
	ingest := video.NewIngest(s.source, s.queue, s.cfg.Media.RecordInterval, s.logger, s.metrics)

	var g errgroup.Group
	g.Go(receiver.Start)
	g.Go(func() error { return ingest.Start(s.ctx) })

	if err = g.Wait(); err != nil {
		s.logger.LogError(err, "Error starting session loops, stopping both")
		receiver.Stop()
		ingest.Stop()
		s.sendBestEffort(ch, codec.CmdStreamOff)
		var appErr apperror.Apperror
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.ServiceUnavailable.SetMessage("could not start telemetry").Wrap(err)
	}

	s.mu.Lock()
	s.receiver = receiver
	s.ingest = ingest
	s.mu.Unlock()
	s.setState(StateStreaming)
	return nil
}

// Teardown lands the device, stops every loop and closes all sockets. It is
// safe to call from any state and more than once.
func (s *Session) Teardown() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == StateTerminated {
		return nil
	}

	s.mu.RLock()
	ch, receiver, ingest := s.channel, s.receiver, s.ingest
	s.mu.RUnlock()

	if ch != nil {
		s.sendBestEffort(ch, codec.CmdLand)
	}

	if ingest != nil {
		ingest.Stop()
	}
	if _, err := s.recorder.StopRecording(); err != nil {
		s.logger.LogError(err, "Error stopping recording during teardown")
	}
	if receiver != nil {
		receiver.Stop()
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			s.logger.LogWarning(err, "Error closing control channel")
		}
	}
	s.cancel()
	s.closePending()
	s.uploads.Wait()

	if s.flightLog != nil {
		if err := s.flightLog.EndFlight(time.Now()); err != nil && !errors.Is(err, flightlog.ErrNoFlight) {
			s.logger.LogError(err, "Error closing flight log entry")
		}
		if err := s.flightLog.Close(); err != nil {
			s.logger.LogError(err, "Error closing flight log")
		}
	}

	s.setState(StateTerminated)
	return nil
}

func (s *Session) sendBestEffort(ch *command.Channel, cmd string) {
	reply, err := ch.Send(cmd)
	if err == nil && reply != codec.ResponseOK {
		err = fmt.Errorf("device answered %q", reply)
	}
	if err != nil {
		s.logger.LogWarning(err, "Command not acknowledged", "command", cmd)
	}
}

// Send relays cmd to the device and returns its reply verbatim.
func (s *Session) Send(cmd string) (string, error) {
	s.mu.RLock()
	ch, st := s.channel, s.state
	s.mu.RUnlock()

	if ch == nil || st == StateTerminated {
		return command.ErrorResponse, invalidState("send commands", st)
	}
	return ch.Send(cmd)
}

// GetTelemetry returns the latest snapshot; every field is unknown before
// streaming starts.
func (s *Session) GetTelemetry() codec.Snapshot {
	s.mu.RLock()
	receiver := s.receiver
	s.mu.RUnlock()

	if receiver == nil {
		return codec.Snapshot{}
	}
	return receiver.Snapshot()
}

func (s *Session) GetLatestFrame() (codec.Frame, bool) {
	s.mu.RLock()
	ingest := s.ingest
	s.mu.RUnlock()

	if ingest == nil {
		return codec.Frame{}, false
	}
	return ingest.Latest()
}

// SetFrameFilter installs fn for photos and recordings, including one already
// in progress. A nil fn restores the identity filter.
func (s *Session) SetFrameFilter(name string, fn codec.FrameFilter) {
	if fn == nil {
		name, fn = media.FilterNormal, codec.Identity
	}
	s.filter.Store(&namedFilter{name: name, fn: fn})
	s.logger.LogInfo("frame filter changed", "filter", name)
}

// SetFrameFilterByName installs one of the stock filters.
func (s *Session) SetFrameFilterByName(name string) error {
	fn, err := media.FilterByName(name)
	if err != nil {
		return apperror.InvalidRequest.SetMessage(err.Error())
	}
	s.SetFrameFilter(name, fn)
	return nil
}

func (s *Session) frameFilter() codec.FrameFilter {
	return s.filter.Load().fn
}

func (s *Session) FilterName() string {
	return s.filter.Load().name
}

func (s *Session) onSnapshot(snap codec.Snapshot) {
	if s.flightLog == nil {
		return
	}
	if _, err := s.flightLog.SampleTelemetry(snap); err != nil {
		s.logger.LogError(err, "Error writing telemetry sample")
	}
}
