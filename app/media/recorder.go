package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/metrics"
	"dronegcs/apperror"
	"dronegcs/logger"

	"github.com/google/uuid"
	"github.com/icza/mjpeg"
)

const (
	DefaultFPS      = 20
	DefaultInterval = 50 * time.Millisecond
	DefaultQuality  = 90
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// Writer is a video container that accepts JPEG-encoded frames.
type Writer interface {
	AddFrame(jpegData []byte) error
	Close() error
}

type WriterFactory func(path string, width, height, fps int32) (Writer, error)

// NewAVIWriter writes an MJPEG AVI file.
func NewAVIWriter(path string, width, height, fps int32) (Writer, error) {
	aw, err := mjpeg.New(path, width, height, fps)
	if err != nil {
		return nil, err
	}
	return aw, nil
}

type RecorderConfig struct {
	FPS       int
	Interval  time.Duration
	Quality   int
	NewWriter WriterFactory
}

type Recorder struct {
	queue   *RecordQueue
	cfg     RecorderConfig
	filter  func() codec.FrameFilter
	hooks   *Hooks
	logger  *logger.Logger
	metrics *metrics.Metrics

	// mu guards the session lifecycle, never the queue contents.
	mu      sync.Mutex
	session *recordingSession
}

type recordingSession struct {
	id      string
	path    string
	writer  Writer
	started time.Time
	frames  int
	stop    chan struct{}
	done    chan struct{}
}

// NewRecorder consumes queue. filter is consulted per frame so a filter
// change applies mid-recording; nil means identity.
func NewRecorder(queue *RecordQueue, cfg RecorderConfig, filter func() codec.FrameFilter, hooks *Hooks, logger *logger.Logger, m *metrics.Metrics) *Recorder {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	if cfg.NewWriter == nil {
		cfg.NewWriter = NewAVIWriter
	}
	return &Recorder{
		queue:   queue,
		cfg:     cfg,
		filter:  filter,
		hooks:   hooks,
		logger:  logger,
		metrics: m,
	}
}

// StartRecording opens a writer at path and starts the consumer loop. While a
// recording is active it does nothing and reports false.
func (r *Recorder) StartRecording(path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		r.logger.LogInfo("recording already active", "path", r.session.path)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.logger.LogError(err, "Failed to create videos folder", "path", path)
		return false, apperror.ServerError.SetMessage("could not create videos folder").Wrap(err)
	}

	writer, err := r.cfg.NewWriter(path, codec.FrameWidth, codec.FrameHeight, int32(r.cfg.FPS))
	if err != nil {
		r.logger.LogError(err, "Error creating video file", "path", path)
		return false, apperror.ServerError.SetMessage("could not create video file").Wrap(err)
	}

	s := &recordingSession{
		id:      uuid.NewString(),
		path:    path,
		writer:  writer,
		started: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.session = s
	r.queue.Open()
	go r.consume(s)

	r.metrics.Recording.Set(1)
	r.logger.LogInfo("recording started", "recording_id", s.id, "path", path, "fps", r.cfg.FPS)
	return true, nil
}

func (r *Recorder) consume(s *recordingSession) {
	defer close(s.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if f, ok := r.queue.Poll(); ok {
			r.write(s, f)
		}
		r.metrics.RecordQueueDepth.Set(float64(r.queue.Len()))
	}
}

func (r *Recorder) write(s *recordingSession, f codec.Frame) {
	data, err := codec.EncodeJPEG(r.applyFilter(f), r.cfg.Quality)
	if err != nil {
		r.logger.LogError(err, "Error encoding frame", "recording_id", s.id, "seq", f.Seq)
		return
	}
	if err = s.writer.AddFrame(data); err != nil {
		r.logger.LogError(err, "Error adding frame to video file", "recording_id", s.id, "path", s.path)
		return
	}
	s.frames++
	r.metrics.FramesWritten.Inc()
}

func (r *Recorder) applyFilter(f codec.Frame) (out codec.Frame) {
	if r.filter == nil {
		return f
	}
	fn := r.filter()
	if fn == nil {
		return f
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.LogError(fmt.Errorf("%v", p), "frame filter panicked, writing unfiltered frame", "seq", f.Seq)
			out = f
		}
	}()
	out = fn(f)
	if out.Image == nil {
		return f
	}
	return out
}

// StopRecording ends the session and returns once the file is fully written
// and closed. It returns the recording's path, or "" when idle.
func (r *Recorder) StopRecording() (string, error) {
	r.mu.Lock()
	s := r.session
	if s == nil {
		r.mu.Unlock()
		return "", nil
	}

	close(s.stop)
	<-s.done

	r.queue.Seal()
	for _, f := range r.queue.Drain() {
		r.write(s, f)
	}
	r.queue.Close()

	err := s.writer.Close()
	r.session = nil
	r.mu.Unlock()

	r.metrics.Recording.Set(0)
	r.metrics.RecordQueueDepth.Set(0)

	if err != nil {
		r.logger.LogError(err, "Error closing video file", "recording_id", s.id, "path", s.path)
		return s.path, apperror.ServerError.SetMessage("could not finalize video file").Wrap(err)
	}

	r.logger.LogInfo("recording stopped", "recording_id", s.id, "path", s.path,
		"frames", s.frames, "duration", time.Since(s.started).Round(time.Millisecond))
	r.hooks.Run(KindVideo, s.path)
	return s.path, nil
}

// Pause stops frames from being queued or written. It keeps the file open.
func (r *Recorder) Pause() bool {
	if !r.queue.SwapPaused(true) {
		return false
	}
	r.logger.LogInfo("recording paused")
	return true
}

func (r *Recorder) Resume() bool {
	if !r.queue.SwapPaused(false) {
		return false
	}
	r.logger.LogInfo("recording resumed")
	return true
}

func (r *Recorder) State() State {
	r.mu.Lock()
	active := r.session != nil
	r.mu.Unlock()

	switch {
	case !active:
		return StateIdle
	case r.queue.Paused():
		return StatePaused
	default:
		return StateRecording
	}
}

// Path is the file being recorded, or "".
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.path
}
