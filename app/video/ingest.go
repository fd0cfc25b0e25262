// Package video ingests the device's video stream, keeps the most recent
// decoded frame and feeds the recording queue.
package video

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/media"
	"dronegcs/app/metrics"
	"dronegcs/apperror"
	"dronegcs/logger"

	"golang.org/x/time/rate"
)

// FrameQueue receives frames while a recording is active.
type FrameQueue interface {
	Offer(codec.Frame) media.OfferResult
}

type Ingest struct {
	source  Source
	queue   FrameQueue
	yield   time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics
	dropLog rate.Sometimes

	mu     sync.RWMutex
	latest *codec.Frame

	cancel context.CancelFunc
	stream io.ReadCloser
	done   chan struct{}
	seq    uint64
}

// NewIngest wires a source to the record queue. yield is how long ingestion
// backs off after the queue refused a frame for being full.
func NewIngest(source Source, queue FrameQueue, yield time.Duration, logger *logger.Logger, m *metrics.Metrics) *Ingest {
	return &Ingest{
		source:  source,
		queue:   queue,
		yield:   yield,
		logger:  logger,
		metrics: m,
		dropLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Start opens the stream, retrying once, and launches the ingest loop. If the
// stream cannot be opened no loop is started.
func (i *Ingest) Start(ctx context.Context) error {
	if i.done != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)

	stream, err := i.source.Open(ctx)
	if err != nil {
		i.logger.LogWarning(err, "video stream failed to open, retrying once")
		stream, err = i.source.Open(ctx)
	}
	if err != nil {
		cancel()
		i.logger.LogError(err, "video stream unavailable")
		return apperror.StreamUnavailable.Wrap(err)
	}

	i.cancel = cancel
	i.stream = stream
	i.done = make(chan struct{})
	go i.loop(ctx)

	i.logger.LogInfo("video ingest started")
	return nil
}

func (i *Ingest) loop(ctx context.Context) {
	defer close(i.done)
	defer i.setLatest(nil)

	mux := NewMux(i.stream)
	for {
		data, err := mux.Next()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				i.logger.LogInfo("video ingest stopped")
			case errors.Is(err, io.EOF):
				i.logger.LogWarning(err, "video stream ended")
			default:
				i.logger.LogError(err, "video stream read failed")
			}
			return
		}

		i.seq++
		frame, err := codec.DecodeFrame(data, i.seq, time.Now())
		if err != nil {
			i.metrics.FrameDecodeErrors.Inc()
			i.logger.LogDebug("frame decode failed", "seq", i.seq, "error", err)
			i.setLatest(nil)
			continue
		}
		i.metrics.FramesDecoded.Inc()
		i.setLatest(&frame)

		if i.queue.Offer(frame) == media.OfferFull {
			// drop-new: the live feed matters more than a complete recording
			i.metrics.RecordQueueDropped.Inc()
			i.dropLog.Do(func() {
				i.logger.LogInfo("record queue full, dropping frames", "seq", frame.Seq)
			})
			select {
			case <-ctx.Done():
			case <-time.After(i.yield):
			}
		}
	}
}

func (i *Ingest) setLatest(f *codec.Frame) {
	i.mu.Lock()
	i.latest = f
	i.mu.Unlock()
}

// Latest returns the most recent decoded frame, if any.
func (i *Ingest) Latest() (codec.Frame, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.latest == nil {
		return codec.Frame{}, false
	}
	return *i.latest, true
}

// Running reports whether the ingest loop is still alive.
func (i *Ingest) Running() bool {
	if i.done == nil {
		return false
	}
	select {
	case <-i.done:
		return false
	default:
		return true
	}
}

// Stop cancels the stream and waits for the loop to exit.
func (i *Ingest) Stop() {
	if i.done == nil {
		return
	}
	i.cancel()
	_ = i.stream.Close()
	<-i.done
}
