package media

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/metrics"
	"dronegcs/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(seq uint64) codec.Frame {
	img := image.NewRGBA(image.Rect(0, 0, codec.FrameWidth, codec.FrameHeight))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return codec.Frame{Image: img, Seq: seq, Timestamp: time.Now()}
}

type fakeWriter struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (w *fakeWriter) AddFrame([]byte) error {
	w.mu.Lock()
	w.frames++
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

type writerFactory struct {
	mu      sync.Mutex
	writers []*fakeWriter
}

func (f *writerFactory) New(string, int32, int32, int32) (Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWriter{}
	f.writers = append(f.writers, w)
	return w, nil
}

// seqRecorder is a pass-through filter that remembers which frames reached
// the writer.
type seqRecorder struct {
	mu   sync.Mutex
	seqs []uint64
}

func (s *seqRecorder) filter(f codec.Frame) codec.Frame {
	s.mu.Lock()
	s.seqs = append(s.seqs, f.Seq)
	s.mu.Unlock()
	return f
}

func (s *seqRecorder) get() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seqs...)
}

func newTestRecorder(queue *RecordQueue, factory WriterFactory, filter codec.FrameFilter, hooks *Hooks) *Recorder {
	cfg := RecorderConfig{Interval: time.Millisecond, NewWriter: factory}
	return NewRecorder(queue, cfg, func() codec.FrameFilter { return filter }, hooks, logger.NewNopLogger(), metrics.NewUnregistered())
}

func TestRecordQueueDropsNewestWhenFull(t *testing.T) {
	q := NewRecordQueue(DefaultQueueSize)

	assert.Equal(t, OfferInactive, q.Offer(testFrame(0)))

	q.Open()
	for i := 1; i <= 10; i++ {
		require.Equal(t, OfferAccepted, q.Offer(testFrame(uint64(i))))
	}
	assert.Equal(t, OfferFull, q.Offer(testFrame(11)))
	assert.Equal(t, 10, q.Len())

	f, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq)

	drained := q.Drain()
	require.Len(t, drained, 9)
	assert.Equal(t, uint64(10), drained[8].Seq)
}

func TestRecordQueuePaused(t *testing.T) {
	q := NewRecordQueue(2)
	q.Open()
	require.Equal(t, OfferAccepted, q.Offer(testFrame(1)))

	require.True(t, q.SwapPaused(true))
	assert.False(t, q.SwapPaused(true))
	assert.Equal(t, OfferInactive, q.Offer(testFrame(2)))
	_, ok := q.Poll()
	assert.False(t, ok)

	require.True(t, q.SwapPaused(false))
	f, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq)

	q.Offer(testFrame(3))
	assert.Equal(t, 1, q.Close())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, OfferInactive, q.Offer(testFrame(4)))
}

func TestSwapPausedNeedsOpenQueue(t *testing.T) {
	q := NewRecordQueue(2)
	assert.False(t, q.SwapPaused(true))
	assert.False(t, q.Paused())

	q.Open()
	q.Seal()
	assert.False(t, q.SwapPaused(true), "a stopping recording cannot be paused")
	assert.False(t, q.Paused())
}

func TestStartRecordingTwiceOpensOneWriter(t *testing.T) {
	factory := &writerFactory{}
	r := newTestRecorder(NewRecordQueue(DefaultQueueSize), factory.New, nil, nil)
	path := filepath.Join(t.TempDir(), "video", "a.avi")

	started, err := r.StartRecording(path)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = r.StartRecording(filepath.Join(t.TempDir(), "b.avi"))
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, path, r.Path())
	assert.Len(t, factory.writers, 1)

	got, err := r.StopRecording()
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.True(t, factory.writers[0].closed)
	assert.Equal(t, StateIdle, r.State())
}

func TestPauseResumeSkipsPausedFrames(t *testing.T) {
	q := NewRecordQueue(DefaultQueueSize)
	seqs := &seqRecorder{}
	factory := &writerFactory{}
	r := newTestRecorder(q, factory.New, seqs.filter, nil)

	_, err := r.StartRecording(filepath.Join(t.TempDir(), "a.avi"))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.Equal(t, OfferAccepted, q.Offer(testFrame(uint64(i))))
	}
	require.Eventually(t, func() bool { return len(seqs.get()) == 3 }, time.Second, time.Millisecond)

	assert.True(t, r.Pause())
	assert.False(t, r.Pause())
	assert.Equal(t, StatePaused, r.State())
	assert.Equal(t, OfferInactive, q.Offer(testFrame(4)))
	assert.Equal(t, OfferInactive, q.Offer(testFrame(5)))

	assert.True(t, r.Resume())
	assert.Equal(t, StateRecording, r.State())
	require.Equal(t, OfferAccepted, q.Offer(testFrame(6)))

	_, err = r.StopRecording()
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 3, 6}, seqs.get())
	assert.Equal(t, 4, factory.writers[0].frames)

	assert.False(t, r.Pause(), "nothing to pause once stopped")
	assert.False(t, r.Resume())
	assert.False(t, q.Paused())
	assert.Equal(t, StateIdle, r.State())
}

func TestStopRecordingLeavesCompleteFile(t *testing.T) {
	q := NewRecordQueue(DefaultQueueSize)
	var (
		mu    sync.Mutex
		calls []string
	)
	hooks := &Hooks{}
	hooks.Add(func(kind MediaKind, path string) {
		mu.Lock()
		calls = append(calls, string(kind)+":"+path)
		mu.Unlock()
	})
	m := metrics.NewUnregistered()
	r := NewRecorder(q, RecorderConfig{Interval: time.Hour}, nil, hooks, logger.NewNopLogger(), m)
	path := filepath.Join(t.TempDir(), "video", "flight.avi")

	_, err := r.StartRecording(path)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		q.Offer(testFrame(uint64(i)))
	}

	got, err := r.StopRecording()
	require.NoError(t, err)
	require.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesWritten))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Recording))

	mu.Lock()
	assert.Equal(t, []string{"video:" + path}, calls)
	mu.Unlock()

	stopped, err := r.StopRecording()
	require.NoError(t, err)
	assert.Empty(t, stopped)
}

func TestPanickingFilterWritesUnfilteredFrame(t *testing.T) {
	q := NewRecordQueue(DefaultQueueSize)
	factory := &writerFactory{}
	r := newTestRecorder(q, factory.New, func(codec.Frame) codec.Frame { panic("boom") }, nil)

	_, err := r.StartRecording(filepath.Join(t.TempDir(), "a.avi"))
	require.NoError(t, err)
	q.Offer(testFrame(1))
	_, err = r.StopRecording()
	require.NoError(t, err)

	assert.Equal(t, 1, factory.writers[0].frames)
}

func TestSavePhoto(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "img")

	_, err := SavePhoto(dir, codec.Frame{}, nil, 0, time.Now())
	assert.ErrorIs(t, err, codec.ErrEmptyFrame)

	now := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)
	path, err := SavePhoto(dir, testFrame(1), Invert, 80, now)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^20240501_130405_[A-Za-z0-9]{2}\.jpg$`), filepath.Base(path))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

func TestNewMediaPathAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		path, err := NewMediaPath(dir, KindVideo, now)
		require.NoError(t, err)
		require.False(t, seen[path])
		seen[path] = true
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}
	assert.Equal(t, "avi", KindVideo.Extension())
	assert.Equal(t, "jpg", KindPhoto.Extension())
}

func TestStockFilters(t *testing.T) {
	f := testFrame(1)
	f.Image.Set(0, 0, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	gray := Grayscale(f).Image.RGBAAt(0, 0)
	assert.Equal(t, gray.R, gray.G)
	assert.Equal(t, gray.G, gray.B)

	inv := Invert(f).Image.RGBAAt(0, 0)
	assert.Equal(t, uint8(55), inv.R)
	assert.Equal(t, uint8(245), inv.G)
	assert.Equal(t, uint8(200), f.Image.RGBAAt(0, 0).R, "input frame is not mutated")

	bw := Threshold(11, 2)(testFrame(2)).Image
	assert.Equal(t, uint8(255), bw.RGBAAt(320, 240).R, "uniform image is above its local mean minus c")

	stamped := Stamp(func(codec.Frame) string { return "12:00:00" })(testFrame(3)).Image
	changed := false
	for i := range stamped.Pix {
		if stamped.Pix[i] != 128 && i%4 != 3 {
			changed = true
			break
		}
	}
	assert.True(t, changed)

	both := Chain(Invert, Invert)(f).Image.RGBAAt(0, 0)
	assert.Equal(t, uint8(200), both.R)

	chained, err := FilterByName("invert+invert")
	require.NoError(t, err)
	assert.Equal(t, uint8(200), chained(f).Image.RGBAAt(0, 0).R)
}

func TestFilterByName(t *testing.T) {
	for _, name := range []string{"", FilterNormal, FilterGrayscale, FilterBW, FilterInvert, FilterStamp} {
		fn, err := FilterByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, fn)
	}
	_, err := FilterByName("sepia")
	assert.Error(t, err)
	_, err = FilterByName("grayscale+sepia")
	assert.Error(t, err)
	_, err = FilterByName("grayscale+")
	assert.Error(t, err)

	fn, err := FilterByName("grayscale+stamp")
	require.NoError(t, err)
	assert.NotNil(t, fn)
}
