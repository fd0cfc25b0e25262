package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/media"
	"dronegcs/app/metrics"
	"dronegcs/apperror"
	"dronegcs/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

type fakeSource struct {
	mu       sync.Mutex
	failures int
	opens    int
	stream   io.ReadCloser
}

func (s *fakeSource) Open(context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("no stream yet")
	}
	return s.stream, nil
}

type fakeQueue struct {
	mu     sync.Mutex
	result media.OfferResult
	seqs   []uint64
}

func (q *fakeQueue) Offer(f codec.Frame) media.OfferResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seqs = append(q.seqs, f.Seq)
	return q.result
}

func (q *fakeQueue) offered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seqs)
}

func TestMuxSplitsFramesAndSkipsJunk(t *testing.T) {
	a := jpegBytes(t, 8, 8)
	b := jpegBytes(t, 16, 16)

	var stream bytes.Buffer
	stream.WriteString("--frame\r\nContent-Type: image/jpeg\r\n\r\n")
	stream.Write(a)
	stream.WriteString("\r\n--frame\r\n")
	stream.Write(b)
	stream.Write([]byte{0xFF, 0xD8, 0x01, 0x02}) // truncated trailing image

	mux := NewMux(&stream)

	got, err := mux.Next()
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = mux.Next()
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = mux.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMuxHandlesMarkersAcrossReads(t *testing.T) {
	a := jpegBytes(t, 8, 8)
	pr, pw := io.Pipe()
	go func() {
		for _, c := range a {
			_, _ = pw.Write([]byte{c})
		}
		_ = pw.Close()
	}()

	got, err := NewMux(pr).Next()
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestIngestRetriesOpenOnce(t *testing.T) {
	src := &fakeSource{failures: 1, stream: io.NopCloser(bytes.NewReader(nil))}
	ing := NewIngest(src, &fakeQueue{}, time.Millisecond, logger.NewNopLogger(), metrics.NewUnregistered())

	require.NoError(t, ing.Start(context.Background()))
	ing.Stop()
	assert.Equal(t, 2, src.opens)
}

func TestIngestStreamUnavailable(t *testing.T) {
	src := &fakeSource{failures: 2}
	ing := NewIngest(src, &fakeQueue{}, time.Millisecond, logger.NewNopLogger(), metrics.NewUnregistered())

	err := ing.Start(context.Background())
	assert.ErrorIs(t, err, apperror.StreamUnavailable)
	assert.Equal(t, 2, src.opens)
	assert.False(t, ing.Running())
	ing.Stop()
}

func TestIngestPublishesLatestFrame(t *testing.T) {
	pr, pw := io.Pipe()
	m := metrics.NewUnregistered()
	queue := &fakeQueue{result: media.OfferInactive}
	ing := NewIngest(&fakeSource{stream: pr}, queue, time.Millisecond, logger.NewNopLogger(), m)
	require.NoError(t, ing.Start(context.Background()))
	defer ing.Stop()

	_, ok := ing.Latest()
	assert.False(t, ok)

	small := jpegBytes(t, 320, 240)
	go func() { _, _ = pw.Write(small) }()
	require.Eventually(t, func() bool { _, ok := ing.Latest(); return ok }, time.Second, time.Millisecond)

	frame, _ := ing.Latest()
	assert.Equal(t, uint64(1), frame.Seq)
	assert.Equal(t, image.Rect(0, 0, codec.FrameWidth, codec.FrameHeight), frame.Image.Bounds())
	require.Eventually(t, func() bool { return queue.offered() == 1 }, time.Second, time.Millisecond)

	go func() { _, _ = pw.Write([]byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9}) }()
	require.Eventually(t, func() bool { _, ok := ing.Latest(); return !ok }, time.Second, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameDecodeErrors))
	assert.True(t, ing.Running())

	ing.Stop()
	assert.False(t, ing.Running())
}

func TestIngestDropsWhenQueueFull(t *testing.T) {
	frame := jpegBytes(t, 64, 48)
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		stream.Write(frame)
	}

	m := metrics.NewUnregistered()
	queue := &fakeQueue{result: media.OfferFull}
	ing := NewIngest(&fakeSource{stream: io.NopCloser(&stream)}, queue, time.Millisecond, logger.NewNopLogger(), m)
	require.NoError(t, ing.Start(context.Background()))

	require.Eventually(t, func() bool { return !ing.Running() }, time.Second, time.Millisecond)
	ing.Stop()

	assert.Equal(t, 3, queue.offered())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordQueueDropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesDecoded))
}

func TestFFmpegSourceArgs(t *testing.T) {
	src := NewFFmpegSource("ffmpeg", "udp://@0.0.0.0:11111")
	args := src.Args()
	assert.Contains(t, args, "udp://@0.0.0.0:11111")
	assert.Contains(t, args, "640x480")
	assert.Equal(t, "-", args[len(args)-1])
}

type countingSource struct {
	Source
	mu    sync.Mutex
	opens int
}

func (c *countingSource) Open(ctx context.Context) (io.ReadCloser, error) {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return c.Source.Open(ctx)
}

func lookBinary(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func TestFFmpegSourceDecoderExitsIsUnavailable(t *testing.T) {
	src := &countingSource{Source: NewFFmpegSource(lookBinary(t, "false"), "udp://@0.0.0.0:11111")}
	ing := NewIngest(src, &fakeQueue{}, time.Millisecond, logger.NewNopLogger(), metrics.NewUnregistered())

	err := ing.Start(context.Background())
	assert.ErrorIs(t, err, apperror.StreamUnavailable)
	assert.Equal(t, 2, src.opens)
	assert.False(t, ing.Running())
}

func TestFFmpegSourceSilentDecoderTimesOut(t *testing.T) {
	lookBinary(t, "sh")
	script := filepath.Join(t.TempDir(), "silent")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0755))

	src := NewFFmpegSource(script, "udp://@0.0.0.0:11111")
	src.FirstOutputTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := src.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no video")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFFmpegSourceReplaysFirstOutput(t *testing.T) {
	src := NewFFmpegSource(lookBinary(t, "echo"), "udp://@0.0.0.0:11111")

	stream, err := src.Open(context.Background())
	require.NoError(t, err)
	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	assert.True(t, strings.HasPrefix(string(out), "-hide_banner"), "got %q", out)
}
