package video

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"dronegcs/app/codec"
)

// Source opens the compressed video transport and yields a motion-JPEG stream
// of decoded frames.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// DefaultFirstOutputTimeout is how long Open waits for the decoder's first
// output before calling the stream unavailable.
const DefaultFirstOutputTimeout = 10 * time.Second

// FFmpegSource decodes the device's H.264 elementary stream with an ffmpeg
// child process and re-encodes it as motion JPEG on stdout.
type FFmpegSource struct {
	Binary string
	URL    string

	// FirstOutputTimeout bounds the wait for the first decoded bytes.
	FirstOutputTimeout time.Duration
}

func NewFFmpegSource(binary, url string) *FFmpegSource {
	return &FFmpegSource{Binary: binary, URL: url, FirstOutputTimeout: DefaultFirstOutputTimeout}
}

func (s *FFmpegSource) Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-i", s.URL,
		"-an",
		"-f", "mjpeg",
		"-q:v", "3",
		"-s", strconv.Itoa(codec.FrameWidth) + "x" + strconv.Itoa(codec.FrameHeight),
		"-",
	}
}

// Open starts the decoder and returns once it has produced output. A decoder
// that exits or stays silent means the stream could not be opened.
func (s *FFmpegSource) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.Binary, s.Args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.Binary, err)
	}

	stream := &processStream{Reader: bufio.NewReaderSize(stdout, 64*1024), stdout: stdout, cmd: cmd}

	peeked := make(chan error, 1)
	go func() {
		_, err := stream.Peek(2)
		peeked <- err
	}()

	timeout := s.FirstOutputTimeout
	if timeout <= 0 {
		timeout = DefaultFirstOutputTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-peeked:
		if err == nil {
			return stream, nil
		}
		_ = stream.Close()
		return nil, fmt.Errorf("%s exited before producing video from %s: %w", s.Binary, s.URL, err)
	case <-timer.C:
		err = fmt.Errorf("no video from %s within %s", s.URL, timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	// killing the process unblocks the pending Peek
	_ = stream.Close()
	<-peeked
	return nil, err
}

// processStream reads the decoder's stdout, including any bytes buffered
// while waiting for its first output.
type processStream struct {
	*bufio.Reader
	stdout io.Closer
	cmd    *exec.Cmd
	once   sync.Once
}

// Close kills the decoder and reaps it.
func (p *processStream) Close() error {
	p.once.Do(func() {
		_ = p.cmd.Process.Kill()
		_ = p.stdout.Close()
		_ = p.cmd.Wait()
	})
	return nil
}
