package video

import (
	"bufio"
	"bytes"
	"io"
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

const maxFrameSize = 4 << 20

// Mux splits a motion-JPEG byte stream into individual JPEG images.
type Mux struct {
	scanner *bufio.Scanner
}

func NewMux(stream io.Reader) *Mux {
	s := bufio.NewScanner(stream)
	s.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	s.Split(splitJPEG)
	return &Mux{scanner: s}
}

// Next returns the next complete image. The slice is only valid until the
// following call. io.EOF marks the end of the stream.
func (m *Mux) Next() ([]byte, error) {
	if m.scanner.Scan() {
		return m.scanner.Bytes(), nil
	}
	if err := m.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// splitJPEG yields SOI..EOI spans and discards any bytes between images,
// such as multipart headers.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, soi)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a trailing 0xFF that may begin the next marker
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+len(soi):], eoi)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// drop the junk before SOI and ask for more
		return start, nil, nil
	}

	stop := start + len(soi) + end + len(eoi)
	return stop, data[start:stop], nil
}
