package codec

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

const (
	FrameWidth  = 640
	FrameHeight = 480
)

// Frame is a decoded video frame at the canonical size. Image must not be
// modified once the frame has been published.
type Frame struct {
	Image     *image.RGBA
	Seq       uint64
	Timestamp time.Time
}

// FrameFilter post-processes a frame before it is written to disk. It must
// return a new image rather than mutate its input.
type FrameFilter func(Frame) Frame

func Identity(f Frame) Frame { return f }

var ErrEmptyFrame = errors.New("empty frame")

// DecodeFrame decodes a JPEG image and normalizes it to FrameWidth x FrameHeight.
func DecodeFrame(data []byte, seq uint64, at time.Time) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Image: Normalize(img), Seq: seq, Timestamp: at}, nil
}

// Normalize converts img to RGBA at the canonical size, scaling when needed.
func Normalize(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	b := img.Bounds()
	if b.Dx() == FrameWidth && b.Dy() == FrameHeight {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func EncodeJPEG(f Frame, quality int) ([]byte, error) {
	if f.Image == nil {
		return nil, ErrEmptyFrame
	}
	var buf bytes.Buffer
	buf.Grow(64 * 1024)
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
