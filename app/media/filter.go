package media

import (
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"

	"dronegcs/app/codec"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	FilterNormal    = "normal"
	FilterGrayscale = "grayscale"
	FilterBW        = "bw"
	FilterInvert    = "invert"
	FilterStamp     = "stamp"
)

// FilterByName returns one of the stock filters. Names joined with "+", such
// as "grayscale+stamp", are chained left to right.
func FilterByName(name string) (codec.FrameFilter, error) {
	if !strings.Contains(name, "+") {
		return stockFilter(name)
	}
	parts := strings.Split(name, "+")
	filters := make([]codec.FrameFilter, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty filter name in %q", name)
		}
		fn, err := stockFilter(part)
		if err != nil {
			return nil, err
		}
		filters = append(filters, fn)
	}
	return Chain(filters...), nil
}

func stockFilter(name string) (codec.FrameFilter, error) {
	switch name {
	case "", FilterNormal:
		return codec.Identity, nil
	case FilterGrayscale:
		return Grayscale, nil
	case FilterBW:
		return Threshold(11, 2), nil
	case FilterInvert:
		return Invert, nil
	case FilterStamp:
		return Stamp(func(f codec.Frame) string {
			return f.Timestamp.Format("2006-01-02 15:04:05.000")
		}), nil
	}
	return nil, fmt.Errorf("unknown filter %q", name)
}

// Chain applies filters left to right.
func Chain(filters ...codec.FrameFilter) codec.FrameFilter {
	return func(f codec.Frame) codec.Frame {
		for _, fn := range filters {
			f = fn(f)
		}
		return f
	}
}

func withImage(f codec.Frame, img *image.RGBA) codec.Frame {
	f.Image = img
	return f
}

func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

func Grayscale(f codec.Frame) codec.Frame {
	src := f.Image
	dst := image.NewRGBA(src.Rect)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		y := luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = y, y, y, src.Pix[i+3]
	}
	return withImage(f, dst)
}

func Invert(f codec.Frame) codec.Frame {
	src := f.Image
	dst := image.NewRGBA(src.Rect)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		dst.Pix[i] = 255 - src.Pix[i]
		dst.Pix[i+1] = 255 - src.Pix[i+1]
		dst.Pix[i+2] = 255 - src.Pix[i+2]
		dst.Pix[i+3] = src.Pix[i+3]
	}
	return withImage(f, dst)
}

// Threshold renders black and white using a local mean over a block x block
// window: a pixel is white when brighter than the mean minus c.
func Threshold(block, c int) codec.FrameFilter {
	if block%2 == 0 {
		block++
	}
	half := block / 2
	return func(f codec.Frame) codec.Frame {
		src := f.Image
		w, h := src.Rect.Dx(), src.Rect.Dy()

		// integral image of luma, one row and column of padding
		sum := make([]int, (w+1)*(h+1))
		for y := 0; y < h; y++ {
			row := 0
			for x := 0; x < w; x++ {
				i := y*src.Stride + x*4
				row += int(luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2]))
				sum[(y+1)*(w+1)+x+1] = sum[y*(w+1)+x+1] + row
			}
		}

		dst := image.NewRGBA(src.Rect)
		for y := 0; y < h; y++ {
			y0, y1 := max(y-half, 0), min(y+half+1, h)
			for x := 0; x < w; x++ {
				x0, x1 := max(x-half, 0), min(x+half+1, w)
				area := (x1 - x0) * (y1 - y0)
				total := sum[y1*(w+1)+x1] - sum[y0*(w+1)+x1] - sum[y1*(w+1)+x0] + sum[y0*(w+1)+x0]

				i := y*src.Stride + x*4
				v := uint8(0)
				if int(luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2]))*area > total-c*area {
					v = 255
				}
				j := y*dst.Stride + x*4
				dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2], dst.Pix[j+3] = v, v, v, 255
			}
		}
		return withImage(f, dst)
	}
}

var (
	stampFont     *truetype.Font
	stampFontErr  error
	stampFontOnce sync.Once
)

// Stamp overlays text(frame) in the top-left corner.
func Stamp(text func(codec.Frame) string) codec.FrameFilter {
	return func(f codec.Frame) codec.Frame {
		stampFontOnce.Do(func() {
			stampFont, stampFontErr = freetype.ParseFont(goregular.TTF)
		})
		if stampFontErr != nil {
			return f
		}

		dst := image.NewRGBA(f.Image.Rect)
		draw.Draw(dst, dst.Rect, f.Image, f.Image.Rect.Min, draw.Src)

		ctx := freetype.NewContext()
		ctx.SetDPI(72)
		ctx.SetFont(stampFont)
		ctx.SetFontSize(18)
		ctx.SetClip(dst.Bounds())
		ctx.SetDst(dst)
		ctx.SetSrc(image.White)
		if _, err := ctx.DrawString(text(f), freetype.Pt(10, 26)); err != nil {
			return f
		}
		return withImage(f, dst)
	}
}
