package media

import (
	"fmt"
	"os"
	"time"

	"dronegcs/app/codec"
)

// SavePhoto writes frame as a timestamped JPEG under dir and returns its path.
func SavePhoto(dir string, frame codec.Frame, filter codec.FrameFilter, quality int, now time.Time) (string, error) {
	if frame.Image == nil {
		return "", codec.ErrEmptyFrame
	}
	if filter != nil {
		if out := filter(frame); out.Image != nil {
			frame = out
		}
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	data, err := codec.EncodeJPEG(frame, quality)
	if err != nil {
		return "", fmt.Errorf("encoding photo: %w", err)
	}

	path, err := NewMediaPath(dir, KindPhoto, now)
	if err != nil {
		return "", err
	}

	// write then rename so watchers never see a partial file
	tmp := path + ".part"
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("writing photo: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("writing photo: %w", err)
	}
	return path, nil
}
