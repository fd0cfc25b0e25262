package media

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

const (
	nameLayout   = "20060102_150405"
	suffixChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength = 2
	nameAttempts = 32
)

type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindPhoto MediaKind = "photo"
)

func (k MediaKind) Extension() string {
	if k == KindVideo {
		return "avi"
	}
	return "jpg"
}

// NewMediaName returns "<timestamp>_<2 random chars>.<ext>".
func NewMediaName(now time.Time, ext string) string {
	suffix := make([]byte, suffixLength)
	for i := range suffix {
		suffix[i] = suffixChars[rand.Intn(len(suffixChars))]
	}
	return fmt.Sprintf("%s_%s.%s", now.Format(nameLayout), suffix, ext)
}

// NewMediaPath creates dir when missing and picks a name not already taken,
// so rapid start/stop cycles within one second never collide.
func NewMediaPath(dir string, kind MediaKind, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating %s folder %s: %w", kind, dir, err)
	}
	for i := 0; i < nameAttempts; i++ {
		path := filepath.Join(dir, NewMediaName(now, kind.Extension()))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free %s name in %s", kind, dir)
}
