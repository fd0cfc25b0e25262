package helper

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dronegcs/apperror"
	"dronegcs/models"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// FetchFiles lists the files in dir with extension ext, newest first. A
// missing folder is an empty listing.
func FetchFiles(dir, ext, kind string) ([]models.FileDetails, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperror.ServerError.SetMessage("error reading " + kind + " folder").Wrap(err)
	}

	type entry struct {
		details models.FileDetails
		mod     time.Time
	}
	var files []entry
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, entry{
			details: models.FileDetails{
				Filename: e.Name(),
				Kind:     kind,
				Size:     humanize.Bytes(uint64(info.Size())),
				Modified: humanize.Time(info.ModTime()),
			},
			mod: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })

	out := make([]models.FileDetails, len(files))
	for i, f := range files {
		out[i] = f.details
	}
	return out, nil
}

// DiskUsage returns the used fraction (0..1, two decimals) of the filesystem
// holding path and the free space in human form.
func DiskUsage(path string) (float64, string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, "", err
	}

	available := float64(stat.Bavail) * float64(stat.Bsize)
	total := float64(stat.Blocks) * float64(stat.Bsize)
	if total == 0 {
		return 0, humanize.Bytes(0), nil
	}
	used := (100 - (available/total)*100) / 100

	return Truncate(used, 0.01), humanize.Bytes(uint64(available)), nil
}

func Truncate(num float64, unit float64) float64 {
	bf := big.NewFloat(0).SetPrec(1000).SetFloat64(num)
	bu := big.NewFloat(0).SetPrec(1000).SetFloat64(unit)

	bf.Quo(bf, bu)

	i := big.NewInt(0)
	bf.Int(i)
	bf.SetInt(i)

	f, _ := bf.Mul(bf, bu).Float64()

	return f
}
