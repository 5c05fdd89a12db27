// Package library lists files that already sit in the destination directories.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/NamanBalaji/wsdl/internal/common"
)

const partSuffix = ".part"

// Dir is one destination directory and the content type stored in it.
type Dir struct {
	Path string
	Type common.ContentType
}

type File struct {
	Name          string             `json:"name"`
	Size          int64              `json:"size"`
	SizeFormatted string             `json:"sizeFormatted"`
	Modified      float64            `json:"modified"`
	Type          common.ContentType `json:"type"`
	TypeLabel     string             `json:"typeLabel"`
}

// List returns the regular files of every dir, newest first. Missing
// directories and unfinished ".part" files are skipped.
func List(dirs ...Dir) ([]File, error) {
	files := make([]File, 0)

	for _, d := range dirs {
		entries, err := os.ReadDir(d.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", d.Path, err)
		}

		for _, e := range entries {
			if strings.HasSuffix(e.Name(), partSuffix) {
				continue
			}
			info, err := os.Stat(filepath.Join(d.Path, e.Name()))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, File{
				Name:          e.Name(),
				Size:          info.Size(),
				SizeFormatted: formatSize(info.Size()),
				Modified:      float64(info.ModTime().UnixNano()) / 1e9,
				Type:          d.Type,
				TypeLabel:     d.Type.Label(),
			})
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Modified > files[j].Modified
	})

	return files, nil
}

func formatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
