package downloader

import (
	"github.com/shirou/gopsutil/v3/disk"
)

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
