package monitoring

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// DiskUsage describes the filesystem holding the upload directory.
type DiskUsage struct {
	Path        string  `json:"path"`
	FreeBytes   uint64  `json:"freeBytes"`
	UsedPercent float64 `json:"usedPercent"`
}

// UploadDiskUsage reports free space for the filesystem containing path.
func UploadDiskUsage(path string) (DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{Path: path}, err
	}
	return DiskUsage{
		Path:        path,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}
