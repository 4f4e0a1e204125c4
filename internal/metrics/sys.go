package metrics

import (
	"io/fs"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
)

// SysHealth is a point-in-time view of the server process and its data dir.
type SysHealth struct {
	AllocMB       uint64 `json:"allocMb"`
	SysMB         uint64 `json:"sysMb"`
	NumGC         uint32 `json:"numGc"`
	Goroutines    int    `json:"goroutines"`
	DataDiskBytes uint64 `json:"dataDiskBytes"`
	DataDiskSize  string `json:"dataDisk"`
}

// GetSysHealth reads runtime memory stats and sums the size of dataPath.
// An empty dataPath (postgres deployments) reports "n/a".
func GetSysHealth(dataPath string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := SysHealth{
		AllocMB:      m.Alloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DataDiskSize: "n/a",
	}
	if dataPath != "" {
		h.DataDiskBytes = dirSize(dataPath)
		h.DataDiskSize = humanize.Bytes(h.DataDiskBytes)
	}
	return h
}

// dirSize sums regular files under root. Unreadable entries are skipped
// since the sqlite journal may vanish mid-walk.
func dirSize(root string) uint64 {
	var size uint64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += uint64(info.Size())
			}
		}
		return nil
	})
	return size
}
