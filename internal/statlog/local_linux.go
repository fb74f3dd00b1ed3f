//go:build linux

package statlog

import (
	"golang.org/x/sys/unix"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// loadScale is the fixed-point scale Sysinfo_t.Loads values are
// reported in (see sysinfo(2)).
const loadScale = 65536.0

// Self reports the calling process's own host as a NodeStat with
// NodeID -1, so a stat_log() caller can see the proxy's own vantage
// point next to the storage nodes it queried.
func Self(host string) (common.NodeStat, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return common.NodeStat{}, err
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return common.NodeStat{
		NodeID:     -1,
		Host:       host,
		LoadAvg1:   float64(info.Loads[0]) / loadScale,
		LoadAvg5:   float64(info.Loads[1]) / loadScale,
		LoadAvg15:  float64(info.Loads[2]) / loadScale,
		MemTotalMB: uint64(info.Totalram) * unit / (1024 * 1024),
		MemFreeMB:  uint64(info.Freeram) * unit / (1024 * 1024),
	}, nil
}
