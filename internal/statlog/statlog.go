// Package statlog renders the per-node stats returned by stat_log()
// (spec.md §6) as a table, grounded on the teacher's console client
// (src/client/console_client.go's printShowMasterRes/gotable.Create +
// AddRow pattern) generalized from "master list" to "storage node
// list". It also provides Self, which reads the calling host's own
// stats via golang.org/x/sys/unix, mirroring the teacher's
// nodeStatusUpdater self-report (internal/master/server.go). Render
// does not add that row itself, and pkg/client's StatLog renders only
// the session's stats.
package statlog

import (
	"fmt"
	"strconv"

	"github.com/liushuochen/gotable"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

var columns = []string{"NodeId", "Host", "Load1", "Load5", "Load15", "MemTotalMB", "MemFreeMB", "StorageMB", "AvailableMB", "Files", "FSID"}

// Render lays stats out as a fixed-width text table, one row per node,
// in stable NodeID order as returned by the session.
func Render(stats []common.NodeStat) (string, error) {
	table, err := gotable.Create(columns...)
	if err != nil {
		return "", fmt.Errorf("statlog: create table: %w", err)
	}
	for _, s := range stats {
		row := []string{
			strconv.Itoa(s.NodeID),
			s.Host,
			strconv.FormatFloat(s.LoadAvg1, 'f', 2, 64),
			strconv.FormatFloat(s.LoadAvg5, 'f', 2, 64),
			strconv.FormatFloat(s.LoadAvg15, 'f', 2, 64),
			strconv.FormatUint(s.MemTotalMB, 10),
			strconv.FormatUint(s.MemFreeMB, 10),
			strconv.FormatUint(s.StorageMB, 10),
			strconv.FormatUint(s.AvailableMB, 10),
			strconv.FormatUint(s.Files, 10),
			strconv.FormatUint(s.FSID, 10),
		}
		if err := table.AddRow(row); err != nil {
			return "", fmt.Errorf("statlog: add row for node %d: %w", s.NodeID, err)
		}
	}
	return table.String(), nil
}
