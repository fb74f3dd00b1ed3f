//go:build !linux

package statlog

import (
	"errors"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// Self is only implemented on linux, where Sysinfo is available.
func Self(host string) (common.NodeStat, error) {
	return common.NodeStat{}, errors.New("statlog: local self-stat is only supported on linux")
}
