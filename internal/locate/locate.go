// Package locate derives the public common.LookupResult from a
// session's common.RawLocation, per spec.md §6 "Path derivation for
// LookupResult". This is core logic, not session logic: only the proxy
// knows base_port and eblob_style_path, so the derivation lives here
// rather than inside a Session implementation.
package locate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

// Derive turns loc into a LookupResult. port = base_port +
// group_id_low_bits, where "low bits" is the group id truncated to a
// byte, matching the original proxy's address-synthesis convention.
//
// In plain mode the backend id is used as the path verbatim. In
// eblob-style mode the backend id is expected in "file:offset:size"
// form (the packed blob reference the session returned); it is parsed
// into BlobFile/BlobOffset/BlobSize and a logical "file@offset+size"
// path is synthesized alongside them.
func Derive(cfg config.Configuration, loc common.RawLocation) (common.LookupResult, error) {
	port := loc.Port
	if cfg.BasePort > 0 {
		port = cfg.BasePort + (int(loc.Group) & 0xff)
	}
	res := common.LookupResult{
		Group:  loc.Group,
		Host:   loc.Host,
		Port:   port,
		Family: loc.Family,
	}

	if cfg.EblobStylePath == config.PlainPath {
		res.Path = loc.BackendID
		return res, nil
	}

	parts := strings.SplitN(loc.BackendID, ":", 3)
	if len(parts) != 3 {
		return common.LookupResult{}, fmt.Errorf("locate: malformed eblob backend id %q", loc.BackendID)
	}
	offset, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return common.LookupResult{}, fmt.Errorf("locate: malformed eblob offset in %q: %w", loc.BackendID, err)
	}
	size, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return common.LookupResult{}, fmt.Errorf("locate: malformed eblob size in %q: %w", loc.BackendID, err)
	}
	res.HasBlob = true
	res.BlobFile = 0
	if fileID, err := strconv.ParseUint(parts[0], 10, 64); err == nil {
		res.BlobFile = fileID
	}
	res.BlobOffset = offset
	res.BlobSize = size
	res.Path = fmt.Sprintf("%s@%d+%d", parts[0], offset, size)
	return res, nil
}

// DeriveAll derives every raw location, stopping at the first error.
func DeriveAll(cfg config.Configuration, locs []common.RawLocation) ([]common.LookupResult, error) {
	out := make([]common.LookupResult, 0, len(locs))
	for _, loc := range locs {
		r, err := Derive(cfg, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
