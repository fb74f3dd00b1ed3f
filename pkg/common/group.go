package common

// Remote is a candidate node address for a group, as advertised by the
// initial remotes list or produced by group resolution.
type Remote struct {
	Host   string
	Port   int
	Family int
}

// LookupResult is the outcome of one successful write/lookup in one
// group (spec.md §3 "Lookup result"), after path derivation
// (internal/locate) has been applied to the session's RawLocation.
type LookupResult struct {
	Group  GroupID
	Host   string
	Port   int
	Family int

	// Path is the derived storage path (plain or eblob-style, see
	// internal/locate).
	Path string

	// HasBlob is set when the backend uses a packed blob format and
	// BlobFile/BlobOffset/BlobSize are populated alongside Path.
	HasBlob    bool
	BlobFile   uint64
	BlobOffset uint64
	BlobSize   uint64
}

// RawLocation is what the session hands back per group for a
// successful write or lookup: an address plus a backend-specific
// identifier. spec.md §6 "Path derivation": BackendID is either a raw
// filesystem path (plain mode) or a packed "file:offset:size" blob
// reference (eblob-style mode) — internal/locate turns it into a
// LookupResult without needing to know which backend produced it.
type RawLocation struct {
	Group     GroupID
	Host      string
	Port      int
	Family    int
	BackendID string
}

// RawWriteResult is one group's outcome from a write call to the
// session. Err is nil on success, in which case Loc is populated.
type RawWriteResult struct {
	Group GroupID
	Loc   RawLocation
	Err   error
}

// SuccessGroups returns the set of group ids that succeeded.
func SuccessGroups(results []RawWriteResult) []GroupID {
	out := make([]GroupID, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Group)
		}
	}
	return out
}

// Locations projects the successful entries of results into their
// RawLocation, in the same order.
func Locations(results []RawWriteResult) []RawLocation {
	out := make([]RawLocation, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Loc)
		}
	}
	return out
}

// NodeStat is the per-node stats surfaced by stat_log() (spec.md §6).
type NodeStat struct {
	NodeID      int
	Host        string
	LoadAvg1    float64
	LoadAvg5    float64
	LoadAvg15   float64
	MemTotalMB  uint64
	MemFreeMB   uint64
	StorageMB   uint64
	AvailableMB uint64
	Files       uint64
	FSID        uint64
}
