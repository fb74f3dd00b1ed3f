// Package session defines the opaque contract the core consumes over
// the underlying storage transport (spec.md §1 "OUT OF SCOPE": node
// connection, routing, id transformation, wire-level read/write,
// address lookup, stat — the core only references this contract).
//
// Every method takes its call-scoped settings (groups, cflags, ioflags)
// as explicit parameters rather than mutating shared session state, per
// the Design Note in spec.md §9 ("per-call session mutation is a
// footgun if the underlying session is shared") and §5 ("implementations
// must ensure per-call settings do not leak between concurrent calls").
// A Session implementation is expected to be safe for concurrent use.
package session

import (
	"context"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// WriteKind selects which low-level write primitive to issue, mirroring
// the ioflags-driven mode selection in spec.md §4.3.
type WriteKind int

const (
	WriteOneShot WriteKind = iota
	WritePrepare
	WritePlain
	WriteCommit
	// WriteMetadata is the metadata-finalize call issued after a
	// successful body upload (spec.md §4.3): a zero-cflags write of a
	// zero-timestamp container against the surviving groups.
	WriteMetadata
)

// Session is the contract every core engine (write/read/bulk) is built
// against. Real implementations wrap a wire-level client to a cluster
// of storage nodes; internal/session/fakesession provides a
// leveldb-backed reference implementation used by this module's own
// tests.
type Session interface {
	// LiveStateCount reports how many underlying transport states
	// (node connections) are currently live, for the die_limit
	// pre-check (spec.md §4.3).
	LiveStateCount() int

	// TransformKey resolves a name-based key to its raw id. The bulk
	// engine calls it once per name-based key to build its raw-id side
	// table; the write engine does not call it.
	TransformKey(ctx context.Context, name string, typ uint32) (common.RawID, error)

	// Write issues one write call of the given kind against every
	// group in groups, returning one RawWriteResult per group (success or
	// per-group error). offset/reservedSize are meaningful for
	// WritePrepare (reservedSize is the total object size to reserve);
	// for WritePlain/WriteCommit/WriteOneShot only offset is used.
	Write(ctx context.Context, kind WriteKind, key common.Key, groups []common.GroupID,
		data []byte, offset uint64, reservedSize uint64, cflags, ioflags uint32) ([]common.RawWriteResult, error)

	// Remove is best-effort per group; the returned error (if any) is
	// logged and swallowed by the caller per spec.md §7.
	Remove(ctx context.Context, key common.Key, groups []common.GroupID) error

	// Read tries a single group and returns the raw body bytes.
	Read(ctx context.Context, key common.Key, group common.GroupID, offset, size uint64, cflags, ioflags uint32) ([]byte, error)

	// ReadLatest chooses, among groups, the replica with the newest
	// embedded version/timestamp and returns its body plus the group
	// it came from.
	ReadLatest(ctx context.Context, key common.Key, groups []common.GroupID, offset, size uint64, cflags, ioflags uint32) ([]byte, common.GroupID, error)

	// Lookup queries one group for key's location.
	Lookup(ctx context.Context, key common.Key, group common.GroupID) (common.RawLocation, error)

	// LookupAddr is like Lookup but only needs the address, for
	// lookup_addr (spec.md §6).
	LookupAddr(ctx context.Context, key common.Key, group common.GroupID) (common.Remote, error)

	// RangeGet forwards a range scan to the session. When ioflags
	// requests NODATA the returned slice holds a single decimal count
	// string instead of bodies (spec.md §6).
	RangeGet(ctx context.Context, from, to common.Key, limitStart, limitNum int, cflags, ioflags uint32, groups []common.GroupID, referenceKey *common.Key) ([]string, error)

	// BulkRead fans a set of raw ids out to groups and returns bodies
	// keyed by raw id; ids absent from the result are simply missing
	// from the map (spec.md §4.5).
	BulkRead(ctx context.Context, ids []common.RawID, groups []common.GroupID, cflags uint32) (map[common.RawID][]byte, error)

	// BulkWrite writes every (id, payload) pair to groups and returns
	// the per-group RawWriteResult list for each id.
	BulkWrite(ctx context.Context, ids []common.RawID, payloads [][]byte, groups []common.GroupID, cflags uint32) (map[common.RawID][]common.RawWriteResult, error)

	// ExecScript forwards verbatim to the session (spec.md §1).
	ExecScript(ctx context.Context, key common.Key, script string, data []byte, groups []common.GroupID) (string, error)

	// UpdateIndexes/FindIndexes/CheckIndexes are forwarded verbatim to
	// the session (spec.md §1 "Secondary index maintenance").
	UpdateIndexes(ctx context.Context, key common.Key, indexes []string, data [][]byte) error
	FindIndexes(ctx context.Context, indexes []string) ([]common.Key, error)
	CheckIndexes(ctx context.Context, key common.Key) ([]string, error)

	// Stat forwards the session's per-node stats (spec.md §6).
	Stat(ctx context.Context) ([]common.NodeStat, error)
}
