package common

// IOFlag bits recognized on read/write calls (spec.md §6 "IO flags
// semantics"). Presence of Prepare, Commit or PlainWrite on a write
// disables chunking; NoData makes range_get return counts instead of
// bodies.
const (
	IOFlagPrepare uint32 = 1 << iota
	IOFlagCommit
	IOFlagPlainWrite
	IOFlagNoData
)
