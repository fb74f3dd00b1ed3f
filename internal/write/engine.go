// Package write implements the replicated write engine of spec.md
// §4.3: one-shot and chunked body upload, quorum evaluation, post-write
// compensation, and metadata finalize. Grounded on the teacher's
// internal/replica write path (a leader fanning a client op out to
// followers and rolling back on a failed commit quorum), generalized
// from Raft log replication to group replica-set replication.
package write

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iderikon/libelliptics-proxy/internal/container"
	"github.com/iderikon/libelliptics-proxy/internal/group"
	"github.com/iderikon/libelliptics-proxy/internal/locate"
	"github.com/iderikon/libelliptics-proxy/internal/quorum"
	"github.com/iderikon/libelliptics-proxy/internal/session"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

// Request bundles one write call's parameters (spec.md §4.3, §6).
type Request struct {
	Key    common.Key
	Data   []byte
	Offset uint64
	// Size is the object's total size for a PREPARE reservation; 0
	// means "use len(Data)".
	Size    uint64
	Cflags  uint32
	Ioflags uint32
	// Groups is the caller's explicit group list; empty means "let the
	// selector decide".
	Groups []common.GroupID
	// SuccessMode overrides the configured default for this call; nil
	// keeps the configured mode.
	SuccessMode *config.SuccessMode
}

// CompensationObserver receives a signal each time this engine issues a
// best-effort compensating remove after a rejected or partially
// surviving write. Kept as a small local interface rather than an
// import of internal/telemetry so the engine has no observability
// dependency of its own.
type CompensationObserver interface {
	ObserveCompensate()
}

// Engine is the replicated write engine.
type Engine struct {
	cfg  config.Configuration
	sess session.Session
	sel  *group.Selector
	log  *logrus.Entry
	obs  CompensationObserver
}

func New(cfg config.Configuration, sess session.Session, sel *group.Selector, log *logrus.Entry) *Engine {
	return &Engine{cfg: cfg, sess: sess, sel: sel, log: log}
}

// SetObserver attaches a compensation observer; nil disables reporting.
func (e *Engine) SetObserver(obs CompensationObserver) {
	e.obs = obs
}

// Write executes req per spec.md §4.3 and returns one LookupResult per
// surviving group.
func (e *Engine) Write(ctx context.Context, req Request) ([]common.LookupResult, error) {
	if e.sess.LiveStateCount() < e.cfg.DieLimit {
		return nil, common.WithKey(common.ErrTooFewStates, req.Key)
	}

	r := len(req.Groups)
	if r == 0 {
		r = e.cfg.Replication()
	}
	mode := e.cfg.SuccessMode
	if req.SuccessMode != nil {
		mode = *req.SuccessMode
	}
	policy := quorum.Resolve(mode, r)

	lgroups, err := e.sel.SelectForWrite(ctx, req.Groups, r)
	if err != nil {
		return nil, common.WithKey(err, req.Key)
	}
	if r > 0 && len(lgroups) > r {
		lgroups = lgroups[:r]
	}

	const singleShotFlags = common.IOFlagPrepare | common.IOFlagCommit | common.IOFlagPlainWrite
	switch {
	case req.Ioflags&singleShotFlags != 0:
		return e.singleFlavored(ctx, req, lgroups, policy)
	case e.cfg.ChunkSize > 0 && len(req.Data) > e.cfg.ChunkSize && !req.Key.HasID:
		return e.chunked(ctx, req, lgroups, policy)
	default:
		return e.oneShot(ctx, req, lgroups, policy)
	}
}

func (e *Engine) oneShot(ctx context.Context, req Request, lgroups []common.GroupID, policy quorum.Policy) ([]common.LookupResult, error) {
	results, err := e.sess.Write(ctx, session.WriteOneShot, req.Key, lgroups, req.Data, req.Offset, 0, req.Cflags, req.Ioflags)
	if err != nil {
		return nil, common.WithKey(common.Transport(err), req.Key)
	}
	survivors := common.SuccessGroups(results)
	if !policy.Accept(len(survivors)) {
		e.compensate(ctx, req.Key, lgroups)
		return nil, common.WithKey(common.ErrWriteRejected, req.Key)
	}
	e.compensateIncomplete(ctx, req.Key, lgroups, survivors)
	if err := e.finalize(ctx, req.Key, survivors); err != nil {
		return nil, common.WithKey(err, req.Key)
	}
	return locate.DeriveAll(e.cfg, common.Locations(results))
}

// singleFlavored handles an explicit PREPARE/PLAIN_WRITE/COMMIT call:
// no chunking is performed by the engine itself, the caller is driving
// the chunk sequence one ioflags-tagged call at a time.
func (e *Engine) singleFlavored(ctx context.Context, req Request, lgroups []common.GroupID, policy quorum.Policy) ([]common.LookupResult, error) {
	var kind session.WriteKind
	var reserved uint64
	switch {
	case req.Ioflags&common.IOFlagPrepare != 0:
		kind = session.WritePrepare
		reserved = req.Size
		if reserved == 0 {
			reserved = uint64(len(req.Data))
		}
	case req.Ioflags&common.IOFlagCommit != 0:
		kind = session.WriteCommit
	default:
		kind = session.WritePlain
	}

	results, err := e.sess.Write(ctx, kind, req.Key, lgroups, req.Data, req.Offset, reserved, req.Cflags, req.Ioflags)
	if err != nil {
		return nil, common.WithKey(common.Transport(err), req.Key)
	}
	survivors := common.SuccessGroups(results)
	if !policy.Accept(len(survivors)) {
		e.compensate(ctx, req.Key, lgroups)
		return nil, common.WithKey(common.ErrWriteRejected, req.Key)
	}
	e.compensateIncomplete(ctx, req.Key, lgroups, survivors)
	if kind == session.WriteCommit {
		if err := e.finalize(ctx, req.Key, survivors); err != nil {
			return nil, common.WithKey(err, req.Key)
		}
	}
	return locate.DeriveAll(e.cfg, common.Locations(results))
}

// chunked uploads req.Data as prepare + zero-or-more plain + commit,
// shrinking the surviving set after every chunk (spec.md §4.3, S4/S5).
func (e *Engine) chunked(ctx context.Context, req Request, lgroups []common.GroupID, policy quorum.Policy) ([]common.LookupResult, error) {
	total := uint64(len(req.Data))
	chunkSize := uint64(e.cfg.ChunkSize)
	numChunks := (total + chunkSize - 1) / chunkSize

	surviving := lgroups
	var lastResults []common.RawWriteResult

	for i := uint64(0); i < numChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > total {
			end = total
		}
		chunkData := req.Data[start:end]

		var kind session.WriteKind
		var reserved uint64
		switch {
		case i == 0:
			kind = session.WritePrepare
			reserved = total
		case i == numChunks-1:
			kind = session.WriteCommit
		default:
			kind = session.WritePlain
		}

		results, err := e.sess.Write(ctx, kind, req.Key, surviving, chunkData, start, reserved, req.Cflags, req.Ioflags)
		if err != nil {
			e.compensate(ctx, req.Key, lgroups)
			return nil, common.WithKey(common.Transport(err), req.Key)
		}
		newSurviving := common.SuccessGroups(results)
		if !policy.Accept(len(newSurviving)) {
			e.compensate(ctx, req.Key, lgroups)
			return nil, common.WithKey(common.ErrWriteRejected, req.Key)
		}
		surviving = newSurviving
		lastResults = results
	}

	e.compensateIncomplete(ctx, req.Key, lgroups, surviving)
	if err := e.finalize(ctx, req.Key, surviving); err != nil {
		return nil, common.WithKey(err, req.Key)
	}
	return locate.DeriveAll(e.cfg, common.Locations(lastResults))
}

// finalize issues the metadata-write call of spec.md §4.3: cflags=0, a
// zero timestamp, against the surviving set. There is no shared
// mutable cflags to "restore" here since every call takes its settings
// as explicit parameters (spec.md §5) — the caller's cflags are simply
// never touched by this call.
//
// This is an acknowledged open design question, preserved rather than
// "fixed" (spec.md §9): failure here is surfaced as a write failure,
// but the body already committed above is not removed, so the object
// can end up orphaned (durable body, stale/absent metadata).
func (e *Engine) finalize(ctx context.Context, key common.Key, survivors []common.GroupID) error {
	if len(survivors) == 0 {
		return nil
	}
	payload := container.Pack(container.Embedded(nil, container.Timestamp{}))
	results, err := e.sess.Write(ctx, session.WriteMetadata, key, survivors, payload, 0, 0, 0, 0)
	if err != nil {
		return common.Transport(err)
	}
	if failed := failedGroups(results); len(failed) > 0 {
		return fmt.Errorf("%w: metadata finalize failed on groups %v", common.ErrWriteRejected, failed)
	}
	return nil
}

// compensateIncomplete issues a best-effort remove against every group
// in lgroups that did not survive, once acceptance has already been
// satisfied (spec.md §4.3, S2/S5): a group that answered a write call
// with an error should not be left holding a stray partial copy.
func (e *Engine) compensateIncomplete(ctx context.Context, key common.Key, lgroups, survivors []common.GroupID) {
	if isProperSubset(survivors, lgroups) {
		e.compensate(ctx, key, groupDiff(lgroups, survivors))
	}
}

func (e *Engine) compensate(ctx context.Context, key common.Key, groups []common.GroupID) {
	if len(groups) == 0 {
		return
	}
	if e.obs != nil {
		e.obs.ObserveCompensate()
	}
	if err := e.sess.Remove(ctx, key, groups); err != nil && e.log != nil {
		e.log.WithError(err).WithField("key", key.String()).Warn("write: compensation remove failed")
	}
}

func failedGroups(results []common.RawWriteResult) []common.GroupID {
	var out []common.GroupID
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Group)
		}
	}
	return out
}

func isProperSubset(sub, full []common.GroupID) bool {
	if len(sub) >= len(full) {
		return false
	}
	present := make(map[common.GroupID]bool, len(full))
	for _, g := range full {
		present[g] = true
	}
	for _, g := range sub {
		if !present[g] {
			return false
		}
	}
	return true
}

func groupDiff(full, sub []common.GroupID) []common.GroupID {
	present := make(map[common.GroupID]bool, len(sub))
	for _, g := range sub {
		present[g] = true
	}
	var out []common.GroupID
	for _, g := range full {
		if !present[g] {
			out = append(out, g)
		}
	}
	return out
}
