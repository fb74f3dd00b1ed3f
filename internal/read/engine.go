// Package read implements the replicated read/lookup engine of spec.md
// §4.4: single reads with per-group fallback, the "latest replica"
// variant, the lookup elimination loop, and range scans. Grounded on
// the teacher's internal/replica read path (a follower trying its own
// state, an entry-point retrying against other replicas on failure),
// generalized from "retry this replica set" to "try every candidate
// group in order".
package read

import (
	"context"

	"github.com/iderikon/libelliptics-proxy/internal/container"
	"github.com/iderikon/libelliptics-proxy/internal/group"
	"github.com/iderikon/libelliptics-proxy/internal/locate"
	"github.com/iderikon/libelliptics-proxy/internal/session"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

// Request bundles one read call's parameters (spec.md §4.4, §6).
type Request struct {
	Key      common.Key
	Offset   uint64
	Size     uint64
	Cflags   uint32
	Ioflags  uint32
	Groups   []common.GroupID
	Latest   bool
	Embedded bool
}

// RangeRequest bundles one range_get call's parameters (spec.md §6).
type RangeRequest struct {
	From, To     common.Key
	LimitStart   int
	LimitNum     int
	Cflags       uint32
	Ioflags      uint32
	Groups       []common.GroupID
	ReferenceKey *common.Key
}

type Engine struct {
	cfg  config.Configuration
	sess session.Session
	sel  *group.Selector
}

func New(cfg config.Configuration, sess session.Session, sel *group.Selector) *Engine {
	return &Engine{cfg: cfg, sess: sess, sel: sel}
}

// Read implements spec.md §4.4 steps 1-4. It returns the decoded
// container, the group the body was read from, and any error.
func (e *Engine) Read(ctx context.Context, req Request) (container.Container, common.GroupID, error) {
	lgroups, err := e.sel.Select(req.Groups, 0)
	if err != nil {
		return container.Container{}, 0, common.WithKey(err, req.Key)
	}

	var body []byte
	var from common.GroupID
	if req.Latest {
		body, from, err = e.sess.ReadLatest(ctx, req.Key, lgroups, req.Offset, req.Size, req.Cflags, req.Ioflags)
	} else {
		body, from, err = e.readWithFallback(ctx, req, lgroups)
	}
	if err != nil {
		return container.Container{}, 0, common.WithKey(common.ErrNotFound, req.Key)
	}

	c, err := container.Unpack(body, req.Embedded)
	if err != nil {
		return container.Container{}, 0, common.WithKey(err, req.Key)
	}
	return c, from, nil
}

// readWithFallback tries every candidate group in order, per-group
// errors are eliminated and the next group is tried; a fully exhausted
// candidate set surfaces as a plain error for Read to turn into
// NotFound.
func (e *Engine) readWithFallback(ctx context.Context, req Request, lgroups []common.GroupID) ([]byte, common.GroupID, error) {
	var lastErr error = common.ErrNotFound
	for _, g := range lgroups {
		body, err := e.sess.Read(ctx, req.Key, g, req.Offset, req.Size, req.Cflags, req.Ioflags)
		if err == nil {
			return body, g, nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

// Lookup implements the group-elimination loop of spec.md §4.4: try
// the head of the candidate list, drop it on error, and repeat until
// either a group answers without error or the list is exhausted.
func (e *Engine) Lookup(ctx context.Context, key common.Key, groups []common.GroupID) (common.LookupResult, error) {
	lgroups, err := e.sel.Select(groups, 0)
	if err != nil {
		return common.LookupResult{}, common.WithKey(err, key)
	}
	for len(lgroups) > 0 {
		loc, err := e.sess.Lookup(ctx, key, lgroups[0])
		if err == nil {
			return locate.Derive(e.cfg, loc)
		}
		lgroups = lgroups[1:]
	}
	return common.LookupResult{}, common.WithKey(common.ErrNotFound, key)
}

// LookupAddr queries every candidate group and collects the addresses
// of every group that answered without error (spec.md §6
// "lookup_addr(key, groups?) -> [Remote]").
func (e *Engine) LookupAddr(ctx context.Context, key common.Key, groups []common.GroupID) ([]common.Remote, error) {
	lgroups, err := e.sel.Select(groups, 0)
	if err != nil {
		return nil, common.WithKey(err, key)
	}
	var out []common.Remote
	for _, g := range lgroups {
		remote, err := e.sess.LookupAddr(ctx, key, g)
		if err == nil {
			out = append(out, remote)
		}
	}
	if len(out) == 0 {
		return nil, common.WithKey(common.ErrNotFound, key)
	}
	return out, nil
}

// RangeGet forwards a range scan to the session over the resolved
// candidate group list (spec.md §6).
func (e *Engine) RangeGet(ctx context.Context, req RangeRequest) ([]string, error) {
	lgroups, err := e.sel.Select(req.Groups, 0)
	if err != nil {
		return nil, err
	}
	return e.sess.RangeGet(ctx, req.From, req.To, req.LimitStart, req.LimitNum, req.Cflags, req.Ioflags, lgroups, req.ReferenceKey)
}
