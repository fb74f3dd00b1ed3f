// Package bulk implements the bulk read/write path of spec.md §4.5:
// per-key result aggregation over a single batch call to the session,
// with whole-batch rollback on any key's quorum failure on write.
// Grounded on the teacher's internal/replica batch-apply path (a group
// of log entries applied together, with a shared commit/rollback
// decision), generalized from "batch of ops" to "batch of keys".
package bulk

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iderikon/libelliptics-proxy/internal/container"
	"github.com/iderikon/libelliptics-proxy/internal/group"
	"github.com/iderikon/libelliptics-proxy/internal/locate"
	"github.com/iderikon/libelliptics-proxy/internal/quorum"
	"github.com/iderikon/libelliptics-proxy/internal/session"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

// CompensationObserver mirrors internal/write's observer hook so both
// engines can report to the same telemetry sink without either
// depending on it directly.
type CompensationObserver interface {
	ObserveCompensate()
}

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

// ReadRequest bundles a bulk_read call's parameters (spec.md §4.5, §6).
type ReadRequest struct {
	Keys     []common.Key
	Cflags   uint32
	Groups   []common.GroupID
	Embedded bool
}

// Read fans keys out to a single session bulk read and returns the
// decoded container for every key the session answered; keys missing
// from the session's reply are simply absent from the map.
func (e *Engine) Read(ctx context.Context, req ReadRequest) (map[common.Key]container.Container, error) {
	if len(req.Keys) == 0 {
		return map[common.Key]container.Container{}, nil
	}
	lgroups, err := e.sel.Select(req.Groups, 0)
	if err != nil {
		return nil, err
	}

	ids := make([]common.RawID, len(req.Keys))
	byID := make(map[common.RawID]common.Key, len(req.Keys))
	for i, k := range req.Keys {
		id, err := e.resolve(ctx, k)
		if err != nil {
			return nil, common.WithKey(err, k)
		}
		ids[i] = id
		byID[id] = k
	}

	bodies, err := e.sess.BulkRead(ctx, ids, lgroups, req.Cflags)
	if err != nil {
		return nil, common.Transport(err)
	}

	out := make(map[common.Key]container.Container, len(bodies))
	for id, body := range bodies {
		key, ok := byID[id]
		if !ok {
			continue
		}
		c, err := container.Unpack(body, req.Embedded)
		if err != nil {
			return nil, common.WithKey(err, key)
		}
		out[key] = c
	}
	return out, nil
}

// WriteRequest bundles a bulk_write call's parameters (spec.md §4.5,
// §6). Payloads and Keys are parallel slices.
type WriteRequest struct {
	Keys        []common.Key
	Payloads    [][]byte
	Cflags      uint32
	Groups      []common.GroupID
	SuccessMode *config.SuccessMode
}

// Write packs every payload through the data container framer, issues
// one session bulk write, and either returns a per-key lookup map or
// rolls the whole batch back and fails with BulkWriteRejected if any
// key failed acceptance (spec.md §4.5).
func (e *Engine) Write(ctx context.Context, req WriteRequest) (map[common.Key][]common.LookupResult, error) {
	if len(req.Keys) != len(req.Payloads) {
		return nil, common.Transport(errMismatchedLengths)
	}
	if len(req.Keys) == 0 {
		return map[common.Key][]common.LookupResult{}, nil
	}

	lgroups, err := e.sel.Select(req.Groups, 0)
	if err != nil {
		return nil, err
	}
	mode := e.cfg.SuccessMode
	if req.SuccessMode != nil {
		mode = *req.SuccessMode
	}
	policy := quorum.Resolve(mode, len(lgroups))

	ids := make([]common.RawID, len(req.Keys))
	byID := make(map[common.RawID]common.Key, len(req.Keys))
	packed := make([][]byte, len(req.Payloads))
	for i, k := range req.Keys {
		id, err := e.resolve(ctx, k)
		if err != nil {
			return nil, common.WithKey(err, k)
		}
		ids[i] = id
		byID[id] = k
		packed[i] = container.Pack(container.Plain(req.Payloads[i]))
	}

	byKey, err := e.sess.BulkWrite(ctx, ids, packed, lgroups, req.Cflags)
	if err != nil {
		return nil, common.Transport(err)
	}

	perKeyResults := make(map[common.Key][]common.RawWriteResult, len(byKey))
	for id, results := range byKey {
		key, ok := byID[id]
		if !ok {
			continue
		}
		perKeyResults[key] = results
	}

	rejected := false
	for _, results := range perKeyResults {
		if !policy.Accept(len(common.SuccessGroups(results))) {
			rejected = true
			break
		}
	}
	if rejected {
		for key, results := range perKeyResults {
			e.compensate(ctx, key, common.SuccessGroups(results))
		}
		return nil, common.ErrBulkWriteRejected
	}

	out := make(map[common.Key][]common.LookupResult, len(perKeyResults))
	for key, results := range perKeyResults {
		lookups, err := locate.DeriveAll(e.cfg, common.Locations(results))
		if err != nil {
			return nil, common.WithKey(err, key)
		}
		out[key] = lookups
	}
	return out, nil
}

func (e *Engine) compensate(ctx context.Context, key common.Key, groups []common.GroupID) {
	if len(groups) == 0 {
		return
	}
	if e.obs != nil {
		e.obs.ObserveCompensate()
	}
	if err := e.sess.Remove(ctx, key, groups); err != nil && e.log != nil {
		e.log.WithError(err).WithField("key", key.String()).Warn("bulk: compensation remove failed")
	}
}

func (e *Engine) resolve(ctx context.Context, key common.Key) (common.RawID, error) {
	if key.HasID {
		return key.ID, nil
	}
	return e.sess.TransformKey(ctx, key.Name, key.Type)
}

var errMismatchedLengths = errors.New("bulk: keys and payloads length mismatch")
