// Package client is the public facade of the smart proxy (spec.md §6):
// it wires the group selector, weighted cache, metabalancer transport,
// and the write/read/bulk engines behind the single entry point an
// embedding application constructs, in the style of the teacher's
// client.MakeUserClient (src/client/kv_clerk.go) — a constructor that
// owns every long-lived resource (RPC ends, a background refresh
// worker) and hands back one handle.
package client

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iderikon/libelliptics-proxy/internal/bulk"
	"github.com/iderikon/libelliptics-proxy/internal/container"
	"github.com/iderikon/libelliptics-proxy/internal/group"
	"github.com/iderikon/libelliptics-proxy/internal/metabalancer"
	"github.com/iderikon/libelliptics-proxy/internal/read"
	"github.com/iderikon/libelliptics-proxy/internal/session"
	"github.com/iderikon/libelliptics-proxy/internal/statlog"
	"github.com/iderikon/libelliptics-proxy/internal/telemetry"
	"github.com/iderikon/libelliptics-proxy/internal/transport"
	"github.com/iderikon/libelliptics-proxy/internal/write"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

// Client is the smart proxy's public handle. It is safe for concurrent
// use: every field it owns is either read-only after construction or
// internally synchronized.
type Client struct {
	cfg  config.Configuration
	sess session.Session
	log  *logrus.Entry

	sel   *group.Selector
	write *write.Engine
	read  *read.Engine
	bulk  *bulk.Engine

	mbClient *metabalancer.Client
	mbCache  *metabalancer.Cache
	mbWorker *metabalancer.Worker

	metrics    *telemetry.Metrics
	metricsCtx    context.Context
	metricsCancel context.CancelFunc
}

// New constructs a Client over sess per cfg. sess is out of this
// module's scope (spec.md §1): callers supply a Session implementation
// wrapping the actual storage transport. On any construction failure,
// already-acquired resources (the metabalancer dial, its worker) are
// released before the error is returned, per spec.md §5's "release in
// reverse order on partial construction failure".
func New(cfg config.Configuration, sess session.Session) (c *Client, err error) {
	logger, lerr := common.InitLogger(cfg.LogLevel, cfg.AppName)
	if lerr != nil {
		return nil, fmt.Errorf("client: init logger: %w", lerr)
	}
	log := logger.WithField("component", "client")

	c = &Client{cfg: cfg, sess: sess, log: log}
	rnd := common.NewThreadSafeRand()

	defer func() {
		if err != nil {
			c.releasePartial()
		}
	}()

	var cache group.Cache
	if cfg.Metabalancer.Enabled() {
		mbClient, derr := metabalancer.Dial(transport.Config{ServiceName: cfg.Metabalancer.ServiceName, Addr: cfg.Metabalancer.TransportAddr})
		if derr != nil {
			return nil, fmt.Errorf("client: dial metabalancer: %w", derr)
		}
		c.mbClient = mbClient
		c.mbCache = metabalancer.NewCache(rnd, mbClient)
		period := time.Duration(cfg.Metabalancer.GroupWeightsRefreshPeriodSec) * time.Second
		c.mbWorker = metabalancer.NewWorker(mbClient, c.mbCache, period, log.WithField("component", "metabalancer"))
		go c.mbWorker.Run()
		cache = c.mbCache
	}

	c.sel = group.New(cfg, rnd, cache)
	c.write = write.New(cfg, sess, c.sel, log.WithField("component", "write"))
	c.read = read.New(cfg, sess, c.sel)
	c.bulk = bulk.New(cfg, sess, c.sel, log.WithField("component", "bulk"))

	c.metrics = telemetry.New(cfg.AppName)
	c.write.SetObserver(c.metrics)
	c.bulk.SetObserver(c.metrics)
	if cfg.MetricsAddr != "" {
		go telemetry.ServeHTTP(cfg.MetricsAddr)
	}
	c.metricsCtx, c.metricsCancel = context.WithCancel(context.Background())
	if cfg.GraphiteAddr != "" {
		if gerr := c.metrics.RunGraphiteExporter(c.metricsCtx, cfg.GraphiteAddr, 10*time.Second, log.WithField("component", "telemetry")); gerr != nil {
			return nil, fmt.Errorf("client: start graphite exporter: %w", gerr)
		}
	}

	return c, nil
}

// releasePartial tears down whatever New had already acquired, in
// reverse order, when construction fails partway through.
func (c *Client) releasePartial() {
	if c.metricsCancel != nil {
		c.metricsCancel()
	}
	if c.mbWorker != nil {
		c.mbWorker.Stop()
	}
	if c.mbClient != nil {
		_ = c.mbClient.Close()
	}
}

// Close joins the refresh worker and releases every resource New
// acquired, in reverse order (spec.md §5). In-flight operations are
// not cancelled.
func (c *Client) Close() error {
	c.releasePartial()
	return nil
}

// Ping reports whether the underlying session currently has at least
// die_limit live transport states.
func (c *Client) Ping() bool {
	return c.sess.LiveStateCount() >= c.cfg.DieLimit
}

// IDStr renders a debug identifier for key: the first 20 bytes of a
// resolved raw id, or a sha1 digest of the key's name when it has not
// yet been resolved, hex-encoded to 40 characters (spec.md §6). This is
// a debug aid only, never used to address an object.
func (c *Client) IDStr(key common.Key) string {
	if key.HasID {
		return hex.EncodeToString(key.ID[:20])
	}
	sum := sha1.Sum([]byte(key.Name))
	return hex.EncodeToString(sum[:])
}

// StatLog renders the session's per-node stats as a text table (spec.md
// §6), grounded on the teacher's console client's gotable rendering.
func (c *Client) StatLog(ctx context.Context) (string, error) {
	stats, err := c.sess.Stat(ctx)
	if err != nil {
		return "", common.Transport(err)
	}
	return statlog.Render(stats)
}

// Lookup resolves key's location in one group (spec.md §4.4, §6).
func (c *Client) Lookup(ctx context.Context, key common.Key, groups []common.GroupID) (common.LookupResult, error) {
	return c.read.Lookup(ctx, key, groups)
}

// LookupAddr collects the addresses of every group answering for key
// (spec.md §6).
func (c *Client) LookupAddr(ctx context.Context, key common.Key, groups []common.GroupID) ([]common.Remote, error) {
	return c.read.LookupAddr(ctx, key, groups)
}

// ReadRequest bundles a read() call's optional parameters (spec.md §6).
type ReadRequest struct {
	Offset   uint64
	Size     uint64
	Cflags   uint32
	Ioflags  uint32
	Groups   []common.GroupID
	Latest   bool
	Embedded bool
}

// Read fetches key's body and decodes its data container (spec.md §4.4).
func (c *Client) Read(ctx context.Context, key common.Key, req ReadRequest) (container.Container, common.GroupID, error) {
	start := time.Now()
	body, group, err := c.read.Read(ctx, read.Request{
		Key: key, Offset: req.Offset, Size: req.Size, Cflags: req.Cflags,
		Ioflags: req.Ioflags, Groups: req.Groups, Latest: req.Latest, Embedded: req.Embedded,
	})
	c.metrics.ObserveRead(time.Since(start), err)
	return body, group, err
}

// WriteRequest bundles a write() call's optional parameters (spec.md §6).
type WriteRequest struct {
	Offset      uint64
	Size        uint64
	Cflags      uint32
	Ioflags     uint32
	Groups      []common.GroupID
	SuccessMode *config.SuccessMode
}

// Write replicates data under key per the resolved acceptance policy
// (spec.md §4.3), returning one lookup entry per surviving group.
func (c *Client) Write(ctx context.Context, key common.Key, data []byte, req WriteRequest) ([]common.LookupResult, error) {
	start := time.Now()
	out, err := c.write.Write(ctx, write.Request{
		Key: key, Data: data, Offset: req.Offset, Size: req.Size, Cflags: req.Cflags,
		Ioflags: req.Ioflags, Groups: req.Groups, SuccessMode: req.SuccessMode,
	})
	c.metrics.ObserveWrite(time.Since(start), err)
	return out, err
}

// Remove is a best-effort delete against every group in groups,
// forwarded verbatim to the session (spec.md §1, §6).
func (c *Client) Remove(ctx context.Context, key common.Key, groups []common.GroupID) error {
	lgroups, err := c.sel.Select(groups, 0)
	if err != nil {
		return err
	}
	return c.sess.Remove(ctx, key, lgroups)
}

// RangeGet forwards a range scan to the read engine (spec.md §6).
func (c *Client) RangeGet(ctx context.Context, req read.RangeRequest) ([]string, error) {
	return c.read.RangeGet(ctx, req)
}

// BulkRead fetches many keys in one round trip (spec.md §4.5).
func (c *Client) BulkRead(ctx context.Context, req bulk.ReadRequest) (map[common.Key]container.Container, error) {
	return c.bulk.Read(ctx, req)
}

// BulkWrite replicates many keys in one round trip, rolling the whole
// batch back if any key fails acceptance (spec.md §4.5).
func (c *Client) BulkWrite(ctx context.Context, req bulk.WriteRequest) (map[common.Key][]common.LookupResult, error) {
	return c.bulk.Write(ctx, req)
}

// ExecScript forwards verbatim to the session (spec.md §1, §6).
func (c *Client) ExecScript(ctx context.Context, key common.Key, script string, data []byte, groups []common.GroupID) (string, error) {
	lgroups, err := c.sel.Select(groups, 0)
	if err != nil {
		return "", err
	}
	out, err := c.sess.ExecScript(ctx, key, script, data, lgroups)
	if err != nil {
		return "", common.Transport(err)
	}
	return out, nil
}

// UpdateIndexes, FindIndexes and CheckIndexes forward verbatim to the
// session (spec.md §1 "Secondary index maintenance").
func (c *Client) UpdateIndexes(ctx context.Context, key common.Key, indexes []string, data [][]byte) error {
	return c.sess.UpdateIndexes(ctx, key, indexes, data)
}

func (c *Client) FindIndexes(ctx context.Context, indexes []string) ([]common.Key, error) {
	return c.sess.FindIndexes(ctx, indexes)
}

func (c *Client) CheckIndexes(ctx context.Context, key common.Key) ([]string, error) {
	return c.sess.CheckIndexes(ctx, key)
}

// GetSymmetricGroups, GetBadGroups, GetAllGroups and
// GetMetabalancerGroupInfo answer the metabalancer queries of spec.md
// §6. All but GetAllGroups return MetabaseUnavailable when no
// metabalancer transport is configured; GetAllGroups returns no error.
func (c *Client) GetSymmetricGroups(ctx context.Context) ([]common.GroupID, error) {
	if c.mbClient == nil {
		return nil, common.ErrMetabaseUnavailable
	}
	return c.mbClient.SymmetricGroups(ctx)
}

func (c *Client) GetBadGroups(ctx context.Context) ([]common.GroupID, error) {
	if c.mbClient == nil {
		return nil, common.ErrMetabaseUnavailable
	}
	return c.mbClient.BadGroups(ctx)
}

// GetAllGroups is a local computation over the configured default
// groups and every group the weighted cache currently knows about,
// since the wire protocol has no single call for "every group".
func (c *Client) GetAllGroups() []common.GroupID {
	seen := make(map[common.GroupID]struct{})
	var out []common.GroupID
	add := func(g common.GroupID) {
		if _, ok := seen[g]; !ok {
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	for _, g := range c.cfg.DefaultGroups {
		add(g)
	}
	if c.mbCache != nil {
		for _, g := range c.mbCache.KnownGroups() {
			add(g)
		}
	}
	return out
}

func (c *Client) GetMetabalancerGroupInfo(ctx context.Context, g common.GroupID) (metabalancer.GroupInfo, error) {
	if c.mbClient == nil {
		return metabalancer.GroupInfo{}, common.ErrMetabaseUnavailable
	}
	return c.mbClient.GroupInfo(ctx, g)
}
