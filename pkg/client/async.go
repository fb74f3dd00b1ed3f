package client

import (
	"context"

	"github.com/iderikon/libelliptics-proxy/internal/bulk"
	"github.com/iderikon/libelliptics-proxy/internal/container"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// Handle is the awaitable result of an *Async call (spec.md §5's
// "awaitable handle", §6's "*_async variants"). The publishing goroutine
// is the Go stand-in for "the underlying session's I/O thread" the
// original assumes; this rewrite's session contract is synchronous, so
// the goroutine plays that role instead.
type Handle[T any] struct {
	ch chan result[T]
}

type result[T any] struct {
	val T
	err error
}

func newHandle[T any]() (*Handle[T], chan<- result[T]) {
	ch := make(chan result[T], 1)
	return &Handle[T]{ch: ch}, ch
}

// Get blocks until the call completes and returns its result.
func (h *Handle[T]) Get() (T, error) {
	r := <-h.ch
	return r.val, r.err
}

// GetOne is Get with the error discarded, for callers that only want
// the value or a zero value on failure.
func (h *Handle[T]) GetOne() T {
	v, _ := h.Get()
	return v
}

func run[T any](fn func() (T, error)) *Handle[T] {
	h, publish := newHandle[T]()
	go func() {
		v, err := fn()
		publish <- result[T]{val: v, err: err}
	}()
	return h
}

// ReadResult bundles Read's two return values for the async variant.
type ReadResult struct {
	Container container.Container
	Group     common.GroupID
}

func (c *Client) ReadAsync(ctx context.Context, key common.Key, req ReadRequest) *Handle[ReadResult] {
	return run(func() (ReadResult, error) {
		body, group, err := c.Read(ctx, key, req)
		return ReadResult{Container: body, Group: group}, err
	})
}

func (c *Client) WriteAsync(ctx context.Context, key common.Key, data []byte, req WriteRequest) *Handle[[]common.LookupResult] {
	return run(func() ([]common.LookupResult, error) { return c.Write(ctx, key, data, req) })
}

func (c *Client) LookupAsync(ctx context.Context, key common.Key, groups []common.GroupID) *Handle[common.LookupResult] {
	return run(func() (common.LookupResult, error) { return c.Lookup(ctx, key, groups) })
}

func (c *Client) RemoveAsync(ctx context.Context, key common.Key, groups []common.GroupID) *Handle[struct{}] {
	return run(func() (struct{}, error) { return struct{}{}, c.Remove(ctx, key, groups) })
}

func (c *Client) BulkReadAsync(ctx context.Context, req bulk.ReadRequest) *Handle[map[common.Key]container.Container] {
	return run(func() (map[common.Key]container.Container, error) { return c.BulkRead(ctx, req) })
}

func (c *Client) BulkWriteAsync(ctx context.Context, req bulk.WriteRequest) *Handle[map[common.Key][]common.LookupResult] {
	return run(func() (map[common.Key][]common.LookupResult, error) { return c.BulkWrite(ctx, req) })
}
