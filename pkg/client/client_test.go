package client

import (
	"context"
	"errors"
	"testing"

	"github.com/iderikon/libelliptics-proxy/internal/bulk"
	"github.com/iderikon/libelliptics-proxy/internal/session/fakesession"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

func testGroups(ids ...int) []common.GroupID {
	out := make([]common.GroupID, len(ids))
	for i, id := range ids {
		out[i] = common.GroupID(id)
	}
	return out
}

func newClient(t *testing.T, groups []common.GroupID) (*Client, *fakesession.Session) {
	t.Helper()
	sess, err := fakesession.New(groups)
	if err != nil {
		t.Fatalf("new fakesession: %v", err)
	}
	cfg := config.Default()
	cfg.DefaultGroups = groups
	cfg.LogLevel = "error"
	c, err := New(cfg, sess)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, sess
}

func TestClientWriteThenRead(t *testing.T) {
	c, _ := newClient(t, testGroups(1, 2, 3))
	key := common.KeyFromName("obj", 0)

	locs, err := c.Write(context.Background(), key, []byte("hello"), WriteRequest{Groups: testGroups(1, 2, 3)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(locs) != 3 {
		t.Fatalf("len(locs) = %d, want 3", len(locs))
	}

	body, from, err := c.Read(context.Background(), key, ReadRequest{Groups: testGroups(1, 2, 3)})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body.Payload) != "hello" {
		t.Fatalf("payload = %q", body.Payload)
	}
	if from == 0 {
		t.Fatalf("from group unset")
	}
}

func TestClientPing(t *testing.T) {
	c, sess := newClient(t, testGroups(1, 2, 3))
	if !c.Ping() {
		t.Fatalf("ping = false, want true with healthy session")
	}
	sess.SetLiveStateCount(0)
	if c.Ping() {
		t.Fatalf("ping = true, want false after live state count drops below die_limit")
	}
}

func TestClientIDStr(t *testing.T) {
	c, _ := newClient(t, testGroups(1))
	named := c.IDStr(common.KeyFromName("obj", 0))
	if len(named) != 40 {
		t.Fatalf("len(IDStr) = %d, want 40", len(named))
	}
	id := common.RawID{}
	id[0] = 0xab
	withID := c.IDStr(common.KeyFromID(id, 0))
	if len(withID) != 40 {
		t.Fatalf("len(IDStr) = %d, want 40", len(withID))
	}
}

func TestClientWriteAsync(t *testing.T) {
	c, _ := newClient(t, testGroups(1, 2, 3))
	key := common.KeyFromName("obj-async", 0)

	h := c.WriteAsync(context.Background(), key, []byte("v"), WriteRequest{Groups: testGroups(1, 2, 3)})
	locs, err := h.Get()
	if err != nil {
		t.Fatalf("write async: %v", err)
	}
	if len(locs) != 3 {
		t.Fatalf("len(locs) = %d, want 3", len(locs))
	}
}

func TestClientBulkWriteRollsBackOnFailure(t *testing.T) {
	c, sess := newClient(t, testGroups(1, 2, 3))
	all := config.All
	sess.SetFault(3, fakesession.Fault{Down: true})

	keys := []common.Key{common.KeyFromName("a", 0), common.KeyFromName("b", 0)}
	_, err := c.BulkWrite(context.Background(), bulk.WriteRequest{
		Keys: keys, Payloads: [][]byte{[]byte("va"), []byte("vb")}, Groups: testGroups(1, 2, 3), SuccessMode: &all,
	})
	if !errors.Is(err, common.ErrBulkWriteRejected) {
		t.Fatalf("err = %v, want ErrBulkWriteRejected", err)
	}
}

func TestClientGetAllGroupsUsesDefaults(t *testing.T) {
	c, _ := newClient(t, testGroups(1, 2, 3))
	got := c.GetAllGroups()
	if len(got) != 3 {
		t.Fatalf("GetAllGroups() = %v, want 3 default groups", got)
	}
}

func TestClientMetabalancerQueriesUnavailableWithoutTransport(t *testing.T) {
	c, _ := newClient(t, testGroups(1))
	if _, err := c.GetSymmetricGroups(context.Background()); !errors.Is(err, common.ErrMetabaseUnavailable) {
		t.Fatalf("err = %v, want ErrMetabaseUnavailable", err)
	}
}
