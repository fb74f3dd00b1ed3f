package read

import (
	"context"
	"errors"
	"testing"

	"github.com/iderikon/libelliptics-proxy/internal/container"
	"github.com/iderikon/libelliptics-proxy/internal/group"
	"github.com/iderikon/libelliptics-proxy/internal/session"
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

func newEngine(t *testing.T, groups []common.GroupID) (*Engine, *fakesession.Session) {
	t.Helper()
	sess, err := fakesession.New(groups)
	if err != nil {
		t.Fatalf("new fakesession: %v", err)
	}
	cfg := config.Default()
	sel := group.New(cfg, common.MakeThreadSafeRand(1), nil)
	return New(cfg, sess, sel), sess
}

func mustWrite(t *testing.T, sess *fakesession.Session, key common.Key, groups []common.GroupID, data []byte) {
	t.Helper()
	if _, err := sess.Write(context.Background(), session.WriteOneShot, key, groups, data, 0, 0, 0, 0); err != nil {
		t.Fatalf("seed write: %v", err)
	}
}

func TestReadFallsBackToNextHealthyGroup(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3))
	key := common.KeyFromName("obj", 0)
	mustWrite(t, sess, key, testGroups(2, 3), []byte("payload"))
	sess.SetFault(1, fakesession.Fault{Down: true})

	c, from, err := eng.Read(context.Background(), Request{Key: key, Groups: testGroups(1, 2, 3)})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if from != 2 {
		t.Fatalf("from = %d, want 2 (first healthy group)", from)
	}
	if string(c.Payload) != "payload" {
		t.Fatalf("payload = %q", c.Payload)
	}
}

func TestReadFailsNotFoundWhenEveryGroupErrors(t *testing.T) {
	eng, _ := newEngine(t, testGroups(1, 2, 3))
	key := common.KeyFromName("missing", 0)

	_, _, err := eng.Read(context.Background(), Request{Key: key, Groups: testGroups(1, 2, 3)})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReadLatestPicksNewestTimestamp(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2))
	key := common.KeyFromName("obj", 0)

	older := container.Pack(container.Embedded([]byte("old"), container.Timestamp{Sec: 100}))
	newer := container.Pack(container.Embedded([]byte("new"), container.Timestamp{Sec: 200}))
	mustWrite(t, sess, key, testGroups(1), older)
	mustWrite(t, sess, key, testGroups(2), newer)

	c, from, err := eng.Read(context.Background(), Request{Key: key, Groups: testGroups(1, 2), Latest: true, Embedded: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if from != 2 || string(c.Payload) != "new" {
		t.Fatalf("got from=%d payload=%q, want group 2 / \"new\"", from, c.Payload)
	}
}

func TestReadEmbeddedCorruptFraming(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1))
	key := common.KeyFromName("obj", 0)
	mustWrite(t, sess, key, testGroups(1), []byte{0, 0, 0, 0, 0, 0, 0, 100, 0, 0, 0, 1, 0, 0, 0, 0})

	_, _, err := eng.Read(context.Background(), Request{Key: key, Groups: testGroups(1), Embedded: true})
	if !errors.Is(err, common.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestLookupEliminationLoopDropsFailingGroups(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3))
	key := common.KeyFromName("obj", 0)
	mustWrite(t, sess, key, testGroups(3), []byte("v"))
	sess.SetFault(1, fakesession.Fault{Down: true})
	sess.SetFault(2, fakesession.Fault{Down: true})

	got, err := eng.Lookup(context.Background(), key, testGroups(1, 2, 3))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Group != 3 {
		t.Fatalf("group = %d, want 3", got.Group)
	}
}

func TestLookupFailsNotFoundWhenAllGroupsEliminated(t *testing.T) {
	eng, _ := newEngine(t, testGroups(1, 2))
	key := common.KeyFromName("missing", 0)

	_, err := eng.Lookup(context.Background(), key, testGroups(1, 2))
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
