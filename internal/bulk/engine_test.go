package bulk

import (
	"context"
	"errors"
	"testing"

	"github.com/iderikon/libelliptics-proxy/internal/group"
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
	return New(cfg, sess, sel, nil), sess
}

func TestBulkWriteAllKeysSucceed(t *testing.T) {
	eng, _ := newEngine(t, testGroups(1, 2, 3))
	keys := []common.Key{common.KeyFromName("a", 0), common.KeyFromName("b", 0)}
	payloads := [][]byte{[]byte("va"), []byte("vb")}

	got, err := eng.Write(context.Background(), WriteRequest{Keys: keys, Payloads: payloads, Groups: testGroups(1, 2, 3)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(got) != 2 || len(got[keys[0]]) != 3 || len(got[keys[1]]) != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestBulkWriteRollsBackWholeBatchOnOneKeyFailure(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3))
	all := config.All
	sess.SetFault(3, fakesession.Fault{Down: true})

	keys := []common.Key{common.KeyFromName("a", 0), common.KeyFromName("b", 0)}
	payloads := [][]byte{[]byte("va"), []byte("vb")}

	_, err := eng.Write(context.Background(), WriteRequest{
		Keys: keys, Payloads: payloads, Groups: testGroups(1, 2, 3), SuccessMode: &all,
	})
	if !errors.Is(err, common.ErrBulkWriteRejected) {
		t.Fatalf("err = %v, want ErrBulkWriteRejected", err)
	}
	removes := sess.RemoveLog()
	if len(removes) != 2 {
		t.Fatalf("removes = %v, want one compensating remove per key", removes)
	}
}

func TestBulkReadFansResultsBackByKey(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1))
	keys := []common.Key{common.KeyFromName("a", 0), common.KeyFromName("b", 0)}
	_, err := eng.Write(context.Background(), WriteRequest{
		Keys: keys, Payloads: [][]byte{[]byte("va"), []byte("vb")}, Groups: testGroups(1),
	})
	if err != nil {
		t.Fatalf("seed write: %v", err)
	}
	_ = sess

	got, err := eng.Read(context.Background(), ReadRequest{Keys: keys, Groups: testGroups(1)})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got[keys[0]].Payload) != "va" || string(got[keys[1]].Payload) != "vb" {
		t.Fatalf("got %+v", got)
	}
}

func TestBulkReadOmitsMissingKeys(t *testing.T) {
	eng, _ := newEngine(t, testGroups(1))
	present := common.KeyFromName("present", 0)
	missing := common.KeyFromName("missing", 0)
	if _, err := eng.Write(context.Background(), WriteRequest{
		Keys: []common.Key{present}, Payloads: [][]byte{[]byte("v")}, Groups: testGroups(1),
	}); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	got, err := eng.Read(context.Background(), ReadRequest{Keys: []common.Key{present, missing}, Groups: testGroups(1)})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := got[missing]; ok {
		t.Fatalf("missing key unexpectedly present: %+v", got)
	}
	if string(got[present].Payload) != "v" {
		t.Fatalf("got %+v", got)
	}
}
