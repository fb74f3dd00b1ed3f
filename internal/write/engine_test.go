package write

import (
	"context"
	"errors"
	"testing"

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

func newEngine(t *testing.T, groups []common.GroupID, chunkSize int) (*Engine, *fakesession.Session) {
	t.Helper()
	sess, err := fakesession.New(groups)
	if err != nil {
		t.Fatalf("new fakesession: %v", err)
	}
	cfg := config.Default()
	cfg.ChunkSize = chunkSize
	sel := group.New(cfg, common.MakeThreadSafeRand(1), nil)
	return New(cfg, sess, sel, nil), sess
}

func bodyWrites(log []fakesession.WriteCall) []fakesession.WriteCall {
	out := make([]fakesession.WriteCall, 0, len(log))
	for _, c := range log {
		if c.Kind != session.WriteMetadata {
			out = append(out, c)
		}
	}
	return out
}

// S1: R=3, QUORUM, chunk_size=0, 3 groups all succeed -> 3 lookups, no
// compensation.
func TestWriteS1AllGroupsSucceed(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3), 0)
	got, err := eng.Write(context.Background(), Request{
		Key: common.KeyFromName("obj-s1", 0), Data: []byte("hello"), Groups: testGroups(1, 2, 3),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if len(sess.RemoveLog()) != 0 {
		t.Fatalf("unexpected compensation calls: %v", sess.RemoveLog())
	}
}

// S2: R=3, QUORUM, chunk_size=0, group 3 fails -> 2 lookups (quorum
// satisfied); compensation issued only against group 3.
func TestWriteS2QuorumSurvivesOneFailure(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3), 0)
	sess.SetFault(3, fakesession.Fault{Down: true})

	got, err := eng.Write(context.Background(), Request{
		Key: common.KeyFromName("obj-s2", 0), Data: []byte("hello"), Groups: testGroups(1, 2, 3),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	removes := sess.RemoveLog()
	if len(removes) != 1 || len(removes[0]) != 1 || removes[0][0] != 3 {
		t.Fatalf("removes = %v, want [[3]]", removes)
	}
}

// S3: R=3, ALL, group 3 fails -> WriteRejected; remove issued against
// {1,2,3}.
func TestWriteS3AllModeRejectsAndCompensatesEveryGroup(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3), 0)
	sess.SetFault(3, fakesession.Fault{Down: true})
	all := config.All

	_, err := eng.Write(context.Background(), Request{
		Key: common.KeyFromName("obj-s3", 0), Data: []byte("hello"), Groups: testGroups(1, 2, 3), SuccessMode: &all,
	})
	if !errors.Is(err, common.ErrWriteRejected) {
		t.Fatalf("err = %v, want ErrWriteRejected", err)
	}
	removes := sess.RemoveLog()
	if len(removes) != 1 || len(removes[0]) != 3 {
		t.Fatalf("removes = %v, want one call against all 3 groups", removes)
	}
}

// S4: R=3, QUORUM, chunk_size=1024, body of 3000 bytes, all healthy ->
// prepare(0,1024), plain(1024,1024), commit(2048,952); 3 lookups.
func TestWriteS4ChunkedSequenceAllHealthy(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3), 1024)
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i)
	}

	got, err := eng.Write(context.Background(), Request{
		Key: common.KeyFromName("obj-s4", 0), Data: data, Groups: testGroups(1, 2, 3),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}

	group1Calls := []fakesession.WriteCall{}
	for _, c := range bodyWrites(sess.WriteLog()) {
		if c.Group == 1 {
			group1Calls = append(group1Calls, c)
		}
	}
	if len(group1Calls) != 3 {
		t.Fatalf("group 1 saw %d body calls, want 3: %+v", len(group1Calls), group1Calls)
	}
	wantKinds := []session.WriteKind{session.WritePrepare, session.WritePlain, session.WriteCommit}
	wantOffsets := []uint64{0, 1024, 2048}
	wantLengths := []int{1024, 1024, 952}
	for i, c := range group1Calls {
		if c.Kind != wantKinds[i] || c.Offset != wantOffsets[i] || c.Length != wantLengths[i] {
			t.Fatalf("chunk %d = %+v, want kind=%v offset=%d length=%d", i, c, wantKinds[i], wantOffsets[i], wantLengths[i])
		}
	}
}

// S5: R=3, QUORUM, chunk_size=1024, body 3000 bytes, group 2 errors on
// the second chunk -> third chunk issued only against {1,3}; final
// result has 2 lookups; compensation remove issued against group 2.
func TestWriteS5MidStreamFailureShrinksSurvivingSet(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3), 1024)
	sess.SetFault(2, fakesession.Fault{AtCall: 2})
	data := make([]byte, 3000)

	got, err := eng.Write(context.Background(), Request{
		Key: common.KeyFromName("obj-s5", 0), Data: data, Groups: testGroups(1, 2, 3),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}

	var group3Third fakesession.WriteCall
	count := 0
	for _, c := range bodyWrites(sess.WriteLog()) {
		if c.Group == 3 {
			count++
			if count == 3 {
				group3Third = c
			}
		}
	}
	if count != 3 || group3Third.Kind != session.WriteCommit {
		t.Fatalf("group 3 should still receive the commit chunk, saw %d calls, last=%+v", count, group3Third)
	}
	var group2Calls int
	for _, c := range bodyWrites(sess.WriteLog()) {
		if c.Group == 2 {
			group2Calls++
		}
	}
	if group2Calls != 2 {
		t.Fatalf("group 2 should drop out after its 2nd call, saw %d calls", group2Calls)
	}

	removes := sess.RemoveLog()
	if len(removes) != 1 || len(removes[0]) != 1 || removes[0][0] != 2 {
		t.Fatalf("removes = %v, want [[2]]", removes)
	}
}

func TestWriteFailsWithTooFewStates(t *testing.T) {
	eng, sess := newEngine(t, testGroups(1, 2, 3), 0)
	sess.SetLiveStateCount(0)

	_, err := eng.Write(context.Background(), Request{
		Key: common.KeyFromName("obj", 0), Data: []byte("x"), Groups: testGroups(1, 2, 3),
	})
	if !errors.Is(err, common.ErrTooFewStates) {
		t.Fatalf("err = %v, want ErrTooFewStates", err)
	}
}
