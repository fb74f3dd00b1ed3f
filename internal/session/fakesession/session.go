package fakesession

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/iderikon/libelliptics-proxy/internal/container"
	"github.com/iderikon/libelliptics-proxy/internal/session"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

var errNoSuchGroup = errors.New("fakesession: no such group")

// Fault lets a test script a group to fail its Nth call (1-based,
// counted across every Write, Read and Lookup call to that group since
// the Session was created, whatever the key) with a given error,
// modelling scenarios like S5 where group 2 errors specifically on the
// second chunk.
type Fault struct {
	Group    common.GroupID
	AtCall   int
	Err      error
	// Down, when true, makes every call to Group fail immediately
	// regardless of AtCall/Err (a fully unreachable group).
	Down bool
}

// Session is the leveldb-backed reference Session used by this
// module's own tests.
type Session struct {
	mu sync.Mutex

	stores map[common.GroupID]*groupStore
	faults map[common.GroupID]Fault
	calls  map[common.GroupID]int // Write/Read/Lookup calls observed per group since New

	liveOverride *int

	indexes map[string]map[string][][]byte // index name -> key string -> data
	keys    map[string]common.Key          // raw id hex -> original key, for FindIndexes

	writeLog  []WriteCall
	removeLog [][]common.GroupID
}

// WriteCall records one attempted Write against one group, for tests
// that assert on the exact chunk/compensation sequence issued by the
// write engine (spec.md §8 property 3, scenarios S4/S5).
type WriteCall struct {
	Group  common.GroupID
	Kind   session.WriteKind
	Offset uint64
	Length int
	Failed bool
}

func New(groups []common.GroupID) (*Session, error) {
	s := &Session{
		stores:  map[common.GroupID]*groupStore{},
		faults:  map[common.GroupID]Fault{},
		calls:   map[common.GroupID]int{},
		indexes: map[string]map[string][][]byte{},
		keys:    map[string]common.Key{},
	}
	for _, g := range groups {
		gs, err := newGroupStore()
		if err != nil {
			return nil, err
		}
		s.stores[g] = gs
	}
	return s, nil
}

// SetFault installs (or clears, with a zero Fault) a fault for group.
func (s *Session) SetFault(group common.GroupID, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Group = group
	s.faults[group] = f
}

func (s *Session) SetLiveStateCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveOverride = &n
}

func (s *Session) LiveStateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liveOverride != nil {
		return *s.liveOverride
	}
	return len(s.stores)
}

// WriteLog returns every Write attempt observed so far, in call order.
func (s *Session) WriteLog() []WriteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WriteCall, len(s.writeLog))
	copy(out, s.writeLog)
	return out
}

func (s *Session) ResetWriteLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLog = nil
}

// RemoveLog returns the group sets passed to every Remove call
// observed so far, in call order.
func (s *Session) RemoveLog() [][]common.GroupID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]common.GroupID, len(s.removeLog))
	copy(out, s.removeLog)
	return out
}

func (s *Session) TransformKey(_ context.Context, name string, typ uint32) (common.RawID, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", typ, name)))
	var id common.RawID
	copy(id[:], sum[:])
	return id, nil
}

func storeKey(id common.RawID, typ uint32) string {
	return fmt.Sprintf("%d/%s", typ, id.String())
}

func resolveID(ctx context.Context, s *Session, key common.Key) (common.RawID, error) {
	if key.HasID {
		return key.ID, nil
	}
	return s.TransformKey(ctx, key.Name, key.Type)
}

// checkFault returns a non-nil error if group should fail this call,
// bumping the group's call counter as a side effect.
func (s *Session) checkFault(group common.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[group]++
	f, ok := s.faults[group]
	if !ok {
		return nil
	}
	if f.Down {
		return fmt.Errorf("fakesession: group %d unreachable", group)
	}
	if f.AtCall != 0 && s.calls[group] == f.AtCall {
		if f.Err != nil {
			return f.Err
		}
		return fmt.Errorf("fakesession: group %d faulted at call %d", group, f.AtCall)
	}
	return nil
}

func (s *Session) logWrite(group common.GroupID, kind session.WriteKind, offset uint64, length int, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLog = append(s.writeLog, WriteCall{Group: group, Kind: kind, Offset: offset, Length: length, Failed: failed})
}

func (s *Session) store(group common.GroupID) (*groupStore, error) {
	s.mu.Lock()
	gs, ok := s.stores[group]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", errNoSuchGroup, group)
	}
	return gs, nil
}

func (s *Session) Write(ctx context.Context, kind session.WriteKind, key common.Key, groups []common.GroupID,
	data []byte, offset uint64, reservedSize uint64, cflags, ioflags uint32) ([]common.RawWriteResult, error) {

	id, err := resolveID(ctx, s, key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.keys[id.String()] = key
	s.mu.Unlock()

	skey := storeKey(id, key.Type)
	results := make([]common.RawWriteResult, 0, len(groups))
	for _, g := range groups {
		if err := s.checkFault(g); err != nil {
			s.logWrite(g, kind, offset, len(data), true)
			results = append(results, common.RawWriteResult{Group: g, Err: err})
			continue
		}
		gs, err := s.store(g)
		if err != nil {
			s.logWrite(g, kind, offset, len(data), true)
			results = append(results, common.RawWriteResult{Group: g, Err: err})
			continue
		}
		s.logWrite(g, kind, offset, len(data), false)
		if kind == session.WritePrepare && reservedSize > 0 {
			// reserve the full object up front, then lay the first
			// chunk over it.
			if err := gs.writeAt(skey, 0, make([]byte, reservedSize)); err != nil {
				results = append(results, common.RawWriteResult{Group: g, Err: err})
				continue
			}
		}
		// Metadata finalize updates only the object's side-channel
		// metadata, never its body bytes.
		if kind != session.WriteMetadata {
			if err := gs.writeAt(skey, offset, data); err != nil {
				results = append(results, common.RawWriteResult{Group: g, Err: err})
				continue
			}
		}
		results = append(results, common.RawWriteResult{
			Group: g,
			Loc: common.RawLocation{
				Group:     g,
				Host:      "127.0.0.1",
				Port:      1024,
				Family:    2,
				BackendID: fmt.Sprintf("/data/group-%d/%s", g, id.String()),
			},
		})
	}
	return results, nil
}

func (s *Session) Remove(ctx context.Context, key common.Key, groups []common.GroupID) error {
	s.mu.Lock()
	s.removeLog = append(s.removeLog, append([]common.GroupID(nil), groups...))
	s.mu.Unlock()

	id, err := resolveID(ctx, s, key)
	if err != nil {
		return err
	}
	skey := storeKey(id, key.Type)
	var firstErr error
	for _, g := range groups {
		gs, err := s.store(g)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := gs.delete(skey); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Session) Read(ctx context.Context, key common.Key, group common.GroupID, offset, size uint64, cflags, ioflags uint32) ([]byte, error) {
	if err := s.checkFault(group); err != nil {
		return nil, err
	}
	id, err := resolveID(ctx, s, key)
	if err != nil {
		return nil, err
	}
	gs, err := s.store(group)
	if err != nil {
		return nil, err
	}
	v, ok, err := gs.get(storeKey(id, key.Type))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotFound
	}
	return sliceRange(v, offset, size), nil
}

func sliceRange(v []byte, offset, size uint64) []byte {
	if offset >= uint64(len(v)) {
		return nil
	}
	end := uint64(len(v))
	if size > 0 && offset+size < end {
		end = offset + size
	}
	return v[offset:end]
}

func (s *Session) ReadLatest(ctx context.Context, key common.Key, groups []common.GroupID, offset, size uint64, cflags, ioflags uint32) ([]byte, common.GroupID, error) {
	var bestGroup common.GroupID
	var bestBody []byte
	var bestTS *container.Timestamp
	found := false

	for _, g := range groups {
		body, err := s.Read(ctx, key, g, offset, size, cflags, ioflags)
		if err != nil {
			continue
		}
		var ts *container.Timestamp
		if c, err := container.Unpack(body, true); err == nil {
			ts = c.Timestamp
		}
		if !found {
			bestGroup, bestBody, bestTS, found = g, body, ts, true
			continue
		}
		if ts != nil && (bestTS == nil || ts.Sec > bestTS.Sec || (ts.Sec == bestTS.Sec && ts.Nsec > bestTS.Nsec)) {
			bestGroup, bestBody, bestTS = g, body, ts
		}
	}
	if !found {
		return nil, 0, common.ErrNotFound
	}
	return bestBody, bestGroup, nil
}

func (s *Session) Lookup(ctx context.Context, key common.Key, group common.GroupID) (common.RawLocation, error) {
	if err := s.checkFault(group); err != nil {
		return common.RawLocation{}, err
	}
	id, err := resolveID(ctx, s, key)
	if err != nil {
		return common.RawLocation{}, err
	}
	gs, err := s.store(group)
	if err != nil {
		return common.RawLocation{}, err
	}
	_, ok, err := gs.get(storeKey(id, key.Type))
	if err != nil {
		return common.RawLocation{}, err
	}
	if !ok {
		return common.RawLocation{}, common.ErrNotFound
	}
	return common.RawLocation{
		Group:     group,
		Host:      "127.0.0.1",
		Port:      1024,
		Family:    2,
		BackendID: fmt.Sprintf("/data/group-%d/%s", group, id.String()),
	}, nil
}

func (s *Session) LookupAddr(ctx context.Context, key common.Key, group common.GroupID) (common.Remote, error) {
	loc, err := s.Lookup(ctx, key, group)
	if err != nil {
		return common.Remote{}, err
	}
	return common.Remote{Host: loc.Host, Port: loc.Port, Family: loc.Family}, nil
}

func (s *Session) RangeGet(ctx context.Context, from, to common.Key, limitStart, limitNum int, cflags, ioflags uint32, groups []common.GroupID, referenceKey *common.Key) ([]string, error) {
	if len(groups) == 0 {
		return nil, common.ErrNoGroups
	}
	gs, err := s.store(groups[0])
	if err != nil {
		return nil, err
	}
	fromID, err := resolveID(ctx, s, from)
	if err != nil {
		return nil, err
	}
	toID, err := resolveID(ctx, s, to)
	if err != nil {
		return nil, err
	}
	_, vals, err := gs.rangeKeys(storeKey(fromID, from.Type), storeKey(toID, to.Type))
	if err != nil {
		return nil, err
	}
	if limitStart > 0 && limitStart < len(vals) {
		vals = vals[limitStart:]
	}
	if limitNum > 0 && limitNum < len(vals) {
		vals = vals[:limitNum]
	}

	if ioflags&common.IOFlagNoData != 0 {
		return []string{strconv.Itoa(len(vals))}, nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out, nil
}

func (s *Session) BulkRead(ctx context.Context, ids []common.RawID, groups []common.GroupID, cflags uint32) (map[common.RawID][]byte, error) {
	if len(groups) == 0 {
		return nil, common.ErrNoGroups
	}
	gs, err := s.store(groups[0])
	if err != nil {
		return nil, err
	}
	out := map[common.RawID][]byte{}
	for _, id := range ids {
		// bulk keys are typed 0 by convention when the caller only has
		// a raw id (BulkWrite below stores them under type 0 too).
		v, ok, err := gs.get(storeKey(id, 0))
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = v
		}
	}
	return out, nil
}

func (s *Session) BulkWrite(ctx context.Context, ids []common.RawID, payloads [][]byte, groups []common.GroupID, cflags uint32) (map[common.RawID][]common.RawWriteResult, error) {
	out := map[common.RawID][]common.RawWriteResult{}
	for i, id := range ids {
		key := common.KeyFromID(id, 0)
		results, err := s.Write(ctx, session.WriteOneShot, key, groups, payloads[i], 0, 0, cflags, 0)
		if err != nil {
			return nil, err
		}
		out[id] = results
	}
	return out, nil
}

func (s *Session) ExecScript(ctx context.Context, key common.Key, script string, data []byte, groups []common.GroupID) (string, error) {
	return fmt.Sprintf("exec(%s): %d bytes in", script, len(data)), nil
}

func (s *Session) UpdateIndexes(ctx context.Context, key common.Key, indexes []string, data [][]byte) error {
	id, err := resolveID(ctx, s, key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id.String()] = key
	for i, idx := range indexes {
		if s.indexes[idx] == nil {
			s.indexes[idx] = map[string][][]byte{}
		}
		var payload []byte
		if i < len(data) {
			payload = data[i]
		}
		s.indexes[idx][id.String()] = append(s.indexes[idx][id.String()], payload)
	}
	return nil
}

func (s *Session) FindIndexes(ctx context.Context, indexes []string) ([]common.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []common.Key
	for _, idx := range indexes {
		for idKey := range s.indexes[idx] {
			if seen[idKey] {
				continue
			}
			seen[idKey] = true
			if k, ok := s.keys[idKey]; ok {
				out = append(out, k)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *Session) CheckIndexes(ctx context.Context, key common.Key) ([]string, error) {
	id, err := resolveID(ctx, s, key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for idx, members := range s.indexes {
		if _, ok := members[id.String()]; ok {
			out = append(out, idx)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Session) Stat(ctx context.Context) ([]common.NodeStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.NodeStat, 0, len(s.stores))
	for g := range s.stores {
		out = append(out, common.NodeStat{
			NodeID:      int(g),
			Host:        fmt.Sprintf("group-%d", g),
			LoadAvg1:    0.1,
			MemTotalMB:  1024,
			MemFreeMB:   512,
			StorageMB:   4096,
			AvailableMB: 2048,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gs := range s.stores {
		gs.close()
	}
}

var _ session.Session = (*Session)(nil)
