// Wire messages exchanged with the metadata balancer service
// "mastermind" (spec.md §4.6, §6). There are no generated
// msgp.Marshal/Unmarshal types for these ad hoc maps, so EncodeMsg/
// DecodeMsg are hand-written directly against the msgp.Writer/Reader
// primitives, the same low-level API internal/transport/codec uses to
// bridge rpcx to msgpack.
package metabalancer

import (
	"github.com/Allen1211/msgp/msgp"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// WeightsRequest is {stamp: u64}; the stamp only needs to be
// monotonically increasing from this client's point of view (spec.md
// §4.6 "locally it is only bumped per request").
type WeightsRequest struct {
	Stamp uint64
}

func (r *WeightsRequest) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(1); err != nil {
		return err
	}
	if err := w.WriteString("stamp"); err != nil {
		return err
	}
	return w.WriteUint64(r.Stamp)
}

func (r *WeightsRequest) DecodeMsg(dc *msgp.Reader) error {
	n, err := dc.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		key, err := dc.ReadString()
		if err != nil {
			return err
		}
		switch key {
		case "stamp":
			if r.Stamp, err = dc.ReadUint64(); err != nil {
				return err
			}
		default:
			if err := dc.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

// WeightEntry is one (groups, weight) pair for a given group-set size.
type WeightEntry struct {
	Groups []common.GroupID
	Weight float64
}

// WeightsResponse is the mastermind's `size -> [(groups, weight), ...]`
// mapping (spec.md §4.6).
type WeightsResponse struct {
	BySize map[int][]WeightEntry
}

func (r *WeightsResponse) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(uint32(len(r.BySize))); err != nil {
		return err
	}
	for size, entries := range r.BySize {
		if err := w.WriteInt(size); err != nil {
			return err
		}
		if err := w.WriteArrayHeader(uint32(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := w.WriteArrayHeader(2); err != nil {
				return err
			}
			if err := w.WriteArrayHeader(uint32(len(e.Groups))); err != nil {
				return err
			}
			for _, g := range e.Groups {
				if err := w.WriteInt(int(g)); err != nil {
					return err
				}
			}
			if err := w.WriteFloat64(e.Weight); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *WeightsResponse) DecodeMsg(dc *msgp.Reader) error {
	n, err := dc.ReadMapHeader()
	if err != nil {
		return err
	}
	r.BySize = make(map[int][]WeightEntry, n)
	for i := uint32(0); i < n; i++ {
		size, err := dc.ReadInt()
		if err != nil {
			return err
		}
		listLen, err := dc.ReadArrayHeader()
		if err != nil {
			return err
		}
		entries := make([]WeightEntry, 0, listLen)
		for j := uint32(0); j < listLen; j++ {
			if _, err := dc.ReadArrayHeader(); err != nil { // pair header, always 2
				return err
			}
			groupsLen, err := dc.ReadArrayHeader()
			if err != nil {
				return err
			}
			groups := make([]common.GroupID, groupsLen)
			for k := uint32(0); k < groupsLen; k++ {
				g, err := dc.ReadInt()
				if err != nil {
					return err
				}
				groups[k] = common.GroupID(g)
			}
			weight, err := dc.ReadFloat64()
			if err != nil {
				return err
			}
			entries = append(entries, WeightEntry{Groups: groups, Weight: weight})
		}
		r.BySize[size] = entries
	}
	return nil
}

// GroupInfoRequest asks the mastermind for one group's cohorts.
type GroupInfoRequest struct {
	Group common.GroupID
}

func (r *GroupInfoRequest) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(1); err != nil {
		return err
	}
	if err := w.WriteString("group"); err != nil {
		return err
	}
	return w.WriteInt(int(r.Group))
}

func (r *GroupInfoRequest) DecodeMsg(dc *msgp.Reader) error {
	n, err := dc.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		key, err := dc.ReadString()
		if err != nil {
			return err
		}
		switch key {
		case "group":
			g, err := dc.ReadInt()
			if err != nil {
				return err
			}
			r.Group = common.GroupID(g)
		default:
			if err := dc.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

// GroupInfoStatus is the metabalancer's view of a group's health
// (spec.md §4.6).
type GroupInfoStatus int

const (
	GroupInfoUnknown GroupInfoStatus = iota
	GroupInfoBad
	GroupInfoCoupled
)

func parseGroupInfoStatus(s string) GroupInfoStatus {
	switch s {
	case "bad":
		return GroupInfoBad
	case "coupled":
		return GroupInfoCoupled
	default:
		return GroupInfoUnknown
	}
}

func (s GroupInfoStatus) String() string {
	switch s {
	case GroupInfoBad:
		return "bad"
	case GroupInfoCoupled:
		return "coupled"
	default:
		return "unknown"
	}
}

// GroupInfo is get_metabalancer_group_info(group)'s decoded reply
// (spec.md §4.6, §6).
type GroupInfo struct {
	Couples [][]common.GroupID
	Status  GroupInfoStatus
}

type GroupInfoResponse struct {
	Couples [][]common.GroupID
	Status  string
}

func (r *GroupInfoResponse) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(2); err != nil {
		return err
	}
	if err := w.WriteString("couples"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(r.Couples))); err != nil {
		return err
	}
	for _, couple := range r.Couples {
		if err := w.WriteArrayHeader(uint32(len(couple))); err != nil {
			return err
		}
		for _, g := range couple {
			if err := w.WriteInt(int(g)); err != nil {
				return err
			}
		}
	}
	if err := w.WriteString("status"); err != nil {
		return err
	}
	return w.WriteString(r.Status)
}

func (r *GroupInfoResponse) DecodeMsg(dc *msgp.Reader) error {
	n, err := dc.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		key, err := dc.ReadString()
		if err != nil {
			return err
		}
		switch key {
		case "couples":
			couplesLen, err := dc.ReadArrayHeader()
			if err != nil {
				return err
			}
			r.Couples = make([][]common.GroupID, couplesLen)
			for j := uint32(0); j < couplesLen; j++ {
				groupsLen, err := dc.ReadArrayHeader()
				if err != nil {
					return err
				}
				couple := make([]common.GroupID, groupsLen)
				for k := uint32(0); k < groupsLen; k++ {
					g, err := dc.ReadInt()
					if err != nil {
						return err
					}
					couple[k] = common.GroupID(g)
				}
				r.Couples[j] = couple
			}
		case "status":
			if r.Status, err = dc.ReadString(); err != nil {
				return err
			}
		default:
			if err := dc.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

// GroupsResponse is a flat group-id list, used by get_symmetric_groups
// and get_bad_groups.
type GroupsResponse struct {
	Groups []common.GroupID
}

func (r *GroupsResponse) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(uint32(len(r.Groups))); err != nil {
		return err
	}
	for _, g := range r.Groups {
		if err := w.WriteInt(int(g)); err != nil {
			return err
		}
	}
	return nil
}

func (r *GroupsResponse) DecodeMsg(dc *msgp.Reader) error {
	n, err := dc.ReadArrayHeader()
	if err != nil {
		return err
	}
	r.Groups = make([]common.GroupID, n)
	for i := uint32(0); i < n; i++ {
		g, err := dc.ReadInt()
		if err != nil {
			return err
		}
		r.Groups[i] = common.GroupID(g)
	}
	return nil
}

type EmptyRequest struct{}

func (r *EmptyRequest) EncodeMsg(w *msgp.Writer) error {
	return w.WriteMapHeader(0)
}

func (r *EmptyRequest) DecodeMsg(dc *msgp.Reader) error {
	_, err := dc.ReadMapHeader()
	return err
}
