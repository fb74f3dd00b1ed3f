package metabalancer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/iderikon/libelliptics-proxy/internal/transport"
	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// Client is a thin RPC facade over the mastermind's four query methods
// named in spec.md §6: get_group_weights, get_metabalancer_group_info,
// get_symmetric_groups and get_bad_groups.
type Client struct {
	conn  *transport.Client
	stamp uint64
}

func Dial(cfg transport.Config) (*Client, error) {
	conn, err := transport.Dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("metabalancer: dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// GroupWeights fetches the current size -> [(groups, weight)] mapping.
// The request stamp only needs to increase monotonically from this
// client's point of view (spec.md §4.6).
func (c *Client) GroupWeights(ctx context.Context) (map[int][]WeightEntry, error) {
	req := &WeightsRequest{Stamp: atomic.AddUint64(&c.stamp, 1)}
	var resp WeightsResponse
	if err := c.conn.Call(ctx, "GetGroupWeights", req, &resp); err != nil {
		return nil, fmt.Errorf("metabalancer: get_group_weights: %w", common.Transport(err))
	}
	return resp.BySize, nil
}

// GroupInfo fetches one group's couples and health status.
func (c *Client) GroupInfo(ctx context.Context, group common.GroupID) (GroupInfo, error) {
	req := &GroupInfoRequest{Group: group}
	var resp GroupInfoResponse
	if err := c.conn.Call(ctx, "GetGroupInfo", req, &resp); err != nil {
		return GroupInfo{}, fmt.Errorf("metabalancer: get_metabalancer_group_info: %w", common.Transport(err))
	}
	return GroupInfo{Couples: resp.Couples, Status: parseGroupInfoStatus(resp.Status)}, nil
}

// SymmetricGroups fetches the full set of groups organized into
// same-size, weight-balanced couples.
func (c *Client) SymmetricGroups(ctx context.Context) ([]common.GroupID, error) {
	var resp GroupsResponse
	if err := c.conn.Call(ctx, "GetSymmetricGroups", &EmptyRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("metabalancer: get_symmetric_groups: %w", common.Transport(err))
	}
	return resp.Groups, nil
}

// BadGroups fetches the groups the metabalancer currently considers
// unhealthy.
func (c *Client) BadGroups(ctx context.Context) ([]common.GroupID, error) {
	var resp GroupsResponse
	if err := c.conn.Call(ctx, "GetBadGroups", &EmptyRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("metabalancer: get_bad_groups: %w", common.Transport(err))
	}
	return resp.Groups, nil
}
