// Package transport wires the metadata balancer's request/response RPC
// bus. It is a thin wrapper over smallnest/rpcx, grounded on
// internal/netw/rpcx.go from the teacher: a msgpack serialize type is
// registered once at package init, an XClient talks peer-to-peer to a
// single mastermind endpoint, and a small server wrapper is kept around
// so tests can stand up a fake mastermind service on a loopback port.
package transport

import (
	"context"

	rpcx_client "github.com/smallnest/rpcx/client"
	rpcx_log "github.com/smallnest/rpcx/log"
	"github.com/smallnest/rpcx/protocol"
	"github.com/smallnest/rpcx/server"
	"github.com/smallnest/rpcx/share"

	"github.com/iderikon/libelliptics-proxy/internal/transport/codec"
)

// MsgpSerializeType is an rpcx serialize type id not used by any of
// rpcx's built-in codecs; the mastermind codec is registered under it.
const MsgpSerializeType = protocol.SerializeType(5)

func init() {
	rpcx_log.SetDummyLogger()
	share.Codecs[MsgpSerializeType] = &codec.MastermindCodec{}
}

// Config describes how to reach the metadata balancer service. A zero
// value Config (empty Addr) means "no metabalancer transport configured"
// per spec.md §4.6/§9 — the weighted-cache refresh path is then simply
// never exercised.
type Config struct {
	ServiceName string
	Addr        string
}

func (c Config) Enabled() bool {
	return c.Addr != ""
}

// Client is a single peer-to-peer rpcx endpoint speaking the mastermind
// msgpack codec.
type Client struct {
	serviceName string
	addr        string
	xclient     rpcx_client.XClient
}

func Dial(cfg Config) (*Client, error) {
	d, err := rpcx_client.NewPeer2PeerDiscovery("tcp@"+cfg.Addr, "")
	if err != nil {
		return nil, err
	}
	option := rpcx_client.DefaultOption
	option.SerializeType = MsgpSerializeType
	xc := rpcx_client.NewXClient(cfg.ServiceName, rpcx_client.Failfast, rpcx_client.RoundRobin, d, option)
	return &Client{
		serviceName: cfg.ServiceName,
		addr:        cfg.Addr,
		xclient:     xc,
	}, nil
}

func (c *Client) Call(ctx context.Context, method string, args, reply interface{}) error {
	return c.xclient.Call(ctx, method, args, reply)
}

func (c *Client) Close() error {
	return c.xclient.Close()
}

// Server registers named RPC receivers and serves them over TCP; used
// in tests to stand up a fake mastermind service that internal/metabalancer's
// refresh worker can dial.
type Server struct {
	addr string
	serv *server.Server
}

func NewServer(addr string) *Server {
	return &Server{addr: addr, serv: server.NewServer()}
}

func (s *Server) Register(name string, receiver interface{}) error {
	return s.serv.RegisterName(name, receiver, "")
}

func (s *Server) Serve() error {
	return s.serv.Serve("tcp", s.addr)
}

func (s *Server) Close() error {
	return s.serv.Close()
}
