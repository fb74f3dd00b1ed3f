// Package config parses the smart-client configuration, in the style
// of the teacher's pkg/client/etc/client_conf.go and
// internal/node/etc/conf.go: a JSON file unmarshalled over a struct
// pre-filled with defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// SuccessKind is the write acceptance policy family (spec.md §3, §4.1).
type SuccessKind int

const (
	SuccessAny SuccessKind = iota
	SuccessQuorum
	SuccessAll
	SuccessN
)

func (k SuccessKind) String() string {
	switch k {
	case SuccessAny:
		return "ANY"
	case SuccessQuorum:
		return "QUORUM"
	case SuccessAll:
		return "ALL"
	case SuccessN:
		return "N"
	default:
		return "UNKNOWN"
	}
}

// SuccessMode is (Kind, N): N is only meaningful when Kind is SuccessN,
// where it is the required successes count (spec.md §4.1 table).
type SuccessMode struct {
	Kind SuccessKind
	N    int
}

var (
	Any     = SuccessMode{Kind: SuccessAny}
	Quorum  = SuccessMode{Kind: SuccessQuorum}
	All     = SuccessMode{Kind: SuccessAll}
)

func NCopies(n int) SuccessMode {
	return SuccessMode{Kind: SuccessN, N: n}
}

func (m SuccessMode) MarshalJSON() ([]byte, error) {
	if m.Kind == SuccessN {
		return json.Marshal(fmt.Sprintf("N:%d", m.N))
	}
	return json.Marshal(m.Kind.String())
}

func (m *SuccessMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "", "QUORUM":
		*m = Quorum
	case "ANY":
		*m = Any
	case "ALL":
		*m = All
	default:
		var n int
		if _, err := fmt.Sscanf(s, "N:%d", &n); err != nil || n < 1 {
			return fmt.Errorf("config: invalid success_mode %q", s)
		}
		*m = NCopies(n)
	}
	return nil
}

// MetabalancerUsage controls how hard write-time group augmentation
// leans on the weighted cache (spec.md §3, §4.2).
type MetabalancerUsage int

const (
	MetabalancerNone MetabalancerUsage = iota
	MetabalancerOptional
	MetabalancerNormal
	MetabalancerMandatory
)

func (u MetabalancerUsage) String() string {
	switch u {
	case MetabalancerNone:
		return "NONE"
	case MetabalancerOptional:
		return "OPTIONAL"
	case MetabalancerNormal:
		return "NORMAL"
	case MetabalancerMandatory:
		return "MANDATORY"
	default:
		return "UNKNOWN"
	}
}

func (u MetabalancerUsage) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *MetabalancerUsage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "", "NONE":
		*u = MetabalancerNone
	case "OPTIONAL":
		*u = MetabalancerOptional
	case "NORMAL":
		*u = MetabalancerNormal
	case "MANDATORY":
		*u = MetabalancerMandatory
	default:
		return fmt.Errorf("config: invalid metabalancer usage %q", s)
	}
	return nil
}

// EblobStylePath selects the path-derivation mode of internal/locate's
// LookupResult rendering (spec.md §6).
type EblobStylePath bool

const (
	PlainPath EblobStylePath = false
	EblobPath EblobStylePath = true
)

// MetabalancerConfig groups the options that govern the weighted group
// cache and its refresh worker (spec.md §3, §4.6).
type MetabalancerConfig struct {
	TransportAddr        string `json:"transport_addr"`
	ServiceName           string `json:"service_name"`
	GroupWeightsRefreshPeriodSec int  `json:"group_weights_refresh_period"`
	Usage                 MetabalancerUsage `json:"usage"`
}

func (m MetabalancerConfig) Enabled() bool {
	return m.TransportAddr != ""
}

// Configuration enumerates every recognized option from spec.md §3.
type Configuration struct {
	InitialRemotes    []common.Remote `json:"initial_remotes"`
	DefaultGroups     []common.GroupID `json:"default_groups"`
	BasePort          int             `json:"base_port"`
	ReplicationCount  int             `json:"replication_count"`
	SuccessMode       SuccessMode     `json:"success_mode"`
	DieLimit          int             `json:"die_limit"`
	ChunkSize         int             `json:"chunk_size"`
	EblobStylePath    EblobStylePath  `json:"eblob_style_path"`
	WaitTimeoutMS     int             `json:"wait_timeout_ms"`
	CheckTimeoutMS    int             `json:"check_timeout_ms"`
	Metabalancer      MetabalancerConfig `json:"metabalancer"`

	LogLevel string `json:"log_level"`
	AppName  string `json:"app_name"`

	// MetricsAddr, when non-empty, starts a prometheus /metrics
	// endpoint (internal/telemetry).
	MetricsAddr string `json:"metrics_addr"`
	// GraphiteAddr, when non-empty, exports the go-metrics registry to
	// a graphite carbon endpoint (internal/telemetry).
	GraphiteAddr string `json:"graphite_addr"`
}

// Default returns a Configuration with every documented default from
// spec.md §3 applied.
func Default() Configuration {
	return Configuration{
		BasePort:         1024,
		ReplicationCount: 0,
		SuccessMode:      Quorum,
		DieLimit:         1,
		ChunkSize:        0,
		EblobStylePath:   PlainPath,
		WaitTimeoutMS:    5000,
		CheckTimeoutMS:   5000,
		Metabalancer: MetabalancerConfig{
			ServiceName:                  "mastermind",
			GroupWeightsRefreshPeriodSec: 60,
			Usage:                        MetabalancerNone,
		},
		LogLevel: "info",
		AppName:  "libelliptics-proxy",
	}
}

// Replication resolves the effective replication count for a call that
// did not pass an explicit group list, per spec.md §3
// ("replication_count (0 => |groups|)").
func (c Configuration) Replication() int {
	if c.ReplicationCount > 0 {
		return c.ReplicationCount
	}
	return len(c.DefaultGroups)
}

// Parse reads and unmarshals a JSON configuration file over Default().
func Parse(path string) (Configuration, error) {
	conf := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return conf, nil
}
