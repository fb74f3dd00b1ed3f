// Package quorum translates a (success mode, replication count) pair
// into a required-successes count and an acceptance predicate, per
// spec.md §4.1. It has no teacher precedent — mrkv's Raft layer solves
// a different problem (leader election, log commitment) — so this is
// a small standard-library-only arithmetic table; no third-party
// library adds anything over a switch statement here (see DESIGN.md).
package quorum

import "github.com/iderikon/libelliptics-proxy/pkg/config"

// Policy is the resolved (required successes, acceptance predicate)
// pair for one write attempt against R candidate groups.
type Policy struct {
	Mode     config.SuccessMode
	R        int
	Required int
}

// Resolve builds the Policy for mode against replication count r.
func Resolve(mode config.SuccessMode, r int) Policy {
	required := 1
	switch mode.Kind {
	case config.SuccessAny:
		required = 1
	case config.SuccessQuorum:
		required = r/2 + 1
	case config.SuccessAll:
		required = r
	case config.SuccessN:
		required = mode.N
	}
	return Policy{Mode: mode, R: r, Required: required}
}

// Accept reports whether s successful groups satisfy the policy.
func (p Policy) Accept(s int) bool {
	switch p.Mode.Kind {
	case config.SuccessAll:
		return s == p.R
	default:
		return s >= p.Required
	}
}
