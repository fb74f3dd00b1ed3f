package quorum

import (
	"testing"

	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

// TestAcceptanceTable exhaustively checks the §4.1 acceptance predicate
// table for every (mode, R, s) with R in [1,7] and s in [0,R], per
// spec.md §8 invariant 6.
func TestAcceptanceTable(t *testing.T) {
	modes := []struct {
		name string
		mode config.SuccessMode
		want func(r, s int) bool
	}{
		{"ANY", config.Any, func(r, s int) bool { return s >= 1 }},
		{"QUORUM", config.Quorum, func(r, s int) bool { return s >= r/2+1 }},
		{"ALL", config.All, func(r, s int) bool { return s == r }},
		{"N:1", config.NCopies(1), func(r, s int) bool { return s >= 1 }},
		{"N:2", config.NCopies(2), func(r, s int) bool { return s >= 2 }},
		{"N:R", config.NCopies(7), func(r, s int) bool { return s >= 7 }},
	}

	for _, m := range modes {
		for r := 1; r <= 7; r++ {
			policy := Resolve(m.mode, r)
			for s := 0; s <= r; s++ {
				got := policy.Accept(s)
				want := m.want(r, s)
				if got != want {
					t.Errorf("mode=%s r=%d s=%d: Accept() = %v, want %v", m.name, r, s, got, want)
				}
			}
		}
	}
}

func TestResolveRequiredSuccesses(t *testing.T) {
	cases := []struct {
		mode config.SuccessMode
		r    int
		want int
	}{
		{config.Any, 5, 1},
		{config.Quorum, 1, 1},
		{config.Quorum, 2, 2},
		{config.Quorum, 3, 2},
		{config.Quorum, 4, 3},
		{config.Quorum, 7, 4},
		{config.All, 5, 5},
		{config.NCopies(3), 5, 3},
	}
	for _, c := range cases {
		got := Resolve(c.mode, c.r).Required
		if got != c.want {
			t.Errorf("Resolve(%v, %d).Required = %d, want %d", c.mode, c.r, got, c.want)
		}
	}
}
