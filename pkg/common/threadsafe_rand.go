package common

import (
	"math/rand"
	"sync"
	"time"
)

// ThreadSafeRand wraps a *rand.Rand behind a mutex so the group
// selector (internal/group) and the weighted cache (internal/metabalancer)
// can share one source across concurrent calls without racing.
type ThreadSafeRand struct {
	r  *rand.Rand
	mu sync.Mutex
}

func MakeThreadSafeRand(seed int64) *ThreadSafeRand {
	return &ThreadSafeRand{r: rand.New(rand.NewSource(seed))}
}

func NewThreadSafeRand() *ThreadSafeRand {
	return MakeThreadSafeRand(time.Now().UnixNano())
}

func (tsr *ThreadSafeRand) Intn(n int) int {
	tsr.mu.Lock()
	res := tsr.r.Intn(n)
	tsr.mu.Unlock()
	return res
}

func (tsr *ThreadSafeRand) Float64() float64 {
	tsr.mu.Lock()
	res := tsr.r.Float64()
	tsr.mu.Unlock()
	return res
}

// ShuffleTail randomly permutes s[1:], leaving s[0] fixed. Used by the
// group selector to keep the configured default list's head as a
// stable affinity anchor while randomizing the rest (spec.md §4.2).
func (tsr *ThreadSafeRand) ShuffleTail(s []GroupID) {
	if len(s) < 3 {
		// a tail of at most one element has nothing to permute;
		// Shuffle below would leave it unchanged too, this is just a
		// fast path.
		return
	}
	tail := s[1:]
	tsr.mu.Lock()
	defer tsr.mu.Unlock()
	tsr.r.Shuffle(len(tail), func(i, j int) {
		tail[i], tail[j] = tail[j], tail[i]
	})
}
