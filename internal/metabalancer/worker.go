package metabalancer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Worker periodically refreshes a Cache from a mastermind Client,
// grounded on the teacher's leaderBalancer/nodeStatusUpdater loop
// shape (internal/master/server.go): a select over a kill channel and
// a timer, logging and continuing on error rather than giving up.
type Worker struct {
	client *Client
	cache  *Cache
	period time.Duration
	log    *logrus.Entry
	killed chan struct{}
	done   chan struct{}
}

func NewWorker(client *Client, cache *Cache, period time.Duration, log *logrus.Entry) *Worker {
	if period <= 0 {
		period = time.Minute
	}
	return &Worker{client: client, cache: cache, period: period, log: log, killed: make(chan struct{}), done: make(chan struct{})}
}

// Run blocks refreshing the cache until Stop is called. It performs one
// refresh immediately so callers that wait for Initialized() right
// after starting the worker don't have to wait a full period.
func (w *Worker) Run() {
	defer close(w.done)
	w.refresh()
	for {
		select {
		case <-w.killed:
			return
		case <-time.After(w.period):
			w.refresh()
		}
	}
}

// Stop signals Run to exit and waits until it has returned. Run must
// have been started.
func (w *Worker) Stop() {
	close(w.killed)
	<-w.done
}

func (w *Worker) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), w.period)
	defer cancel()

	bySize, err := w.client.GroupWeights(ctx)
	if err != nil {
		if w.log != nil {
			w.log.WithError(err).Warn("metabalancer: group weights refresh failed")
		}
		return
	}
	w.cache.update(bySize)
}
