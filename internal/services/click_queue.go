// internal/services/click_queue.go
package services

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/metrics"
)

// ClickQueue buffers redirect clicks for asynchronous persistence. Clicks
// are sharded by code and fingerprint so one visitor's clicks on a link are
// recorded in order by a single worker, which keeps dedup exact.
type ClickQueue struct {
	clicks *ClickService
	shards []chan ClickInput
	wg     sync.WaitGroup
}

func NewClickQueue(clicks *ClickService, size, workers int) *ClickQueue {
	if workers < 1 {
		workers = 1
	}
	per := size / workers
	if per < 1 {
		per = 1
	}
	q := &ClickQueue{clicks: clicks, shards: make([]chan ClickInput, workers)}
	for i := range q.shards {
		q.shards[i] = make(chan ClickInput, per)
	}
	return q
}

// Enqueue never blocks. It reports false and counts a drop when the shard is
// full.
func (q *ClickQueue) Enqueue(in ClickInput) bool {
	h := fnv.New32a()
	h.Write([]byte(in.Code))
	h.Write([]byte{0})
	h.Write([]byte(in.Fingerprint))
	shard := q.shards[h.Sum32()%uint32(len(q.shards))]

	select {
	case shard <- in:
		metrics.ClickQueueDepth.Inc()
		return true
	default:
		metrics.ClicksDropped.Inc()
		return false
	}
}

// Run starts one worker per shard and blocks until ctx is cancelled and the
// buffered clicks are drained.
func (q *ClickQueue) Run(ctx context.Context) error {
	for _, shard := range q.shards {
		q.wg.Add(1)
		go q.work(ctx, shard)
	}
	<-ctx.Done()
	q.wg.Wait()
	return nil
}

func (q *ClickQueue) work(ctx context.Context, shard chan ClickInput) {
	defer q.wg.Done()
	for {
		select {
		case in := <-shard:
			q.record(context.WithoutCancel(ctx), in)
		case <-ctx.Done():
			// drain what is already buffered
			for {
				select {
				case in := <-shard:
					q.record(context.WithoutCancel(ctx), in)
				default:
					return
				}
			}
		}
	}
}

func (q *ClickQueue) record(ctx context.Context, in ClickInput) {
	metrics.ClickQueueDepth.Dec()
	if _, err := q.clicks.RecordClick(ctx, in); err != nil {
		metrics.ClicksRecorded.WithLabelValues("error").Inc()
		logrus.WithError(err).WithField("code", in.Code).Warn("Failed to record click")
	}
}
