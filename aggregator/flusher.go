// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaycore/relaycore-go/metrics"
)

// FlushBatch is one outgoing batch of buckets. Shard is nil when partition
// routing is disabled; otherwise it carries the shard index every bucket in
// the batch routed to.
type FlushBatch struct {
	Shard   *uint32
	Buckets []*metrics.Bucket
}

// Sink receives flushed batches. Implementations hand them to the durable
// transport; the aggregator has already forgotten the buckets by the time
// SendBuckets runs, so a failed send does not return them.
type Sink interface {
	SendBuckets(ctx context.Context, batch FlushBatch) error
}

// Flusher owns the periodic flush cycle: a single timer goroutine that
// drains due buckets every bucket interval and routes them to the sink.
type Flusher struct {
	agg    *Aggregator
	router Router
	sink   Sink
	stats  *Stats
	logger zerolog.Logger

	inflight sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewFlusher creates a flusher for the given aggregator and sink. Call Run
// to start the flush cycle.
func NewFlusher(agg *Aggregator, sink Sink, stats *Stats, logger zerolog.Logger) *Flusher {
	return &Flusher{
		agg:    agg,
		router: NewRouter(agg.Config().FlushPartitions),
		sink:   sink,
		stats:  stats,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run starts the periodic flush goroutine. It returns immediately.
func (f *Flusher) Run() {
	f.started.Store(true)
	ticker := time.NewTicker(time.Duration(f.agg.Config().BucketInterval) * time.Second)
	go func() {
		defer close(f.done)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				f.FlushDue(context.Background(), now)
			case <-f.stop:
				return
			}
		}
	}()
}

// Stop cancels the periodic flush timer and waits for the current cycle to
// finish. It does not drain; shutdown calls FlushAll afterwards.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
	if f.started.Load() {
		<-f.done
	}
}

// FlushDue drains and sends every bucket whose flush deadline has passed.
func (f *Flusher) FlushDue(ctx context.Context, now time.Time) {
	f.send(ctx, f.agg.DrainDue(now))
}

// FlushAll force-drains the aggregator regardless of deadlines and sends
// everything. This is the only path that emits buckets before their natural
// flush time.
func (f *Flusher) FlushAll(ctx context.Context) {
	f.send(ctx, f.agg.DrainAll())
}

// Wait blocks until all in-flight sends complete or ctx expires.
func (f *Flusher) Wait(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flusher) send(ctx context.Context, buckets []*metrics.Bucket) {
	if len(buckets) == 0 {
		return
	}

	batches := f.partition(buckets)
	f.inflight.Add(1)
	defer f.inflight.Done()

	for _, batch := range batches {
		if err := f.sink.SendBuckets(ctx, batch); err != nil {
			// Lost on failure; the buckets were removed from the map
			// before the send was attempted.
			f.logger.Error().Err(err).
				Int("buckets", len(batch.Buckets)).
				Msg("failed to send flushed buckets")
			continue
		}
		f.stats.FlushedBuckets.Add(float64(len(batch.Buckets)))
		f.stats.FlushedBatches.Inc()
	}
}

// partition groups a drained set of buckets into per-shard batches. With
// routing disabled everything goes into one unrouted batch.
func (f *Flusher) partition(buckets []*metrics.Bucket) []FlushBatch {
	if !f.router.Enabled() {
		return []FlushBatch{{Buckets: buckets}}
	}

	byShard := make(map[uint32][]*metrics.Bucket)
	for _, b := range buckets {
		shard := f.router.Route(b.Key.OrgID, b.Key.ProjectID)
		byShard[shard] = append(byShard[shard], b)
	}

	batches := make([]FlushBatch, 0, len(byShard))
	for shard, group := range byShard {
		shard := shard
		batches = append(batches, FlushBatch{Shard: &shard, Buckets: group})
	}
	return batches
}
