// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaycore/relaycore-go/metrics"
)

var (
	// ErrStopped is returned by Merge once shutdown drain has begun.
	ErrStopped = errors.New("aggregator is stopped")
	// ErrInvalidTimestamp is returned for submissions whose bucket
	// timestamp falls outside the accepted past/future window.
	ErrInvalidTimestamp = errors.New("invalid bucket timestamp")
)

// entry is one live bucket plus its flush deadline.
type entry struct {
	bucket  *metrics.Bucket
	flushAt int64
}

// Aggregator owns the process-wide bucket map. It is created at service
// start and drained at shutdown; all access goes through Merge, DrainDue
// and DrainAll so every mutation path stays auditable.
//
// Merge may be called from any number of goroutines concurrently with the
// drain calls; the map is guarded by a single mutex and no operation under
// the lock blocks.
type Aggregator struct {
	cfg    Config
	stats  *Stats
	logger zerolog.Logger

	// now is the time source, replaceable in tests.
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*entry
	stopped bool
}

// New creates an aggregator. The configuration is validated here;
// violations are unrecoverable startup errors.
func New(cfg Config, stats *Stats, logger zerolog.Logger) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("aggregator config: %w", err)
	}
	return &Aggregator{
		cfg:     cfg,
		stats:   stats,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[string]*entry),
	}, nil
}

// Config returns the aggregator configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Merge inserts bucket or merges it into the live bucket with the same key.
// The bucket timestamp is truncated to the bucket interval first. A key
// already holding a different value kind rejects the submission with
// ErrTypeMismatch; the existing bucket is unaffected. Individual rejections
// never abort sibling submissions of the same batch.
func (a *Aggregator) Merge(bucket *metrics.Bucket) error {
	now := a.now().Unix()

	bucket.Key.Timestamp -= bucket.Key.Timestamp % a.cfg.BucketInterval
	bucket.Width = a.cfg.BucketInterval

	// The window is checked against the truncated timestamp, i.e. the bucket
	// start the value would actually be stored under.
	if ts := bucket.Key.Timestamp; ts < now-a.cfg.MaxSecsInPast || ts > now+a.cfg.MaxSecsInFuture {
		a.stats.DroppedBuckets.WithLabelValues(ReasonInvalidTimestamp).Inc()
		return fmt.Errorf("%w: %d", ErrInvalidTimestamp, bucket.Key.Timestamp)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		a.stats.DroppedBuckets.WithLabelValues(ReasonStopped).Inc()
		return ErrStopped
	}

	identity := bucket.Key.Identity()
	if e, ok := a.buckets[identity]; ok {
		if err := e.bucket.Merge(bucket); err != nil {
			a.stats.DroppedBuckets.WithLabelValues(ReasonTypeMismatch).Inc()
			a.logger.Warn().
				Str("metric", bucket.Key.MetricName).
				Uint64("project_id", bucket.Key.ProjectID).
				Msg("dropping metric with conflicting value type")
			return err
		}
	} else {
		a.buckets[identity] = &entry{
			bucket:  bucket,
			flushAt: a.flushDeadline(bucket, now),
		}
	}

	a.stats.MergedBuckets.Inc()
	return nil
}

// flushDeadline computes when a freshly inserted bucket becomes eligible
// for flush. Backdated buckets whose deadline already passed flush after
// the debounce delay, i.e. on the very next cycle when debounce is zero.
func (a *Aggregator) flushDeadline(bucket *metrics.Bucket, now int64) int64 {
	deadline := bucket.Key.Timestamp + bucket.Width + a.cfg.InitialDelay
	if deadline <= now {
		deadline = now + a.cfg.DebounceDelay
	}
	return deadline
}

// DrainDue removes and returns all buckets whose flush deadline has passed.
func (a *Aggregator) DrainDue(now time.Time) []*metrics.Bucket {
	return a.drain(now.Unix(), false)
}

// DrainAll removes and returns every bucket unconditionally. It is the
// shutdown path and the only way buckets leave the map before their
// deadline.
func (a *Aggregator) DrainAll() []*metrics.Bucket {
	return a.drain(0, true)
}

func (a *Aggregator) drain(now int64, force bool) []*metrics.Bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	var drained []*metrics.Bucket
	for identity, e := range a.buckets {
		if !force && e.flushAt > now {
			continue
		}
		drained = append(drained, e.bucket)
		delete(a.buckets, identity)
	}
	return drained
}

// Stop rejects all further submissions. Draining remains possible.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

// Len returns the number of live buckets.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}
