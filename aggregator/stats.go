// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded on the dropped-submissions counter.
const (
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonTypeMismatch     = "type_mismatch"
	ReasonMalformed        = "malformed"
	ReasonStopped          = "stopped"
)

// Stats exposes the aggregator's self-observability counters. Dropped
// submissions are the outcome channel for all non-fatal per-unit failures.
type Stats struct {
	MergedBuckets  prometheus.Counter
	DroppedBuckets *prometheus.CounterVec
	FlushedBuckets prometheus.Counter
	FlushedBatches prometheus.Counter
}

// NewStats registers the aggregator counters on reg. Pass
// prometheus.DefaultRegisterer in production, a private registry in tests.
func NewStats(reg prometheus.Registerer) *Stats {
	factory := promauto.With(reg)
	return &Stats{
		MergedBuckets: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_aggregator_merged_total",
			Help: "Number of metric submissions merged into buckets.",
		}),
		DroppedBuckets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_aggregator_dropped_total",
			Help: "Number of metric submissions dropped, by reason.",
		}, []string{"reason"}),
		FlushedBuckets: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_aggregator_flushed_buckets_total",
			Help: "Number of buckets flushed to the transport.",
		}),
		FlushedBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_aggregator_flushed_batches_total",
			Help: "Number of flush batches handed to the transport.",
		}),
	}
}
