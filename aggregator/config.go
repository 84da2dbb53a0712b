// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package aggregator implements the in-memory bucket aggregation engine:
// keyed merging, timestamp validation, flush scheduling, and partition
// routing of flushed batches.
package aggregator

import (
	"errors"
	"fmt"
)

// Config is the aggregator section of the relay configuration. All
// durations are in seconds, matching the wire-level bucket timestamps.
type Config struct {
	// BucketInterval is the aggregation granularity and the flush cycle
	// period.
	BucketInterval int64 `yaml:"bucket_interval"`
	// InitialDelay is the grace period after a bucket's window closes
	// before it becomes eligible for flush, giving slow or out-of-order
	// upstream sub-aggregations time to merge.
	InitialDelay int64 `yaml:"initial_delay"`
	// DebounceDelay postpones the flush of buckets whose window closed
	// in the past, batching near-simultaneous arrivals. Zero disables the
	// extra wait.
	DebounceDelay int64 `yaml:"debounce_delay"`
	// MaxSecsInPast is the age limit for backdated bucket timestamps.
	MaxSecsInPast int64 `yaml:"max_secs_in_past"`
	// MaxSecsInFuture is the limit for bucket timestamps ahead of now.
	MaxSecsInFuture int64 `yaml:"max_secs_in_future"`
	// FlushPartitions, when set, routes flushed buckets into
	// [0, FlushPartitions) shards. Unset disables routing entirely; an
	// explicit 0 yields the single shard "0".
	FlushPartitions *uint32 `yaml:"flush_partitions"`
}

// DefaultConfig returns the production defaults for the aggregator.
func DefaultConfig() Config {
	return Config{
		BucketInterval:  10,
		InitialDelay:    30,
		DebounceDelay:   10,
		MaxSecsInPast:   5 * 24 * 60 * 60,
		MaxSecsInFuture: 60,
	}
}

var errBucketInterval = errors.New("bucket_interval must be positive")

// Validate reports configuration contract violations. These are startup
// errors, never runtime ones.
func (c Config) Validate() error {
	if c.BucketInterval <= 0 {
		return errBucketInterval
	}
	if c.InitialDelay < 0 || c.DebounceDelay < 0 {
		return fmt.Errorf("flush delays must not be negative")
	}
	if c.MaxSecsInPast < 0 || c.MaxSecsInFuture < 0 {
		return fmt.Errorf("timestamp limits must not be negative")
	}
	return nil
}
