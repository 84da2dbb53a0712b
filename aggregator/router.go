// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"encoding/binary"
	"hash/fnv"
)

// ShardHeader is the transmission attribute carrying the shard index of a
// routed batch. It is absent when partitioning is disabled.
const ShardHeader = "X-Sentry-Relay-Shard"

// Router deterministically assigns flushed buckets to downstream shards.
// The zero Router has routing disabled.
//
// The shard index is FNV-1a 64 over the big-endian (org id, project id)
// pair reduced modulo the partition count. Every relay sharing a partition
// count must use this exact function so a project's buckets always land in
// the same shard.
type Router struct {
	partitions *uint32
}

// NewRouter creates a router. A nil partition count disables routing; an
// explicit count of 0 routes everything to the single shard 0.
func NewRouter(partitions *uint32) Router {
	return Router{partitions: partitions}
}

// Enabled reports whether batches carry a shard index at all.
func (r Router) Enabled() bool {
	return r.partitions != nil
}

// Route computes the shard index for a project. Callers must check
// Enabled first; an unrouted router always returns 0.
func (r Router) Route(orgID, projectID uint64) uint32 {
	if r.partitions == nil || *r.partitions <= 1 {
		return 0
	}
	var key [16]byte
	binary.BigEndian.PutUint64(key[0:8], orgID)
	binary.BigEndian.PutUint64(key[8:16], projectID)
	h := fnv.New64a()
	h.Write(key[:])
	return uint32(h.Sum64() % uint64(*r.partitions))
}
