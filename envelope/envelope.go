// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package envelope models the envelope item surface the metrics core needs:
// item types, the hop-to-hop metrics_extracted attribute, and the session
// and transaction payload shapes extraction reads. Full envelope container
// parsing lives with the transport collaborator.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType identifies the payload kind of an envelope item.
type ItemType string

const (
	ItemSession       ItemType = "session"
	ItemTransaction   ItemType = "transaction"
	ItemMetricBuckets ItemType = "metric_buckets"
)

// ItemHeaders are the item attributes persisted alongside the payload as
// the item is forwarded hop to hop.
type ItemHeaders struct {
	// MetricsExtracted records that some relay in the chain already
	// derived metrics from this item. It is created false at the point of
	// origin, set true by the extracting hop, and never reset.
	MetricsExtracted bool `json:"metrics_extracted,omitempty"`
}

// Item is one envelope item in flight through the pipeline.
type Item struct {
	Type    ItemType
	Headers ItemHeaders
	Payload []byte
}

// Timestamp decodes the two timestamp encodings used by client SDKs:
// RFC 3339 strings and float epoch seconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var epoch float64
	if err := json.Unmarshal(data, &epoch); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * float64(time.Second))
		t.Time = time.Unix(sec, nsec).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}
