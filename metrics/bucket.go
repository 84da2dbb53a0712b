// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// ErrTypeMismatch is returned when a bucket key already holds a value of a
// different kind than the one being merged.
var ErrTypeMismatch = errors.New("bucket value type mismatch")

// BucketKey uniquely identifies one aggregation bucket. Two submissions
// collide into the same bucket iff all fields are equal.
type BucketKey struct {
	// OrgID is the numeric id of the organization owning the project.
	OrgID uint64
	// ProjectID is the numeric id of the project.
	ProjectID uint64
	// MetricName is the normalized "<type>:<namespace>/<name>@<unit>" name.
	MetricName string
	// Tags maps tag names to values. Keys are unique.
	Tags map[string]string
	// Timestamp is the bucket start in epoch seconds, truncated to the
	// bucket interval.
	Timestamp int64
}

// Identity returns a comparable form of the key usable as a Go map key.
// Tags are flattened in sorted order with quoting, so no two distinct keys
// share an identity.
func (k BucketKey) Identity() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(k.OrgID, 10))
	sb.WriteByte('\x00')
	sb.WriteString(strconv.FormatUint(k.ProjectID, 10))
	sb.WriteByte('\x00')
	sb.WriteString(k.MetricName)
	sb.WriteByte('\x00')
	sb.WriteString(strconv.FormatInt(k.Timestamp, 10))
	for _, name := range sortedTagKeys(k.Tags) {
		sb.WriteByte('\x00')
		sb.WriteString(strconv.Quote(name))
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(k.Tags[name]))
	}
	return sb.String()
}

func sortedTagKeys(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for name := range tags {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// BucketValue is the closed set of bucket value kinds. It is implemented by
// CounterValue, DistributionValue, SetValue and GaugeValue only.
type BucketValue interface {
	// Type returns the one-character type code of the value.
	Type() MetricType

	sealed()
}

// CounterValue is a running sum.
type CounterValue float64

// DistributionValue is the ordered sequence of raw submitted values.
type DistributionValue []float64

// SetValue is a collection of distinct hashed 32-bit identifiers.
type SetValue map[uint32]struct{}

// GaugeValue tracks the last, extreme, and cumulative values of a gauge.
type GaugeValue struct {
	Last  float64
	Min   float64
	Max   float64
	Sum   float64
	Count uint64
}

// NewSetValue builds a set value from the given members.
func NewSetValue(members ...uint32) SetValue {
	s := make(SetValue, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// NewGaugeValue builds a gauge quintuple from a single observation.
func NewGaugeValue(v float64) GaugeValue {
	return GaugeValue{Last: v, Min: v, Max: v, Sum: v, Count: 1}
}

// Type implements BucketValue.
func (CounterValue) Type() MetricType { return CounterType }

// Type implements BucketValue.
func (DistributionValue) Type() MetricType { return DistributionType }

// Type implements BucketValue.
func (SetValue) Type() MetricType { return SetType }

// Type implements BucketValue.
func (GaugeValue) Type() MetricType { return GaugeType }

func (CounterValue) sealed()      {}
func (DistributionValue) sealed() {}
func (SetValue) sealed()          {}
func (GaugeValue) sealed()        {}

// MergeValue merges from into into using the type-specific merge rule and
// returns the merged value. It fails with ErrTypeMismatch when the kinds
// differ. The from value must not be used afterwards.
func MergeValue(into, from BucketValue) (BucketValue, error) {
	switch v := into.(type) {
	case CounterValue:
		o, ok := from.(CounterValue)
		if !ok {
			return into, ErrTypeMismatch
		}
		return v + o, nil
	case DistributionValue:
		o, ok := from.(DistributionValue)
		if !ok {
			return into, ErrTypeMismatch
		}
		return append(v, o...), nil
	case SetValue:
		o, ok := from.(SetValue)
		if !ok {
			return into, ErrTypeMismatch
		}
		for m := range o {
			v[m] = struct{}{}
		}
		return v, nil
	case GaugeValue:
		o, ok := from.(GaugeValue)
		if !ok {
			return into, ErrTypeMismatch
		}
		v.Last = o.Last
		if o.Min < v.Min {
			v.Min = o.Min
		}
		if o.Max > v.Max {
			v.Max = o.Max
		}
		v.Sum += o.Sum
		v.Count += o.Count
		return v, nil
	}
	return into, ErrTypeMismatch
}

// Bucket is one aggregation unit: a key, the bucket width in seconds, and a
// value of one of the four kinds.
type Bucket struct {
	Key   BucketKey
	Width int64
	Value BucketValue
}

// Merge folds other into b. Keys are assumed equal; only values merge.
func (b *Bucket) Merge(other *Bucket) error {
	merged, err := MergeValue(b.Value, other.Value)
	if err != nil {
		return err
	}
	b.Value = merged
	return nil
}
