// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeCounter(t *testing.T) {
	merged, err := MergeValue(CounterValue(42), CounterValue(17))
	require.NoError(t, err)
	assert.Equal(t, CounterValue(59), merged)
}

func TestMergeDistributionPreservesOrder(t *testing.T) {
	merged, err := MergeValue(DistributionValue{1.2}, DistributionValue{2.2, 0.5})
	require.NoError(t, err)
	assert.Equal(t, DistributionValue{1.2, 2.2, 0.5}, merged)
}

func TestMergeSetUnion(t *testing.T) {
	merged, err := MergeValue(NewSetValue(1, 2), NewSetValue(2, 3))
	require.NoError(t, err)
	assert.Equal(t, NewSetValue(1, 2, 3), merged)
}

func TestMergeGauge(t *testing.T) {
	first := NewGaugeValue(42)
	merged, err := MergeValue(first, NewGaugeValue(17))
	require.NoError(t, err)

	gauge, ok := merged.(GaugeValue)
	require.True(t, ok)
	assert.Equal(t, GaugeValue{Last: 17, Min: 17, Max: 42, Sum: 59, Count: 2}, gauge)

	merged, err = MergeValue(gauge, NewGaugeValue(100))
	require.NoError(t, err)
	assert.Equal(t, GaugeValue{Last: 100, Min: 17, Max: 100, Sum: 159, Count: 3}, merged)
}

func TestMergeTypeMismatch(t *testing.T) {
	testcases := []struct {
		name string
		into BucketValue
		from BucketValue
	}{
		{"counter/distribution", CounterValue(1), DistributionValue{1}},
		{"distribution/counter", DistributionValue{1}, CounterValue(1)},
		{"set/gauge", NewSetValue(1), NewGaugeValue(1)},
		{"gauge/set", NewGaugeValue(1), NewSetValue(1)},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MergeValue(tc.into, tc.from)
			assert.ErrorIs(t, err, ErrTypeMismatch)
		})
	}
}

func TestBucketKeyIdentity(t *testing.T) {
	key := BucketKey{
		OrgID:      1,
		ProjectID:  42,
		MetricName: "c:sessions/session@none",
		Tags:       map[string]string{"release": "1.0", "environment": "prod"},
		Timestamp:  1615889440,
	}
	same := BucketKey{
		OrgID:      1,
		ProjectID:  42,
		MetricName: "c:sessions/session@none",
		Tags:       map[string]string{"environment": "prod", "release": "1.0"},
		Timestamp:  1615889440,
	}
	assert.Equal(t, key.Identity(), same.Identity())

	for name, other := range map[string]BucketKey{
		"org":       {OrgID: 2, ProjectID: 42, MetricName: key.MetricName, Tags: key.Tags, Timestamp: key.Timestamp},
		"project":   {OrgID: 1, ProjectID: 43, MetricName: key.MetricName, Tags: key.Tags, Timestamp: key.Timestamp},
		"name":      {OrgID: 1, ProjectID: 42, MetricName: "c:sessions/user@none", Tags: key.Tags, Timestamp: key.Timestamp},
		"timestamp": {OrgID: 1, ProjectID: 42, MetricName: key.MetricName, Tags: key.Tags, Timestamp: 1615889450},
		"tags":      {OrgID: 1, ProjectID: 42, MetricName: key.MetricName, Tags: map[string]string{"release": "1.1"}, Timestamp: key.Timestamp},
	} {
		assert.NotEqual(t, key.Identity(), other.Identity(), name)
	}
}

func TestHashSetValue(t *testing.T) {
	// Wire contract: downstream consumers compare these exact values.
	assert.Equal(t, uint32(1617781333), HashSetValue("foobarbaz"))
	assert.Equal(t, HashSetValue("alice"), HashSetValue("alice"))
	assert.NotEqual(t, HashSetValue("alice"), HashSetValue("bob"))
}
