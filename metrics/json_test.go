// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeBucketsCounter(t *testing.T) {
	buckets := []*Bucket{{
		Key: BucketKey{
			OrgID:      1,
			ProjectID:  42,
			MetricName: "c:transactions/foo@none",
			Timestamp:  1615889440,
		},
		Width: 10,
		Value: CounterValue(42),
	}}

	assert.Equal(t,
		`[{"timestamp":1615889440,"width":10,"name":"c:transactions/foo@none","value":42,"type":"c"}]`,
		string(EncodeBuckets(buckets, false)))

	assert.Equal(t,
		`[{"timestamp":1615889440,"width":10,"name":"c:transactions/foo@none","value":42,"type":"c","org_id":1,"project_id":42}]`,
		string(EncodeBuckets(buckets, true)))
}

func TestEncodeBucketsTagsSorted(t *testing.T) {
	buckets := []*Bucket{{
		Key: BucketKey{
			MetricName: "c:sessions/session@none",
			Tags: map[string]string{
				"session.status": "init",
				"release":        "sentry-test@1.0.0",
				"environment":    "production",
			},
			Timestamp: 1615889440,
		},
		Width: 1,
		Value: CounterValue(1),
	}}

	assert.Equal(t,
		`[{"timestamp":1615889440,"width":1,"name":"c:sessions/session@none","value":1,"type":"c",`+
			`"tags":{"environment":"production","release":"sentry-test@1.0.0","session.status":"init"}}]`,
		string(EncodeBuckets(buckets, false)))
}

func TestEncodeBucketsValueKinds(t *testing.T) {
	testcases := []struct {
		name   string
		value  BucketValue
		expect string
	}{
		{"distribution", DistributionValue{1.2, 2.2}, `"value":[1.2,2.2]`},
		{"set sorted", NewSetValue(1617781333, 42), `"value":[42,1617781333]`},
		{"gauge", GaugeValue{Last: 17, Min: 2, Max: 42, Sum: 61, Count: 3},
			`"value":{"last":17,"min":2,"max":42,"sum":61,"count":3}`},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			buckets := []*Bucket{{
				Key:   BucketKey{MetricName: "x:transactions/x@none", Timestamp: 0},
				Width: 1,
				Value: tc.value,
			}}
			assert.Contains(t, string(EncodeBuckets(buckets, false)), tc.expect)
		})
	}
}

func TestEncodeBucketsMultiple(t *testing.T) {
	buckets := []*Bucket{
		{Key: BucketKey{MetricName: "c:transactions/foo@none"}, Width: 1, Value: CounterValue(42)},
		{Key: BucketKey{MetricName: "c:transactions/bar@none"}, Width: 1, Value: CounterValue(17)},
	}
	assert.Equal(t,
		`[{"timestamp":0,"width":1,"name":"c:transactions/foo@none","value":42,"type":"c"},`+
			`{"timestamp":0,"width":1,"name":"c:transactions/bar@none","value":17,"type":"c"}]`,
		string(EncodeBuckets(buckets, false)))
}
