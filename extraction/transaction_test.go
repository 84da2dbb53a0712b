// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/relaycore-go/envelope"
	"github.com/relaycore/relaycore-go/metrics"
)

func intPtr(v int) *int { return &v }

func ts(sec int64, nsec int64) envelope.Timestamp {
	return envelope.Timestamp{Time: time.Unix(sec, nsec).UTC()}
}

func testTransaction() *envelope.TransactionEvent {
	return &envelope.TransactionEvent{
		Transaction:    "/organizations/:orgId/performance/:eventSlug/",
		Platform:       "other",
		StartTimestamp: ts(1615889440, 0),
		Timestamp:      ts(1615889441, int64(500*time.Millisecond)),
		Contexts:       map[string]envelope.TraceContext{"trace": {Op: "pageload"}},
	}
}

func extractionConfig() *ProjectConfig {
	return &ProjectConfig{TransactionMetrics: VersionedConfig{Version: 1}}
}

func bucketsByName(buckets []*metrics.Bucket) map[string]*metrics.Bucket {
	byName := make(map[string]*metrics.Bucket, len(buckets))
	for _, b := range buckets {
		byName[b.Key.MetricName] = b
	}
	return byName
}

func TestExtractTransactionDuration(t *testing.T) {
	buckets := ExtractTransactionMetrics(testTransaction(), extractionConfig(), Scope{OrgID: 1, ProjectID: 42})
	require.Len(t, buckets, 1)

	duration := buckets[0]
	assert.Equal(t, "d:transactions/duration@millisecond", duration.Key.MetricName)
	assert.Equal(t, metrics.DistributionValue{1500}, duration.Value)
	assert.Equal(t, map[string]string{
		"transaction":        "/organizations/:orgId/performance/:eventSlug/",
		"platform":           "other",
		"transaction.status": "unknown",
	}, duration.Key.Tags)
	assert.Equal(t, int64(1615889441), duration.Key.Timestamp)
}

func TestExtractTransactionMeasurements(t *testing.T) {
	event := testTransaction()
	event.Measurements = map[string]envelope.Measurement{
		"foo": {Value: 1.2},
		"bar": {Value: 1.3},
		"lcp": {Value: 32, Unit: "millisecond"},
	}

	buckets := bucketsByName(ExtractTransactionMetrics(event, extractionConfig(), Scope{}))
	require.Len(t, buckets, 4)
	assert.Equal(t, metrics.DistributionValue{1.2}, buckets["d:transactions/measurements.foo@none"].Value)
	assert.Equal(t, metrics.DistributionValue{1.3}, buckets["d:transactions/measurements.bar@none"].Value)
	assert.Equal(t, metrics.DistributionValue{32}, buckets["d:transactions/measurements.lcp@millisecond"].Value)
}

func TestRepeatedTransactionsAccumulate(t *testing.T) {
	first := testTransaction()
	first.Measurements = map[string]envelope.Measurement{
		"foo": {Value: 1.2},
		"bar": {Value: 1.3},
	}
	second := testTransaction()
	second.Measurements = map[string]envelope.Measurement{
		"foo": {Value: 2.2},
	}

	// Fold both extractions through the merge rule, the way the
	// aggregator would within one window.
	merged := map[string]*metrics.Bucket{}
	for _, event := range []*envelope.TransactionEvent{first, second} {
		for _, bucket := range ExtractTransactionMetrics(event, extractionConfig(), Scope{}) {
			if existing, ok := merged[bucket.Key.MetricName]; ok {
				require.NoError(t, existing.Merge(bucket))
			} else {
				merged[bucket.Key.MetricName] = bucket
			}
		}
	}

	assert.Equal(t, metrics.DistributionValue{1.2, 2.2}, merged["d:transactions/measurements.foo@none"].Value)
	assert.Equal(t, metrics.DistributionValue{1.3}, merged["d:transactions/measurements.bar@none"].Value)
	assert.Equal(t, metrics.DistributionValue{1500, 1500}, merged["d:transactions/duration@millisecond"].Value)
}

func TestCustomMeasurementCap(t *testing.T) {
	event := testTransaction()
	event.Measurements = map[string]envelope.Measurement{
		"foo": {Value: 1.2},
		"baz": {Value: 1.3},
		"bar": {Value: 1.4},
	}

	cfg := extractionConfig()
	cfg.Measurements = &MeasurementsConfig{
		Builtin:   []BuiltinMeasurement{{Name: "foo", Unit: "none"}},
		MaxCustom: intPtr(1),
	}

	buckets := bucketsByName(ExtractTransactionMetrics(event, cfg, Scope{}))

	// The builtin is exempt from the cap; of the customs, "bar" wins by
	// lexicographic order over "baz".
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		"d:transactions/duration@millisecond",
		"d:transactions/measurements.foo@none",
		"d:transactions/measurements.bar@none",
	}, names)
}

func TestSpanOperationBreakdowns(t *testing.T) {
	event := testTransaction()
	event.Spans = []envelope.Span{
		{Op: "react.mount", StartTimestamp: ts(1615889440, 0), Timestamp: ts(1615889440, int64(9910106*time.Microsecond/1000))},
	}

	cfg := extractionConfig()
	cfg.Breakdowns = map[string]BreakdownConfig{
		"span_ops": {Type: BreakdownSpanOperations, Matches: []string{"react.mount"}},
	}

	buckets := bucketsByName(ExtractTransactionMetrics(event, cfg, Scope{}))
	require.Contains(t, buckets, "d:transactions/breakdowns.span_ops.ops.react.mount@millisecond")
	require.Contains(t, buckets, "d:transactions/breakdowns.span_ops.total.time@millisecond")

	ops := buckets["d:transactions/breakdowns.span_ops.ops.react.mount@millisecond"].Value.(metrics.DistributionValue)
	total := buckets["d:transactions/breakdowns.span_ops.total.time@millisecond"].Value.(metrics.DistributionValue)
	require.Len(t, ops, 1)
	assert.InDelta(t, 9.910106, ops[0], 1e-6)
	assert.Equal(t, ops, total)
}

func TestOverlappingSpansCountOnce(t *testing.T) {
	spans := []envelope.Span{
		{Op: "db.query", StartTimestamp: ts(100, 0), Timestamp: ts(102, 0)},
		{Op: "db.query", StartTimestamp: ts(101, 0), Timestamp: ts(104, 0)},
		{Op: "db.query", StartTimestamp: ts(110, 0), Timestamp: ts(111, 0)},
	}
	result := spanOperationBreakdown(spans, []string{"db"})
	assert.InDelta(t, 5000, result["ops.db"], 1e-9)
	assert.InDelta(t, 5000, result["total.time"], 1e-9)
}

func TestBreakdownSkipsUnmatchedOperations(t *testing.T) {
	spans := []envelope.Span{
		{Op: "http.client", StartTimestamp: ts(100, 0), Timestamp: ts(101, 0)},
	}
	result := spanOperationBreakdown(spans, []string{"db"})
	assert.NotContains(t, result, "ops.db")
	assert.InDelta(t, 1000, result["total.time"], 1e-9)
}

func TestExtractionDisabled(t *testing.T) {
	event := testTransaction()

	assert.Nil(t, ExtractTransactionMetrics(event, nil, Scope{}))
	assert.Nil(t, ExtractTransactionMetrics(event, &ProjectConfig{}, Scope{}))

	for _, version := range []int{0, -1, 1234567890} {
		cfg := &ProjectConfig{TransactionMetrics: VersionedConfig{Version: version}}
		assert.Nil(t, ExtractTransactionMetrics(event, cfg, Scope{}), "version %d", version)
	}
}

func TestCorruptedConfigDisablesExtraction(t *testing.T) {
	var cfg ProjectConfig
	require.NoError(t, json.Unmarshal([]byte(`{"transactionMetrics": 42}`), &cfg))
	assert.False(t, cfg.TransactionMetrics.Supported())

	require.NoError(t, json.Unmarshal([]byte(`{"transactionMetrics": {"version": 1}}`), &cfg))
	assert.True(t, cfg.TransactionMetrics.Supported())
}

func TestPlatformNormalization(t *testing.T) {
	event := testTransaction()
	event.Platform = "commodore64"
	buckets := ExtractTransactionMetrics(event, extractionConfig(), Scope{})
	require.NotEmpty(t, buckets)
	assert.Equal(t, "other", buckets[0].Key.Tags["platform"])
}
