// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"sort"
	"strings"
	"time"

	"github.com/relaycore/relaycore-go/envelope"
	"github.com/relaycore/relaycore-go/metrics"
)

// knownPlatforms is the closed set of platform tag values; everything else
// normalizes to "other".
var knownPlatforms = map[string]struct{}{
	"as3": {}, "c": {}, "cocoa": {}, "csharp": {}, "elixir": {},
	"go": {}, "groovy": {}, "haskell": {}, "java": {}, "javascript": {},
	"native": {}, "node": {}, "objc": {}, "other": {}, "perl": {},
	"php": {}, "python": {}, "ruby": {},
}

func normalizePlatform(platform string) string {
	if _, ok := knownPlatforms[platform]; ok {
		return platform
	}
	return "other"
}

// ExtractTransactionMetrics derives metric points from one transaction:
// the duration distribution, one distribution per extracted measurement,
// and one distribution per computed breakdown entry. Returns nil when the
// project's transaction metrics config is absent, corrupt, or of an
// unsupported version.
func ExtractTransactionMetrics(event *envelope.TransactionEvent, cfg *ProjectConfig, scope Scope) []*metrics.Bucket {
	if cfg == nil || !cfg.TransactionMetrics.Supported() {
		return nil
	}

	timestamp := event.Timestamp.Unix()
	tags := map[string]string{
		"platform":           normalizePlatform(event.Platform),
		"transaction.status": event.TraceStatus(),
	}
	if event.Transaction != "" {
		tags["transaction"] = metrics.SanitizeTagValue(event.Transaction)
	}

	point := func(name, unit string, value float64) *metrics.Bucket {
		return &metrics.Bucket{
			Key: metrics.BucketKey{
				OrgID:      scope.OrgID,
				ProjectID:  scope.ProjectID,
				MetricName: metrics.MRI(metrics.DistributionType, "transactions", name, unit),
				Tags:       tags,
				Timestamp:  timestamp,
			},
			Value: metrics.DistributionValue{value},
		}
	}

	var buckets []*metrics.Bucket

	if !event.StartTimestamp.IsZero() {
		if duration := event.Timestamp.Sub(event.StartTimestamp.Time); duration >= 0 {
			buckets = append(buckets, point("duration", "millisecond", durationMillis(duration)))
		}
	}

	names := make([]string, 0, len(event.Measurements))
	for name := range event.Measurements {
		names = append(names, name)
	}
	allowed := cfg.Measurements.allowedNames(names)
	sort.Strings(allowed)
	for _, name := range allowed {
		m := event.Measurements[name]
		unit := m.Unit
		if unit == "" {
			unit = metrics.DefaultUnit
		}
		buckets = append(buckets, point("measurements."+name, unit, m.Value))
	}

	for _, name := range sortedBreakdownNames(cfg.Breakdowns) {
		breakdown := cfg.Breakdowns[name]
		if breakdown.Type != BreakdownSpanOperations {
			continue
		}
		for key, millis := range spanOperationBreakdown(event.Spans, breakdown.Matches) {
			buckets = append(buckets, point("breakdowns."+name+"."+key, "millisecond", millis))
		}
	}

	return buckets
}

func sortedBreakdownNames(breakdowns map[string]BreakdownConfig) []string {
	if len(breakdowns) == 0 {
		return nil
	}
	names := make([]string, 0, len(breakdowns))
	for name := range breakdowns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// spanOperationBreakdown computes the non-overlapping time spent per
// configured operation prefix, plus the total time across all spans.
// Operations without any matching span emit nothing.
func spanOperationBreakdown(spans []envelope.Span, matches []string) map[string]float64 {
	valid := spans[:0:0]
	for _, span := range spans {
		if span.StartTimestamp.IsZero() || span.Timestamp.Before(span.StartTimestamp.Time) {
			continue
		}
		valid = append(valid, span)
	}
	if len(valid) == 0 {
		return nil
	}

	result := make(map[string]float64)
	for _, match := range matches {
		var matched []envelope.Span
		for _, span := range valid {
			if span.Op == match || strings.HasPrefix(span.Op, match+".") {
				matched = append(matched, span)
			}
		}
		if len(matched) == 0 {
			continue
		}
		result["ops."+match] = intervalUnionMillis(matched)
	}
	result["total.time"] = intervalUnionMillis(valid)
	return result
}

// intervalUnionMillis measures the union of the span intervals so
// overlapping spans of the same operation are not double counted.
func intervalUnionMillis(spans []envelope.Span) float64 {
	sorted := make([]envelope.Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTimestamp.Before(sorted[j].StartTimestamp.Time)
	})

	var total time.Duration
	var end time.Time
	for _, span := range sorted {
		start := span.StartTimestamp.Time
		if !end.IsZero() && start.Before(end) {
			start = end
		}
		if span.Timestamp.After(start) {
			total += span.Timestamp.Sub(start)
		}
		if end.IsZero() || span.Timestamp.After(end) {
			end = span.Timestamp.Time
		}
	}
	return durationMillis(total)
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
