// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parse errors. Callers drop the offending line and keep going.
var (
	ErrParseName  = errors.New("invalid metric name")
	ErrParseUnit  = errors.New("invalid metric unit")
	ErrParseValue = errors.New("invalid metric value")
	ErrParseType  = errors.New("invalid metric type")
)

// ParseLine parses one submission line of the form
//
//	<namespace>/<name>[@<unit>]:<value>|<type-char>
//
// into a bucket holding a singleton value. The bucket timestamp is the raw
// submission timestamp: truncation to the bucket interval and width
// assignment happen when the aggregator accepts the bucket.
func ParseLine(line string, orgID, projectID uint64, timestamp int64) (*Bucket, error) {
	name, rest, found := strings.Cut(line, ":")
	if !found {
		return nil, fmt.Errorf("%w: missing value in %q", ErrParseValue, line)
	}
	rawValue, typeCode, found := strings.Cut(rest, "|")
	if !found {
		return nil, fmt.Errorf("%w: missing type in %q", ErrParseType, line)
	}

	unit := DefaultUnit
	if base, u, hasUnit := strings.Cut(name, "@"); hasUnit {
		if !validUnit(u) {
			return nil, fmt.Errorf("%w: %q", ErrParseUnit, u)
		}
		name, unit = base, u
	}
	namespace, basename, found := strings.Cut(name, "/")
	if !found || !validName(namespace) || !validName(basename) {
		return nil, fmt.Errorf("%w: %q", ErrParseName, name)
	}

	if len(typeCode) != 1 {
		return nil, fmt.Errorf("%w: %q", ErrParseType, typeCode)
	}
	metricType := MetricType(typeCode[0])

	var value BucketValue
	switch metricType {
	case CounterType:
		f, err := parseFiniteFloat(rawValue)
		if err != nil {
			return nil, err
		}
		value = CounterValue(f)
	case DistributionType:
		f, err := parseFiniteFloat(rawValue)
		if err != nil {
			return nil, err
		}
		value = DistributionValue{f}
	case SetType:
		if rawValue == "" {
			return nil, fmt.Errorf("%w: empty set element", ErrParseValue)
		}
		value = NewSetValue(HashSetValue(rawValue))
	case GaugeType:
		f, err := parseFiniteFloat(rawValue)
		if err != nil {
			return nil, err
		}
		value = NewGaugeValue(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrParseType, typeCode)
	}

	return &Bucket{
		Key: BucketKey{
			OrgID:      orgID,
			ProjectID:  projectID,
			MetricName: MRI(metricType, namespace, basename, unit),
			Timestamp:  timestamp,
		},
		Value: value,
	}, nil
}

// parseFiniteFloat parses a metric value token. NaN and infinities are
// rejected: they have no JSON representation, so accepting one here would
// corrupt the serialized batch the bucket later flushes into.
func parseFiniteFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParseValue, s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite %q", ErrParseValue, s)
	}
	return f, nil
}

// ParseBuckets parses a newline-delimited submission payload. Malformed
// lines do not abort parsing of the remaining lines; they are returned as
// errors alongside the successfully parsed buckets.
func ParseBuckets(payload string, orgID, projectID uint64, timestamp int64) ([]*Bucket, []error) {
	var (
		buckets []*Bucket
		errs    []error
	)
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		bucket, err := ParseLine(line, orgID, projectID, timestamp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		buckets = append(buckets, bucket)
	}
	return buckets, errs
}
