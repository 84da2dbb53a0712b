// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the metric bucket data model: metric types,
// bucket keys, the four bucket value kinds with their merge rules, the
// text submission protocol, and the serialized batch representation.
package metrics

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// MetricType is the one-character type code of a metric kind.
type MetricType byte

const (
	// CounterType sums submitted values.
	CounterType MetricType = 'c'
	// DistributionType collects every submitted value.
	DistributionType MetricType = 'd'
	// SetType tracks distinct hashed values.
	SetType MetricType = 's'
	// GaugeType tracks last/min/max/sum/count of submitted values.
	GaugeType MetricType = 'g'
)

func (t MetricType) String() string {
	return string(rune(t))
}

func validMetricType(t MetricType) bool {
	switch t {
	case CounterType, DistributionType, SetType, GaugeType:
		return true
	}
	return false
}

// DefaultUnit is used when a submission does not declare a unit.
const DefaultUnit = "none"

// MRI builds the normalized metric resource identifier
// "<type>:<namespace>/<name>@<unit>" under which buckets are keyed and
// emitted.
func MRI(t MetricType, namespace, name, unit string) string {
	if unit == "" {
		unit = DefaultUnit
	}
	return fmt.Sprintf("%c:%s/%s@%s", t, namespace, name, unit)
}

// TypeOfMRI returns the type code prefix of a normalized metric name.
func TypeOfMRI(name string) (MetricType, bool) {
	if len(name) < 2 || name[1] != ':' {
		return 0, false
	}
	t := MetricType(name[0])
	return t, validMetricType(t)
}

// HashSetValue maps a raw set element to membership space using FNV-1a 32.
// The function is part of the wire contract: downstream consumers compare
// these integers across relays, so it must never change.
func HashSetValue(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == '/':
		default:
			return false
		}
	}
	return true
}

func validUnit(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// SanitizeTagValue strips control characters that would corrupt the
// serialized tag mapping.
func SanitizeTagValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, s)
}
