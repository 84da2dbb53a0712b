// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package extraction derives metric buckets from session and transaction
// events before they are forwarded, and enforces the at-most-once
// extraction rule across a chain of relays.
package extraction

import (
	"encoding/json"
	"sort"
)

// Extraction config versions this relay understands. Configs outside the
// range disable extraction silently: a newer processing relay downstream
// may still understand them.
const (
	minExtractionVersion = 1
	maxExtractionVersion = 2
)

// VersionedConfig is the version gate of a feature config. A malformed or
// non-object config decodes to the zero value, which is unsupported.
type VersionedConfig struct {
	Version int `json:"version"`
}

// UnmarshalJSON implements json.Unmarshaler. Corrupt configs must not
// abort project config decoding, they only disable the feature.
func (c *VersionedConfig) UnmarshalJSON(data []byte) error {
	type plain VersionedConfig
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		*c = VersionedConfig{}
		return nil
	}
	*c = VersionedConfig(decoded)
	return nil
}

// Supported reports whether this relay may extract under the config.
func (c VersionedConfig) Supported() bool {
	return c.Version >= minExtractionVersion && c.Version <= maxExtractionVersion
}

// BuiltinMeasurement declares a well-known measurement and its unit.
// Builtin measurements are never subject to the custom measurement cap.
type BuiltinMeasurement struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// MeasurementsConfig is the project-level measurement allow-list and cap.
type MeasurementsConfig struct {
	Builtin   []BuiltinMeasurement `json:"builtinMeasurements"`
	MaxCustom *int                 `json:"maxCustomMeasurements"`
}

func (c *MeasurementsConfig) isBuiltin(name string) bool {
	if c == nil {
		return false
	}
	for _, b := range c.Builtin {
		if b.Name == name {
			return true
		}
	}
	return false
}

// allowedNames returns the measurement names to extract, in no particular
// order. Builtins always pass; custom names beyond the cap are truncated
// by picking names in lexicographic order up to the cap.
func (c *MeasurementsConfig) allowedNames(names []string) []string {
	if c == nil || c.MaxCustom == nil {
		return names
	}

	var builtin, custom []string
	for _, name := range names {
		if c.isBuiltin(name) {
			builtin = append(builtin, name)
		} else {
			custom = append(custom, name)
		}
	}
	sort.Strings(custom)
	if len(custom) > *c.MaxCustom {
		custom = custom[:*c.MaxCustom]
	}
	return append(builtin, custom...)
}

// BreakdownType is the kind of a configured breakdown computation.
type BreakdownType string

// BreakdownSpanOperations emits per-operation span timing totals.
const BreakdownSpanOperations BreakdownType = "spanOperations"

// BreakdownConfig declares one computed breakdown on transactions.
type BreakdownConfig struct {
	Type    BreakdownType `json:"type"`
	Matches []string      `json:"matches"`
}

// ProjectConfig is the slice of the externally owned project configuration
// the metrics core reads. It is immutable from this package's perspective.
type ProjectConfig struct {
	SessionMetrics     VersionedConfig            `json:"sessionMetrics"`
	TransactionMetrics VersionedConfig            `json:"transactionMetrics"`
	Measurements       *MeasurementsConfig        `json:"measurements"`
	Breakdowns         map[string]BreakdownConfig `json:"breakdownsV2"`
}
