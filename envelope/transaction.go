// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/json"
	"fmt"
)

// Measurement is one named observation attached to a transaction.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Span is the subset of a transaction span the metrics core reads for
// operation breakdowns.
type Span struct {
	Op             string    `json:"op"`
	StartTimestamp Timestamp `json:"start_timestamp"`
	Timestamp      Timestamp `json:"timestamp"`
}

// TraceContext carries the status of the transaction's trace.
type TraceContext struct {
	Op     string `json:"op,omitempty"`
	Status string `json:"status,omitempty"`
}

// TransactionEvent is the payload of a transaction item, reduced to the
// fields metric extraction reads. Onward delivery forwards the raw payload
// untouched.
type TransactionEvent struct {
	Transaction    string                 `json:"transaction"`
	Platform       string                 `json:"platform"`
	Release        string                 `json:"release,omitempty"`
	Environment    string                 `json:"environment,omitempty"`
	StartTimestamp Timestamp              `json:"start_timestamp"`
	Timestamp      Timestamp              `json:"timestamp"`
	Contexts       map[string]TraceContext `json:"contexts,omitempty"`
	Measurements   map[string]Measurement `json:"measurements,omitempty"`
	Spans          []Span                 `json:"spans,omitempty"`
}

// TraceStatus returns the trace context status, or "unknown" when absent.
func (e *TransactionEvent) TraceStatus() string {
	if trace, ok := e.Contexts["trace"]; ok && trace.Status != "" {
		return trace.Status
	}
	return "unknown"
}

// ParseTransactionEvent decodes a transaction item payload.
func ParseTransactionEvent(payload []byte) (*TransactionEvent, error) {
	var event TransactionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("malformed transaction event: %w", err)
	}
	if event.Timestamp.IsZero() {
		return nil, fmt.Errorf("transaction event without timestamp")
	}
	return &event, nil
}
