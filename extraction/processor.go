// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"fmt"

	"github.com/relaycore/relaycore-go/envelope"
	"github.com/relaycore/relaycore-go/metrics"
)

// Scope identifies the project a submission belongs to.
type Scope struct {
	OrgID     uint64
	ProjectID uint64
}

// ItemContext carries the per-item inputs the coordinator needs beyond the
// item itself.
type ItemContext struct {
	Scope Scope
	// ClientSDK is the submitting SDK identifier from the envelope meta,
	// used as the sdk tag on session metrics.
	ClientSDK string
	// Discarded marks items dropped by sampling or inbound filter rules.
	// Discarded items never reach extraction.
	Discarded bool
}

// ExtractItemMetrics applies the relay-chain extraction rule to one
// session or transaction item: extract iff the item is not yet marked
// extracted and this relay's project config enables extraction for the
// item kind; then mark the item extracted exactly once before it is
// forwarded. Any hop downstream observes the flag and skips re-extraction.
//
// The item itself always continues through the pipeline unchanged apart
// from the flag; extraction failures and unsupported configs yield zero
// metrics, never a delivery failure.
func ExtractItemMetrics(item *envelope.Item, cfg *ProjectConfig, ictx ItemContext) ([]*metrics.Bucket, error) {
	if ictx.Discarded || item.Headers.MetricsExtracted || cfg == nil {
		return nil, nil
	}

	switch item.Type {
	case envelope.ItemSession:
		if !cfg.SessionMetrics.Supported() {
			return nil, nil
		}
		update, err := envelope.ParseSessionUpdate(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("session extraction: %w", err)
		}
		item.Headers.MetricsExtracted = true
		return ExtractSessionMetrics(update, ictx.Scope, ictx.ClientSDK), nil

	case envelope.ItemTransaction:
		if !cfg.TransactionMetrics.Supported() {
			return nil, nil
		}
		event, err := envelope.ParseTransactionEvent(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("transaction extraction: %w", err)
		}
		item.Headers.MetricsExtracted = true
		return ExtractTransactionMetrics(event, cfg, ictx.Scope), nil
	}

	return nil, nil
}
