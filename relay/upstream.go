// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaycore/relaycore-go/aggregator"
	"github.com/relaycore/relaycore-go/internal/gzipx"
	"github.com/relaycore/relaycore-go/metrics"
)

// errDiscardBatch marks responses that must not be retried.
var errDiscardBatch = errors.New("upstream rejected batch")

// backoffSequenceSeconds is the retry backoff schedule for upstream sends.
var backoffSequenceSeconds = []int{0, 1, 2, 4, 8, 16}

// UpstreamSink forwards flushed batches to the next relay in the chain as
// a metric_buckets envelope payload. Ownership fields are omitted: the
// upstream resolves projects itself.
type UpstreamSink struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewUpstreamSink creates a sink posting batches to url. A nil client uses
// http.DefaultClient.
func NewUpstreamSink(url string, client *http.Client, logger zerolog.Logger) *UpstreamSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &UpstreamSink{url: url, client: client, logger: logger}
}

// SendBuckets implements aggregator.Sink. The batch is serialized once and
// retried with backoff on transient upstream failures; the shard routing
// attribute is attached when the batch was partitioned.
func (u *UpstreamSink) SendBuckets(ctx context.Context, batch aggregator.FlushBatch) error {
	payload := metrics.EncodeBuckets(batch.Buckets, false)
	compressed, err := gzipx.Compress(payload)
	if err != nil {
		return fmt.Errorf("compress batch: %w", err)
	}
	body := compressed.Bytes()

	for attempt := 0; ; attempt++ {
		err := u.post(ctx, body, batch.Shard)
		if err == nil {
			return nil
		}
		if errors.Is(err, errDiscardBatch) {
			return err
		}

		backoff := backoffSequenceSeconds[min(attempt, len(backoffSequenceSeconds)-1)]
		u.logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("backoff_seconds", backoff).
			Msg("upstream send failed, retrying")

		timer := time.NewTimer(time.Duration(backoff) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (u *UpstreamSink) post(ctx context.Context, body []byte, shard *uint32) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errDiscardBatch, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	if shard != nil {
		req.Header.Set(aggregator.ShardHeader, strconv.FormatUint(uint64(*shard), 10))
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("error posting batch: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200, 202:
		return nil
	case 400, 403, 404, 405, 411, 413:
		return fmt.Errorf("%w: status %d", errDiscardBatch, resp.StatusCode)
	default:
		return fmt.Errorf("unexpected post response code: %d", resp.StatusCode)
	}
}

// Producer hands serialized bucket payloads to the durable message queue.
// The queue client itself is an external collaborator.
type Producer interface {
	Produce(ctx context.Context, shard *uint32, payload []byte) error
}

// StoreSink emits flushed batches toward the durable storage topics of a
// processing relay. Buckets carry their org and project ids here.
type StoreSink struct {
	producer Producer
}

// NewStoreSink creates a sink handing batches to producer.
func NewStoreSink(producer Producer) *StoreSink {
	return &StoreSink{producer: producer}
}

// SendBuckets implements aggregator.Sink.
func (s *StoreSink) SendBuckets(ctx context.Context, batch aggregator.FlushBatch) error {
	return s.producer.Produce(ctx, batch.Shard, metrics.EncodeBuckets(batch.Buckets, true))
}
