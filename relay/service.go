// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/relaycore/relaycore-go/aggregator"
	"github.com/relaycore/relaycore-go/envelope"
	"github.com/relaycore/relaycore-go/extraction"
	"github.com/relaycore/relaycore-go/metrics"
)

// Service is the metrics core of one relay instance: it accepts metric
// submissions and envelope items, aggregates buckets, and flushes them to
// the configured sink on schedule or on shutdown.
type Service struct {
	cfg    Config
	logger zerolog.Logger
	stats  *aggregator.Stats

	agg     *aggregator.Aggregator
	flusher *aggregator.Flusher

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewService builds the service around the given sink. Self-observability
// counters register on reg.
func NewService(cfg Config, sink aggregator.Sink, reg prometheus.Registerer, logger zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stats := aggregator.NewStats(reg)
	agg, err := aggregator.New(cfg.Aggregator, stats, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:     cfg,
		logger:  logger,
		stats:   stats,
		agg:     agg,
		flusher: aggregator.NewFlusher(agg, sink, stats, logger),
	}, nil
}

// Start begins the periodic flush cycle.
func (s *Service) Start() {
	s.logger.Info().
		Int64("bucket_interval", s.cfg.Aggregator.BucketInterval).
		Int64("initial_delay", s.cfg.Aggregator.InitialDelay).
		Msg("metrics aggregation started")
	s.flusher.Run()
}

// Aggregator exposes the bucket aggregator, mainly for tests and for the
// transport layer's health reporting.
func (s *Service) Aggregator() *aggregator.Aggregator {
	return s.agg
}

// SubmitMetrics parses a newline-delimited metrics payload and merges every
// well-formed line. Malformed lines and out-of-window timestamps drop the
// single line, are counted, and do not abort the rest. The returned count
// is the number of merged submissions; ErrStopped is returned once the
// service is shutting down.
func (s *Service) SubmitMetrics(scope extraction.Scope, payload string, timestamp int64) (int, error) {
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	buckets, parseErrs := metrics.ParseBuckets(payload, scope.OrgID, scope.ProjectID, timestamp)
	for range parseErrs {
		s.stats.DroppedBuckets.WithLabelValues(aggregator.ReasonMalformed).Inc()
	}
	if len(parseErrs) > 0 {
		s.logger.Debug().
			Int("lines", len(parseErrs)).
			Uint64("project_id", scope.ProjectID).
			Msg("dropping malformed metric lines")
	}

	merged := 0
	for _, bucket := range buckets {
		err := s.agg.Merge(bucket)
		switch {
		case err == nil:
			merged++
		case errors.Is(err, aggregator.ErrStopped):
			return merged, err
		default:
			// Dropped individually, already counted by the aggregator.
		}
	}
	return merged, nil
}

// ProcessEnvelopeItem runs chain-coordinated metric extraction for one
// session or transaction item and merges whatever it yields. The item's
// payload is untouched; only its metrics_extracted header may flip to true.
// Extraction problems never fail the item's onward delivery.
func (s *Service) ProcessEnvelopeItem(item *envelope.Item, projectCfg *extraction.ProjectConfig, ictx extraction.ItemContext) error {
	extracted, err := extraction.ExtractItemMetrics(item, projectCfg, ictx)
	if err != nil {
		s.stats.DroppedBuckets.WithLabelValues(aggregator.ReasonMalformed).Inc()
		s.logger.Debug().Err(err).
			Str("item_type", string(item.Type)).
			Uint64("project_id", ictx.Scope.ProjectID).
			Msg("metric extraction skipped")
		return nil
	}

	for _, bucket := range extracted {
		if err := s.agg.Merge(bucket); err != nil {
			if errors.Is(err, aggregator.ErrStopped) {
				return err
			}
		}
	}
	return nil
}

// Shutdown drains the service: intake stops immediately, the flush timer
// is cancelled, and every outstanding bucket is force-flushed regardless
// of its due time. The drain is bounded by the configured shutdown
// timeout; buckets still mid-flush when it elapses are lost.
func (s *Service) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		timeout := time.Duration(s.cfg.Limits.ShutdownTimeout) * time.Second
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		s.logger.Info().Dur("timeout", timeout).Msg("draining metrics aggregator")

		s.agg.Stop()
		s.flusher.Stop()
		s.flusher.FlushAll(ctx)

		if err := s.flusher.Wait(ctx); err != nil {
			s.shutdownErr = err
			s.logger.Warn().Err(err).Msg("shutdown timeout exceeded, in-flight buckets lost")
			return
		}
		s.logger.Info().Msg("metrics aggregator drained")
	})
	return s.shutdownErr
}
