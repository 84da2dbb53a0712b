// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"github.com/relaycore/relaycore-go/envelope"
	"github.com/relaycore/relaycore-go/metrics"
)

// sessionStatusTag derives the session.status tag of a session update.
// Initial updates always report "init"; updates carrying errors that did
// not end in a crash or abnormal exit report "errored".
func sessionStatusTag(update *envelope.SessionUpdate) string {
	if update.Init {
		return "init"
	}
	switch update.Status {
	case envelope.SessionStatusCrashed, envelope.SessionStatusAbnormal:
		return string(update.Status)
	}
	if update.Errors > 0 {
		return string(envelope.SessionStatusErrored)
	}
	return string(update.Status)
}

// ExtractSessionMetrics derives metric points from one session update: a
// counter counting the update under its status, and a set estimating
// distinct users from the hashed distinct id. Points are timestamped at the
// session's started time.
func ExtractSessionMetrics(update *envelope.SessionUpdate, scope Scope, clientSDK string) []*metrics.Bucket {
	timestamp := update.Started.Unix()

	commonTags := map[string]string{
		"release": metrics.SanitizeTagValue(update.Attributes.Release),
	}
	if update.Attributes.Environment != "" {
		commonTags["environment"] = metrics.SanitizeTagValue(update.Attributes.Environment)
	}
	if clientSDK != "" {
		commonTags["sdk"] = metrics.SanitizeTagValue(clientSDK)
	}

	sessionTags := make(map[string]string, len(commonTags)+1)
	for k, v := range commonTags {
		sessionTags[k] = v
	}
	sessionTags["session.status"] = sessionStatusTag(update)

	buckets := []*metrics.Bucket{{
		Key: metrics.BucketKey{
			OrgID:      scope.OrgID,
			ProjectID:  scope.ProjectID,
			MetricName: metrics.MRI(metrics.CounterType, "sessions", "session", metrics.DefaultUnit),
			Tags:       sessionTags,
			Timestamp:  timestamp,
		},
		Value: metrics.CounterValue(1),
	}}

	if update.DistinctID != "" {
		buckets = append(buckets, &metrics.Bucket{
			Key: metrics.BucketKey{
				OrgID:      scope.OrgID,
				ProjectID:  scope.ProjectID,
				MetricName: metrics.MRI(metrics.SetType, "sessions", "user", metrics.DefaultUnit),
				Tags:       commonTags,
				Timestamp:  timestamp,
			},
			Value: metrics.NewSetValue(metrics.HashSetValue(update.DistinctID)),
		})
	}

	return buckets
}
