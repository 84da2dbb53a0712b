// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state reported by a session update.
type SessionStatus string

const (
	SessionStatusOk       SessionStatus = "ok"
	SessionStatusExited   SessionStatus = "exited"
	SessionStatusCrashed  SessionStatus = "crashed"
	SessionStatusAbnormal SessionStatus = "abnormal"
	SessionStatusErrored  SessionStatus = "errored"
)

// SessionAttributes are the release/environment attributes of a session.
type SessionAttributes struct {
	Release     string `json:"release"`
	Environment string `json:"environment,omitempty"`
}

// SessionUpdate is the payload of a session item.
type SessionUpdate struct {
	ID         uuid.UUID         `json:"sid"`
	DistinctID string            `json:"did,omitempty"`
	Sequence   uint64            `json:"seq"`
	Init       bool              `json:"init"`
	Timestamp  Timestamp         `json:"timestamp"`
	Started    Timestamp         `json:"started"`
	Duration   float64           `json:"duration,omitempty"`
	Status     SessionStatus     `json:"status"`
	Errors     uint64            `json:"errors"`
	Attributes SessionAttributes `json:"attrs"`
}

// ParseSessionUpdate decodes a session item payload.
func ParseSessionUpdate(payload []byte) (*SessionUpdate, error) {
	var update SessionUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, fmt.Errorf("malformed session update: %w", err)
	}
	if update.Attributes.Release == "" {
		return nil, fmt.Errorf("session update without release")
	}
	return &update, nil
}
