// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sources

import (
	"context"
	"sync"
	"time"

	"github.com/relabs-tech/squat_counter/internal/pose"
	"github.com/relabs-tech/squat_counter/internal/timeutil"
)

// Latest keeps the most recent keypoint frame pushed by a streaming
// estimator. Estimate never consumes the frame; it only hides it once
// it is older than maxAge.
type Latest struct {
	clock  timeutil.Clock
	maxAge time.Duration

	mu  sync.RWMutex
	set *pose.KeypointSet
	seq uint64
	at  time.Time
}

// NewLatest creates an empty holder. Until the first Update every
// Estimate reports no person.
func NewLatest(clock timeutil.Clock, maxAge time.Duration) *Latest {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Latest{clock: clock, maxAge: maxAge}
}

// Update stores a frame. A nil set records that nobody was seen. The
// stored set carries seq so a frame served on several polls can be told
// apart from fresh ones.
func (l *Latest) Update(seq uint64, set *pose.KeypointSet) {
	l.mu.Lock()
	l.set = set.WithSeq(seq)
	l.seq = seq
	l.at = l.clock.Now()
	l.mu.Unlock()
}

// Seq returns the estimator sequence number of the stored frame.
func (l *Latest) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Estimate implements pose.Source.
func (l *Latest) Estimate(_ context.Context, _ pose.Frame) (*pose.KeypointSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.set == nil {
		return nil, nil
	}
	if l.maxAge > 0 && l.clock.Now().Sub(l.at) > l.maxAge {
		return nil, nil
	}
	return l.set, nil
}
