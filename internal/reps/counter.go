// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package reps turns per-frame phase checks into a repetition count.
//
// The machine has two states. While awaiting a squat only the squat check
// runs; a positive result moves to awaiting a stand-up. While awaiting a
// stand-up only the stand-up check runs; a positive result counts one rep
// and moves back. Negative checks never change state, so a rep is counted
// once per squat→stand-up cycle and never twice in a row.
package reps

import (
	"context"
	"fmt"

	"github.com/relabs-tech/squat_counter/internal/classifier"
	"github.com/relabs-tech/squat_counter/internal/pose"
)

// Phase labels shown to the user.
const (
	LabelSquat   = "Squat"
	LabelStandUp = "Stand up"
)

// Cycle is the persistent state of the counter.
type Cycle int

const (
	AwaitingSquat Cycle = iota
	AwaitingStandUp
)

func (c Cycle) String() string {
	if c == AwaitingStandUp {
		return "awaiting_standup"
	}
	return "awaiting_squat"
}

// MarshalText encodes the cycle by name.
func (c Cycle) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a cycle name.
func (c *Cycle) UnmarshalText(text []byte) error {
	switch string(text) {
	case "awaiting_squat", "":
		*c = AwaitingSquat
	case "awaiting_standup":
		*c = AwaitingStandUp
	default:
		return fmt.Errorf("unknown cycle %q", text)
	}
	return nil
}

// PhaseChecker runs the phase checks on a fresh frame.
type PhaseChecker interface {
	ClassifySquat(ctx context.Context, frame pose.Frame) classifier.Reading
	ClassifyStandUp(ctx context.Context, frame pose.Frame) classifier.Reading
}

// Classify runs the check that matters while the counter is in cycle.
// Callers that hold the counter behind a lock pass a snapshot of Cycle and
// feed the result to ObserveReading once the lock is retaken.
func Classify(ctx context.Context, cycle Cycle, p PhaseChecker, frame pose.Frame) classifier.Reading {
	if cycle == AwaitingStandUp {
		return p.ClassifyStandUp(ctx, frame)
	}
	return p.ClassifySquat(ctx, frame)
}

// Transition describes what one observation did.
type Transition struct {
	From, To Cycle
	// Label is set when the cycle changed.
	Label string
	// Counted is true when this observation completed a rep.
	Counted bool
}

// Changed reports whether the cycle moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Counter is the rep state machine. It is not safe for concurrent use;
// callers serialize Observe and Reset on one timeline.
type Counter struct {
	cycle    Cycle
	reps     int
	debounce int
	streak   int
	lastSeq  uint64
}

// NewCounter creates a counter in AwaitingSquat with zero reps. A
// transition needs debounce consecutive positive checks; values below 1
// mean a single positive frame is enough.
func NewCounter(debounce int) *Counter {
	if debounce < 1 {
		debounce = 1
	}
	return &Counter{debounce: debounce}
}

// Cycle returns the current state.
func (c *Counter) Cycle() Cycle { return c.cycle }

// Reps returns the number of completed reps.
func (c *Counter) Reps() int { return c.reps }

// Observe feeds the result of the current state's check.
func (c *Counter) Observe(positive bool) Transition {
	t := Transition{From: c.cycle, To: c.cycle}
	if !positive {
		c.streak = 0
		return t
	}
	c.streak++
	if c.streak < c.debounce {
		return t
	}
	c.streak = 0

	switch c.cycle {
	case AwaitingSquat:
		c.cycle = AwaitingStandUp
		t.Label = LabelSquat
	case AwaitingStandUp:
		c.reps++
		c.cycle = AwaitingSquat
		t.Label = LabelStandUp
		t.Counted = true
	}
	t.To = c.cycle
	return t
}

// ObserveReading feeds a classified frame. A reading whose estimator
// frame number matches the previous one is the same frame served again and
// leaves the counter untouched, so a held frame cannot satisfy the
// debounce on its own. Unnumbered readings (Seq 0) are always observed.
func (c *Counter) ObserveReading(r classifier.Reading) Transition {
	if r.Seq != 0 {
		if r.Seq == c.lastSeq {
			return Transition{From: c.cycle, To: c.cycle}
		}
		c.lastSeq = r.Seq
	}
	return c.Observe(r.Positive)
}

// Reset returns to AwaitingSquat and keeps the rep count.
func (c *Counter) Reset() {
	c.cycle = AwaitingSquat
	c.streak = 0
	c.lastSeq = 0
}
