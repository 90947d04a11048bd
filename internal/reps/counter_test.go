// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package reps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/squat_counter/internal/classifier"
	"github.com/relabs-tech/squat_counter/internal/pose"
)

// fakeChecker answers each check from a queue and records which one ran.
type fakeChecker struct {
	squat, standUp []bool
	calls          []string
}

func pop(q *[]bool) bool {
	if len(*q) == 0 {
		return false
	}
	v := (*q)[0]
	*q = (*q)[1:]
	return v
}

func (f *fakeChecker) ClassifySquat(context.Context, pose.Frame) classifier.Reading {
	f.calls = append(f.calls, "squat")
	return classifier.Reading{Positive: pop(&f.squat)}
}

func (f *fakeChecker) ClassifyStandUp(context.Context, pose.Frame) classifier.Reading {
	f.calls = append(f.calls, "standup")
	return classifier.Reading{Positive: pop(&f.standUp)}
}

func step(ctx context.Context, c *Counter, p PhaseChecker, frame pose.Frame) Transition {
	return c.ObserveReading(Classify(ctx, c.Cycle(), p, frame))
}

func TestCounter_InitialState(t *testing.T) {
	c := NewCounter(1)
	assert.Equal(t, AwaitingSquat, c.Cycle())
	assert.Zero(t, c.Reps())
}

func TestCounter_SquatThenStandUp(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(1)
	p := &fakeChecker{squat: []bool{true}, standUp: []bool{true}}

	tr := step(ctx, c, p, pose.Frame{Seq: 1})
	assert.True(t, tr.Changed())
	assert.Equal(t, LabelSquat, tr.Label)
	assert.False(t, tr.Counted)
	assert.Equal(t, AwaitingStandUp, c.Cycle())
	assert.Zero(t, c.Reps())

	tr = step(ctx, c, p, pose.Frame{Seq: 2})
	assert.Equal(t, LabelStandUp, tr.Label)
	assert.True(t, tr.Counted)
	assert.Equal(t, AwaitingSquat, c.Cycle())
	assert.Equal(t, 1, c.Reps())

	assert.Equal(t, []string{"squat", "standup"}, p.calls)
}

func TestCounter_NegativeChecksKeepState(t *testing.T) {
	c := NewCounter(1)

	for i := 0; i < 5; i++ {
		tr := c.Observe(false)
		assert.False(t, tr.Changed())
		assert.Empty(t, tr.Label)
	}
	assert.Equal(t, AwaitingSquat, c.Cycle())

	c.Observe(true)
	for i := 0; i < 5; i++ {
		c.Observe(false)
	}
	assert.Equal(t, AwaitingStandUp, c.Cycle())
	assert.Zero(t, c.Reps())
}

func TestCounter_NoDoubleCount(t *testing.T) {
	c := NewCounter(1)

	c.Observe(true) // squat
	tr := c.Observe(true)
	require.True(t, tr.Counted)
	assert.Equal(t, 1, c.Reps())

	// The next positive result is the squat check's, not a second stand-up.
	tr = c.Observe(true)
	assert.False(t, tr.Counted)
	assert.Equal(t, AwaitingStandUp, c.Cycle())
	assert.Equal(t, 1, c.Reps())
}

func TestCounter_OnlyCurrentCheckRuns(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(1)
	// The stand-up check would say yes, but it must not be asked first.
	p := &fakeChecker{squat: []bool{false, false, true}, standUp: []bool{true, true}}

	for i := 0; i < 4; i++ {
		step(ctx, c, p, pose.Frame{Seq: uint64(i)})
	}
	assert.Equal(t, []string{"squat", "squat", "squat", "standup"}, p.calls)
	assert.Equal(t, 1, c.Reps())
}

func TestCounter_ManyCycles(t *testing.T) {
	c := NewCounter(1)
	pattern := []bool{false, true, false, false, true}
	for rep := 0; rep < 10; rep++ {
		for _, v := range pattern {
			c.Observe(v)
		}
	}
	assert.Equal(t, 10, c.Reps())
	assert.Equal(t, AwaitingSquat, c.Cycle())
}

func TestCounter_Debounce(t *testing.T) {
	c := NewCounter(3)

	c.Observe(true)
	c.Observe(true)
	c.Observe(false) // flicker breaks the streak
	c.Observe(true)
	c.Observe(true)
	assert.Equal(t, AwaitingSquat, c.Cycle())

	tr := c.Observe(true)
	assert.Equal(t, LabelSquat, tr.Label)
	assert.Equal(t, AwaitingStandUp, c.Cycle())

	for i := 0; i < 3; i++ {
		tr = c.Observe(true)
	}
	assert.True(t, tr.Counted)
	assert.Equal(t, 1, c.Reps())
}

func TestCounter_ResetKeepsReps(t *testing.T) {
	c := NewCounter(1)
	c.Observe(true)
	c.Observe(true)
	c.Observe(true)
	require.Equal(t, AwaitingStandUp, c.Cycle())
	require.Equal(t, 1, c.Reps())

	c.Reset()
	assert.Equal(t, AwaitingSquat, c.Cycle())
	assert.Equal(t, 1, c.Reps())
}

func TestCounter_HeldFrameDoesNotSatisfyDebounce(t *testing.T) {
	c := NewCounter(3)
	held := classifier.Reading{Positive: true, Phase: classifier.PhaseSquat, Seq: 7}

	for i := 0; i < 3; i++ {
		tr := c.ObserveReading(held)
		assert.False(t, tr.Changed(), "poll %d of the same frame", i)
	}
	assert.Equal(t, AwaitingSquat, c.Cycle())

	held.Seq = 8
	c.ObserveReading(held)
	held.Seq = 9
	tr := c.ObserveReading(held)
	assert.Equal(t, LabelSquat, tr.Label, "two fresh frames complete the streak started by frame 7")
	assert.Equal(t, AwaitingStandUp, c.Cycle())
}

func TestCounter_UnnumberedReadingsAlwaysCount(t *testing.T) {
	c := NewCounter(2)
	r := classifier.Reading{Positive: true}

	c.ObserveReading(r)
	tr := c.ObserveReading(r)
	assert.Equal(t, LabelSquat, tr.Label)
}

func TestCounter_ResetForgetsLastFrame(t *testing.T) {
	c := NewCounter(1)
	r := classifier.Reading{Positive: true, Seq: 5}

	require.True(t, c.ObserveReading(r).Changed())
	c.Reset()
	assert.True(t, c.ObserveReading(r).Changed(), "same frame is fresh after reset")
}
