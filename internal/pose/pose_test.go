// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeypointSet_Filters(t *testing.T) {
	set := NewKeypointSet([]Keypoint{
		{Name: LeftHip, Y: 300, Score: 0.4},
		{Name: LeftHip, Y: 310, Score: 0.8},
		{Name: LeftHip, Y: 320, Score: 0.5},
		{Name: RightHip, Y: 300, Score: 0.2},
		{Name: "tail", Y: 100, Score: 1},
	}, 0.3)

	assert.Equal(t, 1, set.Len())
	y, ok := set.Y(LeftHip)
	require.True(t, ok)
	assert.Equal(t, 310.0, y, "highest score wins")
	_, ok = set.Y(RightHip)
	assert.False(t, ok)
}

func TestKeypointSet_NilSafe(t *testing.T) {
	var set *KeypointSet
	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.Keypoints())
	_, ok := set.Get(Nose)
	assert.False(t, ok)
}

func TestKeypointSet_Order(t *testing.T) {
	set := NewKeypointSet([]Keypoint{
		{Name: RightAnkle, Score: 1},
		{Name: Nose, Score: 1},
		{Name: LeftHip, Score: 1},
	}, 0)
	var names []BodyPart
	for _, kp := range set.Keypoints() {
		names = append(names, kp.Name)
	}
	assert.Equal(t, []BodyPart{Nose, LeftHip, RightAnkle}, names)
}

func TestSubject_At(t *testing.T) {
	standing := DefaultSubject.At(0)
	hip, _ := standing.Y(RightHip)
	left, _ := standing.Y(LeftHip)
	assert.Equal(t, 300.0, hip)
	assert.Equal(t, 298.0, left)

	deep := DefaultSubject.At(1)
	hip, _ = deep.Y(RightHip)
	knee, _ := deep.Y(RightKnee)
	assert.Equal(t, knee, hip)
}

func TestMockSource_HoldThenCycle(t *testing.T) {
	src := NewMockSource(2*time.Second, 4*time.Second)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hipAt := func(d time.Duration) float64 {
		set, err := src.Estimate(context.Background(), Frame{At: start.Add(d)})
		require.NoError(t, err)
		y, ok := set.Y(RightHip)
		require.True(t, ok)
		return y
	}

	assert.Equal(t, 300.0, hipAt(0))
	assert.Equal(t, 300.0, hipAt(time.Second))
	assert.InDelta(t, 300.0, hipAt(2*time.Second), 1e-9)
	assert.InDelta(t, 400.0, hipAt(4*time.Second), 1e-9, "bottom of the squat")
	assert.InDelta(t, 300.0, hipAt(6*time.Second), 1e-9)
}

func TestScript(t *testing.T) {
	a := DefaultSubject.At(0)
	s := NewScript(a, nil)

	got, _ := s.Estimate(context.Background(), Frame{})
	assert.Same(t, a, got)
	got, _ = s.Estimate(context.Background(), Frame{})
	assert.Nil(t, got)
	got, _ = s.Estimate(context.Background(), Frame{})
	assert.Nil(t, got, "last entry repeats")
	assert.Equal(t, 3, s.Calls())

	var empty Script
	got, err := empty.Estimate(context.Background(), Frame{})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeypointSet_WithSeq(t *testing.T) {
	a := DefaultSubject.At(0)
	assert.Zero(t, a.Seq())

	b := a.WithSeq(9)
	assert.Equal(t, uint64(9), b.Seq())
	assert.Equal(t, a.Keypoints(), b.Keypoints())
	assert.Zero(t, a.Seq(), "original is unchanged")

	var none *KeypointSet
	assert.Nil(t, none.WithSeq(3))
	assert.Zero(t, none.Seq())
}
