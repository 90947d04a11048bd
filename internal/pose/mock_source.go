// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"context"
	"math"
	"sync"
	"time"
)

// Subject describes a synthetic person standing upright, in pixels.
// Depth 0 is standing, depth 1 puts the hips level with the knees.
type Subject struct {
	HipY, KneeY, AnkleY float64
	// LeftOffset shifts the left hip up to model a slightly asymmetric body.
	LeftOffset float64
	Score      float64
}

// DefaultSubject is a 500px tall frame with the subject filling most of it.
var DefaultSubject = Subject{
	HipY:       300,
	KneeY:      400,
	AnkleY:     500,
	LeftOffset: 2,
	Score:      0.9,
}

// At returns the subject's keypoints at the given squat depth.
func (s Subject) At(depth float64) *KeypointSet {
	drop := depth * (s.KneeY - s.HipY)
	hip := s.HipY + drop
	return NewKeypointSet([]Keypoint{
		{Name: Nose, X: 200, Y: s.HipY - 220 + drop, Score: s.Score},
		{Name: LeftShoulder, X: 230, Y: s.HipY - 160 + drop, Score: s.Score},
		{Name: RightShoulder, X: 170, Y: s.HipY - 160 + drop, Score: s.Score},
		{Name: LeftHip, X: 220, Y: hip - s.LeftOffset, Score: s.Score},
		{Name: RightHip, X: 180, Y: hip, Score: s.Score},
		{Name: LeftKnee, X: 225, Y: s.KneeY, Score: s.Score},
		{Name: RightKnee, X: 175, Y: s.KneeY, Score: s.Score},
		{Name: LeftAnkle, X: 222, Y: s.AnkleY, Score: s.Score},
		{Name: RightAnkle, X: 178, Y: s.AnkleY, Score: s.Score},
	}, 0)
}

type mockSource struct {
	subject Subject
	hold    time.Duration
	period  time.Duration

	mu    sync.Mutex
	start time.Time
}

// NewMockSource creates a source that stands still for hold (long enough
// to calibrate) and then squats once per period. Time is taken from the
// frame timestamps, starting at the first frame seen.
func NewMockSource(hold, period time.Duration) Source {
	return &mockSource{subject: DefaultSubject, hold: hold, period: period}
}

func (m *mockSource) Estimate(_ context.Context, frame Frame) (*KeypointSet, error) {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = frame.At
	}
	elapsed := frame.At.Sub(m.start)
	m.mu.Unlock()

	if elapsed < m.hold || m.period <= 0 {
		return m.subject.At(0), nil
	}
	phase := float64((elapsed-m.hold)%m.period) / float64(m.period)
	depth := 0.5 * (1 - math.Cos(2*math.Pi*phase))
	return m.subject.At(depth), nil
}

// Script replays a fixed list of results, one per call. Once exhausted
// it keeps returning the last entry. A nil entry means no detection.
type Script struct {
	mu    sync.Mutex
	sets  []*KeypointSet
	calls int
}

// NewScript returns a Source that replays sets in order.
func NewScript(sets ...*KeypointSet) *Script {
	return &Script{sets: sets}
}

func (s *Script) Estimate(_ context.Context, _ Frame) (*KeypointSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sets) == 0 {
		return nil, nil
	}
	i := s.calls
	if i >= len(s.sets) {
		i = len(s.sets) - 1
	}
	s.calls++
	return s.sets[i], nil
}

// Push appends more results to the script.
func (s *Script) Push(sets ...*KeypointSet) {
	s.mu.Lock()
	s.sets = append(s.sets, sets...)
	s.mu.Unlock()
}

// Calls returns how many frames have been estimated.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
