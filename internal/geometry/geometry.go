// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geometry holds the stateless left/right symmetry rules used
// before any phase-specific decision is made.
package geometry

import (
	"math"

	"github.com/relabs-tech/squat_counter/internal/pose"
)

// Alignment tolerances, as fractions of the compared coordinate.
const (
	AnkleTolerance = 0.2
	KneeTolerance  = 0.3
	HipTolerance   = 0.3
)

// Sides is a pair of per-side readings.
type Sides struct {
	Right float64 `json:"right"`
	Left  float64 `json:"left"`
}

// SidesMatch reports whether right lies within ±tolerance·left of left
// and left lies within ±tolerance·right of right. The margin scales with
// each value, so it is not a fixed pixel distance.
func SidesMatch(right, left, tolerance float64) bool {
	return within(right, left, tolerance) && within(left, right, tolerance)
}

// within reports whether v is inside center ± |tolerance·center|.
func within(v, center, tolerance float64) bool {
	margin := math.Abs(tolerance * center)
	return v >= center-margin && v <= center+margin
}

// YPair reads the vertical coordinate of a right/left pair of parts.
// It returns false if either part is absent.
func YPair(set *pose.KeypointSet, right, left pose.BodyPart) (Sides, bool) {
	r, ok := set.Y(right)
	if !ok {
		return Sides{}, false
	}
	l, ok := set.Y(left)
	if !ok {
		return Sides{}, false
	}
	return Sides{Right: r, Left: l}, true
}

// Hips returns the hip heights.
func Hips(set *pose.KeypointSet) (Sides, bool) {
	return YPair(set, pose.RightHip, pose.LeftHip)
}

// Knees returns the knee heights.
func Knees(set *pose.KeypointSet) (Sides, bool) {
	return YPair(set, pose.RightKnee, pose.LeftKnee)
}

// Ankles returns the ankle heights.
func Ankles(set *pose.KeypointSet) (Sides, bool) {
	return YPair(set, pose.RightAnkle, pose.LeftAnkle)
}

// HipToAnkle returns ankle.y − hip.y per side: the vertical leg extent.
// It is largest when the subject stands upright.
func HipToAnkle(set *pose.KeypointSet) (Sides, bool) {
	hips, ok := Hips(set)
	if !ok {
		return Sides{}, false
	}
	ankles, ok := Ankles(set)
	if !ok {
		return Sides{}, false
	}
	return Sides{
		Right: ankles.Right - hips.Right,
		Left:  ankles.Left - hips.Left,
	}, true
}

// LimbsAligned reports whether ankles, knees and hips are level enough
// between the two sides. Any absent keypoint fails the check.
func LimbsAligned(set *pose.KeypointSet) bool {
	ankles, ok := Ankles(set)
	if !ok || !SidesMatch(ankles.Right, ankles.Left, AnkleTolerance) {
		return false
	}
	knees, ok := Knees(set)
	if !ok || !SidesMatch(knees.Right, knees.Left, KneeTolerance) {
		return false
	}
	hips, ok := Hips(set)
	if !ok || !SidesMatch(hips.Right, hips.Left, HipTolerance) {
		return false
	}
	return true
}
