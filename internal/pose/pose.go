// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"context"
	"time"
)

// BodyPart names one of the 17 landmarks produced by single-person
// pose estimators (COCO ordering).
type BodyPart string

const (
	Nose          BodyPart = "nose"
	LeftEye       BodyPart = "left_eye"
	RightEye      BodyPart = "right_eye"
	LeftEar       BodyPart = "left_ear"
	RightEar      BodyPart = "right_ear"
	LeftShoulder  BodyPart = "left_shoulder"
	RightShoulder BodyPart = "right_shoulder"
	LeftElbow     BodyPart = "left_elbow"
	RightElbow    BodyPart = "right_elbow"
	LeftWrist     BodyPart = "left_wrist"
	RightWrist    BodyPart = "right_wrist"
	LeftHip       BodyPart = "left_hip"
	RightHip      BodyPart = "right_hip"
	LeftKnee      BodyPart = "left_knee"
	RightKnee     BodyPart = "right_knee"
	LeftAnkle     BodyPart = "left_ankle"
	RightAnkle    BodyPart = "right_ankle"
)

// BodyParts lists every known part in estimator order.
var BodyParts = []BodyPart{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// Valid reports whether p is one of the 17 known parts.
func (p BodyPart) Valid() bool {
	for _, known := range BodyParts {
		if p == known {
			return true
		}
	}
	return false
}

// Keypoint is a single detected landmark in image coordinates.
// Y grows downwards, so a lower body part has a larger Y.
type Keypoint struct {
	Name  BodyPart `json:"name"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Score float64  `json:"score"`
}

// KeypointSet holds at most one keypoint per body part for one frame.
// A nil *KeypointSet means the estimator saw nobody.
type KeypointSet struct {
	points map[BodyPart]Keypoint
	seq    uint64
}

// NewKeypointSet builds a set from estimator output. Unknown names and
// points scoring below minScore are dropped so they read as absent.
// When a part appears twice the higher score wins.
func NewKeypointSet(points []Keypoint, minScore float64) *KeypointSet {
	s := &KeypointSet{points: make(map[BodyPart]Keypoint, len(points))}
	for _, kp := range points {
		if !kp.Name.Valid() || kp.Score < minScore {
			continue
		}
		if prev, ok := s.points[kp.Name]; ok && prev.Score >= kp.Score {
			continue
		}
		s.points[kp.Name] = kp
	}
	return s
}

// Get returns the keypoint for part, or false if it is absent.
func (s *KeypointSet) Get(part BodyPart) (Keypoint, bool) {
	if s == nil {
		return Keypoint{}, false
	}
	kp, ok := s.points[part]
	return kp, ok
}

// Y returns the vertical coordinate of part, or false if it is absent.
func (s *KeypointSet) Y(part BodyPart) (float64, bool) {
	kp, ok := s.Get(part)
	return kp.Y, ok
}

// Seq returns the estimator frame number, or 0 when the source does not
// number its frames.
func (s *KeypointSet) Seq() uint64 {
	if s == nil {
		return 0
	}
	return s.seq
}

// WithSeq returns a copy of s stamped with the estimator frame number.
// The points are shared; sets are never modified after construction.
func (s *KeypointSet) WithSeq(seq uint64) *KeypointSet {
	if s == nil {
		return nil
	}
	return &KeypointSet{points: s.points, seq: seq}
}

// Len returns the number of parts present.
func (s *KeypointSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// Keypoints returns the points in estimator order.
func (s *KeypointSet) Keypoints() []Keypoint {
	if s == nil {
		return nil
	}
	out := make([]Keypoint, 0, len(s.points))
	for _, part := range BodyParts {
		if kp, ok := s.points[part]; ok {
			out = append(out, kp)
		}
	}
	return out
}

// Frame is an opaque handle for one sampled video frame. Sources decide
// what it maps to; the classification core only passes it through.
type Frame struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// Source is anything that can estimate keypoints for a frame: the
// MQTT-fed estimator, the serial co-processor, the synthetic squatter.
//
// Estimate returns (nil, nil) when no person is detected. An error means
// this frame could not be estimated; callers treat it like no detection.
// Sources that cannot work at all must fail in their constructor.
type Source interface {
	Estimate(ctx context.Context, frame Frame) (*KeypointSet, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, frame Frame) (*KeypointSet, error)

func (f SourceFunc) Estimate(ctx context.Context, frame Frame) (*KeypointSet, error) {
	return f(ctx, frame)
}
