// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package classifier labels single frames as squat or stand-up against a
// calibrated band.
package classifier

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/calibration"
	"github.com/relabs-tech/squat_counter/internal/geometry"
	"github.com/relabs-tech/squat_counter/internal/pose"
)

// DefaultSquatSlack lets the hip sit up to 10% of the knee height above
// the knee and still count as a squat.
const DefaultSquatSlack = 0.1

// Phase is the single-frame classification used for live feedback.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseAlignedUnknown
	PhaseSquat
	PhaseStandUp
)

func (p Phase) String() string {
	switch p {
	case PhaseAlignedUnknown:
		return "aligned"
	case PhaseSquat:
		return "squat"
	case PhaseStandUp:
		return "standup"
	default:
		return "none"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*p = PhaseNone
	case "aligned":
		*p = PhaseAlignedUnknown
	case "squat":
		*p = PhaseSquat
	case "standup":
		*p = PhaseStandUp
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// IsSquat reports whether the hips have dropped to about knee height on
// both sides. Each side compares its own hip against its own knee.
func IsSquat(set *pose.KeypointSet, slack float64) bool {
	if !geometry.LimbsAligned(set) {
		return false
	}
	hips, ok := geometry.Hips(set)
	if !ok {
		return false
	}
	knees, ok := geometry.Knees(set)
	if !ok {
		return false
	}
	right := hips.Right >= knees.Right-knees.Right*slack
	left := hips.Left >= knees.Left-knees.Left*slack
	return right && left
}

// IsStandUp reports whether the hip-to-ankle extent is inside the
// calibrated band on both sides.
func IsStandUp(set *pose.KeypointSet, band calibration.ToleranceBand) bool {
	if !geometry.LimbsAligned(set) {
		return false
	}
	d, ok := geometry.HipToAnkle(set)
	if !ok {
		return false
	}
	return band.Contains(d)
}

// Classify labels a frame for display. Squat wins over stand-up if a
// badly calibrated band would allow both.
func Classify(set *pose.KeypointSet, band calibration.ToleranceBand, slack float64) Phase {
	switch {
	case set == nil:
		return PhaseNone
	case !geometry.LimbsAligned(set):
		return PhaseNone
	case IsSquat(set, slack):
		return PhaseSquat
	case IsStandUp(set, band):
		return PhaseStandUp
	default:
		return PhaseAlignedUnknown
	}
}

// Classifier runs the squat and stand-up checks against fresh frames.
// It never returns errors: no detection, missing keypoints and source
// failures all classify as false.
type Classifier struct {
	src   pose.Source
	band  calibration.ToleranceBand
	slack float64
	log   logrus.FieldLogger
}

// New creates a Classifier for a calibrated band.
func New(src pose.Source, band calibration.ToleranceBand, slack float64, log logrus.FieldLogger) *Classifier {
	return &Classifier{
		src:   src,
		band:  band,
		slack: slack,
		log:   log.WithField("component", "classifier"),
	}
}

// Band returns the tolerance band this classifier was built with.
func (c *Classifier) Band() calibration.ToleranceBand {
	return c.band
}

// Estimate fetches keypoints for frame, folding errors into "no detection".
func (c *Classifier) Estimate(ctx context.Context, frame pose.Frame) *pose.KeypointSet {
	set, err := c.src.Estimate(ctx, frame)
	if err != nil {
		c.log.WithError(err).WithField("seq", frame.Seq).Debug("keypoint estimation failed")
		return nil
	}
	return set
}

// Reading is one classified frame. Seq is the estimator frame number the
// keypoints came from, 0 when the source does not number frames.
type Reading struct {
	Positive bool
	Phase    Phase
	Seq      uint64
}

// ClassifySquat estimates frame and reports whether it shows a squat.
func (c *Classifier) ClassifySquat(ctx context.Context, frame pose.Frame) Reading {
	set := c.Estimate(ctx, frame)
	return Reading{Positive: IsSquat(set, c.slack), Phase: Classify(set, c.band, c.slack), Seq: set.Seq()}
}

// ClassifyStandUp estimates frame and reports whether it shows a stand-up.
func (c *Classifier) ClassifyStandUp(ctx context.Context, frame pose.Frame) Reading {
	set := c.Estimate(ctx, frame)
	return Reading{Positive: IsStandUp(set, c.band), Phase: Classify(set, c.band, c.slack), Seq: set.Seq()}
}
