// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration derives the per-user standing baseline.
//
// The subject stands still while a fixed number of frames is sampled.
// All but the last aligned sample contribute ankle.y − hip.y per side;
// the last sample must also be aligned and closes the attempt. The band
// for each side is mean ± tolerance·mean.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/squat_counter/internal/geometry"
	"github.com/relabs-tech/squat_counter/internal/pose"
	"github.com/relabs-tech/squat_counter/internal/timeutil"
)

// ErrDegenerate is returned when an attempt cannot produce a usable band.
var ErrDegenerate = errors.New("calibration: degenerate standing baseline")

// Status is the observable calibration state.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Band is a closed numeric range.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v is inside the band, bounds included.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Width returns Max − Min.
func (b Band) Width() float64 {
	return b.Max - b.Min
}

// around builds mean ± |tolerance·mean|.
func around(mean, tolerance float64) Band {
	margin := math.Abs(mean * tolerance)
	return Band{Min: mean - margin, Max: mean + margin}
}

// ToleranceBand is the acceptable hip-to-ankle extent for a standing frame.
// It is immutable once calibration returns it.
type ToleranceBand struct {
	RightSide Band `json:"right_side"`
	LeftSide  Band `json:"left_side"`
}

// Contains reports whether both sides of d lie in their band.
func (t ToleranceBand) Contains(d geometry.Sides) bool {
	return t.RightSide.Contains(d.Right) && t.LeftSide.Contains(d.Left)
}

// Degenerate reports whether either side has no usable width.
func (t ToleranceBand) Degenerate() bool {
	for _, b := range []Band{t.RightSide, t.LeftSide} {
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
			return true
		}
		if b.Width() <= 0 {
			return true
		}
	}
	return false
}

// Result is the outcome of one successful attempt.
type Result struct {
	Band     ToleranceBand  `json:"band"`
	Mean     geometry.Sides `json:"mean"`
	Baseline int            `json:"baseline_samples"`
	Skipped  int            `json:"skipped_samples"`
	At       time.Time      `json:"calibrated_at"`
}

// Config controls one calibration attempt.
type Config struct {
	// Samples is the number of frames per attempt, last one included.
	Samples int
	// Tolerance is the band half-width as a fraction of the mean.
	Tolerance float64
	// Interval is the pause between samples.
	Interval time.Duration
}

// DefaultConfig matches the classic three-frame procedure.
func DefaultConfig() Config {
	return Config{
		Samples:   3,
		Tolerance: 0.1,
	}
}

// Calibrator samples the standing subject. It holds no state between
// attempts, so Run may be called again after a failure.
type Calibrator struct {
	src   pose.Source
	clock timeutil.Clock
	cfg   Config
	log   logrus.FieldLogger
	seq   uint64
}

// New creates a Calibrator reading frames from src.
func New(src pose.Source, clock timeutil.Clock, cfg Config, log logrus.FieldLogger) *Calibrator {
	if cfg.Samples < 2 {
		cfg.Samples = 2
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Calibrator{
		src:   src,
		clock: clock,
		cfg:   cfg,
		log:   log.WithField("component", "calibration"),
	}
}

// Run performs one attempt. Samples that show no person or misaligned
// limbs are skipped without retry; the loop still advances. The attempt
// fails with ErrDegenerate when fewer than Samples−1 baseline readings
// were kept, the closing sample is unusable, or the band has no width.
func (c *Calibrator) Run(ctx context.Context) (Result, error) {
	var right, left []float64
	res := Result{}
	closed := false

	for i := 0; i < c.cfg.Samples; i++ {
		if i > 0 && c.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-c.clock.After(c.cfg.Interval):
			}
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		d, ok := c.sample(ctx, i)
		if !ok {
			res.Skipped++
			continue
		}

		if i < c.cfg.Samples-1 {
			right = append(right, d.Right)
			left = append(left, d.Left)
			continue
		}
		closed = true
	}

	res.Baseline = len(right)
	if !closed || res.Baseline < c.cfg.Samples-1 {
		return res, fmt.Errorf("%w: %d of %d baseline samples, closing sample usable=%t",
			ErrDegenerate, res.Baseline, c.cfg.Samples-1, closed)
	}

	res.Mean = geometry.Sides{
		Right: stat.Mean(right, nil),
		Left:  stat.Mean(left, nil),
	}
	res.Band = ToleranceBand{
		RightSide: around(res.Mean.Right, c.cfg.Tolerance),
		LeftSide:  around(res.Mean.Left, c.cfg.Tolerance),
	}
	if res.Band.Degenerate() {
		return res, fmt.Errorf("%w: zero-width band %+v", ErrDegenerate, res.Band)
	}
	res.At = c.clock.Now()

	c.log.WithFields(logrus.Fields{
		"right_min": res.Band.RightSide.Min,
		"right_max": res.Band.RightSide.Max,
		"left_min":  res.Band.LeftSide.Min,
		"left_max":  res.Band.LeftSide.Max,
		"skipped":   res.Skipped,
	}).Info("standing baseline calibrated")

	return res, nil
}

// sample estimates one frame and returns its hip-to-ankle extent if the
// limbs are aligned.
func (c *Calibrator) sample(ctx context.Context, i int) (geometry.Sides, bool) {
	c.seq++
	frame := pose.Frame{Seq: c.seq, At: c.clock.Now()}
	log := c.log.WithField("sample", i+1)

	set, err := c.src.Estimate(ctx, frame)
	if err != nil {
		log.WithError(err).Warn("keypoint estimation failed, sample skipped")
		return geometry.Sides{}, false
	}
	if set == nil {
		log.Debug("no person detected, sample skipped")
		return geometry.Sides{}, false
	}
	if !geometry.LimbsAligned(set) {
		log.Debug("limbs not aligned, sample skipped")
		return geometry.Sides{}, false
	}
	d, ok := geometry.HipToAnkle(set)
	return d, ok
}
