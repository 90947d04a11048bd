// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/calibration"
	"github.com/relabs-tech/squat_counter/internal/classifier"
	"github.com/relabs-tech/squat_counter/internal/pose"
	"github.com/relabs-tech/squat_counter/internal/reps"
	"github.com/relabs-tech/squat_counter/internal/timeutil"
)

// Phase labels outside the rep cycle.
const (
	LabelNotDetected       = "Not Detected"
	LabelDetected          = "Detected"
	LabelCalibrationFailed = "Calibration failed"
)

var (
	// ErrNotCalibrated is returned by Start before a good calibration.
	ErrNotCalibrated = errors.New("session: calibration not ready")
	// ErrCalibrationFailed means every calibration attempt was degenerate.
	ErrCalibrationFailed = errors.New("session: calibration failed")
)

// Config controls the controller's timing and classification.
type Config struct {
	PollInterval          time.Duration
	CalibrationDelay      time.Duration
	CalibrationAttempts   int
	CalibrationRetryDelay time.Duration
	Calibration           calibration.Config
	SquatSlack            float64
	Debounce              int
	AutoStart             bool
}

// DefaultConfig polls every 200ms and calibrates 2s after startup.
func DefaultConfig() Config {
	return Config{
		PollInterval:          200 * time.Millisecond,
		CalibrationDelay:      2 * time.Second,
		CalibrationAttempts:   3,
		CalibrationRetryDelay: time.Second,
		Calibration:           calibration.DefaultConfig(),
		SquatSlack:            classifier.DefaultSquatSlack,
		Debounce:              1,
	}
}

// State is what the UI sees after every processed frame or control change.
type State struct {
	SessionID         string                     `json:"session_id"`
	PhaseLabel        string                     `json:"phase_label"`
	Pose              classifier.Phase           `json:"pose"`
	RepCount          int                        `json:"rep_count"`
	Cycle             reps.Cycle                 `json:"cycle"`
	CalibrationStatus calibration.Status         `json:"calibration_status"`
	Capturing         bool                       `json:"capturing"`
	Band              *calibration.ToleranceBand `json:"band,omitempty"`
	Frame             uint64                     `json:"frame"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// StateHandler is called with a copy of the state after each change.
type StateHandler func(State)

// CalibrationHandler is called after each successful calibration.
type CalibrationHandler func(calibration.Result)

// Controller drives calibration and the polling loop on one timeline.
// Start, Stop and Recalibrate may be called from any goroutine.
type Controller struct {
	src   pose.Source
	clock timeutil.Clock
	cfg   Config
	log   logrus.FieldLogger
	id    string

	recalibrate chan struct{}

	mu         sync.Mutex
	counter    *reps.Counter
	classifier *classifier.Classifier
	status     calibration.Status
	band       *calibration.ToleranceBand
	label      string
	phase      classifier.Phase
	capturing  bool
	gen        uint64
	seq        uint64
	updated    time.Time
	onState    []StateHandler
	onCalib    []CalibrationHandler
}

// New creates a controller with pending calibration and zero reps.
func New(src pose.Source, clock timeutil.Clock, cfg Config, log logrus.FieldLogger) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.CalibrationAttempts < 1 {
		cfg.CalibrationAttempts = 1
	}
	id := uuid.NewString()
	return &Controller{
		src:         src,
		clock:       clock,
		cfg:         cfg,
		log:         log.WithFields(logrus.Fields{"component": "session", "session_id": id}),
		id:          id,
		recalibrate: make(chan struct{}, 1),
		counter:     reps.NewCounter(cfg.Debounce),
		status:      calibration.StatusPending,
		label:       LabelNotDetected,
		updated:     clock.Now(),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Subscribe registers a state handler. Handlers run on the goroutine
// that changed the state and must not block.
func (c *Controller) Subscribe(h StateHandler) {
	c.mu.Lock()
	c.onState = append(c.onState, h)
	c.mu.Unlock()
}

// SubscribeCalibration registers a handler for calibration results.
func (c *Controller) SubscribeCalibration(h CalibrationHandler) {
	c.mu.Lock()
	c.onCalib = append(c.onCalib, h)
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := State{
		SessionID:         c.id,
		PhaseLabel:        c.label,
		Pose:              c.phase,
		RepCount:          c.counter.Reps(),
		Cycle:             c.counter.Cycle(),
		CalibrationStatus: c.status,
		Capturing:         c.capturing,
		Frame:             c.seq,
		UpdatedAt:         c.updated,
	}
	if c.band != nil {
		b := *c.band
		s.Band = &b
	}
	return s
}

// commitLocked stamps the state and returns what to notify.
func (c *Controller) commitLocked() (State, []StateHandler) {
	c.updated = c.clock.Now()
	return c.snapshotLocked(), append([]StateHandler(nil), c.onState...)
}

func notify(s State, handlers []StateHandler) {
	for _, h := range handlers {
		h(s)
	}
}

// Start begins capturing. Calling it while capturing is a no-op. The rep
// cycle restarts at AwaitingSquat; the rep count is kept.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.status != calibration.StatusReady {
		c.mu.Unlock()
		return ErrNotCalibrated
	}
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = true
	c.gen++
	c.counter.Reset()
	s, hs := c.commitLocked()
	c.mu.Unlock()

	c.log.WithField("rep_count", s.RepCount).Info("capture started")
	notify(s, hs)
	return nil
}

// Stop halts capturing. A frame already being estimated is discarded
// when it returns. Calling Stop while stopped is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	c.gen++
	s, hs := c.commitLocked()
	c.mu.Unlock()

	c.log.WithField("rep_count", s.RepCount).Info("capture stopped")
	notify(s, hs)
}

// Recalibrate asks the run loop to stop capturing and calibrate again.
func (c *Controller) Recalibrate() {
	select {
	case c.recalibrate <- struct{}{}:
	default:
	}
}

// Poll samples one frame and runs it through the rep counter. It does
// nothing unless capturing with a ready calibration, and reports whether
// the frame was committed.
func (c *Controller) Poll(ctx context.Context) bool {
	c.mu.Lock()
	if !c.capturing || c.status != calibration.StatusReady || c.classifier == nil {
		c.mu.Unlock()
		return false
	}
	gen := c.gen
	c.seq++
	frame := pose.Frame{Seq: c.seq, At: c.clock.Now()}
	cls := c.classifier
	cycle := c.counter.Cycle()
	c.mu.Unlock()

	r := reps.Classify(ctx, cycle, cls, frame)

	c.mu.Lock()
	if gen != c.gen || !c.capturing {
		c.mu.Unlock()
		c.log.WithField("seq", frame.Seq).Debug("frame discarded after capture change")
		return false
	}
	tr := c.counter.ObserveReading(r)
	c.phase = r.Phase
	if tr.Label != "" {
		c.label = tr.Label
	}
	s, hs := c.commitLocked()
	c.mu.Unlock()

	if tr.Changed() {
		c.log.WithFields(logrus.Fields{
			"seq":       frame.Seq,
			"cycle":     tr.To.String(),
			"rep_count": s.RepCount,
		}).Info(tr.Label)
	}
	notify(s, hs)
	return true
}

// Calibrate waits the configured delay and runs calibration attempts
// until one succeeds. Capture is stopped first and never runs during
// calibration.
func (c *Controller) Calibrate(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	c.status = calibration.StatusPending
	c.label = LabelNotDetected
	c.classifier = nil
	c.band = nil
	s, hs := c.commitLocked()
	c.mu.Unlock()
	notify(s, hs)

	if err := c.wait(ctx, c.cfg.CalibrationDelay); err != nil {
		return err
	}

	cal := calibration.New(c.src, c.clock, c.cfg.Calibration, c.log)
	for attempt := 1; attempt <= c.cfg.CalibrationAttempts; attempt++ {
		res, err := cal.Run(ctx)
		if err == nil {
			c.ready(res)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).WithField("attempt", attempt).Warn("calibration attempt failed")
		if attempt < c.cfg.CalibrationAttempts {
			if err := c.wait(ctx, c.cfg.CalibrationRetryDelay); err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	c.status = calibration.StatusFailed
	c.label = LabelCalibrationFailed
	s, hs = c.commitLocked()
	c.mu.Unlock()
	notify(s, hs)

	c.log.WithField("attempts", c.cfg.CalibrationAttempts).Error("calibration failed, counting disabled")
	return ErrCalibrationFailed
}

func (c *Controller) ready(res calibration.Result) {
	c.mu.Lock()
	band := res.Band
	c.band = &band
	c.classifier = classifier.New(c.src, band, c.cfg.SquatSlack, c.log)
	c.status = calibration.StatusReady
	c.label = LabelDetected
	s, hs := c.commitLocked()
	chs := append([]CalibrationHandler(nil), c.onCalib...)
	c.mu.Unlock()

	notify(s, hs)
	for _, h := range chs {
		h(res)
	}
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

// Run calibrates and then polls at the configured interval until ctx is
// done. A failed calibration leaves the loop idle until Recalibrate.
func (c *Controller) Run(ctx context.Context) error {
	for {
		c.drainRecalibrate()
		err := c.Calibrate(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
			if c.cfg.AutoStart {
				if err := c.Start(); err != nil {
					c.log.WithError(err).Warn("auto start failed")
				}
			}
			if err := c.poll(ctx); err != nil {
				return err
			}
		default:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.recalibrate:
			}
		}
	}
}

// poll runs the ticker loop until ctx is done (error) or a recalibration
// is requested (nil).
func (c *Controller) poll(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-c.recalibrate:
			c.log.Info("recalibration requested")
			return nil
		case <-ticker.C():
			c.Poll(ctx)
		}
	}
}

func (c *Controller) drainRecalibrate() {
	select {
	case <-c.recalibrate:
	default:
	}
}
