// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/relabs-tech/squat_counter/internal/calibration"
	"github.com/relabs-tech/squat_counter/internal/config"
	"github.com/relabs-tech/squat_counter/internal/session"
)

// RunConsoleMQTT prints every state and calibration message published by
// the counter until ctx is done.
func RunConsoleMQTT(ctx context.Context) error {
	cfg := config.Get()
	log := newLogger("console", cfg)

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON(client, cfg.TopicState, log, func(s session.State) {
		fmt.Println(formatState(s))
	}); err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicCalibration, log, func(res calibration.Result) {
		fmt.Println(formatCalibration(res))
	}); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("console stopped")
	return nil
}

// formatState renders one state line, e.g.
//
//	[STATE] Squat        reps=  3  pose=squat    cycle=awaiting_standup  calib=ready capturing
func formatState(s session.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[STATE] %-18s reps=%3d  pose=%-8s cycle=%-17s calib=%s",
		s.PhaseLabel, s.RepCount, s.Pose, s.Cycle, s.CalibrationStatus)
	if s.Capturing {
		b.WriteString(" capturing")
	}
	return b.String()
}

func formatCalibration(res calibration.Result) string {
	return fmt.Sprintf(
		"[CALIB] right=[%6.1f, %6.1f]  left=[%6.1f, %6.1f]  samples=%d skipped=%d",
		res.Band.RightSide.Min, res.Band.RightSide.Max,
		res.Band.LeftSide.Min, res.Band.LeftSide.Max,
		res.Baseline, res.Skipped,
	)
}
