// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/logging"
	"github.com/relabs-tech/squat_counter/internal/pose"
	"github.com/relabs-tech/squat_counter/internal/session"
	"github.com/relabs-tech/squat_counter/internal/timeutil"
)

// RunMockConsole runs the whole pipeline in-process against the synthetic
// squatter and prints each state change. It needs no broker or config.
// When webAddr is set the live page is served there as well, with the
// browser controls driving the in-process controller.
func RunMockConsole(ctx context.Context, webAddr, staticDir string) error {
	log := logging.MustNew("mock-console", logging.Options{Level: "warn"})

	cfg := session.DefaultConfig()
	cfg.AutoStart = true
	src := pose.NewMockSource(5*time.Second, 4*time.Second)

	ctrl := session.New(src, timeutil.RealClock{}, cfg, log)
	printChanges(ctrl, log)

	if webAddr != "" {
		hub := NewSessionHub(controllerControl(ctrl), log)
		ctrl.Subscribe(hub.Update)
		srv := &http.Server{Addr: webAddr, Handler: NewWebHandler(hub, staticDir), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("web server stopped")
			}
		}()
		defer srv.Close()
		log.WithField("addr", webAddr).Warn("serving live page")
	}

	err := ctrl.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printChanges prints a state line whenever the label, rep count or
// capture flag changes.
func printChanges(ctrl *session.Controller, log logrus.FieldLogger) {
	var (
		mu    sync.Mutex
		last  session.State
		first = true
	)
	ctrl.Subscribe(func(s session.State) {
		mu.Lock()
		defer mu.Unlock()
		if !first && s.PhaseLabel == last.PhaseLabel && s.RepCount == last.RepCount &&
			s.Capturing == last.Capturing && s.CalibrationStatus == last.CalibrationStatus {
			return
		}
		first = false
		last = s
		fmt.Println(formatState(s))
	})
	log.WithField("session_id", ctrl.ID()).Debug("printing state changes")
}
