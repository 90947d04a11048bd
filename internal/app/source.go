// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/config"
	"github.com/relabs-tech/squat_counter/internal/pose"
	"github.com/relabs-tech/squat_counter/internal/sources"
	"github.com/relabs-tech/squat_counter/internal/timeutil"
)

// openSource builds the keypoint source named by SOURCE_KIND. The
// returned close function releases it. A source that cannot be opened
// is fatal for the counter.
func openSource(ctx context.Context, cfg *config.Config, client mqtt.Client, log logrus.FieldLogger) (pose.Source, func(), error) {
	latest := sources.NewLatest(timeutil.RealClock{}, cfg.KeypointMaxAge)

	switch cfg.SourceKind {
	case config.SourceMock:
		log.WithFields(logrus.Fields{"hold": cfg.MockHold, "period": cfg.MockPeriod}).Info("using mock keypoint source")
		return pose.NewMockSource(cfg.MockHold, cfg.MockPeriod), func() {}, nil

	case config.SourceMQTT:
		src, err := sources.NewMQTTSource(latest, client, cfg.TopicKeypoints, cfg.MinKeypointScore, log)
		if err != nil {
			return nil, nil, fmt.Errorf("keypoint source: %w", err)
		}
		return src, func() {
			if err := src.Close(); err != nil {
				log.WithError(err).Warn("unsubscribe keypoints")
			}
		}, nil

	case config.SourceSerial:
		src, err := sources.OpenSerialSource(latest, cfg.SerialPort, cfg.SerialBaudRate, cfg.MinKeypointScore, log)
		if err != nil {
			return nil, nil, fmt.Errorf("keypoint source: %w", err)
		}
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("serial keypoint link stopped")
			}
		}()
		return src, func() {
			cancel()
			<-done
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.SourceKind)
	}
}
