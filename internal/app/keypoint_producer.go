// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/squat_counter/internal/config"
	"github.com/relabs-tech/squat_counter/internal/pose"
	"github.com/relabs-tech/squat_counter/internal/sources"
)

// RunKeypointProducer stands in for an external pose estimator: it
// publishes the synthetic squatter on the keypoint topic, one frame per
// poll interval, so a counter with SOURCE_KIND=mqtt can run end to end.
func RunKeypointProducer(ctx context.Context) error {
	cfg := config.Get()
	log := newLogger("keypoint-producer", cfg)

	client, err := connectMQTT(cfg, cfg.MQTTClientIDSource, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	src := pose.NewMockSource(cfg.MockHold, cfg.MockPeriod)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	log.WithField("topic", cfg.TopicKeypoints).Info("publishing synthetic keypoints")

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			seq++
			if err := publishFrame(ctx, client, cfg.TopicKeypoints, src, pose.Frame{Seq: seq, At: t}); err != nil {
				log.WithError(err).WithField("seq", seq).Warn("keypoint publish failed")
			}
		}
	}
}

func publishFrame(ctx context.Context, client mqtt.Client, topic string, src pose.Source, frame pose.Frame) error {
	set, err := src.Estimate(ctx, frame)
	if err != nil {
		return err
	}
	payload, err := sources.EncodeMessage(frame.Seq, set)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}
