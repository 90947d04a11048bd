// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/calibration"
	"github.com/relabs-tech/squat_counter/internal/config"
	"github.com/relabs-tech/squat_counter/internal/session"
	"github.com/relabs-tech/squat_counter/internal/timeutil"
)

// RunCounter reads keypoints from the configured source, counts reps and
// publishes the session state to MQTT. Control actions arrive on the
// control topic.
func RunCounter(ctx context.Context) error {
	cfg := config.Get()
	log := newLogger("counter", cfg)

	client, err := connectMQTT(cfg, cfg.MQTTClientIDCounter, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	src, closeSrc, err := openSource(ctx, cfg, client, log)
	if err != nil {
		return err
	}
	defer closeSrc()

	ctrl := session.New(src, timeutil.RealClock{}, cfg.Session(), log)
	wireCounter(ctrl, client, cfg, log)

	if err := subscribeControl(client, cfg.TopicControl, ctrl, log); err != nil {
		return err
	}

	log.WithField("session_id", ctrl.ID()).Info("counter running")
	err = ctrl.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("counter stopped")
		return nil
	}
	return err
}

// wireCounter publishes every state change (retained, so late
// subscribers see the current count) and every calibration result.
func wireCounter(ctrl *session.Controller, client mqtt.Client, cfg *config.Config, log logrus.FieldLogger) {
	ctrl.Subscribe(func(s session.State) {
		if err := publishJSON(client, cfg.TopicState, true, s); err != nil {
			log.WithError(err).Warn("state publish failed")
		}
	})
	ctrl.SubscribeCalibration(func(res calibration.Result) {
		if err := publishJSON(client, cfg.TopicCalibration, true, res); err != nil {
			log.WithError(err).Warn("calibration publish failed")
		}
	})
}

func subscribeControl(client mqtt.Client, topic string, ctrl Controls, log logrus.FieldLogger) error {
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handleControl(ctrl, msg.Payload(), log)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.WithField("topic", topic).Info("listening for control actions")
	return nil
}

func handleControl(ctrl Controls, payload []byte, log logrus.FieldLogger) {
	msg, err := DecodeControl(payload)
	if err != nil {
		log.WithError(err).Warn("ignoring control message")
		return
	}
	if err := ApplyControl(ctrl, msg.Action); err != nil {
		log.WithError(err).WithField("action", msg.Action).Warn("control action rejected")
		return
	}
	log.WithField("action", msg.Action).Info("control action applied")
}
