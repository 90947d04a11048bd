// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/config"
	"github.com/relabs-tech/squat_counter/internal/logging"
)

const publishTimeout = 2 * time.Second

// newLogger builds the process logger from the global config.
func newLogger(component string, cfg *config.Config) *logrus.Entry {
	return logging.MustNew(component, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
}

// connectMQTT connects to the configured broker with the given client ID.
func connectMQTT(cfg *config.Config, clientID string, log logrus.FieldLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", cfg.MQTTBroker, token.Error())
	}
	log.WithField("broker", cfg.MQTTBroker).Info("connected to MQTT broker")
	return client, nil
}

// publishJSON marshals v and publishes it without blocking longer than
// publishTimeout.
func publishJSON(client mqtt.Client, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// subscribeJSON decodes every message on topic into a fresh T.
func subscribeJSON[T any](client mqtt.Client, topic string, log logrus.FieldLogger, handle func(T)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.WithError(err).WithField("topic", msg.Topic()).Warn("payload unmarshal error")
			return
		}
		handle(v)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.WithField("topic", topic).Info("subscribed")
	return nil
}
