// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sources

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/pose"
)

// Message is the JSON payload an external estimator publishes per frame.
// An empty keypoint list means no person was detected.
type Message struct {
	Seq       uint64          `json:"seq"`
	Keypoints []pose.Keypoint `json:"keypoints"`
}

// EncodeMessage builds the payload for one frame.
func EncodeMessage(seq uint64, set *pose.KeypointSet) ([]byte, error) {
	msg := Message{Seq: seq, Keypoints: set.Keypoints()}
	if msg.Keypoints == nil {
		msg.Keypoints = []pose.Keypoint{}
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a payload. Keypoints scoring below minScore are
// dropped; a frame with no keypoints yields a nil set.
func DecodeMessage(payload []byte, minScore float64) (uint64, *pose.KeypointSet, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, nil, fmt.Errorf("keypoint message: %w", err)
	}
	if len(msg.Keypoints) == 0 {
		return msg.Seq, nil, nil
	}
	return msg.Seq, pose.NewKeypointSet(msg.Keypoints, minScore), nil
}

// MQTTSource ingests keypoint frames from an MQTT topic.
type MQTTSource struct {
	*Latest
	client   mqtt.Client
	topic    string
	minScore float64
	log      logrus.FieldLogger
}

func newMQTTSource(latest *Latest, client mqtt.Client, topic string, minScore float64, log logrus.FieldLogger) *MQTTSource {
	return &MQTTSource{
		Latest:   latest,
		client:   client,
		topic:    topic,
		minScore: minScore,
		log:      log.WithFields(logrus.Fields{"source": "mqtt", "topic": topic}),
	}
}

// NewMQTTSource subscribes to topic on an already connected client.
func NewMQTTSource(latest *Latest, client mqtt.Client, topic string, minScore float64, log logrus.FieldLogger) (*MQTTSource, error) {
	s := newMQTTSource(latest, client, topic, minScore, log)
	token := client.Subscribe(topic, 0, s.handle)
	token.Wait()
	if token.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	s.log.Info("subscribed to keypoint frames")
	return s, nil
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	seq, set, err := DecodeMessage(msg.Payload(), s.minScore)
	if err != nil {
		s.log.WithError(err).Warn("dropping keypoint message")
		return
	}
	s.Update(seq, set)
	if set == nil {
		s.log.WithField("seq", seq).Debug("no person in frame")
	}
}

// Close unsubscribes from the keypoint topic.
func (s *MQTTSource) Close() error {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	return token.Error()
}
