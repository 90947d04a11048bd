// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/squat_counter/internal/config"
	"github.com/relabs-tech/squat_counter/internal/session"
)

// NewWebHandler routes the JSON API, the live socket and the static UI.
func NewWebHandler(hub *SessionHub, staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", hub.ServeState)
	mux.HandleFunc("/ws/session", hub.ServeWS)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb serves the live session page. State comes from the counter over
// MQTT; browser actions go back on the control topic.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()
	log := newLogger("web", cfg)

	client, err := connectMQTT(cfg, cfg.MQTTClientIDWeb, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	hub := NewRelayHub(relayControl(client, cfg.TopicControl), log)
	if err := subscribeJSON(client, cfg.TopicState, log, hub.Update); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewWebHandler(hub, cfg.WebStaticDir),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", srv.Addr).Info("web server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// relayControl publishes browser actions on the control topic.
func relayControl(client mqtt.Client, topic string) ControlFunc {
	return func(action string) error {
		return publishJSON(client, topic, false, ControlMessage{Action: action})
	}
}

// controllerControl drives an in-process controller directly.
func controllerControl(ctrl *session.Controller) ControlFunc {
	return func(action string) error {
		return ApplyControl(ctrl, action)
	}
}
