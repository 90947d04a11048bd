// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/squat_counter/internal/calibration"
	"github.com/relabs-tech/squat_counter/internal/config"
	"github.com/relabs-tech/squat_counter/internal/session"
)

const (
	oledWidth  = 128
	oledHeight = 64
	lineHeight = 13
)

// displayData holds the latest state for the OLED.
type displayData struct {
	mu    sync.RWMutex
	state session.State
	have  bool
}

func (d *displayData) set(s session.State) {
	d.mu.Lock()
	d.state = s
	d.have = true
	d.mu.Unlock()
}

func (d *displayData) get() (session.State, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state, d.have
}

// RunDisplay shows the phase label and rep count on an SSD1306 OLED.
func RunDisplay(ctx context.Context) error {
	cfg := config.Get()
	log := newLogger("display", cfg)

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.WithField("device", dev.String()).Info("display initialized")

	if err := drawLines(dev, []string{"", "  Squat Counter", "  waiting..."}); err != nil {
		log.WithError(err).Warn("error showing splash")
	}

	data := &displayData{}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDDisplay, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON(client, cfg.TopicState, log, data.set); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.DisplayUpdateInterval)
	defer ticker.Stop()

	log.Info("starting update loop")

	var last []string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s, ok := data.get()
			lines := displayLines(s, ok)
			if slices.Equal(lines, last) {
				continue
			}
			if err := drawLines(dev, lines); err != nil {
				log.WithError(err).Warn("error updating display")
				continue
			}
			last = lines
		}
	}
}

// displayLines lays out up to four rows of 7x13 text.
func displayLines(s session.State, have bool) []string {
	if !have {
		return []string{"Squat Counter", "Waiting..."}
	}
	lines := []string{
		s.PhaseLabel,
		fmt.Sprintf("Reps: %d", s.RepCount),
	}
	switch {
	case s.CalibrationStatus == calibration.StatusPending:
		lines = append(lines, "Calibrating...")
	case s.CalibrationStatus == calibration.StatusFailed:
		lines = append(lines, "Recalibrate!")
	case s.Capturing:
		lines = append(lines, "Pose: "+s.Pose.String())
	default:
		lines = append(lines, "Paused")
	}
	return lines
}

// renderLines draws text rows onto a blank 1-bit frame.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawString(line)
	}
	return img
}

func drawLines(dev display.Drawer, lines []string) error {
	return dev.Draw(dev.Bounds(), renderLines(lines), image.Point{})
}
