// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sources

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/pose"
)

// SerialSource reads KPFRM sentences from a pose co-processor on a UART.
type SerialSource struct {
	*Latest
	port     io.ReadCloser
	parser   *nmea.SentenceParser
	minScore float64
	log      logrus.FieldLogger
}

// OpenSerialSource opens portName at baudRate, 8N1.
func OpenSerialSource(latest *Latest, portName string, baudRate int, minScore float64, log logrus.FieldLogger) (*SerialSource, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	s := NewSerialSource(latest, port, minScore, log)
	s.log.WithField("baud", baudRate).Info("serial keypoint link opened")
	return s, nil
}

// NewSerialSource reads from an already open stream.
func NewSerialSource(latest *Latest, port io.ReadCloser, minScore float64, log logrus.FieldLogger) *SerialSource {
	return &SerialSource{
		Latest:   latest,
		port:     port,
		parser:   NewSentenceParser(),
		minScore: minScore,
		log:      log.WithField("source", "serial"),
	}
}

// HandleLine parses one line and stores the frame it carries. Lines that
// are not KPFRM sentences are ignored.
func (s *SerialSource) HandleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return nil
	}
	sentence, err := s.parser.Parse(line)
	if err != nil {
		return err
	}
	frm, ok := sentence.(FRM)
	if !ok {
		return nil
	}
	if len(frm.Keypoints) == 0 {
		s.Update(frm.Seq, nil)
		return nil
	}
	s.Update(frm.Seq, pose.NewKeypointSet(frm.Keypoints, s.minScore))
	return nil
}

// Run reads sentences until ctx is done or the port fails.
func (s *SerialSource) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.port.Close()
	}()

	reader := bufio.NewReader(s.port)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if perr := s.HandleLine(line); perr != nil {
				// partial sentences are common right after the port opens
				s.log.WithError(perr).Debug("skipping sentence")
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("serial link closed: %w", err)
			}
			return fmt.Errorf("serial read: %w", err)
		}
	}
}
