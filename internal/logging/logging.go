// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias so callers need not import logrus for simple logs.
type Fields = logrus.Fields

// Options selects the level and an optional rotating log file.
type Options struct {
	Level string
	File  string
	// Stderr overrides the console writer, mostly for tests.
	Stderr io.Writer
}

// New builds a logger for one process. The component name is attached
// to every entry.
func New(component string, opts Options) (*logrus.Entry, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lvl
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&formatter.Formatter{
		TimestampFormat: "02 Jan 06 - 15:04:05.000",
		CallerFirst:     true,
		FieldsOrder:     []string{"component", "session_id"},
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})
	logger.SetReportCaller(level >= logrus.DebugLevel)

	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{console}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    50,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger.WithField("component", component), nil
}

// MustNew is New for main packages; a bad level falls back to info.
func MustNew(component string, opts Options) *logrus.Entry {
	log, err := New(component, opts)
	if err != nil {
		fallback, _ := New(component, Options{File: opts.File, Stderr: opts.Stderr})
		fallback.WithError(err).Warn("falling back to info level")
		return fallback
	}
	return log
}
