// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/relabs-tech/squat_counter/internal/calibration"
	"github.com/relabs-tech/squat_counter/internal/session"
)

// DefaultPath is where the binaries look for their config file.
const DefaultPath = "squat_config.txt"

// Source kinds.
const (
	SourceMock   = "mock"
	SourceMQTT   = "mqtt"
	SourceSerial = "serial"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string `validate:"required"`
	MQTTClientIDCounter string `validate:"required"`
	MQTTClientIDConsole string `validate:"required"`
	MQTTClientIDWeb     string `validate:"required"`
	MQTTClientIDDisplay string `validate:"required"`
	MQTTClientIDSource  string `validate:"required"`

	// Topics
	TopicState       string `validate:"required"`
	TopicControl     string `validate:"required"`
	TopicKeypoints   string `validate:"required"`
	TopicCalibration string `validate:"required"`

	// Keypoint source
	SourceKind       string        `validate:"oneof=mock mqtt serial"`
	SerialPort       string        `validate:"required_if=SourceKind serial"`
	SerialBaudRate   int           `validate:"gt=0"`
	MinKeypointScore float64       `validate:"gte=0,lte=1"`
	KeypointMaxAge   time.Duration `validate:"gt=0"`

	// Timing
	PollInterval          time.Duration `validate:"gt=0"`
	CalibrationDelay      time.Duration `validate:"gte=0"`
	CalibrationRetryDelay time.Duration `validate:"gte=0"`
	CalibrationSamples    int           `validate:"gte=2"`
	CalibrationAttempts   int           `validate:"gte=1"`

	// Classification
	StandUpTolerance float64 `validate:"gt=0,lte=1"`
	SquatSlack       float64 `validate:"gte=0,lte=1"`
	DebounceFrames   int     `validate:"gte=1"`
	AutoStart        bool

	// Mock subject
	MockHold   time.Duration `validate:"gte=0"`
	MockPeriod time.Duration `validate:"gt=0"`

	// Web Server
	WebServerPort int    `validate:"gt=0,lte=65535"`
	WebStaticDir  string `validate:"required"`

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval time.Duration `validate:"gt=0"`

	// Logging
	LogLevel string `validate:"oneof=trace debug info warn error"`
	LogFile  string
}

// Package-level singleton, set once by InitGlobal and read with Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value filled in.
func Default() *Config {
	sess := session.DefaultConfig()
	return &Config{
		MQTTClientIDCounter: "squat-counter",
		MQTTClientIDConsole: "squat-console",
		MQTTClientIDWeb:     "squat-web",
		MQTTClientIDDisplay: "squat-display",
		MQTTClientIDSource:  "squat-keypoints",

		TopicState:       "squat/state",
		TopicControl:     "squat/control",
		TopicKeypoints:   "squat/keypoints",
		TopicCalibration: "squat/calibration",

		SourceKind:       SourceMock,
		SerialBaudRate:   115200,
		MinKeypointScore: 0.3,
		KeypointMaxAge:   500 * time.Millisecond,

		PollInterval:          sess.PollInterval,
		CalibrationDelay:      sess.CalibrationDelay,
		CalibrationRetryDelay: sess.CalibrationRetryDelay,
		CalibrationSamples:    sess.Calibration.Samples,
		CalibrationAttempts:   sess.CalibrationAttempts,

		StandUpTolerance: sess.Calibration.Tolerance,
		SquatSlack:       sess.SquatSlack,
		DebounceFrames:   sess.Debounce,

		MockHold:   5 * time.Second,
		MockPeriod: 4 * time.Second,

		WebServerPort: 8080,
		WebStaticDir:  "web",

		DisplayUpdateInterval: 250 * time.Millisecond,

		LogLevel: "info",
	}
}

// Load reads the KEY=VALUE configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return FromMap(values)
}

// FromMap applies raw KEY=VALUE pairs on top of Default and validates.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := cfg.setValue(key, strings.TrimSpace(values[key])); err != nil {
			return nil, fmt.Errorf("config key %s: %w", key, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseMillis(key, value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_COUNTER":
		c.MQTTClientIDCounter = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_SOURCE":
		c.MQTTClientIDSource = value

	// Topics
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_CONTROL":
		c.TopicControl = value
	case "TOPIC_KEYPOINTS":
		c.TopicKeypoints = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value

	// Keypoint source
	case "SOURCE_KIND":
		c.SourceKind = strings.ToLower(value)
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)
	case "MIN_KEYPOINT_SCORE":
		c.MinKeypointScore, err = parseFloat(key, value)
	case "KEYPOINT_MAX_AGE":
		c.KeypointMaxAge, err = parseMillis(key, value)

	// Timing
	case "POLL_INTERVAL":
		c.PollInterval, err = parseMillis(key, value)
	case "CALIBRATION_DELAY":
		c.CalibrationDelay, err = parseMillis(key, value)
	case "CALIBRATION_RETRY_DELAY":
		c.CalibrationRetryDelay, err = parseMillis(key, value)
	case "CALIBRATION_SAMPLES":
		c.CalibrationSamples, err = parseInt(key, value)
	case "CALIBRATION_MAX_ATTEMPTS":
		c.CalibrationAttempts, err = parseInt(key, value)

	// Classification
	case "STANDUP_TOLERANCE":
		c.StandUpTolerance, err = parseFloat(key, value)
	case "SQUAT_SLACK":
		c.SquatSlack, err = parseFloat(key, value)
	case "DEBOUNCE_FRAMES":
		c.DebounceFrames, err = parseInt(key, value)
	case "AUTO_START":
		c.AutoStart, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid AUTO_START %q: %w", value, err)
		}

	// Mock subject
	case "MOCK_HOLD":
		c.MockHold, err = parseMillis(key, value)
	case "MOCK_PERIOD":
		c.MockPeriod, err = parseMillis(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseMillis(key, value)

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)
	case "LOG_FILE":
		c.LogFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

var structValidator = validator.New()

// validate checks ranges and required fields.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Session builds the session controller settings.
func (c *Config) Session() session.Config {
	return session.Config{
		PollInterval:          c.PollInterval,
		CalibrationDelay:      c.CalibrationDelay,
		CalibrationAttempts:   c.CalibrationAttempts,
		CalibrationRetryDelay: c.CalibrationRetryDelay,
		Calibration: calibration.Config{
			Samples:   c.CalibrationSamples,
			Tolerance: c.StandUpTolerance,
			Interval:  c.PollInterval,
		},
		SquatSlack: c.SquatSlack,
		Debounce:   c.DebounceFrames,
		AutoStart:  c.AutoStart,
	}
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
