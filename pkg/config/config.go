// Package config holds the embedder-facing configuration surface of the
// peripheral daemon.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Timeouts are expressed in
// milliseconds (seconds for controller-side knobs, which is what the
// management protocol itself uses).
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// ControllerIndex selects the local adapter.
	ControllerIndex uint16 `yaml:"controller_index" default:"0"`

	ServiceName          string `yaml:"service_name" default:"blip"`
	AdvertisingName      string `yaml:"advertising_name" default:"blip"`
	AdvertisingShortName string `yaml:"advertising_short_name" default:"blip"`

	// CommandTimeoutMS bounds each management command.
	CommandTimeoutMS int `yaml:"command_timeout_ms" default:"2000"`

	// MaxAsyncInitTimeoutMS bounds how long server initialization may
	// last before the start is forced to fail.
	MaxAsyncInitTimeoutMS int `yaml:"max_async_init_timeout_ms" default:"5000"`

	// PollIntervalMS paces the server's update-queue consumption.
	PollIntervalMS int `yaml:"poll_interval_ms" default:"100"`

	// DiscoverableTimeoutSec is the controller-side auto-revert out of
	// limited-discoverable mode, in seconds.
	DiscoverableTimeoutSec uint16 `yaml:"discoverable_timeout_sec" default:"0"`

	// AdvertisingDurationSec and AdvertisingTimeoutSec are the
	// controller-side rotation and auto-expiry of the advertising
	// instance; 0 means no auto-expiry.
	AdvertisingDurationSec uint16 `yaml:"advertising_duration_sec" default:"0"`
	AdvertisingTimeoutSec  uint16 `yaml:"advertising_timeout_sec" default:"0"`
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	c := new(Config)
	defaults.SetDefaults(c)
	return c
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return c, nil
}

// CommandTimeout returns CommandTimeoutMS as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

// MaxAsyncInitTimeout returns MaxAsyncInitTimeoutMS as a duration.
func (c *Config) MaxAsyncInitTimeout() time.Duration {
	return time.Duration(c.MaxAsyncInitTimeoutMS) * time.Millisecond
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
