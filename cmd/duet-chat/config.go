package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/duet-protocol/duet-go/pkg/transport"
)

// fileConfig is the YAML configuration file schema. All fields are
// optional; absent fields keep the transport defaults.
//
// Example:
//
//	connect_timeout: 1s
//	handshake_timeout: 1s
//	ack_timeout: 200ms
//	ack_max_retries: 0
//	keepalive_interval: 100ms
//	default_port: 12345
type fileConfig struct {
	ConnectTimeout    string `yaml:"connect_timeout"`
	HandshakeTimeout  string `yaml:"handshake_timeout"`
	AckTimeout        string `yaml:"ack_timeout"`
	AckMaxRetries     int    `yaml:"ack_max_retries"`
	KeepAliveInterval string `yaml:"keepalive_interval"`
	DefaultPort       int    `yaml:"default_port"`
}

// loadConfig reads the YAML file and applies it over the transport
// defaults.
func loadConfig(path string) (transport.Config, error) {
	var config transport.Config

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.ConnectTimeout, err = parseDuration(fc.ConnectTimeout, "connect_timeout"); err != nil {
		return config, err
	}
	if config.HandshakeTimeout, err = parseDuration(fc.HandshakeTimeout, "handshake_timeout"); err != nil {
		return config, err
	}
	if config.AckTimeout, err = parseDuration(fc.AckTimeout, "ack_timeout"); err != nil {
		return config, err
	}
	if config.KeepAliveInterval, err = parseDuration(fc.KeepAliveInterval, "keepalive_interval"); err != nil {
		return config, err
	}
	config.AckMaxRetries = fc.AckMaxRetries
	config.DefaultPort = fc.DefaultPort

	return config, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
