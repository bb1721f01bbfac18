// Package cliconfig holds the CLI-facing configuration for memsync:
// defaults, validation, TOML file loading, environment overrides and the
// flag-precedence bookkeeping shared by all three sources.
package cliconfig

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// PeerConfig is one remote node entry: the endpoint to broadcast to and the
// instance ID whose region this node mirrors.
type PeerConfig struct {
	Host       string
	Port       int
	InstanceID int
}

// Config holds CLI configuration for memsync.
type Config struct {
	ListenHost string
	ListenPort int
	InstanceID int
	RegionSize int

	PollInterval    time.Duration
	InflightTimeout time.Duration
	ShutdownTimeout time.Duration

	Peers       []PeerConfig
	WatchConfig bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ListenHost:      "127.0.0.1",
		ListenPort:      8080,
		InstanceID:      1,
		RegionSize:      256,
		PollInterval:    10 * time.Millisecond,
		InflightTimeout: 5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ListenHost == "" {
		return fmt.Errorf("listen host is required")
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.InstanceID <= 0 {
		return fmt.Errorf("instance id must be positive")
	}
	if c.RegionSize <= 0 {
		return fmt.Errorf("region size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.InflightTimeout <= 0 {
		return fmt.Errorf("inflight timeout must be positive")
	}
	for _, p := range c.Peers {
		if p.Host == "" || p.Port <= 0 || p.Port > 65535 {
			return fmt.Errorf("invalid peer %s:%d", p.Host, p.Port)
		}
		if p.InstanceID <= 0 {
			return fmt.Errorf("peer %s:%d: instance id must be positive", p.Host, p.Port)
		}
	}
	return nil
}

// ParsePeer parses a host:port:instance-id peer flag value.
func ParsePeer(s string) (PeerConfig, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return PeerConfig{}, fmt.Errorf("peer %q: want host:port:instance-id", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return PeerConfig{}, fmt.Errorf("peer %q: bad port: %w", s, err)
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		return PeerConfig{}, fmt.Errorf("peer %q: bad instance id: %w", s, err)
	}
	if net.ParseIP(parts[0]) == nil && parts[0] == "" {
		return PeerConfig{}, fmt.Errorf("peer %q: empty host", s)
	}
	return PeerConfig{Host: parts[0], Port: port, InstanceID: id}, nil
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't been
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	if changed == nil {
		changed = map[string]bool{}
	}
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value != "" && !s.changed[flag] {
		*dst = value
	}
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value != 0 && !s.changed[flag] {
		*dst = value
	}
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value != nil && !s.changed[flag] {
		*dst = *value
	}
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", flag, err)
	}
	*dst = d
	return nil
}

// ApplyEnvConfig applies MEMSYNC_* environment variables to the Config.
// Env values override file config but lose to explicitly set flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", os.Getenv("MEMSYNC_LISTEN_HOST"), &cfg.ListenHost)

	if v := os.Getenv("MEMSYNC_LISTEN_PORT"); v != "" && !s.changed["port"] {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEMSYNC_LISTEN_PORT: %w", err)
		}
		cfg.ListenPort = p
	}
	if v := os.Getenv("MEMSYNC_INSTANCE_ID"); v != "" && !s.changed["instance-id"] {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEMSYNC_INSTANCE_ID: %w", err)
		}
		cfg.InstanceID = id
	}
	if v := os.Getenv("MEMSYNC_REGION_SIZE"); v != "" && !s.changed["region-size"] {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEMSYNC_REGION_SIZE: %w", err)
		}
		cfg.RegionSize = size
	}

	if err := s.setDuration("poll", os.Getenv("MEMSYNC_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("inflight-timeout", os.Getenv("MEMSYNC_INFLIGHT_TIMEOUT"), &cfg.InflightTimeout); err != nil {
		return err
	}

	if v := os.Getenv("MEMSYNC_PEERS"); v != "" && !s.changed["peer"] {
		var peers []PeerConfig
		for _, entry := range strings.Split(v, ",") {
			p, err := ParsePeer(strings.TrimSpace(entry))
			if err != nil {
				return fmt.Errorf("MEMSYNC_PEERS: %w", err)
			}
			peers = append(peers, p)
		}
		cfg.Peers = peers
	}

	return nil
}
