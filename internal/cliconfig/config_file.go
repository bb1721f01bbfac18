package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML
// friendly.
type FileConfig struct {
	ListenHost      string     `toml:"listen_host"`
	ListenPort      int        `toml:"listen_port"`
	InstanceID      int        `toml:"instance_id"`
	RegionSize      int        `toml:"region_size"`
	PollInterval    string     `toml:"poll_interval"`
	InflightTimeout string     `toml:"inflight_timeout"`
	ShutdownTimeout string     `toml:"shutdown_timeout"`
	WatchConfig     *bool      `toml:"watch_config"`
	Peers           []FilePeer `toml:"peer"`
}

// FilePeer is one [[peer]] table entry.
type FilePeer struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	InstanceID int    `toml:"instance_id"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.memsync/config.toml if the user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".memsync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", fc.ListenHost, &cfg.ListenHost)
	s.setInt("port", fc.ListenPort, &cfg.ListenPort)
	s.setInt("instance-id", fc.InstanceID, &cfg.InstanceID)
	s.setInt("region-size", fc.RegionSize, &cfg.RegionSize)

	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("inflight-timeout", fc.InflightTimeout, &cfg.InflightTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBool("watch-config", fc.WatchConfig, &cfg.WatchConfig)

	if len(fc.Peers) > 0 && !s.changed["peer"] {
		peers := make([]PeerConfig, 0, len(fc.Peers))
		for _, p := range fc.Peers {
			peers = append(peers, PeerConfig{Host: p.Host, Port: p.Port, InstanceID: p.InstanceID})
		}
		cfg.Peers = peers
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
