package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				ListenHost:      "0.0.0.0",
				ListenPort:      9000,
				InstanceID:      3,
				RegionSize:      1024,
				PollInterval:    "20ms",
				InflightTimeout: "2s",
				ShutdownTimeout: "30s",
				WatchConfig:     &trueVal,
				Peers: []FilePeer{
					{Host: "10.0.0.2", Port: 9000, InstanceID: 2},
				},
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				ListenHost:      "0.0.0.0",
				ListenPort:      9000,
				InstanceID:      3,
				RegionSize:      1024,
				PollInterval:    20 * time.Millisecond,
				InflightTimeout: 2 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				WatchConfig:     true,
				Peers: []PeerConfig{
					{Host: "10.0.0.2", Port: 9000, InstanceID: 2},
				},
			},
			wantErr: false,
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				ListenHost: "0.0.0.0",
				ListenPort: 9000,
			},
			changed: map[string]bool{"listen": true},
			initial: Config{
				ListenHost: "192.168.0.1",
				ListenPort: 8080,
			},
			expected: Config{
				ListenHost: "192.168.0.1", // unchanged because flag was set
				ListenPort: 9000,
			},
			wantErr: false,
		},
		{
			name: "returns error for invalid duration",
			fileConfig: FileConfig{
				PollInterval: "not-a-duration",
			},
			changed: map[string]bool{},
			initial: Config{},
			wantErr: true,
		},
		{
			name: "peer flag wins over file peers",
			fileConfig: FileConfig{
				Peers: []FilePeer{
					{Host: "10.0.0.2", Port: 9000, InstanceID: 2},
				},
			},
			changed: map[string]bool{"peer": true},
			initial: Config{
				Peers: []PeerConfig{{Host: "10.0.0.9", Port: 9000, InstanceID: 9}},
			},
			expected: Config{
				Peers: []PeerConfig{{Host: "10.0.0.9", Port: 9000, InstanceID: 9}},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}

			if cfg.ListenHost != tt.expected.ListenHost {
				t.Errorf("ListenHost = %v, want %v", cfg.ListenHost, tt.expected.ListenHost)
			}
			if cfg.ListenPort != tt.expected.ListenPort {
				t.Errorf("ListenPort = %v, want %v", cfg.ListenPort, tt.expected.ListenPort)
			}
			if cfg.InstanceID != tt.expected.InstanceID {
				t.Errorf("InstanceID = %v, want %v", cfg.InstanceID, tt.expected.InstanceID)
			}
			if cfg.RegionSize != tt.expected.RegionSize {
				t.Errorf("RegionSize = %v, want %v", cfg.RegionSize, tt.expected.RegionSize)
			}
			if cfg.PollInterval != tt.expected.PollInterval {
				t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, tt.expected.PollInterval)
			}
			if cfg.InflightTimeout != tt.expected.InflightTimeout {
				t.Errorf("InflightTimeout = %v, want %v", cfg.InflightTimeout, tt.expected.InflightTimeout)
			}
			if cfg.WatchConfig != tt.expected.WatchConfig {
				t.Errorf("WatchConfig = %v, want %v", cfg.WatchConfig, tt.expected.WatchConfig)
			}
			if len(cfg.Peers) != len(tt.expected.Peers) {
				t.Fatalf("Peers = %+v, want %+v", cfg.Peers, tt.expected.Peers)
			}
			for i := range cfg.Peers {
				if cfg.Peers[i] != tt.expected.Peers[i] {
					t.Errorf("Peers[%d] = %+v, want %+v", i, cfg.Peers[i], tt.expected.Peers[i])
				}
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
listen_host = "0.0.0.0"
listen_port = 9000
instance_id = 3
region_size = 512
poll_interval = "20ms"
watch_config = true

[[peer]]
host = "10.0.0.2"
port = 9000
instance_id = 2

[[peer]]
host = "10.0.0.3"
port = 9000
instance_id = 4
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.ListenHost != "0.0.0.0" {
		t.Errorf("ListenHost = %v, want 0.0.0.0", fc.ListenHost)
	}
	if fc.ListenPort != 9000 {
		t.Errorf("ListenPort = %v, want 9000", fc.ListenPort)
	}
	if fc.InstanceID != 3 {
		t.Errorf("InstanceID = %v, want 3", fc.InstanceID)
	}
	if fc.PollInterval != "20ms" {
		t.Errorf("PollInterval = %v, want 20ms", fc.PollInterval)
	}
	if fc.WatchConfig == nil || *fc.WatchConfig != true {
		t.Errorf("WatchConfig = %v, want true", fc.WatchConfig)
	}
	if len(fc.Peers) != 2 {
		t.Fatalf("Peers = %+v, want 2 entries", fc.Peers)
	}
	if fc.Peers[1].InstanceID != 4 {
		t.Errorf("Peers[1].InstanceID = %v, want 4", fc.Peers[1].InstanceID)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
listen_host = "0.0.0.0"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".memsync") {
		t.Errorf("DefaultConfigPath() = %v, should contain .memsync", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
