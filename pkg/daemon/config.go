package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Config is the daemon's on-disk configuration.
type Config struct {
	// DataDir is the root for the database, artifacts, and token.
	DataDir string `yaml:"data_dir"`

	HTTP struct {
		// Port the API listens on, all interfaces.
		Port int `yaml:"port"`
	} `yaml:"http"`

	BLE struct {
		// DeviceName is the advertised name of the peer to scan for.
		DeviceName string `yaml:"device_name"`
		// ServiceUUID, TXCharUUID, RXCharUUID identify the UART service.
		ServiceUUID string `yaml:"service_uuid"`
		TXCharUUID  string `yaml:"tx_char_uuid"`
		RXCharUUID  string `yaml:"rx_char_uuid"`
		// BridgeURL, when set, replaces the radio with the websocket
		// development bridge.
		BridgeURL string `yaml:"bridge_url,omitempty"`
	} `yaml:"ble"`

	Recorder struct {
		// Bin is the capture binary. Default arecord.
		Bin string `yaml:"bin,omitempty"`
	} `yaml:"recorder"`

	Speech struct {
		// APIKey for the transcription service. Env CORTEXD_OPENAI_KEY
		// overrides.
		APIKey string `yaml:"api_key,omitempty"`
		// BaseURL points at an OpenAI-compatible endpoint (optional).
		BaseURL string `yaml:"base_url,omitempty"`
		Model   string `yaml:"model,omitempty"`
	} `yaml:"speech"`

	Offload struct {
		// Bucket enables S3 offload of recordings when set.
		Bucket string `yaml:"bucket,omitempty"`
		Prefix string `yaml:"prefix,omitempty"`
	} `yaml:"offload"`
}

// DefaultConfig returns the configuration a fresh device boots with.
// The UUIDs are the Nordic UART service the peer firmware exposes.
func DefaultConfig() Config {
	var c Config
	c.DataDir = "/var/lib/cortexd"
	c.HTTP.Port = 8420
	c.BLE.DeviceName = "KeyMaster"
	c.BLE.ServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	c.BLE.TXCharUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
	c.BLE.RXCharUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	return c
}

// LoadConfig reads the YAML config at path, writing the defaults there
// first if the file does not exist yet.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if werr := SaveConfig(path, cfg); werr != nil {
			return Config{}, werr
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("daemon: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("daemon: parse config %s: %w", path, err)
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return Config{}, fmt.Errorf("daemon: invalid http port %d", cfg.HTTP.Port)
	}
	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("daemon: data_dir is required")
	}
	return cfg, nil
}

// SaveConfig writes the config as YAML, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("daemon: encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("daemon: config dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("daemon: write config: %w", err)
	}
	return nil
}

// Paths derived from DataDir.

func (c Config) DBDir() string     { return filepath.Join(c.DataDir, "db") }
func (c Config) FilesDir() string  { return filepath.Join(c.DataDir, "files") }
func (c Config) TokenPath() string { return filepath.Join(c.DataDir, "token") }
func (c Config) LogsDir() string   { return filepath.Join(c.FilesDir(), "logs") }
func (c Config) RecordingsDir() string {
	return filepath.Join(c.FilesDir(), "recordings")
}
