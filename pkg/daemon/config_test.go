package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Port != 8420 || cfg.BLE.DeviceName != "KeyMaster" {
		t.Fatalf("defaults = %+v", cfg)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(b), "port: 8420") {
		t.Fatalf("written config missing defaults:\n%s", b)
	}

	again, err := LoadConfig(path)
	if err != nil || again.HTTP.Port != cfg.HTTP.Port {
		t.Fatalf("reload = (%+v, %v)", again, err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "data_dir: /tmp/cx\nhttp:\n  port: 9001\nble:\n  bridge_url: ws://127.0.0.1:9130/ble\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Port != 9001 || cfg.DataDir != "/tmp/cx" {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	// Unset fields keep their defaults.
	if cfg.BLE.DeviceName != "KeyMaster" {
		t.Fatalf("default lost: %+v", cfg.BLE)
	}
	if cfg.BLE.BridgeURL != "ws://127.0.0.1:9130/ble" {
		t.Fatalf("bridge url = %q", cfg.BLE.BridgeURL)
	}
}

func TestLoadConfigRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /tmp/cx\nhttp:\n  port: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("negative port accepted")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"
	if cfg.DBDir() != "/data/db" || cfg.TokenPath() != "/data/token" {
		t.Fatalf("paths = %q, %q", cfg.DBDir(), cfg.TokenPath())
	}
	if cfg.LogsDir() != "/data/files/logs" || cfg.RecordingsDir() != "/data/files/recordings" {
		t.Fatalf("paths = %q, %q", cfg.LogsDir(), cfg.RecordingsDir())
	}
}
