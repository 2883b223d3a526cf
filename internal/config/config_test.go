package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"FSD_CONFIG_FILE", "FSD_SERVER", "FSD_PORT", "FSD_CALLSIGN", "FSD_CID",
		"FSD_PASSWORD", "FSD_REAL_NAME", "FSD_CONTROLLER", "FSD_CLIENT_NAME",
		"FSD_CLIENT_ID", "FSD_CLIENT_KEY", "FSD_CLIENT_HASH", "FSD_PLUGIN_HASH",
		"FSD_CHALLENGE_SERVER", "FSD_IGNORE_UNKNOWN", "FSD_STATUS_URL", "NATS_URL", "REDIS_ADDR",
		"DB_CONN_STR", "OUTPUT_DIR", "LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("FSD_SERVER", "fsd.example.net")
	t.Setenv("FSD_PORT", "6810")
	t.Setenv("FSD_CALLSIGN", "DAL123")
	t.Setenv("FSD_CID", "1234567")
	t.Setenv("FSD_CLIENT_ID", "b5a1")
	t.Setenv("FSD_CHALLENGE_SERVER", "true")
	t.Setenv("FSD_IGNORE_UNKNOWN", "1")
	t.Setenv("OUTPUT_DIR", "/test/output")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if config.Server != "fsd.example.net" {
		t.Errorf("Expected Server = fsd.example.net, got %s", config.Server)
	}
	if config.Port != 6810 {
		t.Errorf("Expected Port = 6810, got %d", config.Port)
	}
	if config.Callsign != "DAL123" || config.CID != "1234567" {
		t.Errorf("Unexpected identity %s/%s", config.Callsign, config.CID)
	}
	if config.ClientID != 0xb5a1 {
		t.Errorf("Expected ClientID = 0xb5a1, got %#x", config.ClientID)
	}
	if !config.ChallengeServer {
		t.Error("Expected ChallengeServer to be set")
	}
	if !config.Session.IgnoreUnknown {
		t.Error("Expected Session.IgnoreUnknown to be set")
	}
	if config.OutputDir != "/test/output" {
		t.Errorf("Expected OutputDir = /test/output, got %s", config.OutputDir)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("FSD_SERVER", "fsd.example.net")
	t.Setenv("FSD_CALLSIGN", "DAL123")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if config.Port != 6809 {
		t.Errorf("Expected default Port = 6809, got %d", config.Port)
	}
	if config.OutputDir != "./logs" {
		t.Errorf("Expected default OutputDir = ./logs, got %s", config.OutputDir)
	}
	if config.NATSURL != "nats://nats:4222" {
		t.Errorf("Expected default NATSURL, got %s", config.NATSURL)
	}
	if config.Session.Auth.ChallengeInterval != 60*time.Second {
		t.Errorf("Expected default challenge interval, got %s", config.Session.Auth.ChallengeInterval)
	}
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "fsd.toml")
	content := `
server = "file.example.net"
callsign = "EGLL_TWR"
controller = true
log_level = "debug"

[session]
read_buffer_size = 4096
write_timeout = "5s"

[session.auth]
challenge_interval = "90s"
response_window = "10s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("FSD_CONFIG_FILE", path)
	t.Setenv("FSD_CALLSIGN", "EGLL_GND")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if config.Server != "file.example.net" {
		t.Errorf("Expected Server from file, got %s", config.Server)
	}
	if config.Callsign != "EGLL_GND" {
		t.Errorf("Expected environment to override callsign, got %s", config.Callsign)
	}
	if !config.Controller {
		t.Error("Expected Controller from file")
	}
	if config.Session.ReadBufferSize != 4096 || config.Session.WriteTimeout != 5*time.Second {
		t.Errorf("Unexpected session config %+v", config.Session)
	}
	if config.Session.Auth.ChallengeInterval != 90*time.Second || config.Session.Auth.ResponseWindow != 10*time.Second {
		t.Errorf("Unexpected auth config %+v", config.Session.Auth)
	}
	if config.Session.DialTimeout != 10*time.Second {
		t.Errorf("Expected untouched DialTimeout default, got %s", config.Session.DialTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{
			name:     "missing server",
			env:      map[string]string{"FSD_CALLSIGN": "DAL123"},
			expected: "FSD_SERVER or FSD_STATUS_URL environment variable is required",
		},
		{
			name:     "missing callsign",
			env:      map[string]string{"FSD_SERVER": "fsd.example.net"},
			expected: "FSD_CALLSIGN environment variable is required",
		},
		{
			name:     "status url without callsign",
			env:      map[string]string{"FSD_STATUS_URL": "https://status.example.net/status.txt"},
			expected: "FSD_CALLSIGN environment variable is required",
		},
		{
			name:     "bad port",
			env:      map[string]string{"FSD_SERVER": "a", "FSD_CALLSIGN": "b", "FSD_PORT": "abc"},
			expected: `invalid FSD_PORT "abc": strconv.Atoi: parsing "abc": invalid syntax`,
		},
		{
			name:     "port out of range",
			env:      map[string]string{"FSD_SERVER": "a", "FSD_CALLSIGN": "b", "FSD_PORT": "70000"},
			expected: "invalid port 70000",
		},
		{
			name:     "bad bool",
			env:      map[string]string{"FSD_SERVER": "a", "FSD_CALLSIGN": "b", "FSD_CONTROLLER": "maybe"},
			expected: `invalid FSD_CONTROLLER "maybe": strconv.ParseBool: parsing "maybe": invalid syntax`,
		},
		{
			name:     "missing file",
			env:      map[string]string{"FSD_CONFIG_FILE": "/nonexistent/fsd.toml"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			config, err := Load()
			if err == nil {
				t.Fatal("Load() should have failed")
			}
			if config != nil {
				t.Fatal("Load() should have returned nil config")
			}
			if tt.expected != "" && err.Error() != tt.expected {
				t.Errorf("Expected error '%s', got '%s'", tt.expected, err.Error())
			}
		})
	}
}

func TestLoadServices(t *testing.T) {
	clearEnv(t)
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("DB_CONN_STR", "postgres://fsd@localhost/fsd")

	config, err := LoadServices()
	if err != nil {
		t.Fatalf("LoadServices() failed: %v", err)
	}
	if config.NATSURL != "nats://localhost:4222" {
		t.Errorf("Expected NATS URL from env, got %q", config.NATSURL)
	}
	if config.DBConnStr != "postgres://fsd@localhost/fsd" {
		t.Errorf("Expected DB connection string from env, got %q", config.DBConnStr)
	}

	t.Setenv("FSD_PORT", "abc")
	if _, err := LoadServices(); err == nil {
		t.Error("LoadServices() should still reject malformed values")
	}
}
