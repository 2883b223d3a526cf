package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/saviobatista/fsd-connector/internal/session"
)

// Config holds the application configuration
type Config struct {
	Server          string `toml:"server"`
	Port            int    `toml:"port"`
	Callsign        string `toml:"callsign"`
	CID             string `toml:"cid"`
	Password        string `toml:"password"`
	RealName        string `toml:"real_name"`
	Controller      bool   `toml:"controller"`
	ClientName      string `toml:"client_name"`
	ClientID        uint16 `toml:"client_id"`
	ClientKey       string `toml:"client_key"`
	ClientHash      string `toml:"client_hash"`
	PluginHash      string `toml:"plugin_hash"`
	ChallengeServer bool   `toml:"challenge_server"`
	StatusURL       string `toml:"status_url"`

	NATSURL   string `toml:"nats_url"`
	RedisAddr string `toml:"redis_addr"`
	DBConnStr string `toml:"db_conn_str"`
	OutputDir string `toml:"output_dir"`
	LogLevel  string `toml:"log_level"`

	Session session.Config `toml:"session"`
}

// Default returns the configuration used for unset values
func Default() *Config {
	return &Config{
		Port:       6809,
		ClientName: "fsd-connector",
		NATSURL:    "nats://nats:4222",
		RedisAddr:  "redis:6379",
		OutputDir:  "./logs",
		LogLevel:   "info",
		Session:    session.DefaultConfig(),
	}
}

// Load loads the configuration from an optional TOML file, environment
// variables and .env file. Environment variables win over the file.
func Load() (*Config, error) {
	return load(true)
}

// LoadServices loads the configuration like Load but does not require the
// FSD login settings. The binaries that only consume NATS use it.
func LoadServices() (*Config, error) {
	return load(false)
}

func load(validate bool) (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("FSD_CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server, "FSD_SERVER")
	setString(&c.Callsign, "FSD_CALLSIGN")
	setString(&c.CID, "FSD_CID")
	setString(&c.Password, "FSD_PASSWORD")
	setString(&c.RealName, "FSD_REAL_NAME")
	setString(&c.ClientName, "FSD_CLIENT_NAME")
	setString(&c.ClientKey, "FSD_CLIENT_KEY")
	setString(&c.ClientHash, "FSD_CLIENT_HASH")
	setString(&c.PluginHash, "FSD_PLUGIN_HASH")
	setString(&c.StatusURL, "FSD_STATUS_URL")
	setString(&c.NATSURL, "NATS_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.DBConnStr, "DB_CONN_STR")
	setString(&c.OutputDir, "OUTPUT_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("FSD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FSD_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("FSD_CLIENT_ID"); v != "" {
		id, err := strconv.ParseUint(v, 16, 16)
		if err != nil {
			return fmt.Errorf("invalid FSD_CLIENT_ID %q: %w", v, err)
		}
		c.ClientID = uint16(id)
	}

	for name, dst := range map[string]*bool{
		"FSD_CONTROLLER":       &c.Controller,
		"FSD_CHALLENGE_SERVER": &c.ChallengeServer,
		"FSD_IGNORE_UNKNOWN":   &c.Session.IgnoreUnknown,
	} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
			*dst = b
		}
	}
	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

// Validate reports the first missing or invalid setting
func (c *Config) Validate() error {
	if c.Server == "" && c.StatusURL == "" {
		return fmt.Errorf("FSD_SERVER or FSD_STATUS_URL environment variable is required")
	}
	if c.Callsign == "" {
		return fmt.Errorf("FSD_CALLSIGN environment variable is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}
