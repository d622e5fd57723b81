package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Client Client `yaml:"client"`
	Host   Host   `yaml:"host"`
}

// Client configures the viewer.
type Client struct {
	ServerURL  string        `yaml:"server_url"`
	HandSlots  int           `yaml:"hand_slots"`
	TableSlots int           `yaml:"table_slots"`
	Reconnect  bool          `yaml:"reconnect"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
	ReadLimit  int64         `yaml:"read_limit"` // bytes per inbound frame
	LogLevel   string        `yaml:"log_level"`
}

// Host configures the websocket host and its demo dealer.
type Host struct {
	Port            string   `yaml:"port"`
	OriginAllowlist []string `yaml:"origin_allowlist"`
	StaticDir       string   `yaml:"static_dir"`
	AssetsDir       string   `yaml:"assets_dir"`
	Script          string   `yaml:"script"`
	LogLevel        string   `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Client: Client{
			ServerURL:  "ws://localhost:8080/ws",
			HandSlots:  5,
			TableSlots: 2,
			Reconnect:  true,
			BackoffMin: 500 * time.Millisecond,
			BackoffMax: 10 * time.Second,
			ReadLimit:  1 << 20,
			LogLevel:   "info",
		},
		Host: Host{
			Port:      "8080",
			StaticDir: "./static",
			AssetsDir: "./assets",
			Script:    "./scripts/demo.lua",
			LogLevel:  "info",
		},
	}
}

// LoadDotEnv loads a .env file from the working directory if there is one.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if len(cfg.Host.OriginAllowlist) == 0 {
		p := cfg.Host.Port
		cfg.Host.OriginAllowlist = []string{"http://localhost:" + p, "http://127.0.0.1:" + p}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Client.ServerURL = getEnv("CARDTABLE_SERVER_URL", c.Client.ServerURL)
	c.Client.HandSlots = getEnvAsInt("CARDTABLE_HAND_SLOTS", c.Client.HandSlots)
	c.Client.TableSlots = getEnvAsInt("CARDTABLE_TABLE_SLOTS", c.Client.TableSlots)
	c.Client.Reconnect = getEnvAsBool("CARDTABLE_RECONNECT", c.Client.Reconnect)
	c.Client.BackoffMin = getEnvAsDuration("CARDTABLE_BACKOFF_MIN", c.Client.BackoffMin)
	c.Client.BackoffMax = getEnvAsDuration("CARDTABLE_BACKOFF_MAX", c.Client.BackoffMax)
	c.Client.ReadLimit = int64(getEnvAsInt("CARDTABLE_READ_LIMIT", int(c.Client.ReadLimit)))
	c.Client.LogLevel = getEnv("LOG_LEVEL", c.Client.LogLevel)

	c.Host.Port = getEnv("PORT", c.Host.Port)
	if v := getEnv("ORIGIN_ALLOWLIST", ""); v != "" {
		c.Host.OriginAllowlist = strings.Split(v, ",")
	}
	c.Host.StaticDir = getEnv("CARDTABLE_STATIC_DIR", c.Host.StaticDir)
	c.Host.AssetsDir = getEnv("CARDTABLE_ASSETS_DIR", c.Host.AssetsDir)
	c.Host.Script = getEnv("CARDTABLE_SCRIPT", c.Host.Script)
	c.Host.LogLevel = getEnv("LOG_LEVEL", c.Host.LogLevel)
}

func (c *Config) validate() error {
	if c.Client.HandSlots <= 0 {
		return fmt.Errorf("hand_slots must be positive, got %d", c.Client.HandSlots)
	}
	if c.Client.TableSlots < 0 {
		return fmt.Errorf("table_slots must not be negative, got %d", c.Client.TableSlots)
	}
	if c.Client.BackoffMin <= 0 || c.Client.BackoffMax < c.Client.BackoffMin {
		return fmt.Errorf("invalid backoff range %s..%s", c.Client.BackoffMin, c.Client.BackoffMax)
	}
	if c.Client.ReadLimit <= 0 {
		return fmt.Errorf("read_limit must be positive, got %d", c.Client.ReadLimit)
	}
	if _, err := strconv.Atoi(c.Host.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Host.Port)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
