package env

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/bosswave/engine"
	"github.com/luma/bosswave/protocol"
)

type Config struct {
	// RouterAddr is where devices connect to
	RouterAddr string `env:"BOSSWAVE_ROUTER_ADDR,default=127.0.0.1:28589"`

	Host     string `env:"BOSSWAVE_HOST,default=0.0.0.0"`
	Port     int    `env:"BOSSWAVE_PORT,default=28589"`
	HTTPPort string `env:"BOSSWAVE_HTTP_PORT,default=28590"`

	DebugHTTP bool   `env:"BOSSWAVE_DEBUG_HTTP"`
	LogLevel  string `env:"BOSSWAVE_LOG_LEVEL,default=info"`

	SendPolicy     string `env:"BOSSWAVE_SEND_POLICY,default=best-effort"`
	MaxLineLength  int    `env:"BOSSWAVE_MAX_LINE_LENGTH,default=4096"`
	MaxValueLength int    `env:"BOSSWAVE_MAX_VALUE_LENGTH,default=16777216"`

	// ConfigFile is an optional TOML file whose keys override the
	// environment
	ConfigFile string `env:"BOSSWAVE_CONFIG"`
}

type fileConfig struct {
	RouterAddr     string `toml:"router_addr"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	HTTPPort       string `toml:"http_port"`
	DebugHTTP      bool   `toml:"debug_http"`
	LogLevel       string `toml:"log_level"`
	SendPolicy     string `toml:"send_policy"`
	MaxLineLength  int    `toml:"max_line_length"`
	MaxValueLength int    `toml:"max_value_length"`
}

// LoadConfig reads .env.local if present, then the environment, then the
// TOML file named by BOSSWAVE_CONFIG or configFile if either is set.
func LoadConfig(ctx context.Context, configFile string) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	if configFile != "" {
		config.ConfigFile = configFile
	}

	if config.ConfigFile != "" {
		if err := config.loadFile(config.ConfigFile); err != nil {
			return nil, err
		}
	}

	if _, err := config.Policy(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) loadFile(path string) error {
	var raw fileConfig

	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("router_addr") {
		c.RouterAddr = strings.TrimSpace(raw.RouterAddr)
	}

	if meta.IsDefined("host") {
		c.Host = strings.TrimSpace(raw.Host)
	}

	if meta.IsDefined("port") {
		c.Port = raw.Port
	}

	if meta.IsDefined("http_port") {
		c.HTTPPort = strings.TrimSpace(raw.HTTPPort)
	}

	if meta.IsDefined("debug_http") {
		c.DebugHTTP = raw.DebugHTTP
	}

	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("send_policy") {
		c.SendPolicy = strings.TrimSpace(raw.SendPolicy)
	}

	if meta.IsDefined("max_line_length") {
		c.MaxLineLength = raw.MaxLineLength
	}

	if meta.IsDefined("max_value_length") {
		c.MaxValueLength = raw.MaxValueLength
	}

	return nil
}

func (c *Config) Policy() (engine.SendPolicy, error) {
	return engine.ParseSendPolicy(c.SendPolicy)
}

// Limits returns the message limits for the router's blocking reader.
func (c *Config) Limits() protocol.Limits {
	limits := protocol.DefaultLimits()
	limits.MaxLineLength = c.MaxLineLength
	limits.MaxValueLength = c.MaxValueLength

	return limits
}

// EngineOptions returns the engine options for a device connection. The
// logger is left for the caller to set.
func (c *Config) EngineOptions() engine.Options {
	policy, _ := c.Policy()

	return engine.Options{
		SendPolicy:     policy,
		MaxLineLength:  c.MaxLineLength,
		MaxValueLength: c.MaxValueLength,
	}
}
