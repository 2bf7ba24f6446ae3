package sched

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors rmsched.yml
type Config struct {
	TimeUnitMS   int    `yaml:"time_unit_ms"`  // 1 (by default): one protocol unit in milliseconds
	ListenAddr   string `yaml:"listen_addr"`   // 127.0.0.1:8423 (by default)
	StatusBuffer int    `yaml:"status_buffer"` // 512 (by default): default read capacity of the status query
	EventBuffer  int    `yaml:"event_buffer"`  // 256 (by default)
	MaxTasks     int    `yaml:"max_tasks"`     // 64 (by default)
	LogLevel     string `yaml:"log_level"`     // info (by default)
	LogFormat    string `yaml:"log_format"`    // text (by default)
	CSVLog       string `yaml:"csv_log"`       // empty = no CSV event log
}

// If the config file is not found, we use default values
func DefaultConfig() Config {
	return Config{
		TimeUnitMS:   1,
		ListenAddr:   "127.0.0.1:8423",
		StatusBuffer: 512,
		EventBuffer:  256,
		MaxTasks:     64,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// TimeUnit returns the duration of one protocol time unit.
func (c Config) TimeUnit() time.Duration {
	return time.Duration(c.TimeUnitMS) * time.Millisecond
}

// Load reads YAML and overrides defaults; empty path or a missing file = defaults only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.clamp()
	return cfg, nil
}

// sanity clamps
func (c *Config) clamp() {
	def := DefaultConfig()
	if c.TimeUnitMS <= 0 {
		c.TimeUnitMS = def.TimeUnitMS
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.StatusBuffer <= 0 {
		c.StatusBuffer = def.StatusBuffer
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = def.MaxTasks
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
}
