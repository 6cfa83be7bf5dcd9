package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pingsantohq/iperf-exporter/internal/iperf"
)

const (
	envConfigPath = "IPERF_EXPORTER_CONFIG"
	envListenAddr = "IPERF_EXPORTER_LISTEN_ADDR"

	DefaultListenAddr = "127.0.0.1:3030"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Probe  ProbeConfig  `yaml:"probe"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type ProbeConfig struct {
	Binary          string        `yaml:"binary"`
	DefaultBitrate  string        `yaml:"default_bitrate"`
	DefaultDuration string        `yaml:"default_duration"`
	MaxDuration     int           `yaml:"max_duration"`
	TimeoutGrace    time.Duration `yaml:"timeout_grace"`
	MinInterval     time.Duration `yaml:"min_interval"`
	Validate        *bool         `yaml:"validate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	validate := true
	return Config{
		Server: ServerConfig{
			ListenAddr:  DefaultListenAddr,
			ReadTimeout: 5 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		Probe: ProbeConfig{
			Binary:          iperf.DefaultBinary,
			DefaultBitrate:  iperf.DefaultBitrate,
			DefaultDuration: iperf.DefaultDuration,
			MaxDuration:     60,
			TimeoutGrace:    30 * time.Second,
			Validate:        &validate,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ValidateRequests reports whether probe parameters are checked before iperf3 runs.
func (p ProbeConfig) ValidateRequests() bool {
	return p.Validate == nil || *p.Validate
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr must be set")
	}
	if strings.TrimSpace(c.Probe.Binary) == "" {
		return fmt.Errorf("probe.binary must be set")
	}
	if c.Probe.MaxDuration < 0 {
		return fmt.Errorf("probe.max_duration must not be negative")
	}
	if c.Probe.TimeoutGrace < 0 || c.Probe.MinInterval < 0 {
		return fmt.Errorf("probe durations must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format %q must be json or console", c.Log.Format)
	}
	return nil
}

// Load reads path on top of Default. Keys missing from the file keep their defaults.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by IPERF_EXPORTER_CONFIG, or returns the
// defaults when it is unset.
func LoadFromEnv(ctx context.Context) (Config, error) {
	if path := os.Getenv(envConfigPath); path != "" {
		return Load(ctx, path)
	}
	cfg := Default()
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv(envListenAddr); addr != "" {
		cfg.Server.ListenAddr = addr
	}
}
