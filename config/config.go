// Package config loads the server configuration: listener definitions,
// TLS material, event-loop sizing and request-body limits. Configuration
// comes from a YAML file with flag overrides for quick local runs.
package config

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// TLSOption is one ordered (directive, value) pair forwarded to the
// listener's TLS setup.
type TLSOption struct {
	Directive string `yaml:"directive"`
	Value     string `yaml:"value"`
}

// Listener describes one listening endpoint.
type Listener struct {
	Address        string      `yaml:"address"`
	Port           int         `yaml:"port"`
	TLS            bool        `yaml:"tls"`
	CertFile       string      `yaml:"cert"`
	KeyFile        string      `yaml:"key"`
	UseOldTLS      bool        `yaml:"use_old_tls"`
	TLSOptions     []TLSOption `yaml:"tls_options"`
	MaxConnections int         `yaml:"max_connections"`
}

// Config holds all application configuration.
type Config struct {
	Listeners []Listener `yaml:"listeners"`

	// Global fallback TLS material for listeners that enable TLS
	// without their own cert/key pair.
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`

	// TLSOptions apply to every TLS listener, before the listener's own.
	TLSOptions []TLSOption `yaml:"tls_options"`

	// Loops is the event-loop count; 0 means one per CPU.
	Loops int `yaml:"loops"`

	// SpillThreshold is the request-body size in bytes above which the
	// body moves to file backing; 0 keeps the package default.
	SpillThreshold int `yaml:"spill_threshold"`

	// MaxDecompressSize bounds decompressed request-body output in
	// bytes; 0 keeps the package default.
	MaxDecompressSize int `yaml:"max_decompress_size"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// New loads configuration from flags: a config file path plus quick
// overrides for running without one.
func New() *Config {
	var (
		path = flag.String("config", "", "path to YAML config file")
		port = flag.Int("port", 8080, "listener port when no config file is given")
		addr = flag.String("addr", "0.0.0.0", "listener address when no config file is given")
	)
	flag.Parse()

	if *path != "" {
		cfg, err := Load(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return cfg
	}

	cfg := &Config{
		Listeners: []Listener{{Address: *addr, Port: *port}},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Loops <= 0 {
		c.Loops = runtime.NumCPU()
	}
}

func (c *Config) validate() error {
	if len(c.Listeners) == 0 {
		return fmt.Errorf("no listeners configured")
	}
	for i, l := range c.Listeners {
		if l.Port < 0 || l.Port > 65535 {
			return fmt.Errorf("listener %d: port %d out of range", i, l.Port)
		}
		if l.TLS && l.CertFile == "" && c.CertFile == "" {
			return fmt.Errorf("listener %d: tls enabled but no certificate available", i)
		}
		if l.TLS && l.KeyFile == "" && c.KeyFile == "" {
			return fmt.Errorf("listener %d: tls enabled but no key available", i)
		}
	}
	return nil
}
