// Package config loads the host configuration from a YAML file. A missing
// file is not an error: the defaults reproduce the stock layout of a MeCab
// binary on PATH, dictionaries under data/ and a mecabrc next to the host.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"mecabbridge/model"
)

// FileName is the configuration file looked up next to the executable.
const FileName = "mecab-bridge.yaml"

// Config is the full host configuration.
type Config struct {
	Mecab        Mecab              `yaml:"mecab"`
	Dictionaries model.Dictionaries `yaml:"dictionaries" validate:"required,min=1,dive,keys,required,endkeys,min=1,dive,required"`
	Orchestrator Orchestrator       `yaml:"orchestrator"`
	Metrics      Metrics            `yaml:"metrics"`
	Debug        Debug              `yaml:"debug"`
}

// Mecab describes how tokenizer engines are launched.
type Mecab struct {
	Binary      string        `yaml:"binary" validate:"required"`
	Args        []string      `yaml:"args"`
	DataDir     string        `yaml:"data_dir" validate:"required"`
	RCFile      string        `yaml:"rc_file"`
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`
}

// Orchestrator tunes fan-out and restarts.
type Orchestrator struct {
	Concurrency int `yaml:"concurrency" validate:"gte=1"`
	// RestartBurst restarts are allowed at once, refilled one per
	// RestartInterval. A zero interval disables the budget.
	RestartBurst    int           `yaml:"restart_burst" validate:"required_with=RestartInterval,gte=0"`
	RestartInterval time.Duration `yaml:"restart_interval" validate:"gte=0"`
}

// RestartLimiter returns the restart budget, or nil when restarts are
// unlimited. The budget always admits at least one restart.
func (o Orchestrator) RestartLimiter() *rate.Limiter {
	if o.RestartInterval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(o.RestartInterval), max(o.RestartBurst, 1))
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	// Address to serve /metrics on; empty disables the endpoint.
	Address string `yaml:"address" validate:"omitempty,hostname_port"`
}

// Debug holds troubleshooting switches.
type Debug struct {
	// DumpDir, when set, receives every request and response as JSON.
	DumpDir string `yaml:"dump_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mecab: Mecab{
			Binary:      "mecab",
			DataDir:     "data",
			RCFile:      "mecabrc",
			ReadTimeout: 30 * time.Second,
		},
		Dictionaries: model.DefaultDictionaries(),
		Orchestrator: Orchestrator{
			Concurrency:  1,
			RestartBurst: 1,
		},
	}
}

// Load reads path over the defaults, resolves relative paths against
// baseDir and validates the result. A missing file yields the defaults.
func Load(path, baseDir string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.resolve(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) resolve(baseDir string) {
	c.Mecab.DataDir = resolvePath(baseDir, c.Mecab.DataDir)
	c.Mecab.RCFile = resolvePath(baseDir, c.Mecab.RCFile)
	c.Debug.DumpDir = resolvePath(baseDir, c.Debug.DumpDir)
	// A bare command name is looked up on PATH; anything with a directory
	// component is taken relative to baseDir.
	if filepath.Base(c.Mecab.Binary) != c.Mecab.Binary {
		c.Mecab.Binary = resolvePath(baseDir, c.Mecab.Binary)
	}
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
