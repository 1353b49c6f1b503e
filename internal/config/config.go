// Package config loads the YAML configuration shared by every evoswarm
// command. Command-line flags override what is read here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"evoswarm/internal/evo"
	"evoswarm/internal/master"
)

type Config struct {
	Evolution EvolutionConfig `yaml:"evolution"`
	Master    MasterConfig    `yaml:"master"`
	Worker    WorkerConfig    `yaml:"worker"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

type EvolutionConfig struct {
	PopulationSize int    `yaml:"population_size" validate:"gte=2"`
	Stop           string `yaml:"stop" validate:"required"`
	Threads        int    `yaml:"threads" validate:"gte=0"`
	Task           string `yaml:"task" validate:"required"`
	Hidden         []int  `yaml:"hidden" validate:"dive,gt=0"`
	Seed           int64  `yaml:"seed"`
}

type MasterConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port" validate:"gte=0,lte=65535"`
	Start          string        `yaml:"start" validate:"required"`
	Sync           string        `yaml:"sync"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	Spawn          int           `yaml:"spawn" validate:"gte=0"`
	MetricsAddr    string        `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

type WorkerConfig struct {
	Master           string  `yaml:"master" validate:"required,hostname_port"`
	LocalGenerations int     `yaml:"local_generations" validate:"gte=1"`
	LocalPopulation  int     `yaml:"local_population" validate:"gte=2"`
	Perturbation     float64 `yaml:"perturbation" validate:"gte=0"`
	DialAttempts     int     `yaml:"dial_attempts" validate:"gte=0"`
}

type StoreConfig struct {
	Kind string `yaml:"kind" validate:"oneof=memory sqlite"`
	Path string `yaml:"path" validate:"required_if=Kind sqlite"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto text json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default mirrors the behaviour of a bare master: port 1337, start once six
// workers are connected, sync every six generations.
func Default() Config {
	return Config{
		Evolution: EvolutionConfig{
			PopulationSize: 16,
			Stop:           "generations:100",
			Threads:        runtime.NumCPU(),
			Task:           "xor",
			Hidden:         []int{3},
			Seed:           1,
		},
		Master: MasterConfig{
			Port:           master.DefaultPort,
			Start:          "clients:6",
			Sync:           "generations:6",
			RequestTimeout: 30 * time.Second,
		},
		Worker: WorkerConfig{
			Master:           fmt.Sprintf("127.0.0.1:%d", master.DefaultPort),
			LocalGenerations: 5,
			LocalPopulation:  8,
			Perturbation:     0.1,
		},
		Store: StoreConfig{Kind: "sqlite", Path: "evoswarm.db"},
		Log:   LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field constraints and that every condition string parses.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.StopRule(); err != nil {
		return err
	}
	if _, err := c.StartCondition(); err != nil {
		return err
	}
	if _, err := c.SyncCondition(); err != nil {
		return err
	}
	return nil
}

func (c Config) StopRule() (evo.StopRule, error) {
	return evo.ParseStopRule(c.Evolution.Stop)
}

func (c Config) StartCondition() (master.StartCondition, error) {
	return master.ParseStartCondition(c.Master.Start)
}

func (c Config) SyncCondition() (master.SyncCondition, error) {
	return master.ParseSyncCondition(c.Master.Sync)
}

// ListenAddr is the master's bind address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Master.Host, c.Master.Port)
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
