// Package config loads the process configuration. No command-line arguments
// are read: everything comes from config.yml, found through SIGLOCK_CONFIG or
// the XDG config directories, on top of built-in defaults.
package config

import (
	"os"
	"time"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/go-errors/errors"
	"github.com/jesseduffield/yaml"
	"github.com/marcodamonte/concurrency/signal-deadlock/interrupt"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "SIGLOCK_CONFIG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting of the process. Fields left out of config.yml
// keep their defaults.
type Config struct {
	// Hold is how long the lock owner holds the lock.
	Hold time.Duration `yaml:"hold,omitempty"`

	// Signal is the name of the signal that triggers the handler.
	Signal string `yaml:"signal,omitempty"`

	// MaskDuringHold blocks delivery while the lock is held, which removes
	// the hazard.
	MaskDuringHold bool `yaml:"maskDuringHold,omitempty"`

	// Trace swaps in the go-deadlock instrumented mutex.
	Trace bool `yaml:"trace,omitempty"`

	// DeadlockTimeout is the wait after which a traced Lock is reported.
	DeadlockTimeout time.Duration `yaml:"deadlockTimeout,omitempty"`

	// SelfSignalAfter, when positive, makes the process send itself the
	// signal this long after startup.
	SelfSignalAfter time.Duration `yaml:"selfSignalAfter,omitempty"`

	// DebugAddr is where pprof listens. Empty disables it.
	DebugAddr string `yaml:"debugAddr"`

	// Demo runs the simulated walkthrough instead of the real scenario.
	Demo bool `yaml:"demo,omitempty"`

	// Color enables coloured output on terminals.
	Color bool `yaml:"color"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Hold:            10 * time.Second,
		Signal:          interrupt.Name(interrupt.UserSignal),
		DeadlockTimeout: 30 * time.Second,
		DebugAddr:       "localhost:6062",
		Color:           true,
	}
}

// Load reads the config file named by SIGLOCK_CONFIG or, failing that, the
// first config.yml found in the XDG config directories. With neither, the
// defaults are returned.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = xdg.New("marcodamonte", "signal-deadlock").QueryConfig("config.yml")
	}
	return LoadFile(path)
}

// LoadFile reads path on top of the defaults. An empty path means defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapPrefix(err, "reading config", 0)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, errors.WrapPrefix(err, "parsing "+path, 0)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, ok := interrupt.Lookup(c.Signal); !ok {
		return errors.WrapPrefix(ErrInvalid, "unknown signal "+c.Signal, 0)
	}
	if c.Hold <= 0 {
		return errors.WrapPrefix(ErrInvalid, "hold must be positive", 0)
	}
	if c.DeadlockTimeout < 0 || c.SelfSignalAfter < 0 {
		return errors.WrapPrefix(ErrInvalid, "durations must not be negative", 0)
	}
	return nil
}

// Sig returns the configured signal. Only call it on a validated Config.
func (c *Config) Sig() os.Signal {
	sig, _ := interrupt.Lookup(c.Signal)
	return sig
}
