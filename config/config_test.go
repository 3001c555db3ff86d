package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/marcodamonte/concurrency/signal-deadlock/interrupt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Hold)
	assert.Equal(t, interrupt.UserSignal, cfg.Sig())
	assert.False(t, cfg.MaskDuringHold)
	assert.False(t, cfg.Trace)
	assert.Equal(t, "localhost:6062", cfg.DebugAddr)
	assert.True(t, cfg.Color)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
hold: 250ms
signal: SIGINT
maskDuringHold: true
trace: true
deadlockTimeout: 2s
selfSignalAfter: 100ms
debugAddr: ""
color: false
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Hold)
	assert.Equal(t, "SIGINT", interrupt.Name(cfg.Sig()))
	assert.True(t, cfg.MaskDuringHold)
	assert.True(t, cfg.Trace)
	assert.Equal(t, 2*time.Second, cfg.DeadlockTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.SelfSignalAfter)
	assert.Equal(t, "", cfg.DebugAddr)
	assert.False(t, cfg.Color)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "demo: true\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Demo)
	assert.Equal(t, 10*time.Second, cfg.Hold)
	assert.Equal(t, "localhost:6062", cfg.DebugAddr)
}

func TestInvalidConfigs(t *testing.T) {
	type scenario struct {
		content string
		message string
	}

	scenarios := []scenario{
		{"signal: SIGBOGUS\n", "unknown signal"},
		{"hold: 0s\n", "hold must be positive"},
		{"selfSignalAfter: -1s\n", "must not be negative"},
	}

	for _, s := range scenarios {
		_, err := LoadFile(writeConfig(t, s.content))
		require.Error(t, err, s.content)
		assert.True(t, errors.Is(err, ErrInvalid), s.content)
		assert.Contains(t, err.Error(), s.message)
	}
}

func TestMalformedYAML(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "hold: [not, a, duration\n"))
	assert.Error(t, err)
}

func TestMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv(EnvConfigPath, writeConfig(t, "hold: 3s\n"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Hold)
}
