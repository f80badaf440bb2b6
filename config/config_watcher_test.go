package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestConfigWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	writeConfig(t, path, "prompts:\n  version: one\n")

	cw, err := NewConfigWatcher(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cw.Close()

	assert.Equal(t, "one", cw.GetCurrentConfig().Prompts.Version)

	updates := cw.Subscribe()
	writeConfig(t, path, "prompts:\n  version: two\n")

	select {
	case cfg := <-updates:
		assert.Equal(t, "two", cfg.Prompts.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
	assert.Equal(t, "two", cw.GetCurrentConfig().Prompts.Version)
}

func TestConfigWatcherKeepsLastValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	writeConfig(t, path, "prompts:\n  version: good\n")

	cw, err := NewConfigWatcher(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cw.Close()

	writeConfig(t, path, "prompts:\n  system: \"{{.Broken\"\n")
	assert.Never(t, func() bool {
		return cw.GetCurrentConfig().Prompts.Version != "good"
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestConfigWatcherClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	writeConfig(t, path, "")

	cw, err := NewConfigWatcher(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	updates := cw.Subscribe()
	require.NoError(t, cw.Close())
	require.NoError(t, cw.Close())

	_, ok := <-updates
	assert.False(t, ok)

	_, ok = <-cw.Subscribe()
	assert.False(t, ok)
}

func TestNewConfigWatcherInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	writeConfig(t, path, "server:\n  port: 99999\n")

	_, err := NewConfigWatcher(path, zaptest.NewLogger(t))
	assert.Error(t, err)
}
