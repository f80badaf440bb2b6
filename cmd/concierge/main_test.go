package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "concierge.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
server:
  port: 8081
assistant:
  chat_model: gpt-4o-mini
  vision_model: gpt-4o
`), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), valid, true, &out))
	assert.Equal(t, "Configuration is valid\n", out.String())

	invalid := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
[server]
port = 70000

[logging]
level = "loud"
`), 0o644))

	out.Reset()
	err := run(context.Background(), invalid, true, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
	assert.Contains(t, err.Error(), "invalid log level")
	assert.Empty(t, out.String())
}

func TestRunMissingConfig(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), false, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concierge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 0
assets:
  public_dir: `+dir+`
logging:
  level: error
`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, path, false, &bytes.Buffer{}))
}
