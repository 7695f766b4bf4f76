package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
server:
  public_url: https://auth.example.com
storage:
  driver: sqlite
  dsn: `+filepath.Join(dir, "cb.db")+`
security:
  token_seal_key: MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=
`), 0o600))

	run := func() string {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"migrate", "--config", cfgFile, "--env-file", filepath.Join(dir, "missing.env")})
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	assert.Contains(t, run(), "aplicada 00001")
	assert.Contains(t, run(), "sin migraciones pendientes")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("storage:\n  driver: mongo\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--config", cfgFile})
	assert.Error(t, cmd.Execute())
}
