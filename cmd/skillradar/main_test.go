package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Cleanup(func() { cfgFile, verbose = "", false })
	root := rootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func TestInitCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "skills.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  path: "+dbPath+"\n"), 0o600))

	require.NoError(t, execute(t, "--config", cfgPath, "init"))
	assert.FileExists(t, dbPath)

	// Read commands work against the empty store.
	assert.NoError(t, execute(t, "--config", cfgPath, "snapshots"))
	assert.NoError(t, execute(t, "--config", cfgPath, "movers"))
	assert.NoError(t, execute(t, "--config", cfgPath, "cleanup", "--days", "0"))
}

func TestCommandArgs(t *testing.T) {
	assert.Error(t, execute(t, "history"))
	assert.Error(t, execute(t, "categories", "2026-06-10", "extra"))
	assert.Error(t, execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "init"))
}
