package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/config"
)

func TestConfigCmd_HasSubcommands(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// When: finding config command
	configCmd, _, err := cmd.Find([]string{"config"})
	require.NoError(t, err)

	// Then: config command should have subcommands
	names := make(map[string]bool)
	for _, sc := range configCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["init"], "should have init command")
	assert.True(t, names["show"], "should have show command")
	assert.True(t, names["path"], "should have path command")
}

func TestConfigPathCmd_OutputsPath(t *testing.T) {
	dir := setupProject(t, 0)

	out, err := run(t, dir, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath()+"\n", out)
}

func TestConfigShowCmd_MergesProjectFile(t *testing.T) {
	// Given: a project file naming the alias
	dir := setupProject(t, 0)

	// When: showing the merged config as JSON
	out, err := run(t, dir, "config", "show", "--json")
	require.NoError(t, err)

	// Then: project values override defaults
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "catalog", cfg.Index.Alias)
	assert.Equal(t, config.BackendLocal, cfg.Backend.Kind)
	assert.Equal(t, 2, cfg.Reindex.PageSize)
	assert.Equal(t, "http", cfg.Elasticsearch.Scheme)
}

func TestConfigShowCmd_DefaultsAsYAML(t *testing.T) {
	dir := setupProject(t, 0)

	out, err := run(t, dir, "config", "show", "--source", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "elasticsearch:")
	assert.Contains(t, out, "kind: elastic")
}

func TestConfigShowCmd_UnknownSource(t *testing.T) {
	dir := setupProject(t, 0)

	_, err := run(t, dir, "config", "show", "--source", "remote")
	assert.Error(t, err)
}

func TestConfigInitCmd_WritesProjectFile(t *testing.T) {
	// Given: an empty project directory
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	dir := t.TempDir()

	// When: running config init
	out, err := run(t, dir, "config", "init")
	require.NoError(t, err)

	// Then: a loadable project file exists
	assert.Contains(t, out, "Wrote configuration")
	assert.FileExists(t, filepath.Join(dir, config.ProjectFileYAML))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.BackendElastic, cfg.Backend.Kind)
	require.NoError(t, cfg.RequireTarget())

	// And: the example types compile for the configured type
	_, err = run(t, dir, "mapping")
	require.NoError(t, err)
}

func TestConfigInitCmd_KeepsExistingWithoutForce(t *testing.T) {
	dir := setupProject(t, 0)
	path := filepath.Join(dir, config.ProjectFileYAML)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	out, err := run(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConfigInitCmd_UserForceBacksUp(t *testing.T) {
	// Given: an existing user config
	dir := setupProject(t, 0)
	_, err := run(t, dir, "config", "init", "--user")
	require.NoError(t, err)
	require.True(t, config.UserConfigExists())

	// When: re-running with --force
	out, err := run(t, dir, "config", "init", "--user", "--force")
	require.NoError(t, err)

	// Then: the old file was backed up first
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
