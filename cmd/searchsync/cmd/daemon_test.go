package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/daemon"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

func TestDaemonCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	daemonCmd, _, err := cmd.Find([]string{"daemon"})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, sc := range daemonCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["start"])
	assert.True(t, names["stop"])
	assert.True(t, names["status"])

	startCmd, _, err := cmd.Find([]string{"daemon", "start"})
	require.NoError(t, err)
	fg := startCmd.Flags().Lookup("foreground")
	require.NotNil(t, fg)
	assert.Equal(t, "f", fg.Shorthand)
}

func TestDaemonStatusCmd_NotRunning(t *testing.T) {
	dir := setupProject(t, 0)

	out, err := run(t, dir, "daemon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")

	out, err = run(t, dir, "daemon", "status", "--json")
	require.NoError(t, err)
	var st daemon.StatusResult
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Running)
}

func TestDaemonStopCmd_NotRunning(t *testing.T) {
	dir := setupProject(t, 0)

	out, err := run(t, dir, "daemon", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

// serveDaemon runs a daemon for dir inside the test process until cleanup.
func serveDaemon(t *testing.T, dir string) *daemon.Client {
	t.Helper()

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	env, err := openSync(ctx, cfg, dir, nil)
	require.NoError(t, err)

	d, err := daemon.New(daemonConfig(cfg), env.svc)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	client := daemon.NewClient(daemonConfig(cfg))
	require.Eventually(t, client.IsRunning, 5*time.Second, 20*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
		env.Close()
	})
	return client
}

func TestCommands_DelegateToRunningDaemon(t *testing.T) {
	// Given: a built alias and a daemon serving it
	dir := setupProject(t, 3)
	_, err := run(t, dir, "reindex", "--local", "--no-tui", "--suffix", "_v1")
	require.NoError(t, err)
	serveDaemon(t, dir)

	// When: upserting without --local
	out, err := run(t, dir, "upsert", "p001", "--json")

	// Then: the daemon wrote the document
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)

	// When: reindexing without --local
	out, err = run(t, dir, "reindex", "--suffix", "_v2")

	// Then: the run was delegated and the alias moved
	require.NoError(t, err)
	assert.Contains(t, out, "delegated to the daemon")
	assert.Contains(t, out, "catalog_v2")

	// And: daemon status reports the last run
	out, err = run(t, dir, "daemon", "status", "--json")
	require.NoError(t, err)
	var st daemon.StatusResult
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Running)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "catalog", st.Alias)
	require.NotNil(t, st.LastReindex)
	assert.Equal(t, "catalog_v2", st.LastReindex.Index)

	// And: status shows the daemon without opening the local store
	out, err = run(t, dir, "status", "--json")
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "running", info.DaemonStatus)
	assert.Equal(t, "ok", info.LastResult)
}

func TestProjectReloader_PicksUpNewTypes(t *testing.T) {
	// Given: a running environment for the seeded project
	dir := setupProject(t, 2)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	env, err := openSync(context.Background(), cfg, dir, nil)
	require.NoError(t, err)
	r := &projectReloader{dir: dir, env: env}
	t.Cleanup(r.Close)

	// When: the types file gains a field and the project reloads
	require.NoError(t, os.WriteFile(filepath.Join(dir, "searchsync.types.yaml"),
		[]byte(testTypes+"      - name: sku\n        type: keyword\n"), 0o644))
	sy, err := r.Reload(context.Background())
	require.NoError(t, err)

	// Then: a new service compiles the new field
	svc := r.env.svc
	assert.Same(t, svc, sy)
	assert.NotSame(t, env, r.env)
	body, err := json.Marshal(svc.Mapping())
	require.NoError(t, err)
	assert.Contains(t, string(body), `"sku"`)
}

func TestProjectReloader_BrokenTypesKeepEnvironment(t *testing.T) {
	dir := setupProject(t, 1)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	env, err := openSync(context.Background(), cfg, dir, nil)
	require.NoError(t, err)
	r := &projectReloader{dir: dir, env: env}
	t.Cleanup(r.Close)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "searchsync.types.yaml"), []byte("types: ["), 0o644))

	_, err = r.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, env, r.env)
	assert.Equal(t, "catalog", r.env.svc.Alias())
}
