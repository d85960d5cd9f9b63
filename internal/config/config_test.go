package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// isolate points the user config at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: the stock settings apply
	assert.Equal(t, []string{"127.0.0.1:9200"}, cfg.Elasticsearch.Hosts)
	assert.Equal(t, "http", cfg.Elasticsearch.Scheme)
	assert.Equal(t, 20, cfg.Elasticsearch.ConcurrencyLevel)
	assert.Equal(t, "1s", cfg.Elasticsearch.RefreshInterval)
	assert.Equal(t, "true", cfg.Elasticsearch.RefreshPolicy)
	assert.Equal(t, 500, cfg.Reindex.PageSize)
	assert.Equal(t, 150000, cfg.Reindex.BatchCeiling)
	assert.Zero(t, cfg.Reindex.RateLimit)
	assert.Equal(t, BackendElastic, cfg.Backend.Kind)
	assert.Equal(t, DriverSQLite, cfg.Source.Driver)
	assert.Equal(t, "id", cfg.Source.IDColumn)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, filepath.Join(HomeDir(), "daemon.sock"), cfg.Daemon.SocketPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_ProjectFileOverridesUserFile(t *testing.T) {
	// Given: a user config and a project config
	isolate(t)
	writeFile(t, GetUserConfigPath(), `
elasticsearch:
  hosts: ["es1:9200", "es2"]
  concurrency_level: 8
index:
  alias: from_user
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYAML), `
index:
  alias: products
  type: product
reindex:
  page_size: 200
  rate_limit: 5
backend:
  kind: local
`)

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project values win, untouched user values survive
	assert.Equal(t, "products", cfg.Index.Alias)
	assert.Equal(t, "product", cfg.Index.Type)
	assert.Equal(t, []string{"es1:9200", "es2"}, cfg.Elasticsearch.Hosts)
	assert.Equal(t, 8, cfg.Elasticsearch.ConcurrencyLevel)
	assert.Equal(t, 200, cfg.Reindex.PageSize)
	assert.Equal(t, 5.0, cfg.Reindex.RateLimit)
	assert.Equal(t, BackendLocal, cfg.Backend.Kind)
	assert.Equal(t, 150000, cfg.Reindex.BatchCeiling)
}

func TestLoad_YMLFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYML), "index:\n  alias: yml\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "yml", cfg.Index.Alias)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	// Given: a project file and environment overrides
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYAML), "index:\n  alias: products\n")
	t.Setenv("SEARCHSYNC_ALIAS", "orders")
	t.Setenv("SEARCHSYNC_HOSTS", "a:9200, b:9201,")
	t.Setenv("SEARCHSYNC_CONCURRENCY_LEVEL", "4")
	t.Setenv("SEARCHSYNC_RATE_LIMIT", "2.5")
	t.Setenv("SEARCHSYNC_LOG_LEVEL", "debug")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: the environment wins
	assert.Equal(t, "orders", cfg.Index.Alias)
	assert.Equal(t, []string{"a:9200", "b:9201"}, cfg.Elasticsearch.Hosts)
	assert.Equal(t, 4, cfg.Elasticsearch.ConcurrencyLevel)
	assert.Equal(t, 2.5, cfg.Reindex.RateLimit)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	// Given: a .env file and one variable already set
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, EnvFile), "SEARCHSYNC_TYPE=product\nSEARCHSYNC_ALIAS=from_dotenv\n")
	t.Setenv("SEARCHSYNC_ALIAS", "from_env")
	t.Cleanup(func() { _ = os.Unsetenv("SEARCHSYNC_TYPE") })

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: .env fills gaps only
	assert.Equal(t, "product", cfg.Index.Type)
	assert.Equal(t, "from_env", cfg.Index.Alias)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "malformed yaml", file: "index: [", wantErr: "failed to parse"},
		{name: "bad number in env", env: map[string]string{"SEARCHSYNC_PAGE_SIZE": "lots"}, wantErr: "not a number"},
		{name: "bad backend", file: "backend:\n  kind: solr\n", wantErr: "backend.kind"},
		{name: "bad driver", file: "source:\n  driver: oracle\n", wantErr: "source.driver"},
		{name: "bad scheme", file: "elasticsearch:\n  scheme: ftp\n", wantErr: "elasticsearch.scheme"},
		{name: "bad refresh policy", file: "elasticsearch:\n  refresh_policy: sometimes\n", wantErr: "refresh_policy"},
		{name: "ceiling below page", file: "reindex:\n  page_size: 1000\n  batch_ceiling: 10\n", wantErr: "batch_ceiling"},
		{name: "bad timeout", file: "daemon:\n  timeout: soon\n", wantErr: "daemon.timeout"},
		{name: "bad log level", file: "server:\n  log_level: loud\n", wantErr: "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, ProjectFileYAML), tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(dir)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, serrors.IsConfig(err))
		})
	}
}

func TestValidate_NegativeConcurrency(t *testing.T) {
	cfg := NewConfig()
	cfg.Elasticsearch.ConcurrencyLevel = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_LocalBackendNeedsNoHosts(t *testing.T) {
	cfg := NewConfig()
	cfg.Backend.Kind = BackendLocal
	cfg.Elasticsearch.Hosts = nil
	assert.NoError(t, cfg.Validate())

	cfg.Backend.Kind = BackendElastic
	assert.Error(t, cfg.Validate())
}

func TestRequireTarget(t *testing.T) {
	cfg := NewConfig()
	err := cfg.RequireTarget()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.alias")

	cfg.Index.Alias = "products"
	assert.ErrorContains(t, cfg.RequireTarget(), "index.type")

	cfg.Index.Type = "product"
	assert.NoError(t, cfg.RequireTarget())
}

func TestDaemonTimeout(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 30*time.Second, cfg.DaemonTimeout())

	cfg.Daemon.Timeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.DaemonTimeout())

	cfg.Daemon.Timeout = ""
	assert.Equal(t, 30*time.Second, cfg.DaemonTimeout())
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "", ResolvePath("/p", ""))
	assert.Equal(t, "/abs/types.yaml", ResolvePath("/p", "/abs/types.yaml"))
	assert.Equal(t, filepath.Join("/p", "types.yaml"), ResolvePath("/p", "types.yaml"))
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	// Given: a customized config written as the project file
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Index.Alias = "products"
	cfg.Daemon.Schedule = "0 3 * * *"
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileYAML)))

	// When: loading it back
	loaded, err := Load(dir)
	require.NoError(t, err)

	// Then: the custom values survive
	assert.Equal(t, "products", loaded.Index.Alias)
	assert.Equal(t, "0 3 * * *", loaded.Daemon.Schedule)
}

func TestFindProjectRoot(t *testing.T) {
	// Given: a project file two levels up
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ProjectFileYAML), "version: 1\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	// When: searching from the nested directory
	found, err := FindProjectRoot(nested)

	// Then: the project root is found
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, want, got)
}
