package cmd

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testTypes = `
types:
  - name: product
    fields:
      - name: id
        type: keyword
        search_id: true
      - name: name
        type: text
      - name: price
        type: double
`

// setupProject writes a project using the local backend and a seeded
// SQLite catalog with n products. HOME and XDG_CONFIG_HOME point into the
// temp dir so no real user config is read.
func setupProject(t *testing.T, n int) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "searchsync.types.yaml"), []byte(testTypes), 0o644))

	db, err := sql.Open("sqlite", filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE products (id TEXT PRIMARY KEY, name TEXT, price REAL)`)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err := db.Exec(`INSERT INTO products (id, name, price) VALUES (?, ?, ?)`,
			fmt.Sprintf("p%03d", i), fmt.Sprintf("product %d", i), float64(i)*2)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	project := fmt.Sprintf(`
index:
  alias: catalog
  type: product
backend:
  kind: local
  data_dir: data
source:
  driver: sqlite
  dsn: catalog.db
  table: products
  id_column: id
reindex:
  page_size: 2
  batch_ceiling: 10
  lock_dir: %s
daemon:
  socket_path: %s
  pid_path: %s
`, filepath.Join(home, "locks"), filepath.Join(home, "d.sock"), filepath.Join(home, "d.pid"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".searchsync.yaml"), []byte(project), 0o644))

	return dir
}

// run executes the root command against dir and returns its stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))

	err := cmd.Execute()
	return buf.String(), err
}
