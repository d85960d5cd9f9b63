//go:build cgo

package sqlsource

// The cgo SQLite driver registers as "sqlite3".
import _ "github.com/mattn/go-sqlite3"
