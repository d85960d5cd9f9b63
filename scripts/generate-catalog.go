//go:build ignore

// Package main seeds a synthetic product catalog for reindex benchmarking.
// Usage: go run scripts/generate-catalog.go -rows 100000 -output catalog.db
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	numRows = flag.Int("rows", 10000, "Number of products to generate")
	output  = flag.String("output", "catalog.db", "SQLite database file")
	batch   = flag.Int("batch", 1000, "Rows per transaction")
	seed    = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	brands     = []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli", "Vandelay", "Stark", "Wayne"}
	adjectives = []string{"compact", "deluxe", "portable", "wireless", "heavy-duty", "smart", "classic", "eco"}
	nouns      = []string{"kettle", "lamp", "backpack", "speaker", "drill", "blender", "monitor", "jacket"}
	tagPool    = []string{"sale", "new", "gift", "outdoor", "kitchen", "office", "travel", "bestseller"}
)

const schema = `CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	brand      TEXT,
	tags       TEXT,
	price      REAL,
	updated_at TEXT
)`

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	db, err := sql.Open("sqlite", *output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *output, err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		fmt.Fprintf(os.Stderr, "create table: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for from := 0; from < *numRows; from += *batch {
		to := min(from+*batch, *numRows)
		if err := insertRange(db, rng, base, from, to); err != nil {
			fmt.Fprintf(os.Stderr, "insert rows %d-%d: %v\n", from, to, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d products in %s (%v)\n", *numRows, *output, time.Since(start).Round(time.Millisecond))
}

func insertRange(db *sql.DB, rng *rand.Rand, base time.Time, from, to int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO products (id, name, brand, tags, price, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := from; i < to; i++ {
		name := fmt.Sprintf("%s %s %s", pick(rng, brands), pick(rng, adjectives), pick(rng, nouns))
		tags := []string{pick(rng, tagPool), pick(rng, tagPool)}
		price := float64(rng.Intn(50000)) / 100
		updated := base.Add(time.Duration(rng.Intn(365*24)) * time.Hour)

		if _, err := stmt.Exec(fmt.Sprintf("SKU-%07d", i+1), name, pick(rng, brands),
			strings.Join(tags, ","), price, updated.Format("2006-01-02 15:04:05")); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}
