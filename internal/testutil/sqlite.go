// Package testutil writes small MTGJSON-shaped SQLite files for tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const CatalogSchema = `
CREATE TABLE meta (date DATE, version TEXT);
CREATE TABLE sets (
	code TEXT,
	name TEXT,
	type TEXT,
	releaseDate DATE,
	block TEXT,
	isOnlineOnly BOOLEAN,
	keyruneCode TEXT,
	totalSetSize INTEGER
);
CREATE TABLE cards (
	uuid TEXT,
	name TEXT,
	setCode TEXT,
	manaCost TEXT,
	rarity TEXT,
	manaValue FLOAT
);
CREATE TABLE cardIdentifiers (
	uuid TEXT,
	mtgoId TEXT,
	scryfallId TEXT
);
`

const PricingSchema = `
CREATE TABLE cardPrices (
	uuid TEXT,
	price FLOAT,
	currency TEXT,
	gameAvailability TEXT,
	date DATE,
	providerListing TEXT,
	cardFinish TEXT,
	priceProvider TEXT
);
`

// WriteSQLite creates path and runs each statement against it.
func WriteSQLite(t testing.TB, path string, stmts ...string) string {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

// WriteCatalog writes AllPrintings.sqlite in dir with the full catalog schema.
func WriteCatalog(t testing.TB, dir string, stmts ...string) string {
	t.Helper()
	return WriteSQLite(t, filepath.Join(dir, "AllPrintings.sqlite"), append([]string{CatalogSchema}, stmts...)...)
}

// WritePricing writes AllPricesToday.sqlite in dir with the cardPrices table.
func WritePricing(t testing.TB, dir string, stmts ...string) string {
	t.Helper()
	return WriteSQLite(t, filepath.Join(dir, "AllPricesToday.sqlite"), append([]string{PricingSchema}, stmts...)...)
}

// Exec runs statements against an existing file, e.g. to change the pricing
// data between two queries.
func Exec(t testing.TB, path string, stmts ...string) {
	t.Helper()
	WriteSQLite(t, path, stmts...)
}
