package catalog

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/acs-cli/internal/model"
)

// Fetcher retrieves a variable catalog for one (year, dataset).
type Fetcher interface {
	FetchCatalog(ctx context.Context, year int, dataset string) ([]model.CatalogEntry, error)
}

// Cache stores fetched catalogs in sqlite, keyed by (year, dataset). Catalog
// entries are immutable historical facts, so entries are cached indefinitely
// with no invalidation.
type Cache struct {
	db      *sql.DB
	fetcher Fetcher
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	year    INTEGER NOT NULL,
	dataset TEXT NOT NULL,
	code    TEXT NOT NULL,
	concept TEXT NOT NULL,
	label   TEXT NOT NULL,
	PRIMARY KEY (year, dataset, code)
);
`

// OpenCache opens (creating if needed) a sqlite catalog cache at dsn, backed
// by fetcher for misses.
func OpenCache(dsn string, fetcher Fetcher) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open cache")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	if _, err := db.Exec(cacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "catalog: migrate cache")
	}
	return &Cache{db: db, fetcher: fetcher}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Entries returns the catalog for (year, dataset), reading from sqlite when
// present and fetching then storing on a miss.
func (c *Cache) Entries(ctx context.Context, year int, dataset string) ([]model.CatalogEntry, error) {
	cached, err := c.load(ctx, year, dataset)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		zap.L().Debug("catalog: cache hit",
			zap.Int("year", year),
			zap.String("dataset", dataset),
			zap.Int("entries", len(cached)),
		)
		return cached, nil
	}

	entries, err := c.fetcher.FetchCatalog(ctx, year, dataset)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: fetch %d %s", year, dataset)
	}
	if err := c.store(ctx, entries); err != nil {
		return nil, err
	}
	zap.L().Info("catalog: cached",
		zap.Int("year", year),
		zap.String("dataset", dataset),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

func (c *Cache) load(ctx context.Context, year int, dataset string) ([]model.CatalogEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT code, concept, label FROM catalog_entries WHERE year = ? AND dataset = ? ORDER BY code`,
		year, dataset)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query cache")
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		e := model.CatalogEntry{Year: year, Dataset: dataset}
		if err := rows.Scan(&e.Code, &e.Concept, &e.Label); err != nil {
			return nil, eris.Wrap(err, "catalog: scan cache row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "catalog: iterate cache rows")
	}
	return entries, nil
}

func (c *Cache) store(ctx context.Context, entries []model.CatalogEntry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "catalog: begin cache tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO catalog_entries (year, dataset, code, concept, label) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "catalog: prepare cache insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Year, e.Dataset, e.Code, e.Concept, e.Label); err != nil {
			return eris.Wrapf(err, "catalog: insert cache entry %s", e.Code)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "catalog: commit cache tx")
	}
	return nil
}
