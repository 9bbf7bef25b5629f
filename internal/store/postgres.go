// Package store persists pipeline runs, tagged records, and category
// summaries to Postgres.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acs-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres writes runs and their output tables.
type Postgres struct {
	pool Pool
}

// NewPostgres creates a store over an open pool. Returns nil if pool is nil.
func NewPostgres(pool Pool) *Postgres {
	if pool == nil {
		return nil
	}
	return &Postgres{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS acs_runs (
	id         UUID PRIMARY KEY,
	dataset    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS acs_records (
	run_id          UUID NOT NULL REFERENCES acs_runs(id),
	dimension       TEXT NOT NULL,
	geography_id    TEXT NOT NULL,
	ratio           DOUBLE PRECISION NOT NULL,
	ratio_undefined BOOLEAN NOT NULL DEFAULT false,
	columns         JSONB NOT NULL,
	PRIMARY KEY (run_id, dimension, geography_id)
);

CREATE TABLE IF NOT EXISTS acs_summaries (
	run_id     UUID NOT NULL REFERENCES acs_runs(id),
	position   INTEGER NOT NULL,
	category   TEXT NOT NULL,
	count      INTEGER NOT NULL,
	percentage DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// Migrate creates the store tables if they do not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

// SaveRun persists one pipeline run with its tagged records and summaries in
// a single transaction and returns the new run id.
func (s *Postgres) SaveRun(ctx context.Context, dataset string, records []model.TaggedRecord, summaries []model.CategorySummary) (uuid.UUID, error) {
	runID := uuid.New()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO acs_runs (id, dataset) VALUES ($1, $2)`,
		runID, dataset); err != nil {
		return uuid.Nil, eris.Wrap(err, "store: insert run")
	}

	recordRows := make([][]any, 0, len(records))
	for _, r := range records {
		cols, err := json.Marshal(r.Columns)
		if err != nil {
			return uuid.Nil, eris.Wrapf(err, "store: marshal columns for geography %s", r.GeographyID)
		}
		recordRows = append(recordRows, []any{
			runID, r.Dimension, r.GeographyID, r.Ratio, r.RatioUndefined, cols,
		})
	}
	if err := bulkUpsert(ctx, tx, upsertConfig{
		Table:        "acs_records",
		Columns:      []string{"run_id", "dimension", "geography_id", "ratio", "ratio_undefined", "columns"},
		ConflictKeys: []string{"run_id", "dimension", "geography_id"},
	}, recordRows); err != nil {
		return uuid.Nil, err
	}

	for i, sum := range summaries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO acs_summaries (run_id, position, category, count, percentage) VALUES ($1, $2, $3, $4, $5)`,
			runID, i, sum.Category, sum.Count, sum.Percentage); err != nil {
			return uuid.Nil, eris.Wrapf(err, "store: insert summary %s", sum.Category)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, eris.Wrap(err, "store: commit tx")
	}

	zap.L().Info("store: run saved",
		zap.String("run_id", runID.String()),
		zap.Int("records", len(records)),
		zap.Int("summaries", len(summaries)),
	)
	return runID, nil
}

// upsertConfig defines the parameters for a bulk upsert.
type upsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
}

// bulkUpsert COPYs rows into a temp table and merges them into the target
// with INSERT ... ON CONFLICT DO UPDATE.
func bulkUpsert(ctx context.Context, tx pgx.Tx, cfg upsertConfig, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	tempTable := fmt.Sprintf("_tmp_upsert_%s", cfg.Table)
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		pgx.Identifier{cfg.Table}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return eris.Wrapf(err, "store: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrapf(err, "store: COPY into temp table for %s", cfg.Table)
	}

	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}
	var setClauses []string
	for _, col := range cfg.Columns {
		if !conflictSet[col] {
			setClauses = append(setClauses,
				fmt.Sprintf("%s = EXCLUDED.%s", pgx.Identifier{col}.Sanitize(), pgx.Identifier{col}.Sanitize()))
		}
	}

	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		pgx.Identifier{cfg.Table}.Sanitize(),
		quoteAndJoin(cfg.Columns),
		quoteAndJoin(cfg.Columns),
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(setClauses, ", "),
	)
	if _, err := tx.Exec(ctx, upsertSQL); err != nil {
		return eris.Wrapf(err, "store: INSERT ON CONFLICT for %s", cfg.Table)
	}

	return nil
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
