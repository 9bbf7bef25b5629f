package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acs-cli/internal/boundary"
	"github.com/sells-group/acs-cli/internal/catalog"
	"github.com/sells-group/acs-cli/internal/export"
	"github.com/sells-group/acs-cli/internal/model"
	"github.com/sells-group/acs-cli/internal/pipeline"
	"github.com/sells-group/acs-cli/internal/store"
	"github.com/sells-group/acs-cli/pkg/census"
)

var (
	runSpecPath string
	runOutPath  string
	runStore    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a tabulation pipeline from a spec file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		spec, err := pipeline.LoadSpec(runSpecPath)
		if err != nil {
			return err
		}
		if spec.Concurrency == 0 {
			spec.Concurrency = cfg.Pipeline.Concurrency
		}

		var boundaries census.BoundaryProvider
		if cfg.Boundary.ShapefilePath != "" {
			idx, err := boundary.LoadShapefile(cfg.Boundary.ShapefilePath)
			if err != nil {
				return err
			}
			boundaries = idx
		}

		client := census.NewHTTPClient(census.Options{
			BaseURL:    cfg.Census.BaseURL,
			APIKey:     cfg.Census.APIKey,
			Timeout:    time.Duration(cfg.Census.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Census.MaxRetries,
			Boundaries: boundaries,
		})

		cache, err := catalog.OpenCache(cfg.Catalog.CachePath, client)
		if err != nil {
			return err
		}
		defer cache.Close()

		p := pipeline.New(spec, client, cache)

		records, err := p.Run(ctx)
		if err != nil {
			return err
		}
		summaries, err := p.Summarize(records)
		if err != nil {
			return err
		}

		fmt.Print(pipeline.FormatReport(spec, records, summaries))

		if runOutPath != "" {
			if err := export.WriteWorkbook(runOutPath, spec.Ratio.Column, records, summaries); err != nil {
				return err
			}
		}

		if runStore {
			if err := saveRun(ctx, spec.Dataset, records, summaries); err != nil {
				return err
			}
		}

		return nil
	},
}

func saveRun(ctx context.Context, dataset string, records []model.TaggedRecord, summaries []model.CategorySummary) error {
	st, closer, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	runID, err := st.SaveRun(ctx, dataset, records, summaries)
	if err != nil {
		return err
	}
	fmt.Printf("Run stored: %s\n", runID)
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runSpecPath, "spec", "pipeline.yaml", "pipeline spec file")
	runCmd.Flags().StringVar(&runOutPath, "out", "", "write records and summary to an xlsx workbook")
	runCmd.Flags().BoolVar(&runStore, "store", false, "persist the run to Postgres (store.database_url)")
	rootCmd.AddCommand(runCmd)
}

// connectStore opens the configured Postgres pool.
func connectStore(ctx context.Context) (*store.Postgres, func(), error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, nil, eris.New("store: no database_url configured")
	}
	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: connect")
	}
	st := store.NewPostgres(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	zap.L().Debug("store: connected")
	return st, pool.Close, nil
}
