package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/acs-cli/internal/catalog"
	"github.com/sells-group/acs-cli/pkg/census"
)

var (
	catalogYear    int
	catalogDataset string
	catalogConcept string
	catalogLabel   string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Search the variable catalog for a dataset vintage",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := census.NewHTTPClient(census.Options{
			BaseURL:    cfg.Census.BaseURL,
			APIKey:     cfg.Census.APIKey,
			Timeout:    time.Duration(cfg.Census.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Census.MaxRetries,
		})

		cache, err := catalog.OpenCache(cfg.Catalog.CachePath, client)
		if err != nil {
			return err
		}
		defer cache.Close()

		entries, err := cache.Entries(cmd.Context(), catalogYear, catalogDataset)
		if err != nil {
			return err
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })

		var shown int
		for _, e := range entries {
			if catalogConcept != "" && !strings.Contains(strings.ToLower(e.Concept), strings.ToLower(catalogConcept)) {
				continue
			}
			if catalogLabel != "" && !strings.Contains(strings.ToLower(e.Label), strings.ToLower(catalogLabel)) {
				continue
			}
			fmt.Printf("%s\t%s\t%s\n", e.Code, e.Concept, e.Label)
			shown++
		}
		fmt.Printf("\n%d of %d variables\n", shown, len(entries))
		return nil
	},
}

func init() {
	catalogCmd.Flags().IntVar(&catalogYear, "year", 2022, "dataset vintage")
	catalogCmd.Flags().StringVar(&catalogDataset, "dataset", "acs/acs5", "dataset path")
	catalogCmd.Flags().StringVar(&catalogConcept, "concept", "", "substring filter on concept")
	catalogCmd.Flags().StringVar(&catalogLabel, "label", "", "substring filter on label")
	rootCmd.AddCommand(catalogCmd)
}
