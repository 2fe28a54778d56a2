package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpattn/querykit/internal/ingestion"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [entity-type] [file]",
		Short: "Load entities from a CSV or XLSX file whose header row names the fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			defer f.Close()

			st, err := openStores(ctx, logger)
			if err != nil {
				return fmt.Errorf("import: opening store: %w", err)
			}
			defer st.Close()

			var summary ingestion.Summary
			err = st.inTx(ctx, logger, func(svc *ingestion.Service) error {
				var importErr error
				summary, importErr = svc.Import(ctx, ingestion.Request{
					EntityType: args[0],
					FileName:   filepath.Base(args[1]),
					Data:       f,
				})
				return importErr
			})
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			return printSummary(cmd, summary)
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Register schemas and entities from a YAML seed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := openStores(ctx, logger)
			if err != nil {
				return fmt.Errorf("seed: opening store: %w", err)
			}
			defer st.Close()

			var summary ingestion.Summary
			err = st.inTx(ctx, logger, func(svc *ingestion.Service) error {
				var seedErr error
				summary, seedErr = svc.SeedFile(ctx, args[0])
				return seedErr
			})
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			return printSummary(cmd, summary)
		},
	}
}

func printSummary(cmd *cobra.Command, summary ingestion.Summary) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
