package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/querykit/internal/domain"
	"github.com/rpattn/querykit/internal/export"
	"github.com/rpattn/querykit/internal/pagination"
)

func queryCmd() *cobra.Command {
	var (
		mode   string
		lookup string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "query [entity-type] [key=value...]",
		Short: "Filter entities with request-style parameters and print one page",
		Example: `  querykit query Book title__icontains=sea sort=year order=desc
  querykit query Book --lookup tolkien items_per_page=10 page=2
  querykit query Book year__gte=1950 --out books.xlsx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			entityType := args[0]

			params, err := parseParams(args[1:])
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			if lookup != "" {
				params[domain.ParamQuery] = []string{lookup}
			}

			st, err := openStores(ctx, logger)
			if err != nil {
				return fmt.Errorf("query: opening store: %w", err)
			}
			defer st.Close()

			builder, cache, err := newBuilder(st, logger)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			var coll domain.Collection
			if params.Has(domain.ParamQuery) {
				coll, err = builder.Lookup(ctx, entityType, params)
			} else {
				coll, err = builder.BuildAndExecute(ctx, entityType, params, domain.CompositionMode(strings.ToUpper(mode)))
			}
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if out != "" {
				cat, err := cache.Get(ctx, entityType)
				if err != nil {
					return fmt.Errorf("query: %w", err)
				}
				n, err := exportFile(ctx, export.NewService(export.WithLogger(logger)), out, cat.Names(), coll)
				if err != nil {
					return fmt.Errorf("query: export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entities to %s\n", n, out)
				return nil
			}

			page, err := pagination.New(pagination.WithMaxPageSize(cfg.Pagination.MaxItemsPerPage)).Paginate(ctx, coll, params)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(page)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeAll), "predicate composition (all|any)")
	cmd.Flags().StringVar(&lookup, "lookup", "", "free-text search across every non-relationship field")
	cmd.Flags().StringVar(&out, "out", "", "write every match to an .xlsx or .csv file instead of printing a page")
	return cmd
}

// parseParams reads key=value arguments. Repeated keys accumulate values.
func parseParams(args []string) (domain.Parameters, error) {
	values := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q must be key=value", arg)
		}
		values.Add(key, value)
	}
	return domain.ParametersFromValues(values), nil
}

// exportFile writes coll to path as CSV when path ends in .csv and as XLSX
// otherwise.
func exportFile(ctx context.Context, svc *export.Service, path string, fields []string, coll domain.Collection) (int, error) {
	format := export.FormatXLSX
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		format = export.FormatCSV
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	return writeAndClose(ctx, svc, f, format, fields, coll)
}

// writeAndClose reports a failed Close unless Write failed first.
func writeAndClose(ctx context.Context, svc *export.Service, w io.WriteCloser, format export.Format, fields []string, coll domain.Collection) (n int, err error) {
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s export: %w", format, closeErr)
		}
	}()
	return svc.Write(ctx, w, format, fields, coll)
}
