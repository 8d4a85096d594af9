package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jchantrell/soundrip/internal/database"
	"github.com/jchantrell/soundrip/internal/utils"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Query the extraction catalog",
	Long: `Query reads the SQLite catalog written by extract. Use --recent, --formats
or --failures for the common reports, --schema to show the catalog tables,
or pass a raw SQL statement.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		recent, err := cmd.Flags().GetInt("recent")
		if err != nil {
			return fmt.Errorf("failed to get recent flag: %w", err)
		}
		formats, err := cmd.Flags().GetBool("formats")
		if err != nil {
			return fmt.Errorf("failed to get formats flag: %w", err)
		}
		failures, err := cmd.Flags().GetBool("failures")
		if err != nil {
			return fmt.Errorf("failed to get failures flag: %w", err)
		}
		schema, err := cmd.Flags().GetBool("schema")
		if err != nil {
			return fmt.Errorf("failed to get schema flag: %w", err)
		}

		slog.Debug("Query parameters",
			"database", cfg.Database,
			"recent", recent,
			"formats", formats,
			"failures", failures,
			"schema", schema)

		if _, err := os.Stat(cfg.Database); err != nil {
			return fmt.Errorf("catalog %s not found, run extract first: %w", cfg.Database, err)
		}

		db, err := database.NewDatabase(database.DefaultDatabaseOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		catalog := database.NewCatalog(db)
		if err := catalog.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("preparing catalog: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		switch {
		case recent > 0:
			entries, err := catalog.Recent(ctx, recent)
			if err != nil {
				return fmt.Errorf("listing recent extractions: %w", err)
			}
			printEntries(w, entries)

		case failures:
			entries, err := catalog.Failures(ctx)
			if err != nil {
				return fmt.Errorf("listing failures: %w", err)
			}
			printEntries(w, entries)

		case formats:
			counts, err := catalog.FormatCounts(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "FORMAT\tCOUNT\tBYTES")
			for _, c := range counts {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.Format, utils.Number(int64(c.Count)), utils.Bytes(c.Bytes))
			}

		case schema:
			tables, err := db.Schema(ctx)
			if err != nil {
				return fmt.Errorf("reading catalog schema: %w", err)
			}
			fmt.Fprintln(w, "TABLE\tCOLUMN\tTYPE\tNOT NULL\tDEFAULT\tPRIMARY")
			for _, table := range tables {
				for _, c := range table.Columns {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", table.Name, c.Name, c.Type, yesNo(c.NotNull), c.Default, yesNo(c.PrimaryKey))
				}
			}

		case len(args) > 0:
			return runSQL(ctx, w, db, args[0])

		default:
			return fmt.Errorf("no query provided, use --recent N, --formats, --failures, --schema or pass SQL")
		}

		return nil
	},
}

func printEntries(w *tabwriter.Writer, entries []database.Entry) {
	fmt.Fprintln(w, "TIME\tSTATUS\tSOURCE\tFORMAT\tSIZE\tOUTPUT\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ExtractedAt.Local().Format("2006-01-02 15:04:05"),
			e.Status,
			e.Source,
			e.Format,
			utils.Bytes(e.Size),
			e.Output,
			e.Error)
	}
}

func runSQL(ctx context.Context, w *tabwriter.Writer, db *database.Database, query string) error {
	slog.Debug("Executing SQL query", "query", query)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("getting column names: %w", err)
	}

	fmt.Fprintln(w, strings.Join(columns, "\t"))

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		cells := make([]string, len(values))
		for i, val := range values {
			switch v := val.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(v)
			default:
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}

	return nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Int("recent", 0, "Show the N most recent extractions")
	queryCmd.Flags().Bool("formats", false, "Count extracted payloads per format")
	queryCmd.Flags().Bool("failures", false, "List failed extractions")
	queryCmd.Flags().Bool("schema", false, "Show the catalog tables and columns")
}
